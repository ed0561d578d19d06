// SPDX-License-Identifier: MIT

// Package httpx builds the HTTP clients used outside request handling.
// Code in this repository never uses http.DefaultClient, which has no timeout.
package httpx

import (
	"net"
	"net/http"
	"time"
)

const (
	defaultProbeTimeout   = 5 * time.Second
	maxDialTimeout        = 2 * time.Second
	maxResponseHdrTimeout = 3 * time.Second
)

// NewProbeClient returns a client for one-shot probes of a local daemon,
// such as the container healthcheck. It bypasses HTTP proxies and does not
// keep connections alive. timeout <= 0 selects a 5s default; dial and header
// timeouts never exceed the overall timeout.
func NewProbeClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	dial := min(timeout, maxDialTimeout)
	header := min(timeout, maxResponseHdrTimeout)

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:                 nil,
			DialContext:           (&net.Dialer{Timeout: dial}).DialContext,
			DisableKeepAlives:     true,
			ResponseHeaderTimeout: header,
			TLSHandshakeTimeout:   dial,
		},
		// Health endpoints never redirect; following one would probe the wrong thing.
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
