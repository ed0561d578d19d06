// SPDX-License-Identifier: MIT

package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// publisher is the slice of *nats.Conn the sink needs.
type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink forwards notifications as JSON to a NATS subject.
type NATSSink struct {
	pub     publisher
	conn    *nats.Conn
	subject string
}

// NewNATSSink connects to url. The connection retries in the background so
// an unavailable server does not prevent boot.
func NewNATSSink(url, subject string) (*NATSSink, error) {
	if subject == "" {
		return nil, fmt.Errorf("nats subject is required")
	}
	conn, err := nats.Connect(url,
		nats.Name("minios"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSSink{pub: conn, conn: conn, subject: subject}, nil
}

func newNATSSinkWithPublisher(pub publisher, subject string) *NATSSink {
	return &NATSSink{pub: pub, subject: subject}
}

// Subject returns the target subject.
func (s *NATSSink) Subject() string { return s.subject }

// Deliver publishes n.
func (s *NATSSink) Deliver(n Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := s.pub.Publish(s.subject, data); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

// Close drains buffered messages and closes the connection.
func (s *NATSSink) Close() error {
	if s.conn == nil {
		return nil
	}
	if err := s.conn.Drain(); err != nil {
		s.conn.Close()
		return err
	}
	return nil
}
