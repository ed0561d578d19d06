// SPDX-License-Identifier: MIT

// Package notify is the in-process notification hub. Publishers never block:
// history is bounded and slow subscribers lose messages instead of stalling
// the engine.
package notify

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ManuGH/minios/internal/log"
	"github.com/ManuGH/minios/internal/metrics"
)

const (
	DefaultHistory   = 50
	subscriberBuffer = 16
)

// Common sources.
const (
	SourceSystem   = "system"
	SourceTerminal = "terminal"
	SourceAPI      = "api"
	SourceScript   = "script"
)

// Notification is one message shown to the user.
type Notification struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// Sink receives every published notification after local fan-out.
type Sink interface {
	Deliver(n Notification) error
	Close() error
}

// Hub fans notifications out to subscribers and sinks.
type Hub struct {
	mu      sync.RWMutex
	history []Notification
	limit   int
	subs    map[uint64]chan Notification
	nextSub uint64
	sinks   []Sink
	closed  bool
	done    chan struct{}

	dropped atomic.Int64
	now     func() time.Time
	logger  zerolog.Logger
}

// NewHub returns a hub keeping at most history notifications (DefaultHistory
// when history <= 0).
func NewHub(history int) *Hub {
	if history <= 0 {
		history = DefaultHistory
	}
	return &Hub{
		limit:  history,
		subs:   make(map[uint64]chan Notification),
		done:   make(chan struct{}),
		now:    time.Now,
		logger: log.WithComponent("notify"),
	}
}

// AddSink registers a forwarding sink.
func (h *Hub) AddSink(s Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sinks = append(h.sinks, s)
}

// Publish stamps n with an id and time, records it and delivers it.
// The stamped notification is returned.
func (h *Hub) Publish(n Notification) Notification {
	n.ID = uuid.NewString()
	n.CreatedAt = h.now().UTC()
	n.Title = strings.TrimSpace(n.Title)
	if n.Source == "" {
		n.Source = SourceSystem
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return n
	}
	h.history = append(h.history, n)
	if over := len(h.history) - h.limit; over > 0 {
		h.history = append(h.history[:0:0], h.history[over:]...)
	}
	for _, ch := range h.subs {
		select {
		case ch <- n:
		default:
			h.dropped.Add(1)
			metrics.IncNotificationDrop("subscriber_full")
		}
	}
	sinks := append([]Sink(nil), h.sinks...)
	h.mu.Unlock()

	metrics.IncNotificationPublished(n.Source)
	h.logger.Info().
		Str(log.FieldEvent, "notify.published").
		Str("title", n.Title).
		Str("source", n.Source).
		Msg(n.Message)

	for _, s := range sinks {
		if err := s.Deliver(n); err != nil {
			metrics.IncNotificationDrop("sink_error")
			h.logger.Warn().Err(err).Str(log.FieldEvent, "notify.sink_failed").Msg("notification sink delivery failed")
		}
	}
	return n
}

// Notify is shorthand for Publish with a title, message and source.
func (h *Hub) Notify(title, message, source string) Notification {
	return h.Publish(Notification{Title: title, Message: message, Source: source})
}

// Subscribe returns a channel receiving every notification published after
// the call. The channel is closed when ctx ends or the hub closes.
func (h *Hub) Subscribe(ctx context.Context) <-chan Notification {
	ch := make(chan Notification, subscriberBuffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch
	}
	id := h.nextSub
	h.nextSub++
	h.subs[id] = ch
	h.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-h.done:
		}
		h.mu.Lock()
		if _, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(ch)
		}
		h.mu.Unlock()
	}()
	return ch
}

// Recent returns up to n notifications, newest first. n <= 0 returns all.
func (h *Hub) Recent(n int) []Notification {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if n <= 0 || n > len(h.history) {
		n = len(h.history)
	}
	out := make([]Notification, 0, n)
	for i := len(h.history) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, h.history[i])
	}
	return out
}

// Subscribers returns the number of active subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many subscriber deliveries were dropped.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

// Close ends all subscriptions and closes the sinks. Publish after Close is
// a no-op.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
	sinks := h.sinks
	h.sinks = nil
	close(h.done)
	h.mu.Unlock()

	var firstErr error
	for _, s := range sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
