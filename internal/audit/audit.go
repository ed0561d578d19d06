// SPDX-License-Identifier: MIT

// Package audit provides structured audit logging for security-sensitive operations.
// It follows the WHO/WHAT/WHEN pattern for compliance and forensics.
package audit

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/minios/internal/log"
)

// EventType represents the type of audit event.
type EventType string

const (
	// Configuration events
	EventConfigReload      EventType = "config.reload"
	EventConfigReloadError EventType = "config.reload.error"

	// Account events
	EventUserRegister EventType = "user.register"
	EventLogin        EventType = "auth.login"
	EventLogout       EventType = "auth.logout"

	// Authentication events
	EventAuthFailure EventType = "auth.failure"
	EventAuthMissing EventType = "auth.missing"

	// Sandbox events
	EventTrashDelete  EventType = "trash.delete"
	EventTrashRestore EventType = "trash.restore"
	EventTrashEmpty   EventType = "trash.empty"

	// System events
	EventSystemRestart EventType = "system.restart"
	EventTerminalExec  EventType = "terminal.exec"
	EventProcessKill   EventType = "process.kill"

	EventAPIRateLimit EventType = "api.ratelimit"
)

// Result values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultDenied  = "denied"
)

// Event represents a structured audit event.
type Event struct {
	Timestamp  time.Time         `json:"timestamp"`
	Type       EventType         `json:"type"`
	Actor      string            `json:"actor"`             // WHO: email, IP, or "system"
	Action     string            `json:"action"`            // WHAT: human-readable action description
	Resource   string            `json:"resource"`          // sandbox path, endpoint, pid
	Result     string            `json:"result"`            // success, failure, denied
	RemoteAddr string            `json:"remote_addr"`       // Client IP address
	RequestID  string            `json:"request_id"`        // Correlation ID
	Details    map[string]string `json:"details,omitempty"` // Additional context
}

// Logger provides audit logging functionality.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates a new audit logger with a dedicated "audit" component.
func NewLogger() *Logger {
	return New(log.WithComponent("audit"))
}

// New wraps base; every line is tagged log_type=audit.
func New(base zerolog.Logger) *Logger {
	return &Logger{logger: base.With().Str("log_type", "audit").Logger()}
}

// Log writes an audit event to the audit log.
func (l *Logger) Log(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	evt := l.logger.Info()
	if event.Result == ResultDenied || event.Result == ResultFailure {
		evt = l.logger.Warn()
	}
	evt = evt.
		Time("timestamp", event.Timestamp).
		Str(log.FieldEvent, string(event.Type)).
		Str("actor", event.Actor).
		Str("action", event.Action).
		Str("resource", event.Resource).
		Str("result", event.Result)

	if event.RemoteAddr != "" {
		evt = evt.Str("remote_addr", event.RemoteAddr)
	}
	if event.RequestID != "" {
		evt = evt.Str(log.FieldRequestID, event.RequestID)
	}
	for key, value := range event.Details {
		evt = evt.Str(key, value)
	}
	evt.Msg("audit event")
}

// LogFromContext fills the request ID and, when Actor is empty, the
// authenticated user from ctx before logging.
func (l *Logger) LogFromContext(ctx context.Context, event Event) {
	if event.RequestID == "" {
		event.RequestID = log.RequestIDFromContext(ctx)
	}
	if event.Actor == "" {
		event.Actor = log.UserFromContext(ctx)
	}
	if event.Actor == "" {
		event.Actor = "anonymous"
	}
	l.Log(event)
}

// ConfigReload logs a configuration reload.
func (l *Logger) ConfigReload(actor, result string, details map[string]string) {
	typ := EventConfigReload
	if result != ResultSuccess {
		typ = EventConfigReloadError
	}
	l.Log(Event{
		Type:     typ,
		Actor:    actor,
		Action:   "reloaded configuration",
		Resource: "config",
		Result:   result,
		Details:  details,
	})
}

// Register logs an account registration attempt.
func (l *Logger) Register(ctx context.Context, email, remoteAddr string, err error) {
	l.LogFromContext(ctx, Event{
		Type:       EventUserRegister,
		Actor:      email,
		Action:     "registered account",
		Resource:   "login",
		Result:     resultOf(err),
		RemoteAddr: remoteAddr,
		Details:    reason(err),
	})
}

// Login logs a login attempt.
func (l *Logger) Login(ctx context.Context, email, remoteAddr string, err error) {
	l.LogFromContext(ctx, Event{
		Type:       EventLogin,
		Actor:      email,
		Action:     "logged in",
		Resource:   "session",
		Result:     resultOf(err),
		RemoteAddr: remoteAddr,
		Details:    reason(err),
	})
}

// Logout logs a session revocation.
func (l *Logger) Logout(ctx context.Context, remoteAddr string) {
	l.LogFromContext(ctx, Event{
		Type:       EventLogout,
		Action:     "logged out",
		Resource:   "session",
		Result:     ResultSuccess,
		RemoteAddr: remoteAddr,
	})
}

// AuthFailure logs a request carrying an invalid or expired token.
func (l *Logger) AuthFailure(remoteAddr, endpoint, why string) {
	l.Log(Event{
		Type:       EventAuthFailure,
		Actor:      remoteAddr,
		Action:     "authentication failed",
		Resource:   endpoint,
		Result:     ResultDenied,
		RemoteAddr: remoteAddr,
		Details:    map[string]string{"reason": why},
	})
}

// AuthMissing logs a request without credentials.
func (l *Logger) AuthMissing(remoteAddr, endpoint string) {
	l.Log(Event{
		Type:       EventAuthMissing,
		Actor:      remoteAddr,
		Action:     "accessed endpoint without authentication",
		Resource:   endpoint,
		Result:     ResultDenied,
		RemoteAddr: remoteAddr,
	})
}

// TrashDelete logs a move to the trash.
func (l *Logger) TrashDelete(ctx context.Context, path, trashID string, err error) {
	details := reason(err)
	if trashID != "" {
		details = map[string]string{log.FieldTrashID: trashID}
	}
	l.LogFromContext(ctx, Event{
		Type:     EventTrashDelete,
		Action:   "moved item to trash",
		Resource: path,
		Result:   resultOf(err),
		Details:  details,
	})
}

// TrashRestore logs a restore from the trash.
func (l *Logger) TrashRestore(ctx context.Context, trashID string, err error) {
	l.LogFromContext(ctx, Event{
		Type:     EventTrashRestore,
		Action:   "restored item from trash",
		Resource: trashID,
		Result:   resultOf(err),
		Details:  reason(err),
	})
}

// TrashEmpty logs a permanent trash purge.
func (l *Logger) TrashEmpty(ctx context.Context, removed int, err error) {
	details := reason(err)
	if details == nil {
		details = map[string]string{"removed": strconv.Itoa(removed)}
	}
	l.LogFromContext(ctx, Event{
		Type:     EventTrashEmpty,
		Action:   "emptied trash",
		Resource: "trash",
		Result:   resultOf(err),
		Details:  details,
	})
}

// SystemRestart logs an engine restart.
func (l *Logger) SystemRestart(ctx context.Context, err error) {
	l.LogFromContext(ctx, Event{
		Type:     EventSystemRestart,
		Action:   "restarted engine",
		Resource: "system",
		Result:   resultOf(err),
		Details:  reason(err),
	})
}

// TerminalExec logs a terminal input. The input itself may contain secrets,
// so only the command word is recorded.
func (l *Logger) TerminalExec(ctx context.Context, command string, err error) {
	l.LogFromContext(ctx, Event{
		Type:     EventTerminalExec,
		Action:   "executed terminal command",
		Resource: command,
		Result:   resultOf(err),
	})
}

// ProcessKill logs a process termination.
func (l *Logger) ProcessKill(ctx context.Context, pid string, err error) {
	l.LogFromContext(ctx, Event{
		Type:     EventProcessKill,
		Action:   "killed process",
		Resource: pid,
		Result:   resultOf(err),
		Details:  reason(err),
	})
}

// RateLimitExceeded logs rate limit violations.
func (l *Logger) RateLimitExceeded(remoteAddr, endpoint string) {
	l.Log(Event{
		Type:       EventAPIRateLimit,
		Actor:      remoteAddr,
		Action:     "rate limit exceeded",
		Resource:   endpoint,
		Result:     ResultDenied,
		RemoteAddr: remoteAddr,
	})
}

func resultOf(err error) string {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}

func reason(err error) map[string]string {
	if err == nil {
		return nil
	}
	return map[string]string{"error": err.Error()}
}
