// SPDX-License-Identifier: MIT

package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for consistent tracing across the daemon.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"

	// Sandbox attributes
	SandboxPathKey    = "minios.sandbox.path"
	SandboxTrashIDKey = "minios.sandbox.trash_id"

	// Module attributes
	ModuleNameKey = "minios.module.name"
	ModuleItemKey = "minios.module.item_id"

	// Process attributes
	ProcessPIDKey = "minios.process.pid"
	ProcessAppKey = "minios.process.app"

	// Terminal attributes
	TerminalCommandKey = "minios.terminal.command"
	TerminalFailedKey  = "minios.terminal.failed"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// SandboxAttributes describes a sandbox operation. Empty values are omitted.
func SandboxAttributes(path, trashID string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 2)
	if path != "" {
		attrs = append(attrs, attribute.String(SandboxPathKey, path))
	}
	if trashID != "" {
		attrs = append(attrs, attribute.String(SandboxTrashIDKey, trashID))
	}
	return attrs
}

// ModuleAttributes describes a module operation. Empty values are omitted.
func ModuleAttributes(module, itemID string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String(ModuleNameKey, module)}
	if itemID != "" {
		attrs = append(attrs, attribute.String(ModuleItemKey, itemID))
	}
	return attrs
}

// ProcessAttributes describes a process table operation.
func ProcessAttributes(pid, app string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 2)
	if pid != "" {
		attrs = append(attrs, attribute.String(ProcessPIDKey, pid))
	}
	if app != "" {
		attrs = append(attrs, attribute.String(ProcessAppKey, app))
	}
	return attrs
}

// TerminalAttributes describes one terminal input by its command word.
func TerminalAttributes(command string, failed bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(TerminalCommandKey, command),
		attribute.Bool(TerminalFailedKey, failed),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}

// Annotate adds attrs to the span in ctx, if any, and marks it failed when
// err is non-nil.
func Annotate(ctx context.Context, err error, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.SetAttributes(attrs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
