// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldService   = "service"
	FieldVersion   = "version"
	FieldComponent = "component"
	FieldRequestID = "request_id"
	FieldSessionID = "session_id"
	FieldUser      = "user"

	// Event fields
	FieldEvent = "event"

	// Sandbox fields
	FieldPath    = "path"
	FieldTrashID = "trash_id"

	// Module fields
	FieldModule = "module"
	FieldItemID = "item_id"

	// Process fields
	FieldPID   = "pid"
	FieldOSPID = "os_pid"
	FieldApp   = "app"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"
	FieldBackend  = "backend"
)
