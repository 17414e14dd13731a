// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID = "session_id"
	FieldRunID     = "run_id"
	FieldRequestID = "request_id"
	FieldTxn       = "txn"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldPID       = "pid"

	// Device / stream fields
	FieldHost       = "host"
	FieldPort       = "port"
	FieldChannel    = "channel"
	FieldStreamType = "stream_type"
	FieldCodec      = "codec"
	FieldCmdID      = "cmd_id"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"
	FieldReason   = "reason"

	// Path fields
	FieldPath = "path"
)
