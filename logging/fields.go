// Package logging provides centralized logging utilities for the smart meter
// server. It defines standardized field names and helper functions to ensure
// consistent structured logging across all components.
package logging

// Standard field name constants for structured logging.
// Using constants ensures consistency and prevents typos across the codebase.
const (
	// Component identification
	FieldComponent = "component"

	// Client/session identification
	FieldClientID  = "client_id"
	FieldSessionID = "session_id"

	// Reading fields
	FieldRegion = "region"
	FieldUsage  = "usage"
	FieldTotal  = "total"

	// State machine fields
	FieldState    = "state"
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Connection close fields
	FieldCloseCode   = "close_code"
	FieldCloseReason = "close_reason"

	// Network fields
	FieldListenAddr = "listen_addr"
	FieldRemoteAddr = "remote_addr"

	// Operation fields
	FieldOperation = "operation"
	FieldReason    = "reason"
	FieldStatus    = "status"
	FieldPath      = "path"

	// Message fields
	FieldMessageType = "message_type"

	// Panic recovery fields
	FieldPanicValue = "panic_value"
	FieldStackTrace = "stack_trace"

	// Count/timing fields
	FieldCount    = "count"
	FieldDuration = "duration"
)

// Component name constants for the "component" field.
// These identify the source of log messages.
const (
	ComponentServer        = "telemetry_server"
	ComponentSession       = "session"
	ComponentRegistry      = "session_registry"
	ComponentBroadcaster   = "grid_broadcaster"
	ComponentBilling       = "billing_engine"
	ComponentRateCache     = "rate_cache"
	ComponentLedger        = "ledger_store"
	ComponentDirectory     = "client_directory"
	ComponentObservability = "observability_server"
)
