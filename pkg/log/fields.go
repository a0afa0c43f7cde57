package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Participant (set by the websocket gateway)
	FieldConnectionID = "connection_id"
	FieldRole         = "role"
	FieldDisplayName  = "display_name"

	// Broadcast
	FieldSessionID   = "session_id"
	FieldBroadcastID = "broadcast_id"
	FieldStreams     = "streams"

	// Service
	FieldService = "service"

	// Log type (for audit log)
	FieldLogType = "log_type"
	LogTypeAudit = "audit"
)
