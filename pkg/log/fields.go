package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Sync engine
	FieldChannelID = "channel_id"
	FieldSessionID = "session_id"
	FieldCodename  = "codename"
	FieldTable     = "table"
	FieldAction    = "action"

	// Service
	FieldService = "service"
)
