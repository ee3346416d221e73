package observability

// EventEnvelope wraps an event published on the portal bus. Stream groups
// related events (feed lifecycle, audit); Event names the specific one.
type EventEnvelope struct {
	Stream  string      `json:"stream"`
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}

// BuildHeaders carries request correlation onto bus messages.
func BuildHeaders(requestID, traceID string) map[string]string {
	headers := make(map[string]string, 2)
	if requestID != "" {
		headers["request_id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}
