package http

const (
	KeyHeaderContentType   = "Content-Type"
	KeyHeaderRequestID     = "X-Request-Id"
	KeyHeaderAuthorization = "Authorization"
	KeyHeaderIdempotency   = "Idempotency-Key"

	ValueHeaderApplicationJson = "application/json"
	ValueHeaderEventStream     = "text/event-stream"
)

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)
