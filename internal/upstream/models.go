package upstream

import (
	"encoding/json"
	"time"
)

const (
	CodeJSONParse  = "JSON_PARSE_ERROR"
	CodeTimeout    = "TIMEOUT_ERROR"
	CodeConnection = "CONNECTION_ERROR"
	CodeRequest    = "REQUEST_ERROR"
	CodeUnknown    = "UNKNOWN_ERROR"

	UserAgent = "RuuviAPIProxy/1.0"
)

// Payload is the gateway batch as relayed to the vendor API.
type Payload struct {
	Coordinates string                     `json:"coordinates"`
	Timestamp   int64                      `json:"timestamp"`
	GatewayMAC  string                     `json:"gwmac"`
	Tags        map[string]json.RawMessage `json:"tags"`
}

type Request struct {
	Endpoint string
	Timeout  time.Duration
	Payload  Payload
}

// Response is the outcome of one relay call. Body is the vendor JSON on
// success, otherwise an error body in the vendor's format.
type Response struct {
	Success      bool
	StatusCode   int
	Body         map[string]any
	ErrorCode    string
	ErrorMessage string
	Duration     time.Duration
}

// HealthStatus is the result of probing the vendor health endpoint.
type HealthStatus struct {
	Healthy   bool   `json:"-"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

func SuccessBody(action string) map[string]any {
	return map[string]any{
		"result": "success",
		"data":   map[string]any{"action": action},
	}
}

func ErrorBody(code, message string) map[string]any {
	return map[string]any{
		"result": "error",
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	}
}

func Failure(code, message string) Response {
	return Response{
		ErrorCode:    code,
		ErrorMessage: message,
		Body:         ErrorBody(code, message),
	}
}
