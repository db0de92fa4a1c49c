package adminapi

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// ResponseError is returned when the admin API answers with a non-2xx status.
// The raw status and body are preserved for classification.
type ResponseError struct {
	Method     string
	Path       string
	StatusCode int
	Body       []byte
}

func (e *ResponseError) Error() string {
	if msg := e.ServerMessage(); msg != "" {
		return fmt.Sprintf("%s %s returned %d: %s", e.Method, e.Path, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s %s returned %d", e.Method, e.Path, e.StatusCode)
}

// ServerMessage extracts a human-readable message from a JSON error body.
// The backend uses {message, error, errorCode}; plain-text bodies are
// returned trimmed.
func (e *ResponseError) ServerMessage() string {
	if len(e.Body) == 0 {
		return ""
	}
	if !gjson.ValidBytes(e.Body) {
		msg := strings.TrimSpace(string(e.Body))
		if len(msg) > 200 || strings.HasPrefix(msg, "<") {
			return ""
		}
		return msg
	}
	for _, key := range []string{"message", "error"} {
		if v := gjson.GetBytes(e.Body, key); v.Type == gjson.String && v.Str != "" {
			return v.Str
		}
	}
	return ""
}

// ErrorCode returns the backend's errorCode field, if any
func (e *ResponseError) ErrorCode() string {
	if !gjson.ValidBytes(e.Body) {
		return ""
	}
	return gjson.GetBytes(e.Body, "errorCode").String()
}

// TransportError is returned when no HTTP response was received
// (DNS failure, connection refused, timeout, cancelled context).
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: cannot reach admin API: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RequestError is returned when a request cannot be built, which points at
// a bad base URL or method rather than at the network
type RequestError struct {
	Method string
	Path   string
	Err    error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s %s: cannot build request: %v", e.Method, e.Path, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// DecodeError is returned when a 2xx body does not have the expected shape
type DecodeError struct {
	Method string
	Path   string
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: malformed response: %s: %v", e.Method, e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s %s: malformed response: %s", e.Method, e.Path, e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// PayloadError is returned before any request is sent when the
// caller-supplied payload is unusable
type PayloadError struct {
	Reason string
}

func (e *PayloadError) Error() string {
	return "invalid payload: " + e.Reason
}
