// Package apierr classifies admin API failures into a fixed taxonomy and
// produces the error records surfaced to operators.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/prasenjit/stub-console/internal/adminapi"
)

// Kind is the error taxonomy
type Kind string

// Error kinds
const (
	KindNetwork    Kind = "NETWORK_ERROR"
	KindAuth       Kind = "AUTH_ERROR"
	KindValidation Kind = "VALIDATION_ERROR"
	KindServer     Kind = "SERVER_ERROR"
	KindUnknown    Kind = "UNKNOWN_ERROR"
)

var defaultMessages = map[Kind]string{
	KindNetwork:    "Network connection failed, check that the admin API is reachable",
	KindAuth:       "Authentication failed, check your credentials",
	KindValidation: "Validation failed, check the submitted data",
	KindServer:     "Server error, please try again later",
	KindUnknown:    "An unknown error occurred, please try again",
}

// DefaultMessage returns the fixed message for a kind
func DefaultMessage(k Kind) string {
	if msg, ok := defaultMessages[k]; ok {
		return msg
	}
	return defaultMessages[KindUnknown]
}

// Response is the HTTP response attached to a record, if any
type Response struct {
	StatusCode int    `json:"status"`
	Body       string `json:"body,omitempty"`
}

// Record is a normalized failure
type Record struct {
	Kind      Kind      `json:"type"`
	Message   string    `json:"message"`
	Err       error     `json:"-"`
	Response  *Response `json:"response,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (r *Record) Error() string {
	return fmt.Sprintf("%s: %s", r.Kind, r.Message)
}

func (r *Record) Unwrap() error {
	return r.Err
}

// Retryable reports whether the failure may succeed on a later attempt
func (r *Record) Retryable() bool {
	return r.Kind == KindNetwork || r.Kind == KindServer
}

// StatusCode returns the HTTP status of the failed call, or 0
func (r *Record) StatusCode() int {
	if r.Response == nil {
		return 0
	}
	return r.Response.StatusCode
}

// Classify maps an error to its kind.
//
// Priority: no response with a transport failure is NETWORK; 401/403 is
// AUTH; 400/422 (and client-side validation) is VALIDATION; 5xx is SERVER;
// everything else is UNKNOWN.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var rec *Record
	if errors.As(err, &rec) {
		return rec.Kind
	}

	var respErr *adminapi.ResponseError
	if errors.As(err, &respErr) {
		return classifyStatus(respErr.StatusCode)
	}

	var transportErr *adminapi.TransportError
	if errors.As(err, &transportErr) {
		return KindNetwork
	}

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		return KindValidation
	}
	var payloadErr *adminapi.PayloadError
	if errors.As(err, &payloadErr) {
		return KindValidation
	}

	return KindUnknown
}

func classifyStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return KindValidation
	case status >= 500:
		return KindServer
	default:
		return KindUnknown
	}
}

// Normalizer turns errors into logged records
type Normalizer struct {
	log zerolog.Logger
	now func() time.Time
}

// NewNormalizer creates a normalizer that logs through l
func NewNormalizer(l zerolog.Logger) *Normalizer {
	return &Normalizer{
		log: l.With().Str("component", "apierr").Logger(),
		now: time.Now,
	}
}

// Normalize classifies err, logs it and returns the record.
// A record passed in is returned unchanged and not logged again.
func (n *Normalizer) Normalize(err error) *Record {
	if err == nil {
		return nil
	}

	var existing *Record
	if errors.As(err, &existing) {
		return existing
	}

	rec := &Record{
		Kind:      Classify(err),
		Err:       err,
		Timestamp: n.now(),
	}

	var respErr *adminapi.ResponseError
	if errors.As(err, &respErr) {
		rec.Response = &Response{
			StatusCode: respErr.StatusCode,
			Body:       string(respErr.Body),
		}
		rec.Message = respErr.ServerMessage()
	}

	var validationErrs validator.ValidationErrors
	if rec.Message == "" && errors.As(err, &validationErrs) {
		rec.Message = validationMessage(validationErrs)
	}
	var payloadErr *adminapi.PayloadError
	if rec.Message == "" && errors.As(err, &payloadErr) {
		rec.Message = payloadErr.Error()
	}
	var requestErr *adminapi.RequestError
	if rec.Message == "" && errors.As(err, &requestErr) {
		rec.Message = requestErr.Error()
	}

	if rec.Message == "" {
		rec.Message = DefaultMessage(rec.Kind)
	}

	n.logRecord(rec)
	return rec
}

func (n *Normalizer) logRecord(rec *Record) {
	ev := n.log.Error().
		Str("type", string(rec.Kind)).
		Bool("retryable", rec.Retryable()).
		Err(rec.Err)
	if rec.Response != nil {
		ev = ev.Int("status", rec.Response.StatusCode)
	}

	var respErr *adminapi.ResponseError
	var transportErr *adminapi.TransportError
	switch {
	case errors.As(rec.Err, &respErr):
		ev = ev.Str("method", respErr.Method).Str("path", respErr.Path)
	case errors.As(rec.Err, &transportErr):
		ev = ev.Str("method", transportErr.Method).Str("path", transportErr.Path)
	}
	ev.Msg(rec.Message)
}

func validationMessage(errs validator.ValidationErrors) string {
	if len(errs) == 0 {
		return ""
	}
	fe := errs[0]
	msg := fmt.Sprintf("field %s failed the %q rule", fe.Field(), fe.Tag())
	if fe.Param() != "" {
		msg = fmt.Sprintf("field %s failed the %q rule (%s)", fe.Field(), fe.Tag(), fe.Param())
	}
	if len(errs) > 1 {
		msg += fmt.Sprintf(" and %d more", len(errs)-1)
	}
	return msg
}
