package models

import (
	"time"
)

// LoggedRequest is an entry of the mock server's request journal
type LoggedRequest struct {
	ID                 string          `json:"id"`
	Request            RequestDetails  `json:"request"`
	ResponseDefinition ResponseSummary `json:"responseDefinition"`
	WasMatched         bool            `json:"wasMatched"`
}

// RequestDetails represents the captured request
type RequestDetails struct {
	Method      string         `json:"method"`
	URL         string         `json:"url"`
	AbsoluteURL string         `json:"absoluteUrl"`
	Headers     map[string]any `json:"headers,omitempty"`
	Body        string         `json:"body,omitempty"`
	LoggedDate  int64          `json:"loggedDate"` // Epoch milliseconds
}

// LoggedAt returns the logged date as a time
func (r RequestDetails) LoggedAt() time.Time {
	if r.LoggedDate == 0 {
		return time.Time{}
	}
	return time.UnixMilli(r.LoggedDate)
}

// ResponseSummary is the status of the served response
type ResponseSummary struct {
	Status int `json:"status"`
}
