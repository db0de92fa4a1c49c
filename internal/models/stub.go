package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
)

// UrlMatchType selects how a stub's url is compared against incoming requests
type UrlMatchType string

// Supported url match types
const (
	MatchEquals       UrlMatchType = "EQUALS"
	MatchContains     UrlMatchType = "CONTAINS"
	MatchRegex        UrlMatchType = "REGEX"
	MatchPathTemplate UrlMatchType = "PATH_TEMPLATE"
)

// ValidMatchTypes returns all valid url match types
func ValidMatchTypes() []UrlMatchType {
	return []UrlMatchType{MatchEquals, MatchContains, MatchRegex, MatchPathTemplate}
}

// ID is a server-assigned stub identifier. The admin API emits numeric ids;
// they are held as strings on the client side.
type ID string

// UnmarshalJSON accepts both JSON strings and JSON numbers
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("stub id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// String returns the id as a plain string
func (id ID) String() string {
	return string(id)
}

// Timestamp decodes the date formats the admin API emits: RFC 3339,
// zone-less ISO local date-times and epoch milliseconds.
type Timestamp struct {
	time.Time
}

var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// UnmarshalJSON implements json.Unmarshaler
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	if data[0] != '"' {
		var ms int64
		if err := json.Unmarshal(data, &ms); err != nil {
			return fmt.Errorf("invalid timestamp %s: %w", data, err)
		}
		t.Time = time.UnixMilli(ms).UTC()
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
		t.Time = parsed
		return nil
	}
	for _, layout := range localLayouts {
		if parsed, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", s)
}

// MarshalJSON writes RFC 3339, or null for the zero time
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}

// Stub represents a request stub managed through the admin API
type Stub struct {
	ID                     ID           `json:"id"`
	Name                   string       `json:"name"`
	Description            string       `json:"description,omitempty"`
	UUID                   string       `json:"uuid,omitempty"` // Mapping id on the mock server
	Method                 string       `json:"method"`
	URL                    string       `json:"url"`
	UrlMatchType           UrlMatchType `json:"urlMatchType"`
	RequestBodyPattern     string       `json:"requestBodyPattern,omitempty"`
	RequestHeadersPattern  string       `json:"requestHeadersPattern,omitempty"`
	QueryParametersPattern string       `json:"queryParametersPattern,omitempty"`
	ResponseDefinition     string       `json:"responseDefinition"` // Serialized response spec
	Priority               int          `json:"priority"`           // Lower = higher precedence
	Enabled                bool         `json:"enabled"`
	CreatedAt              Timestamp    `json:"createdAt"`
	UpdatedAt              Timestamp    `json:"updatedAt"`
}

// Clone returns a copy of the stub
func (s *Stub) Clone() *Stub {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// Input returns the writable fields of the stub
func (s *Stub) Input() *StubInput {
	return &StubInput{
		Name:                   s.Name,
		Description:            s.Description,
		Method:                 s.Method,
		URL:                    s.URL,
		UrlMatchType:           s.UrlMatchType,
		RequestBodyPattern:     s.RequestBodyPattern,
		RequestHeadersPattern:  s.RequestHeadersPattern,
		QueryParametersPattern: s.QueryParametersPattern,
		ResponseDefinition:     s.ResponseDefinition,
		Priority:               s.Priority,
		Enabled:                s.Enabled,
	}
}

// ResponseStatus reads the status code out of the response definition.
// Returns 0 when the definition is not JSON or carries no status.
func (s *Stub) ResponseStatus() int {
	if s.ResponseDefinition == "" || !gjson.Valid(s.ResponseDefinition) {
		return 0
	}
	return int(gjson.Get(s.ResponseDefinition, "status").Int())
}

// StubInput represents input for creating or replacing a stub
type StubInput struct {
	Name                   string       `json:"name" validate:"required,max=200"`
	Description            string       `json:"description,omitempty" validate:"max=1000"`
	Method                 string       `json:"method" validate:"required,oneof=GET POST PUT DELETE PATCH HEAD OPTIONS TRACE ANY"`
	URL                    string       `json:"url" validate:"required,max=1000"`
	UrlMatchType           UrlMatchType `json:"urlMatchType,omitempty" validate:"omitempty,oneof=EQUALS CONTAINS REGEX PATH_TEMPLATE"`
	RequestBodyPattern     string       `json:"requestBodyPattern,omitempty"`
	RequestHeadersPattern  string       `json:"requestHeadersPattern,omitempty"`
	QueryParametersPattern string       `json:"queryParametersPattern,omitempty"`
	ResponseDefinition     string       `json:"responseDefinition" validate:"required"`
	Priority               int          `json:"priority" validate:"gte=0"`
	Enabled                bool         `json:"enabled"`
}

// Statistics holds aggregate stub counts
type Statistics struct {
	TotalStubs    int64 `json:"totalStubs"`
	EnabledStubs  int64 `json:"enabledStubs"`
	DisabledStubs int64 `json:"disabledStubs"`
}
