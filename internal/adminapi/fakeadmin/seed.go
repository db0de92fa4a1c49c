package fakeadmin

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/tidwall/gjson"

	"github.com/prasenjit/stub-console/internal/models"
)

// LoadFile seeds the server from a JSON file. The file holds either an
// array of stub inputs or a mock-server mapping document.
func (s *Server) LoadFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read seed file %s: %w", path, err)
	}
	if !gjson.ValidBytes(data) {
		return 0, fmt.Errorf("seed file %s is not valid JSON", path)
	}

	var ins []*models.StubInput
	if isStubInputArray(data) {
		if err := json.Unmarshal(data, &ins); err != nil {
			return 0, fmt.Errorf("failed to parse seed file %s: %w", path, err)
		}
	} else {
		ins, err = TranslateImport(data)
		if err != nil {
			return 0, fmt.Errorf("failed to translate seed file %s: %w", path, err)
		}
	}

	for i, in := range ins {
		if err := s.validate.Struct(in); err != nil {
			return 0, fmt.Errorf("seed file %s, stub %d: %s", path, i, validationMessage(err))
		}
	}

	s.Seed(ins...)
	return len(ins), nil
}

// isStubInputArray distinguishes stub inputs (flat url field and a
// responseDefinition) from raw mappings
func isStubInputArray(data []byte) bool {
	doc := gjson.ParseBytes(data)
	if !doc.IsArray() {
		return false
	}
	first := doc.Get("0")
	return first.Get("responseDefinition").Exists()
}

// SeedDemo fills the server with a small sample data set
func (s *Server) SeedDemo() {
	s.Seed(
		&models.StubInput{
			Name:               "List users",
			Description:        "Returns a fixed page of users",
			Method:             http.MethodGet,
			URL:                "/api/users",
			UrlMatchType:       models.MatchEquals,
			ResponseDefinition: `{"status":200,"headers":{"Content-Type":"application/json"},"jsonBody":[{"id":1,"name":"Ada"},{"id":2,"name":"Linus"}]}`,
			Priority:           1,
			Enabled:            true,
		},
		&models.StubInput{
			Name:               "Get user",
			Method:             http.MethodGet,
			URL:                "/api/users/{id}",
			UrlMatchType:       models.MatchPathTemplate,
			ResponseDefinition: `{"status":200,"jsonBody":{"id":1,"name":"Ada"}}`,
			Priority:           2,
			Enabled:            true,
		},
		&models.StubInput{
			Name:               "Create order",
			Method:             http.MethodPost,
			URL:                "/api/orders",
			UrlMatchType:       models.MatchEquals,
			RequestBodyPattern: `[{"matchesJsonPath":"$.items"}]`,
			ResponseDefinition: `{"status":201,"jsonBody":{"orderId":"o-100"}}`,
			Priority:           5,
			Enabled:            true,
		},
		&models.StubInput{
			Name:               "Payment gateway outage",
			Description:        "Simulates a failing upstream",
			Method:             http.MethodPost,
			URL:                "/api/payments.*",
			UrlMatchType:       models.MatchRegex,
			ResponseDefinition: `{"status":503,"body":"Service Unavailable"}`,
			Priority:           5,
			Enabled:            false,
		},
		&models.StubInput{
			Name:               "Legacy search",
			Method:             "ANY",
			URL:                "/legacy/search",
			UrlMatchType:       models.MatchContains,
			ResponseDefinition: `{"status":410}`,
			Priority:           9,
			Enabled:            false,
		},
	)

	now := time.Now()
	for i, r := range []struct {
		method, url string
		status      int
		matched     bool
	}{
		{http.MethodGet, "/api/users", 200, true},
		{http.MethodGet, "/api/users/1", 200, true},
		{http.MethodPost, "/api/orders", 201, true},
		{http.MethodDelete, "/api/orders/9", 404, false},
	} {
		s.RecordRequest(&models.LoggedRequest{
			Request: models.RequestDetails{
				Method:     r.method,
				URL:        r.url,
				LoggedDate: now.Add(time.Duration(i-4) * time.Minute).UnixMilli(),
			},
			ResponseDefinition: models.ResponseSummary{Status: r.status},
			WasMatched:         r.matched,
		})
	}
}
