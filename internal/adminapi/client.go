// Package adminapi is the HTTP client for the stub admin API.
//
// Every call either returns a decoded result or one of ResponseError
// (non-2xx), TransportError (no response) or DecodeError (2xx with an
// unexpected body). The client never retries.
package adminapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/prasenjit/stub-console/internal/models"
)

const (
	// BasePath is the root of the stub admin endpoints
	BasePath = "/admin/stubs"

	// CompatBasePath is the raw WireMock admin root
	CompatBasePath = "/__admin"

	// APIKeyHeader is the HTTP header for API key authentication
	APIKeyHeader = "X-API-Key"

	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 16 << 20
)

// Call describes one completed admin API call
type Call struct {
	Method     string
	Route      string // Route template, e.g. /admin/stubs/{id}
	Path       string
	StatusCode int // 0 when no response was received
	Duration   time.Duration
	Err        error
}

// Observer receives every completed call
type Observer interface {
	ObserveCall(call Call)
}

// Client talks to the admin API
type Client struct {
	baseURL    string
	httpClient *http.Client
	apiKey     string
	token      string
	observer   Observer
}

// Option configures a Client
type Option func(*Client)

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithAPIKey sets the API key sent in X-API-Key
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithBearerToken sets a bearer token for the Authorization header
func WithBearerToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithObserver registers a call observer
func WithObserver(o Observer) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// New creates an admin API client.
// baseURL is the server root, e.g. "http://localhost:8080".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured server root
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ListPage returns one page of stubs, optionally filtered by keyword
func (c *Client) ListPage(ctx context.Context, page, size int, keyword string) (*models.Page, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))
	if keyword != "" {
		q.Set("keyword", keyword)
	}
	path := BasePath + "/page?" + q.Encode()

	body, err := c.call(ctx, http.MethodGet, BasePath+"/page", path, nil)
	if err != nil {
		return nil, err
	}
	body, err = normalizePage(body)
	if err != nil {
		return nil, &DecodeError{Method: http.MethodGet, Path: path, Reason: err.Error()}
	}
	if err := expectPage(body); err != nil {
		return nil, &DecodeError{Method: http.MethodGet, Path: path, Reason: err.Error()}
	}

	var p models.Page
	if err := decode(http.MethodGet, path, body, &p); err != nil {
		return nil, err
	}
	if p.Content == nil {
		p.Content = make([]*models.Stub, 0)
	}
	return &p, nil
}

// GetStub returns a stub by id
func (c *Client) GetStub(ctx context.Context, id string) (*models.Stub, error) {
	path := stubPath(id)
	body, err := c.call(ctx, http.MethodGet, BasePath+"/{id}", path, nil)
	if err != nil {
		return nil, err
	}
	return decodeStub(http.MethodGet, path, body)
}

// CreateStub creates a stub
func (c *Client) CreateStub(ctx context.Context, in *models.StubInput) (*models.Stub, error) {
	body, err := c.call(ctx, http.MethodPost, BasePath, BasePath, in)
	if err != nil {
		return nil, err
	}
	return decodeStub(http.MethodPost, BasePath, body)
}

// CreateStubs creates several stubs in one request
func (c *Client) CreateStubs(ctx context.Context, ins []*models.StubInput) ([]*models.Stub, error) {
	path := BasePath + "/bulk"
	body, err := c.call(ctx, http.MethodPost, path, path, ins)
	if err != nil {
		return nil, err
	}
	return decodeStubs(http.MethodPost, path, body)
}

// ImportStubs posts a raw import document for server-side translation
func (c *Client) ImportStubs(ctx context.Context, payload json.RawMessage) ([]*models.Stub, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, &PayloadError{Reason: "import payload is empty"}
	}
	if !gjson.ValidBytes(payload) {
		return nil, &PayloadError{Reason: "import payload is not valid JSON"}
	}

	path := BasePath + "/bulk/import"
	body, err := c.call(ctx, http.MethodPost, path, path, payload)
	if err != nil {
		return nil, err
	}
	return decodeStubs(http.MethodPost, path, body)
}

// UpdateStub replaces all writable fields of a stub
func (c *Client) UpdateStub(ctx context.Context, id string, in *models.StubInput) (*models.Stub, error) {
	path := stubPath(id)
	body, err := c.call(ctx, http.MethodPut, BasePath+"/{id}", path, in)
	if err != nil {
		return nil, err
	}
	return decodeStub(http.MethodPut, path, body)
}

// DeleteStub deletes a stub
func (c *Client) DeleteStub(ctx context.Context, id string) error {
	_, err := c.call(ctx, http.MethodDelete, BasePath+"/{id}", stubPath(id), nil)
	return err
}

// ToggleStub flips a stub's enabled flag and returns the updated stub
func (c *Client) ToggleStub(ctx context.Context, id string) (*models.Stub, error) {
	path := stubPath(id) + "/toggle"
	body, err := c.call(ctx, http.MethodPost, BasePath+"/{id}/toggle", path, nil)
	if err != nil {
		return nil, err
	}
	return decodeStub(http.MethodPost, path, body)
}

// ReloadStubs asks the backend to re-synchronize its mapping set
func (c *Client) ReloadStubs(ctx context.Context) error {
	path := BasePath + "/reload"
	_, err := c.call(ctx, http.MethodPost, path, path, nil)
	return err
}

// Statistics returns aggregate stub counts
func (c *Client) Statistics(ctx context.Context) (*models.Statistics, error) {
	path := BasePath + "/statistics"
	body, err := c.call(ctx, http.MethodGet, path, path, nil)
	if err != nil {
		return nil, err
	}
	if !gjson.GetBytes(body, "totalStubs").Exists() {
		return nil, &DecodeError{Method: http.MethodGet, Path: path, Reason: "missing totalStubs"}
	}

	var s models.Statistics
	if err := decode(http.MethodGet, path, body, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ListMappings returns the raw mappings registered on the mock server
func (c *Client) ListMappings(ctx context.Context) ([]json.RawMessage, error) {
	path := CompatBasePath + "/mappings"
	body, err := c.call(ctx, http.MethodGet, path, path, nil)
	if err != nil {
		return nil, err
	}
	if !gjson.GetBytes(body, "mappings").IsArray() {
		return nil, &DecodeError{Method: http.MethodGet, Path: path, Reason: "missing mappings array"}
	}

	var result struct {
		Mappings []json.RawMessage `json:"mappings"`
	}
	if err := decode(http.MethodGet, path, body, &result); err != nil {
		return nil, err
	}
	return result.Mappings, nil
}

// ListRequests returns the most recent entries of the request journal
func (c *Client) ListRequests(ctx context.Context, limit int) ([]*models.LoggedRequest, error) {
	path := CompatBasePath + "/requests"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	body, err := c.call(ctx, http.MethodGet, CompatBasePath+"/requests", path, nil)
	if err != nil {
		return nil, err
	}
	if !gjson.GetBytes(body, "requests").IsArray() {
		return nil, &DecodeError{Method: http.MethodGet, Path: path, Reason: "missing requests array"}
	}

	var result struct {
		Requests []*models.LoggedRequest `json:"requests"`
	}
	if err := decode(http.MethodGet, path, body, &result); err != nil {
		return nil, err
	}
	return result.Requests, nil
}

// Health checks that the admin API is reachable
func (c *Client) Health(ctx context.Context) error {
	path := "/admin/health"
	_, err := c.call(ctx, http.MethodGet, path, path, nil)
	return err
}

// Do performs an arbitrary admin API call and decodes the result into out.
// out may be nil when the response body is not needed.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	route := path
	if i := strings.IndexByte(route, '?'); i >= 0 {
		route = route[:i]
	}
	respBody, err := c.call(ctx, method, route, path, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return decode(method, path, respBody, out)
}

// call performs the HTTP exchange and returns the body of a 2xx response
func (c *Client) call(ctx context.Context, method, route, path string, body any) (respBody []byte, err error) {
	start := time.Now()
	status := 0
	defer func() {
		if c.observer != nil {
			c.observer.ObserveCall(Call{
				Method:     method,
				Route:      route,
				Path:       path,
				StatusCode: status,
				Duration:   time.Since(start),
				Err:        err,
			})
		}
	}()

	var bodyReader io.Reader
	if body != nil {
		var data []byte
		switch v := body.(type) {
		case json.RawMessage:
			data = v
		case []byte:
			data = v
		default:
			data, err = json.Marshal(body)
			if err != nil {
				return nil, &PayloadError{Reason: fmt.Sprintf("cannot encode request body: %v", err)}
			}
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, &RequestError{Method: method, Path: path, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(APIKeyHeader, c.apiKey)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Method: method, Path: path, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	status = resp.StatusCode

	respBody, err = io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &TransportError{Method: method, Path: path, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ResponseError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       respBody,
		}
	}
	return respBody, nil
}

func stubPath(id string) string {
	return BasePath + "/" + url.PathEscape(id)
}

func decode(method, path string, body []byte, out any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return &DecodeError{Method: method, Path: path, Reason: "empty response body"}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &DecodeError{Method: method, Path: path, Reason: "cannot decode body", Err: err}
	}
	return nil
}

func decodeStub(method, path string, body []byte) (*models.Stub, error) {
	if err := expectStub(gjson.ParseBytes(body), body); err != nil {
		return nil, &DecodeError{Method: method, Path: path, Reason: err.Error()}
	}
	var s models.Stub
	if err := decode(method, path, body, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func decodeStubs(method, path string, body []byte) ([]*models.Stub, error) {
	if !gjson.ValidBytes(body) {
		return nil, &DecodeError{Method: method, Path: path, Reason: "body is not JSON"}
	}
	arr := gjson.ParseBytes(body)
	if !arr.IsArray() {
		return nil, &DecodeError{Method: method, Path: path, Reason: "expected an array of stubs"}
	}
	for i, item := range arr.Array() {
		if err := expectStub(item, nil); err != nil {
			return nil, &DecodeError{Method: method, Path: path, Reason: fmt.Sprintf("element %d: %v", i, err)}
		}
	}

	stubs := make([]*models.Stub, 0)
	if err := decode(method, path, body, &stubs); err != nil {
		return nil, err
	}
	return stubs, nil
}

// expectStub checks the minimal stub shape: an object with an id
func expectStub(v gjson.Result, raw []byte) error {
	if raw != nil && !gjson.ValidBytes(raw) {
		return fmt.Errorf("body is not JSON")
	}
	if !v.IsObject() {
		return fmt.Errorf("expected a stub object")
	}
	id := v.Get("id")
	if !id.Exists() || (id.Type != gjson.String && id.Type != gjson.Number) {
		return fmt.Errorf("stub has no id")
	}
	if e := v.Get("enabled"); e.Exists() && !e.IsBool() {
		return fmt.Errorf("stub enabled flag is not a boolean")
	}
	return nil
}

// normalizePage lifts the nested {content, page: {number, size, totalElements}}
// envelope into the flat page shape
func normalizePage(body []byte) ([]byte, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("body is not JSON")
	}
	if gjson.GetBytes(body, "totalElements").Exists() || !gjson.GetBytes(body, "page").IsObject() {
		return body, nil
	}

	meta := gjson.GetBytes(body, "page")
	flat := map[string]json.RawMessage{
		"content": json.RawMessage(gjson.GetBytes(body, "content").Raw),
	}
	for _, key := range []string{"number", "size", "totalElements"} {
		v := meta.Get(key)
		if !v.Exists() {
			return nil, fmt.Errorf("page metadata has no %s", key)
		}
		flat[key] = json.RawMessage(v.Raw)
	}
	if len(flat["content"]) == 0 {
		flat["content"] = json.RawMessage("null")
	}
	return json.Marshal(flat)
}

// expectPage checks the page envelope: {content: [...], number, size, totalElements}
func expectPage(body []byte) error {
	if !gjson.ValidBytes(body) {
		return fmt.Errorf("body is not JSON")
	}
	page := gjson.ParseBytes(body)
	if !page.IsObject() {
		return fmt.Errorf("expected a page object")
	}
	if !page.Get("content").IsArray() {
		return fmt.Errorf("page has no content array")
	}
	for _, key := range []string{"number", "size", "totalElements"} {
		if page.Get(key).Type != gjson.Number {
			return fmt.Errorf("page field %s is missing or not a number", key)
		}
	}
	for i, item := range page.Get("content").Array() {
		if err := expectStub(item, nil); err != nil {
			return fmt.Errorf("content element %d: %v", i, err)
		}
	}
	return nil
}
