package fakeadmin

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/prasenjit/stub-console/internal/models"
)

// defaultPriority mirrors the mock server's default mapping priority
const defaultPriority = 5

// urlKeys maps mapping url fields to match types, in lookup order
var urlKeys = []struct {
	key   string
	match models.UrlMatchType
}{
	{"url", models.MatchEquals},
	{"urlPath", models.MatchEquals},
	{"urlPathTemplate", models.MatchPathTemplate},
	{"urlPattern", models.MatchRegex},
	{"urlPathPattern", models.MatchRegex},
}

// TranslateImport converts a mock-server mapping document into stub
// inputs. It accepts {"mappings": [...]}, a bare array of mappings, or a
// single mapping object.
func TranslateImport(raw []byte) ([]*models.StubInput, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("import payload is not valid JSON")
	}

	doc := gjson.ParseBytes(raw)
	var items []gjson.Result
	switch {
	case doc.IsArray():
		items = doc.Array()
	case doc.Get("mappings").IsArray():
		items = doc.Get("mappings").Array()
	case doc.Get("request").IsObject():
		items = []gjson.Result{doc}
	default:
		return nil, fmt.Errorf("import payload has no mappings")
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("import payload has no mappings")
	}

	out := make([]*models.StubInput, 0, len(items))
	for i, item := range items {
		in, err := translateMapping(item)
		if err != nil {
			return nil, fmt.Errorf("mapping %d: %w", i, err)
		}
		out = append(out, in)
	}
	return out, nil
}

func translateMapping(m gjson.Result) (*models.StubInput, error) {
	req := m.Get("request")
	if !req.IsObject() {
		return nil, fmt.Errorf("missing request")
	}

	in := &models.StubInput{
		Method:   strings.ToUpper(req.Get("method").String()),
		Priority: defaultPriority,
		Enabled:  true,
	}
	if in.Method == "" {
		in.Method = "ANY"
	}

	for _, k := range urlKeys {
		if v := req.Get(k.key); v.Exists() {
			in.URL = v.String()
			in.UrlMatchType = k.match
			break
		}
	}
	if in.URL == "" {
		return nil, fmt.Errorf("request has no url")
	}

	in.Name = m.Get("name").String()
	if in.Name == "" {
		in.Name = in.Method + " " + in.URL
	}
	if p := m.Get("priority"); p.Exists() {
		in.Priority = int(p.Int())
	}

	meta := m.Get("metadata")
	in.Description = meta.Get("description").String()
	if e := meta.Get("enabled"); e.IsBool() {
		in.Enabled = e.Bool()
	}

	if v := req.Get("headers"); v.IsObject() {
		in.RequestHeadersPattern = v.Raw
	}
	if v := req.Get("queryParameters"); v.IsObject() {
		in.QueryParametersPattern = v.Raw
	}
	if v := req.Get("bodyPatterns"); v.IsArray() {
		in.RequestBodyPattern = v.Raw
	}

	resp := m.Get("response")
	if !resp.IsObject() {
		return nil, fmt.Errorf("missing response")
	}
	in.ResponseDefinition = resp.Raw

	return in, nil
}

// RenderMapping renders a stub as a mock-server mapping
func RenderMapping(st *models.Stub) (json.RawMessage, error) {
	doc := []byte(`{}`)
	var err error

	set := func(path string, value any) {
		if err == nil {
			doc, err = sjson.SetBytes(doc, path, value)
		}
	}
	setRaw := func(path, raw string) {
		if err == nil && raw != "" && gjson.Valid(raw) {
			doc, err = sjson.SetRawBytes(doc, path, []byte(raw))
		}
	}

	set("id", st.UUID)
	set("name", st.Name)
	set("priority", st.Priority)
	set("request.method", st.Method)

	switch st.UrlMatchType {
	case models.MatchRegex:
		set("request.urlPattern", st.URL)
	case models.MatchContains:
		set("request.urlPattern", ".*"+regexp.QuoteMeta(st.URL)+".*")
	case models.MatchPathTemplate:
		set("request.urlPathTemplate", st.URL)
	default:
		set("request.url", st.URL)
	}

	setRaw("request.headers", st.RequestHeadersPattern)
	setRaw("request.queryParameters", st.QueryParametersPattern)
	setRaw("request.bodyPatterns", st.RequestBodyPattern)

	if gjson.Valid(st.ResponseDefinition) && gjson.Parse(st.ResponseDefinition).IsObject() {
		setRaw("response", st.ResponseDefinition)
	} else {
		set("response.status", 200)
		set("response.body", st.ResponseDefinition)
	}

	set("metadata.stubId", st.ID.String())
	if err != nil {
		return nil, fmt.Errorf("render mapping for stub %s: %w", st.ID, err)
	}
	return doc, nil
}
