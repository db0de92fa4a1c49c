// Package openapi turns an OpenAPI 3 document into stub drafts that can be
// created in bulk through the admin API.
package openapi

import (
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/tidwall/sjson"

	"github.com/prasenjit/stub-console/internal/models"
)

// DefaultPriority is assigned to every generated stub
const DefaultPriority = 5

const maxSchemaDepth = 4

// successCodes are tried in order when picking the response to stub
var successCodes = []int{200, 201, 202, 204}

// Convert parses and validates an OpenAPI 3 document and returns one stub
// input per operation, sorted by path then method
func Convert(content string, basePath string) ([]*models.StubInput, error) {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = false

	doc, err := loader.LoadFromData([]byte(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OpenAPI document: %w", err)
	}

	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("invalid OpenAPI document: %w", err)
	}

	basePath = normalizeBasePath(basePath)

	var stubs []*models.StubInput
	paths := make([]string, 0, doc.Paths.Len())
	for p := range doc.Paths.Map() {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, pathPattern := range paths {
		item := doc.Paths.Value(pathPattern)
		if item == nil {
			continue
		}

		ops := item.Operations()
		methods := make([]string, 0, len(ops))
		for m := range ops {
			methods = append(methods, m)
		}
		sort.Strings(methods)

		for _, method := range methods {
			in, err := convertOperation(method, pathPattern, basePath, ops[method])
			if err != nil {
				return nil, fmt.Errorf("%s %s: %w", method, pathPattern, err)
			}
			stubs = append(stubs, in)
		}
	}

	return stubs, nil
}

func convertOperation(method, pathPattern, basePath string, op *openapi3.Operation) (*models.StubInput, error) {
	url := path.Join("/", basePath, pathPattern)

	matchType := models.MatchEquals
	if strings.Contains(pathPattern, "{") {
		matchType = models.MatchPathTemplate
	}

	name := op.OperationID
	if name == "" {
		name = fmt.Sprintf("%s_%s", strings.ToLower(method), sanitizePath(pathPattern))
	}

	description := op.Summary
	if description == "" {
		description = op.Description
	}
	if len(description) > 1000 {
		description = description[:1000]
	}

	def, err := responseDefinition(op)
	if err != nil {
		return nil, err
	}

	return &models.StubInput{
		Name:               truncate(name, 200),
		Description:        description,
		Method:             method,
		URL:                url,
		UrlMatchType:       matchType,
		ResponseDefinition: def,
		Priority:           DefaultPriority,
		Enabled:            true,
	}, nil
}

// responseDefinition builds {status, headers, body} from the first success
// response. Operations without one get a bare 200.
func responseDefinition(op *openapi3.Operation) (string, error) {
	status := 200

	var resp *openapi3.Response
	if op.Responses != nil {
		for _, code := range successCodes {
			ref := op.Responses.Status(code)
			if ref != nil && ref.Value != nil {
				status = code
				resp = ref.Value
				break
			}
		}
	}

	def, err := sjson.Set(`{}`, "status", status)
	if err != nil {
		return "", err
	}
	if resp == nil || status == 204 {
		return def, nil
	}

	for _, name := range sortedKeys(resp.Headers) {
		header := resp.Headers[name]
		if header == nil || header.Value == nil || header.Value.Example == nil {
			continue
		}
		def, err = sjson.Set(def, "headers."+escapeKey(name), fmt.Sprintf("%v", header.Value.Example))
		if err != nil {
			return "", err
		}
	}

	for _, mediaType := range sortedKeys(resp.Content) {
		if !strings.Contains(mediaType, "json") {
			continue
		}
		body := exampleBody(resp.Content[mediaType])
		if body == "" {
			break
		}
		if def, err = sjson.Set(def, "headers.Content-Type", mediaType); err != nil {
			return "", err
		}
		if def, err = sjson.Set(def, "body", body); err != nil {
			return "", err
		}
		break
	}

	return def, nil
}

// exampleBody prefers an inline example, then the first named example,
// then a placeholder derived from the schema
func exampleBody(media *openapi3.MediaType) string {
	if media == nil {
		return ""
	}
	if media.Example != nil {
		return formatExample(media.Example)
	}
	for _, name := range sortedKeys(media.Examples) {
		ex := media.Examples[name]
		if ex != nil && ex.Value != nil && ex.Value.Value != nil {
			return formatExample(ex.Value.Value)
		}
	}
	if media.Schema != nil && media.Schema.Value != nil {
		return formatExample(exampleFromSchema(media.Schema.Value, 0))
	}
	return ""
}

func formatExample(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	default:
		if data, err := json.Marshal(val); err == nil {
			return string(data)
		}
		return fmt.Sprintf("%v", val)
	}
}

// exampleFromSchema builds a placeholder value that has the shape of the schema
func exampleFromSchema(schema *openapi3.Schema, depth int) any {
	if schema.Example != nil {
		return schema.Example
	}
	if len(schema.Enum) > 0 {
		return schema.Enum[0]
	}
	if depth >= maxSchemaDepth {
		return nil
	}

	switch {
	case schema.Type.Is(openapi3.TypeObject) || (schema.Type == nil && len(schema.Properties) > 0):
		obj := make(map[string]any, len(schema.Properties))
		for name, prop := range schema.Properties {
			if prop == nil || prop.Value == nil {
				continue
			}
			obj[name] = exampleFromSchema(prop.Value, depth+1)
		}
		return obj
	case schema.Type.Is(openapi3.TypeArray):
		if schema.Items == nil || schema.Items.Value == nil {
			return []any{}
		}
		return []any{exampleFromSchema(schema.Items.Value, depth+1)}
	case schema.Type.Is(openapi3.TypeString):
		return "string"
	case schema.Type.Is(openapi3.TypeInteger):
		return 0
	case schema.Type.Is(openapi3.TypeNumber):
		return 0.0
	case schema.Type.Is(openapi3.TypeBoolean):
		return false
	default:
		return nil
	}
}

func normalizeBasePath(basePath string) string {
	if basePath == "" {
		return ""
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	return strings.TrimSuffix(basePath, "/")
}

// sanitizePath converts a path to an identifier
func sanitizePath(pathPattern string) string {
	result := strings.NewReplacer("{", "", "}", "", "/", "_").Replace(pathPattern)
	return strings.Trim(result, "_")
}

// escapeKey escapes sjson path metacharacters in a header name
func escapeKey(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch r {
		case '.', '*', '?', '|', '#', '@', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
