package swaggerkit

import (
	_ "embed"
	"encoding/json"
	"net/http"
	"strings"

	"turnstiled/internal/platform/config"
)

//go:embed openapi.json
var openapiDoc string

var docReader = func() string { return openapiDoc }

// SpecMutator edits the decoded document before it is served
type SpecMutator func(spec map[string]any)

// WithServerURL points the document's servers entry at an absolute base
func WithServerURL(base string) SpecMutator {
	return func(spec map[string]any) {
		if base = strings.TrimRight(base, "/"); base != "" {
			spec["servers"] = []any{map[string]any{"url": base + "/api/v1"}}
		}
	}
}

func serveDocJSON(mutators ...SpecMutator) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		var spec map[string]any
		if err := json.Unmarshal([]byte(docReader()), &spec); err != nil {
			http.Error(w, "openapi document unreadable", http.StatusInternalServerError)
			return
		}

		ensureServers(spec, "/api/v1")
		if suffix := config.New().Prefix("TURNSTILE_SERVER_").MayString("DOCS_TITLE_SUFFIX", ""); suffix != "" {
			if info, ok := spec["info"].(map[string]any); ok {
				info["title"] = strings.TrimSpace(stringOf(info["title"]) + " " + suffix)
			}
		}
		schema(spec)["ErrorResponse"] = errorEnvelopeSchema
		eachOperation(spec, func(resps map[string]any) {
			setDefault(resps, "400", errorResponse(http.StatusBadRequest, 8, "url: url must be a valid URL"))
			setDefault(resps, "500", errorResponse(http.StatusInternalServerError, 1, "internal error"))
		})
		for _, m := range mutators {
			if m != nil {
				m(spec)
			}
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_ = json.NewEncoder(w).Encode(spec)
	}
}

// ensureServers pins the document to OpenAPI 3.0.3, which is what the bundled UI renders,
// and adds a relative server when none is listed
func ensureServers(spec map[string]any, url string) {
	delete(spec, "swagger")
	spec["openapi"] = "3.0.3"
	if _, ok := spec["servers"]; !ok {
		spec["servers"] = []any{map[string]any{"url": url}}
	}
}

func stringOf(v any) string {
	s, _ := v.(string)
	return s
}

func child(m map[string]any, key string) map[string]any {
	c, ok := m[key].(map[string]any)
	if !ok {
		c = map[string]any{}
		m[key] = c
	}
	return c
}

func schema(spec map[string]any) map[string]any { return child(child(spec, "components"), "schemas") }

func eachOperation(spec map[string]any, fn func(responses map[string]any)) {
	paths, _ := spec["paths"].(map[string]any)
	for _, p := range paths {
		ops, _ := p.(map[string]any)
		for _, op := range ops {
			if o, ok := op.(map[string]any); ok {
				fn(child(o, "responses"))
			}
		}
	}
}

func setDefault(m map[string]any, key string, v any) {
	if _, ok := m[key]; !ok {
		m[key] = v
	}
}

var errorEnvelopeSchema = map[string]any{
	"type":     "object",
	"required": []any{"status_code", "status", "code", "error"},
	"properties": map[string]any{
		"status_code": map[string]any{"type": "integer"},
		"status":      map[string]any{"type": "string"},
		"code":        map[string]any{"type": "integer", "description": "error code, see the errors package"},
		"error":       map[string]any{"type": "string"},
		"request_id":  map[string]any{"type": "string"},
	},
}

func errorResponse(status, code int, msg string) map[string]any {
	return map[string]any{
		"description": http.StatusText(status),
		"content": map[string]any{
			"application/json": map[string]any{
				"schema": map[string]any{"$ref": "#/components/schemas/ErrorResponse"},
				"example": map[string]any{
					"status_code": status,
					"status":      http.StatusText(status),
					"code":        code,
					"error":       msg,
					"request_id":  "turnstiled/abc-000001",
				},
			},
		},
	}
}
