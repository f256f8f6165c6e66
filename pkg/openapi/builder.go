package openapi

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Operation represents a single HTTP operation to surface in OpenAPI.
type Operation struct {
	Method      string         `json:"method"`
	Path        string         `json:"path"`
	Summary     string         `json:"summary,omitempty"`
	Description string         `json:"description,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Parameters  []any          `json:"parameters,omitempty"`
	RequestBody any            `json:"requestBody,omitempty"`
	Responses   map[string]any `json:"responses"`
}

// Registry holds the operations served by one process.
type Registry struct {
	Ops    []Operation
	Bearer bool
}

func NewRegistry() *Registry { return &Registry{Ops: []Operation{}} }

func (r *Registry) Register(op Operation) {
	if op.Method != "" {
		op.Method = strings.ToLower(op.Method)
	}
	r.Ops = append(r.Ops, op)
}

// Build produces a minimal OpenAPI 3.1 document. Schemas are kept inline.
func (r *Registry) Build(serviceName, version string) map[string]any {
	paths := map[string]any{}
	for _, op := range r.Ops {
		if _, ok := paths[op.Path]; !ok {
			paths[op.Path] = map[string]any{}
		}
		m := map[string]any{
			"summary":     op.Summary,
			"description": op.Description,
			"tags":        op.Tags,
			"responses":   op.Responses,
		}
		if len(op.Parameters) > 0 {
			m["parameters"] = op.Parameters
		}
		if op.RequestBody != nil {
			m["requestBody"] = op.RequestBody
		}
		paths[op.Path].(map[string]any)[op.Method] = m
	}
	doc := map[string]any{
		"openapi": "3.1.0",
		"info":    map[string]any{"title": serviceName, "version": version},
		"paths":   paths,
	}
	if r.Bearer {
		doc["components"] = map[string]any{
			"securitySchemes": map[string]any{
				"bearer": map[string]any{"type": "http", "scheme": "bearer", "bearerFormat": "JWT"},
			},
		}
		doc["security"] = []map[string]any{{"bearer": []string{}}}
	}
	return doc
}

// ServeHandler returns an HTTP handler that serves the built OpenAPI JSON.
func (r *Registry) ServeHandler(serviceName, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(r.Build(serviceName, version))
	}
}

// WebhookOperation describes POST /webhook/{provider}.
func WebhookOperation() Operation {
	envelope := map[string]any{
		"type":     "object",
		"required": []string{"code", "message"},
		"properties": map[string]any{
			"code":    map[string]any{"type": "integer", "enum": []int{0, -1}},
			"message": map[string]any{"type": "string"},
			"data":    map[string]any{"type": "string", "description": "upstream response body, present on success only"},
		},
	}
	return Operation{
		Method:      http.MethodPost,
		Path:        "/webhook/{provider}",
		Summary:     "Relay a webhook payload to the provider's message endpoint",
		Description: "Resolves the tenant key to provider credentials, obtains a cached access token and forwards the body unchanged. Outcomes are reported in the body with HTTP 200.",
		Tags:        []string{"relay"},
		Parameters: []any{
			map[string]any{"name": "provider", "in": "path", "required": true, "schema": map[string]any{"type": "string"}},
			map[string]any{"name": "key", "in": "query", "required": true, "schema": map[string]any{"type": "string"}},
			map[string]any{"name": "X-Idempotency-Key", "in": "header", "required": false, "schema": map[string]any{"type": "string"}},
		},
		RequestBody: map[string]any{
			"required": true,
			"content":  map[string]any{"application/json": map[string]any{"schema": map[string]any{}}},
		},
		Responses: map[string]any{
			"200": map[string]any{
				"description": "relay outcome",
				"content":     map[string]any{"application/json": map[string]any{"schema": envelope}},
			},
			"404": map[string]any{"description": "provider not served by this instance"},
		},
	}
}
