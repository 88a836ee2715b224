package capability

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

// FormatKind tags the variants of Directive.
type FormatKind int

const (
	FormatNone FormatKind = iota
	FormatJSONObject
	FormatJSONSchema
	FormatStructured
)

func (k FormatKind) String() string {
	switch k {
	case FormatJSONObject:
		return "json_object"
	case FormatJSONSchema:
		return "json_schema"
	case FormatStructured:
		return "structured"
	default:
		return "none"
	}
}

func (k FormatKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Directive describes how the caller wants the response shaped. Build it with
// None, JSONObject, JSONSchema, Structured or StructuredFor.
type Directive struct {
	Kind   FormatKind     `json:"kind"`
	Name   string         `json:"name,omitempty"`
	Schema map[string]any `json:"schema,omitempty"`
	Strict bool           `json:"strict,omitempty"`
}

func None() Directive {
	return Directive{Kind: FormatNone}
}

func JSONObject() Directive {
	return Directive{Kind: FormatJSONObject}
}

// JSONSchema asks for output matching schema through the response_format
// parameter, honouring the caller's strict flag.
func JSONSchema(name string, schema map[string]any, strict bool) Directive {
	return Directive{Kind: FormatJSONSchema, Name: schemaName(name), Schema: schema, Strict: strict}
}

// Structured asks for output decoded into a typed object described by schema.
// It always runs in strict mode.
func Structured(name string, schema map[string]any) Directive {
	return Directive{Kind: FormatStructured, Name: schemaName(name), Schema: schema, Strict: true}
}

// StructuredFor derives the schema from T.
func StructuredFor[T any]() (Directive, error) {
	s, err := jsonschema.For[T](nil)
	if err != nil {
		return Directive{}, fmt.Errorf("derive schema: %w", err)
	}

	raw, err := json.Marshal(s)
	if err != nil {
		return Directive{}, fmt.Errorf("encode schema: %w", err)
	}

	var schema map[string]any
	if err := json.Unmarshal(raw, &schema); err != nil {
		return Directive{}, fmt.Errorf("decode schema: %w", err)
	}

	return Structured(reflect.TypeFor[T]().Name(), schema), nil
}

// IsSchema reports whether the directive carries a schema.
func (d Directive) IsSchema() bool {
	return d.Kind == FormatJSONSchema || d.Kind == FormatStructured
}

// legacyFormat renders the json_schema response_format object.
func (d Directive) legacyFormat(strict bool) map[string]any {
	return map[string]any{
		"type": "json_schema",
		"json_schema": map[string]any{
			"name":   d.Name,
			"schema": d.Schema,
			"strict": strict,
		},
	}
}

// StrictSchema returns a copy of the schema in the form the structured parse
// path requires: every object closed to extra properties and every property
// required. The directive's own schema is left untouched.
func (d Directive) StrictSchema() map[string]any {
	if d.Schema == nil {
		return nil
	}
	return strictNode(d.Schema)
}

func strictNode(node map[string]any) map[string]any {
	out := make(map[string]any, len(node)+2)
	for k, v := range node {
		out[k] = v
	}

	if props, ok := node["properties"].(map[string]any); ok {
		closed := make(map[string]any, len(props))
		required := make([]any, 0, len(props))
		for _, name := range sortedKeys(props) {
			closed[name] = strictValue(props[name])
			required = append(required, name)
		}
		out["properties"] = closed
		out["required"] = required
		out["additionalProperties"] = false
	} else if node["type"] == "object" {
		out["additionalProperties"] = false
	}

	for _, key := range []string{"items", "$defs", "definitions", "anyOf", "oneOf", "allOf"} {
		if v, ok := node[key]; ok {
			if key == "$defs" || key == "definitions" {
				if defs, ok := v.(map[string]any); ok {
					copied := make(map[string]any, len(defs))
					for name, def := range defs {
						copied[name] = strictValue(def)
					}
					out[key] = copied
				}
				continue
			}
			out[key] = strictValue(v)
		}
	}
	return out
}

func strictValue(v any) any {
	switch n := v.(type) {
	case map[string]any:
		return strictNode(n)
	case []any:
		out := make([]any, len(n))
		for i, item := range n {
			out[i] = strictValue(item)
		}
		return out
	}
	return v
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func jsonObjectFormat() map[string]any {
	return map[string]any{"type": "json_object"}
}

// schemaName normalises a schema name to what the OpenAI API accepts.
func schemaName(name string) string {
	if name == "" {
		return "response"
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
