package verify

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/forgehq/sidecar/pkg/models"
)

// schemaCache compiles each distinct SchemaFields set once, keyed by its
// canonical JSON rendering.
var schemaCache sync.Map

// evalSchema checks required-field presence and primitive type, per §4.4:
// violations are always block.
func evalSchema(fields map[string]SchemaField, resultJSON string) EvalResult {
	schema, err := compileSchemaFields(fields)
	if err != nil {
		return EvalResult{Outcome: models.OutcomeBlock, Message: fmt.Sprintf("invalid schema config: %v", err)}
	}

	var decoded any
	if err := json.Unmarshal([]byte(resultJSON), &decoded); err != nil {
		return EvalResult{Outcome: models.OutcomeBlock, Message: fmt.Sprintf("result is not valid JSON: %v", err)}
	}

	if err := schema.Validate(decoded); err != nil {
		return EvalResult{Outcome: models.OutcomeBlock, Message: err.Error()}
	}
	return EvalResult{Outcome: models.OutcomePass}
}

func compileSchemaFields(fields map[string]SchemaField) (*jsonschema.Schema, error) {
	key := schemaCacheKey(fields)
	if cached, ok := schemaCache.Load(key); ok {
		return cached.(*jsonschema.Schema), nil
	}

	properties := make(map[string]any, len(fields))
	var required []string
	for name, field := range fields {
		properties[name] = map[string]any{"type": jsonType(field.Type)}
		if field.Required {
			required = append(required, name)
		}
	}
	sort.Strings(required)

	document := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		document["required"] = required
	}

	raw, err := json.Marshal(document)
	if err != nil {
		return nil, err
	}

	compiled, err := jsonschema.CompileString(key, string(raw))
	if err != nil {
		return nil, err
	}
	schemaCache.Store(key, compiled)
	return compiled, nil
}

func schemaCacheKey(fields map[string]SchemaField) string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, name := range names {
		f := fields[name]
		fmt.Fprintf(&b, "%s:%s:%v;", name, f.Type, f.Required)
	}
	return b.String()
}

func jsonType(t string) string {
	switch t {
	case "string", "number", "boolean", "object", "array":
		return t
	default:
		return "string"
	}
}
