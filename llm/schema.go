package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaValidation is the outcome of checking a JSON document against a schema.
type SchemaValidation struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// CompileSchema compiles a JSON-Schema document held as a map.
func CompileSchema(schema map[string]any) (*jsonschema.Schema, error) {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to encode schema: %w", err)
	}
	compiled, err := jsonschema.CompileString("schema.json", string(data))
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return compiled, nil
}

// ValidateAgainst checks a Go value against schema. The value is passed
// through encoding/json first so typed slices and structs validate like the
// JSON they encode to.
func ValidateAgainst(schema map[string]any, value any) SchemaValidation {
	doc, err := json.Marshal(value)
	if err != nil {
		return SchemaValidation{Errors: []string{fmt.Sprintf("/: %v", err)}}
	}
	return ValidateJSON(schema, doc)
}

// ValidateJSON decodes doc and validates it against schema.
func ValidateJSON(schema map[string]any, doc []byte) SchemaValidation {
	var value any
	if err := json.Unmarshal(doc, &value); err != nil {
		return SchemaValidation{Errors: []string{"$: not valid JSON"}}
	}
	compiled, err := CompileSchema(schema)
	if err != nil {
		return SchemaValidation{Errors: []string{err.Error()}}
	}
	if err := compiled.Validate(value); err != nil {
		return SchemaValidation{Errors: validationMessages(err)}
	}
	return SchemaValidation{Valid: true}
}

// validationMessages flattens a validation error tree into "location: message" lines.
func validationMessages(err error) []string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []string{err.Error()}
	}
	var out []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			out = append(out, fmt.Sprintf("%s: %s", loc, strings.TrimSpace(e.Message)))
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	return out
}
