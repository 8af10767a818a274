package tool

import (
	"bytes"
	"encoding/json"
	"fmt"

	invopop "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

func emptyObjectSchema() map[string]any { return map[string]any{"type": "object"} }

// SchemaFor derives an argument schema from the struct T. Field names follow
// the json tags; fields without omitempty are required; descriptions come
// from `jsonschema:"description=..."` tags.
func SchemaFor[T any]() map[string]any {
	r := &invopop.Reflector{
		ExpandedStruct: true,
		DoNotReference: true,
	}

	s := r.Reflect(new(T))

	b, err := json.Marshal(s)
	if err != nil {
		return emptyObjectSchema()
	}

	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return emptyObjectSchema()
	}

	delete(out, "$schema")
	delete(out, "$id")

	return out
}

// compiledSchema validates decoded JSON values against a compiled schema.
type compiledSchema struct {
	schema *jsonschema.Schema
}

// compileSchema compiles a JSON Schema given as a Go map. A nil map compiles
// to the permissive object schema.
func compileSchema(name string, schema map[string]any) (*compiledSchema, error) {
	if schema == nil {
		schema = emptyObjectSchema()
	}

	// Normalize Go values ([]string, typed maps) into plain JSON values.
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}

	url := "mem://tools/" + name + ".json"

	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}

	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	return &compiledSchema{schema: compiled}, nil
}

// validate checks v (any JSON-compatible Go value) against the schema.
func (s *compiledSchema) validate(v any) error {
	if s == nil {
		return nil
	}

	// Round-trip through JSON so structs and typed slices validate the same
	// way as decoded model output.
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal value: %w", err)
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("decode value: %w", err)
	}

	return s.schema.Validate(inst)
}
