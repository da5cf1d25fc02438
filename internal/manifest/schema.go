package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ParamValidator validates submitted parameter documents against the
// manifest's parameter schema.
type ParamValidator struct {
	schema *jsonschema.Schema
}

// Validator compiles the parameter schema once. A manifest without a schema
// yields a validator that accepts any JSON object.
func (m Manifest) Validator() (*ParamValidator, error) {
	if len(m.ParameterSchema) == 0 {
		return &ParamValidator{}, nil
	}
	b, err := json.Marshal(m.ParameterSchema)
	if err != nil {
		return nil, fmt.Errorf("marshal parameter schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("parameters.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add parameter schema: %w", err)
	}
	schema, err := compiler.Compile("parameters.json")
	if err != nil {
		return nil, fmt.Errorf("compile parameter schema: %w", err)
	}
	return &ParamValidator{schema: schema}, nil
}

// Validate parses raw JSON and checks it against the compiled schema,
// returning the decoded parameter map on success.
func (v *ParamValidator) Validate(raw []byte) (map[string]any, error) {
	var params map[string]any
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("parameters must be a JSON object: %w", err)
	}
	if v.schema == nil {
		return params, nil
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal parameters: %w", err)
	}
	if err := v.schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("parameters do not match schema: %w", err)
	}
	return params, nil
}
