// Package toolschema derives JSON-Schema-style tool descriptions from typed
// parameter specifications and serializes them into the three wire shapes
// LLM providers expect (OpenAI-style, Anthropic-style, raw JSON-schema).
package toolschema

// ParamType is a JSON-Schema primitive type name. Validation is nominal: a
// supplied value's Go dynamic type is mapped to one of these and compared
// directly against the declared type, never structurally.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
	TypeArray   ParamType = "array"
	TypeObject  ParamType = "object"
	TypeNull    ParamType = "null"
)

// ParamSpec describes one parameter of a tool's input schema.
type ParamSpec struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
}

// Schema is a tool's signature, derived from a typed parameter model: a
// JSON-schema-style parameter object, the required parameter names, and an
// optional return-value schema.
type Schema struct {
	Name        string
	Description string
	Parameters  []ParamSpec
	Returns     *ParamSpec
}

// NewSchema constructs a Schema from an explicit parameter list, the
// target-language analogue of deriving one from a function signature with
// type annotations.
func NewSchema(name, description string, params []ParamSpec, returns *ParamSpec) Schema {
	return Schema{Name: name, Description: description, Parameters: params, Returns: returns}
}

// Properties returns the JSON-schema "properties" object for this schema's
// parameters.
func (s Schema) Properties() map[string]any {
	props := make(map[string]any, len(s.Parameters))
	for _, p := range s.Parameters {
		prop := map[string]any{"type": string(p.Type)}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		props[p.Name] = prop
	}
	return props
}

// RequiredNames returns the names of required parameters, in declaration
// order.
func (s Schema) RequiredNames() []string {
	required := make([]string, 0, len(s.Parameters))
	for _, p := range s.Parameters {
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return required
}

// jsonSchemaObject builds the shared {type:"object", properties, required}
// body every export format embeds.
func (s Schema) jsonSchemaObject() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": s.Properties(),
		"required":   s.RequiredNames(),
	}
}

// JSONSchema renders the raw object-schema shape: {type, properties, required}.
func (s Schema) JSONSchema() map[string]any {
	return s.jsonSchemaObject()
}

// OpenAI renders the OpenAI function-calling tool shape.
func (s Schema) OpenAI() map[string]any {
	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        s.Name,
			"description": s.Description,
			"parameters":  s.jsonSchemaObject(),
		},
	}
}

// Anthropic renders the Anthropic tool-use shape.
func (s Schema) Anthropic() map[string]any {
	return map[string]any{
		"name":        s.Name,
		"description": s.Description,
		"input_schema": s.jsonSchemaObject(),
	}
}
