package toolschema

import (
	"encoding/json"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/stretchr/testify/require"
)

func sampleSchema() Schema {
	return NewSchema("search", "search the web", []ParamSpec{
		{Name: "query", Type: TypeString, Required: true},
		{Name: "limit", Type: TypeInteger, Required: false},
	}, nil)
}

func TestSchemaExportShapes(t *testing.T) {
	s := sampleSchema()

	openai := s.OpenAI()
	require.Equal(t, "function", openai["type"])
	fn := openai["function"].(map[string]any)
	require.Equal(t, "search", fn["name"])
	require.Equal(t, "search the web", fn["description"])

	anthropic := s.Anthropic()
	require.Equal(t, "search", anthropic["name"])
	require.Contains(t, anthropic, "input_schema")

	raw := s.JSONSchema()
	require.Equal(t, "object", raw["type"])
	require.ElementsMatch(t, []string{"query"}, raw["required"])
}

func TestJSONSchemaOutputIsWellFormedSchema(t *testing.T) {
	s := sampleSchema()
	raw := s.JSONSchema()

	encoded, err := json.Marshal(raw)
	require.NoError(t, err)

	var doc any
	require.NoError(t, json.Unmarshal(encoded, &doc))

	compiler := jsonschema.NewCompiler()
	require.NoError(t, compiler.AddResource("schema.json", doc))
	_, err = compiler.Compile("schema.json")
	require.NoError(t, err)
}

func TestRegistryLastRegistrationWins(t *testing.T) {
	reg := NewRegistry()
	reg.Register(NewSchema("t", "first", nil, nil))
	reg.Register(NewSchema("t", "second", nil, nil))

	got, ok := reg.Get("t")
	require.True(t, ok)
	require.Equal(t, "second", got.Description)
}

func TestValidateRequiredAndTypes(t *testing.T) {
	s := sampleSchema()

	require.NoError(t, Validate(s, map[string]any{"query": "go"}))
	require.Error(t, Validate(s, map[string]any{}))
	require.Error(t, Validate(s, map[string]any{"query": 5}))
	require.NoError(t, Validate(s, map[string]any{"query": "go", "limit": 3}))
}
