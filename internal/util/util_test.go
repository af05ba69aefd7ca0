package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleSchema struct {
	A string   `json:"a" description:"Field A"`
	B *int     `json:"b" description:"Optional pointer field"`
	C int      `json:"c,omitempty" description:"Omit empty field"`
	D []string `json:"d,omitempty"`
}

func TestCreateSchema(t *testing.T) {
	schema := CreateSchema(sampleSchema{})
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "a")
	assert.Contains(t, props, "b")
	assert.Contains(t, props, "c")
	assert.ElementsMatch(t, []string{"a"}, schema["required"])
	assert.Equal(t, map[string]any{"type": "array", "items": map[string]any{"type": "string"}}, props["d"])
}

func TestValidateParameters(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"x":    map[string]any{"type": "integer"},
			"op":   map[string]any{"type": "string", "enum": []string{"get", "put"}},
			"free": AnySchema("anything goes"),
		},
		"required": []string{"x"},
	}

	assert.NoError(t, ValidateParameters(map[string]any{"x": 5.0, "free": []any{1, "a"}}, schema))

	err := ValidateParameters(map[string]any{}, schema)
	require.Error(t, err)
	vErr, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.Equal(t, "x", vErr.Field)

	err = ValidateParameters(map[string]any{"x": "not-int"}, schema)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected type integer")

	err = ValidateParameters(map[string]any{"x": 1, "op": "drop"}, schema)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be one of get, put")

	// []any shaped required lists come from JSON decoded schemas.
	schema["required"] = []any{"op"}
	assert.Error(t, ValidateParameters(map[string]any{"x": 1}, schema))
}

func TestRenderTemplate(t *testing.T) {
	out, err := RenderTemplate("plain text", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain text", out)

	out, err = RenderTemplate(`{{upper .Name}} <{{default "none" .Role}}>`, map[string]any{"Name": "dexter", "Role": ""})
	require.NoError(t, err)
	assert.Equal(t, "DEXTER <none>", out)

	out, err = RenderTemplate(`{{bullets .Items}}`, map[string]any{"Items": []string{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, "- a\n- b\n", out)

	_, err = RenderTemplate("{{", nil)
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 0))
	assert.Equal(t, "ab", Truncate("abc", 2))
	assert.Equal(t, "héé", Truncate("hééllo", 3))
	assert.Len(t, Truncate(strings.Repeat("x", 20000), 12000), 12000)
}
