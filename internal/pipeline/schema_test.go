package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func titleSchema() map[string]any {
	return map[string]any{
		"properties": map[string]any{
			"title":   map[string]any{"type": "string"},
			"summary": map[string]any{"type": "string"},
		},
		"required": []any{"title"},
	}
}

func TestNormalizeToSchemaAllowList(t *testing.T) {
	data := map[string]any{
		"title":     "X",
		"error":     false,
		"_internal": "diagnostic",
	}

	filtered, err := NormalizeToSchema(data, titleSchema())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"title": "X"}, filtered)

	for key := range filtered {
		_, declared := titleSchema()["properties"].(map[string]any)[key]
		assert.True(t, declared, "key %q not declared in schema", key)
	}
}

func TestNormalizeToSchemaIdempotent(t *testing.T) {
	data := map[string]any{"title": "X", "summary": "Y", "extra": 1}

	once, err := NormalizeToSchema(data, titleSchema())
	require.NoError(t, err)
	twice, err := NormalizeToSchema(once, titleSchema())
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

func TestNormalizeToSchemaMissingRequired(t *testing.T) {
	schema := map[string]any{
		"properties": map[string]any{
			"title": map[string]any{"type": "string"},
			"date":  map[string]any{"type": "string"},
		},
		"required": []any{"title", "date"},
	}

	_, err := NormalizeToSchema(map[string]any{"other": true}, schema)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Missing required fields: ")
	assert.Contains(t, err.Error(), "title")
	assert.Contains(t, err.Error(), "date")
}

func TestNormalizeToSchemaNotAnObject(t *testing.T) {
	_, err := NormalizeToSchema("just a string", titleSchema())
	require.Error(t, err)
	assert.Equal(t, "not an object; cannot satisfy schema", err.Error())
}

func TestNormalizeToSchemaPassthroughWithoutProperties(t *testing.T) {
	data := map[string]any{"anything": "goes", "nested": map[string]any{"x": 1}}

	filtered, err := NormalizeToSchema(data, nil)
	require.NoError(t, err)
	assert.Equal(t, data, filtered)

	filtered, err = NormalizeToSchema(data, map[string]any{"type": "object"})
	require.NoError(t, err)
	assert.Equal(t, data, filtered)
}
