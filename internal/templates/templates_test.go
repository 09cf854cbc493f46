package templates

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "prompt_templates", "nested"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "schemas"), 0o755))

	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "prompt_templates", "news_article.txt"),
		[]byte("Extract the headline and the publication date."), 0o644))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "prompt_templates", "nested", "release.txt"),
		[]byte("Extract release highlights."), 0o644))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "schemas", "news_article.json"),
		[]byte(`{"properties":{"title":{"type":"string"}},"required":["title"]}`), 0o644))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "schemas", "broken.json"),
		[]byte(`{"properties":`), 0o644))

	return NewResolver(dir)
}

func TestResolvePromptInlinePassesThrough(t *testing.T) {
	r := newTestResolver(t)

	got, err := r.ResolvePrompt("Extract the title")
	require.NoError(t, err)
	assert.Equal(t, "Extract the title", got)

	got, err = r.ResolvePrompt("")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestResolvePromptReadsReference(t *testing.T) {
	r := newTestResolver(t)

	got, err := r.ResolvePrompt("@prompt_templates/news_article.txt")
	require.NoError(t, err)
	assert.Equal(t, "Extract the headline and the publication date.", got)

	got, err = r.ResolvePrompt("@prompt_templates/nested/release.txt")
	require.NoError(t, err)
	assert.Equal(t, "Extract release highlights.", got)
}

func TestResolvePromptMissingFile(t *testing.T) {
	r := newTestResolver(t)

	_, err := r.ResolvePrompt("@prompt_templates/missing.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.txt")
}

func TestResolvePromptUnknownRoot(t *testing.T) {
	r := newTestResolver(t)

	_, err := r.ResolvePrompt("@secrets/creds.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid prompt reference")
}

func TestResolvePromptRejectsEscape(t *testing.T) {
	r := newTestResolver(t)

	for _, ref := range []string{
		"@prompt_templates/../schemas/news_article.json",
		"@prompt_templates/../../etc/passwd",
		"@prompt_templates/nested/../../x.txt",
	} {
		_, err := r.ResolvePrompt(ref)
		require.Error(t, err, ref)
		assert.Contains(t, err.Error(), "escapes", ref)
	}
}

func TestIsPromptRef(t *testing.T) {
	assert.True(t, IsPromptRef("@prompt_templates/a.txt"))
	assert.False(t, IsPromptRef("Extract the title"))
	assert.False(t, IsPromptRef("@schemas/a.json"))
}

func TestResolveSchemaInlineObject(t *testing.T) {
	r := newTestResolver(t)

	schema, err := r.ResolveSchema(json.RawMessage(`{"properties":{"title":{"type":"string"}}}`))
	require.NoError(t, err)
	assert.Contains(t, schema, "properties")
}

func TestResolveSchemaEmptyInputs(t *testing.T) {
	r := newTestResolver(t)

	schema, err := r.ResolveSchema(nil)
	require.NoError(t, err)
	assert.Nil(t, schema)

	schema, err = r.ResolveSchema(json.RawMessage("null"))
	require.NoError(t, err)
	assert.Nil(t, schema)
}

func TestResolveSchemaReference(t *testing.T) {
	r := newTestResolver(t)

	schema, err := r.ResolveSchema(json.RawMessage(`"@schemas/news_article.json"`))
	require.NoError(t, err)
	require.Contains(t, schema, "required")
	assert.Equal(t, []any{"title"}, schema["required"])
}

func TestResolveSchemaInvalidJSONFile(t *testing.T) {
	r := newTestResolver(t)

	_, err := r.ResolveSchema(json.RawMessage(`"@schemas/broken.json"`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid JSON in schema file")
}

func TestResolveSchemaRejectsBareString(t *testing.T) {
	r := newTestResolver(t)

	_, err := r.ResolveSchema(json.RawMessage(`"just some text"`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid schema reference")
}

func TestResolveSchemaRejectsNonObject(t *testing.T) {
	r := newTestResolver(t)

	_, err := r.ResolveSchema(json.RawMessage(`[1,2,3]`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be an object")
}
