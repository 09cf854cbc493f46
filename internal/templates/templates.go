// Package templates resolves @-prefixed file references for prompt
// templates and output schemas. References name files under the configured
// templates root: @prompt_templates/<name>.txt and @schemas/<name>.json.
// Inline values pass through untouched.
package templates

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	promptPrefix = "@prompt_templates/"
	schemaPrefix = "@schemas/"
)

// Resolver reads referenced files from the two well-known subdirectories
// of the templates root. It holds no state beyond the paths and is safe
// for concurrent use.
type Resolver struct {
	promptDir string
	schemaDir string
}

func NewResolver(dir string) *Resolver {
	return &Resolver{
		promptDir: filepath.Join(dir, "prompt_templates"),
		schemaDir: filepath.Join(dir, "schemas"),
	}
}

// IsPromptRef reports whether value names a prompt template file rather
// than carrying inline prompt text.
func IsPromptRef(value string) bool {
	return strings.HasPrefix(value, promptPrefix)
}

// ResolvePrompt returns the prompt text for value. Inline text (anything
// not starting with "@") passes through. A reference is read from disk;
// an unknown @-root or a missing file is an error.
func (r *Resolver) ResolvePrompt(value string) (string, error) {
	if !strings.HasPrefix(value, "@") {
		return value, nil
	}
	if !strings.HasPrefix(value, promptPrefix) {
		return "", eris.Errorf("templates: invalid prompt reference %q, expected %s<name>", value, promptPrefix)
	}

	name := strings.TrimPrefix(value, promptPrefix)
	content, err := r.readWithin(r.promptDir, name)
	if err != nil {
		return "", err
	}

	zap.L().Debug("resolved prompt template reference",
		zap.String("ref", value),
		zap.Int("chars", len(content)))
	return string(content), nil
}

// ResolveSchema interprets raw as either an inline schema object or a
// JSON string holding an @schemas/ reference, and returns the schema map.
// Empty and null inputs resolve to nil.
func (r *Resolver) ResolveSchema(raw json.RawMessage) (map[string]any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	if trimmed[0] == '"' {
		var ref string
		if err := json.Unmarshal(trimmed, &ref); err != nil {
			return nil, eris.Wrap(err, "templates: decode schema reference")
		}
		if !strings.HasPrefix(ref, schemaPrefix) {
			return nil, eris.Errorf("templates: invalid schema reference %q, expected %s<name>", ref, schemaPrefix)
		}

		content, err := r.readWithin(r.schemaDir, strings.TrimPrefix(ref, schemaPrefix))
		if err != nil {
			return nil, err
		}
		var schema map[string]any
		if err := json.Unmarshal(content, &schema); err != nil {
			return nil, eris.Wrapf(err, "templates: invalid JSON in schema file %s", ref)
		}

		zap.L().Debug("resolved output schema reference", zap.String("ref", ref))
		return schema, nil
	}

	var schema map[string]any
	if err := json.Unmarshal(trimmed, &schema); err != nil {
		return nil, eris.Wrap(err, "templates: output_schema must be an object or @schemas/ reference")
	}
	return schema, nil
}

// readWithin reads name under root, refusing references that escape it.
func (r *Resolver) readWithin(root, name string) ([]byte, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, eris.Wrapf(err, "templates: resolve %s", root)
	}
	absPath, err := filepath.Abs(filepath.Join(root, name))
	if err != nil {
		return nil, eris.Wrapf(err, "templates: resolve %s", name)
	}
	if !strings.HasPrefix(absPath, absRoot+string(filepath.Separator)) {
		return nil, eris.Errorf("templates: reference %q escapes %s", name, filepath.Base(root))
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		return nil, eris.Wrapf(err, "templates: read referenced file %s", name)
	}
	return content, nil
}
