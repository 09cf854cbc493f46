package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dredge/internal/config"
	"dredge/internal/model"
	"dredge/internal/templates"
)

func TestMergeDefaultsTaskValuesWin(t *testing.T) {
	task := &model.CrawlTask{
		LLMProvider:    "deepseek",
		LLMModel:       "deepseek-chat",
		LLMParams:      map[string]any{"api_key": "sk-task"},
		PromptTemplate: "Extract the title",
		OutputSchema:   map[string]any{"properties": map[string]any{}},
	}
	d := TaskDefaults{Provider: "openai", Model: "gpt-4", APIKey: "sk-default", Prompt: "Default prompt"}

	eff := MergeDefaults(task, d)
	assert.Equal(t, "deepseek", eff.Provider)
	assert.Equal(t, "deepseek-chat", eff.Model)
	assert.Equal(t, "Extract the title", eff.Prompt)
	assert.Equal(t, "sk-task", eff.Params["api_key"])
	assert.Equal(t, task.OutputSchema, eff.Schema)
}

func TestMergeDefaultsFillsGaps(t *testing.T) {
	task := &model.CrawlTask{}
	d := TaskDefaults{Provider: "openai", Model: "gpt-4", APIKey: "sk-default", Prompt: "Default prompt"}

	eff := MergeDefaults(task, d)
	assert.Equal(t, "openai", eff.Provider)
	assert.Equal(t, "gpt-4", eff.Model)
	assert.Equal(t, "Default prompt", eff.Prompt)
	assert.Equal(t, map[string]any{"api_key": "sk-default"}, eff.Params)
}

func TestMergeDefaultsKeepsTaskCredential(t *testing.T) {
	task := &model.CrawlTask{
		LLMParams: map[string]any{"api_token": "sk-alias", "temperature": 0.2},
	}
	d := TaskDefaults{APIKey: "sk-default"}

	eff := MergeDefaults(task, d)
	assert.Equal(t, "sk-alias", eff.Params["api_token"])
	assert.NotContains(t, eff.Params, "api_key")
}

func TestMergeDefaultsDoesNotMutateTask(t *testing.T) {
	task := &model.CrawlTask{LLMParams: map[string]any{"temperature": 0.2}}
	d := TaskDefaults{APIKey: "sk-default"}

	eff := MergeDefaults(task, d)
	require.Equal(t, "sk-default", eff.Params["api_key"])
	assert.NotContains(t, task.LLMParams, "api_key")
}

func TestLoadTaskDefaultsInlinePromptWins(t *testing.T) {
	r := templates.NewResolver(t.TempDir())

	d, err := LoadTaskDefaults(
		config.LLMConfig{DefaultProvider: "openai", DefaultModel: "gpt-4", APIKey: "sk-env"},
		config.TemplatesConfig{DefaultPrompt: "Inline default", DefaultPromptRef: "@prompt_templates/unused.txt"},
		r,
	)
	require.NoError(t, err)
	assert.Equal(t, "Inline default", d.Prompt)
	assert.Equal(t, "sk-env", d.APIKey)
}

func TestLoadTaskDefaultsResolvesRef(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "prompt_templates"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "prompt_templates", "default.txt"),
		[]byte("Extract everything interesting."), 0o644))

	d, err := LoadTaskDefaults(
		config.LLMConfig{},
		config.TemplatesConfig{DefaultPromptRef: "@prompt_templates/default.txt"},
		templates.NewResolver(dir),
	)
	require.NoError(t, err)
	assert.Equal(t, "Extract everything interesting.", d.Prompt)
}

func TestLoadTaskDefaultsBrokenRefFails(t *testing.T) {
	_, err := LoadTaskDefaults(
		config.LLMConfig{},
		config.TemplatesConfig{DefaultPromptRef: "@prompt_templates/missing.txt"},
		templates.NewResolver(t.TempDir()),
	)
	require.Error(t, err)
}
