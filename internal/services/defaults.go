package services

import (
	"dredge/internal/config"
	"dredge/internal/model"
	"dredge/internal/templates"
)

// TaskDefaults carries the instance-wide extraction defaults applied when
// a task under-specifies its own LLM settings.
type TaskDefaults struct {
	Provider string
	Model    string
	APIKey   string
	Prompt   string
}

// LoadTaskDefaults builds the defaults from configuration. An inline
// default prompt wins over a reference; the reference is resolved once,
// here, so a broken default surfaces at startup rather than mid-run.
func LoadTaskDefaults(llmCfg config.LLMConfig, tplCfg config.TemplatesConfig, r *templates.Resolver) (TaskDefaults, error) {
	d := TaskDefaults{
		Provider: llmCfg.DefaultProvider,
		Model:    llmCfg.DefaultModel,
		APIKey:   llmCfg.APIKey,
		Prompt:   tplCfg.DefaultPrompt,
	}
	if d.Prompt == "" && tplCfg.DefaultPromptRef != "" {
		prompt, err := r.ResolvePrompt(tplCfg.DefaultPromptRef)
		if err != nil {
			return TaskDefaults{}, err
		}
		d.Prompt = prompt
	}
	return d, nil
}

// EffectiveTask is the run-time extraction view of a task after the
// defaults merge. Prompt may still hold an @-reference at this point;
// the worker resolves it when materializing the run.
type EffectiveTask struct {
	Provider string
	Model    string
	Params   map[string]any
	Prompt   string
	Schema   map[string]any
}

// MergeDefaults applies d to the task's extraction settings. Task-level
// values always win; the default credential only fills in when the task
// params carry no api_key or api_token. Pure: neither the task nor its
// params map is mutated.
func MergeDefaults(task *model.CrawlTask, d TaskDefaults) EffectiveTask {
	eff := EffectiveTask{
		Provider: task.LLMProvider,
		Model:    task.LLMModel,
		Prompt:   task.PromptTemplate,
		Schema:   task.OutputSchema,
	}
	if eff.Provider == "" {
		eff.Provider = d.Provider
	}
	if eff.Model == "" {
		eff.Model = d.Model
	}
	if eff.Prompt == "" {
		eff.Prompt = d.Prompt
	}

	if len(task.LLMParams) > 0 {
		eff.Params = make(map[string]any, len(task.LLMParams)+1)
		for k, v := range task.LLMParams {
			eff.Params[k] = v
		}
	}
	if d.APIKey != "" && !hasCredential(eff.Params) {
		if eff.Params == nil {
			eff.Params = make(map[string]any, 1)
		}
		eff.Params["api_key"] = d.APIKey
	}
	return eff
}

func hasCredential(params map[string]any) bool {
	for _, key := range []string{"api_key", "api_token"} {
		if s, ok := params[key].(string); ok && s != "" {
			return true
		}
	}
	return false
}
