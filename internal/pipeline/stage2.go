package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"dredge/internal/llm"
	"dredge/internal/model"
)

// Stage-2 disabled reasons and failure messages. These are stable strings:
// operators and the run manifest key off them.
const (
	errNoLLMConfig       = "No LLM config provided"
	errNoPromptTemplate  = "No prompt_template provided"
	errMissingCredential = "LLM config unavailable: missing API key"
)

// Stage2Input carries everything one extraction attempt needs.
type Stage2Input struct {
	URL      string
	Content  CleanedContent
	Provider string
	Model    string
	Params   map[string]any
	Prompt   string
	Schema   map[string]any
}

// Stage2Runner drives the primary extraction attempt and the direct-HTML
// fallback.
type Stage2Runner struct {
	Extractor Extractor
	Timeout   time.Duration
}

// Enabled reports the pre-fetch decision: stage 2 runs only when both an
// LLM descriptor and a prompt are present.
func (in Stage2Input) Enabled() bool {
	return in.Provider != "" && in.Model != "" && in.Prompt != ""
}

// Attempt runs the primary extraction path and returns the structured
// outcome. It never returns an error: every failure mode is a field.
func (r Stage2Runner) Attempt(ctx context.Context, in Stage2Input) model.ExtractionOutcome {
	if in.Provider == "" || in.Model == "" {
		return model.ExtractionOutcome{Enabled: false, Success: false, Error: errNoLLMConfig}
	}
	if in.Prompt == "" {
		return model.ExtractionOutcome{Enabled: false, Success: false, Error: errNoPromptTemplate}
	}

	cfg, ok := BuildLLMConfig(in.Provider, in.Model, in.Params, r.Timeout)
	if !ok {
		return model.ExtractionOutcome{Enabled: true, Success: false, Error: errMissingCredential}
	}

	content, source := in.Content.Fit, "fit"
	if content == "" {
		content, source = in.Content.Raw, "raw"
	}
	zap.L().Debug("stage 2 extraction",
		zap.String("url", in.URL),
		zap.String("model", cfg.Model),
		zap.String("content_source", source))

	raw, err := r.Extractor.Extract(ctx, cfg, content, in.Prompt, in.Schema)
	if err != nil {
		return model.ExtractionOutcome{Enabled: true, Success: false, Error: err.Error()}
	}

	parsed, err := llm.ParseJSON(raw)
	if err != nil {
		// Keep the unparseable output inspectable.
		return model.ExtractionOutcome{
			Enabled: true,
			Success: false,
			Error:   err.Error(),
			Data:    map[string]any{"raw_output": raw},
		}
	}

	normalized, err := NormalizeToSchema(unwrapList(parsed), in.Schema)
	if err != nil {
		return model.ExtractionOutcome{Enabled: true, Success: false, Error: err.Error()}
	}

	return successOutcome(normalized, false)
}

// unwrapList resolves the extraction capability's two result shapes once:
// a JSON object passes through, a list of objects yields its first object.
func unwrapList(parsed any) any {
	list, ok := parsed.([]any)
	if !ok {
		return parsed
	}
	for _, item := range list {
		if obj, ok := item.(map[string]any); ok {
			return obj
		}
	}
	return parsed
}

func successOutcome(data map[string]any, fallbackUsed bool) model.ExtractionOutcome {
	size := 0
	if encoded, err := json.Marshal(data); err == nil {
		size = len(encoded)
	}
	return model.ExtractionOutcome{
		Enabled:         true,
		Success:         true,
		OutputSizeBytes: &size,
		FallbackUsed:    fallbackUsed,
		Data:            data,
	}
}
