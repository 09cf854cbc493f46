package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"dredge/internal/llm"
	"dredge/internal/model"
)

// Fallback re-runs extraction directly against the cleaned HTML region.
// It applies only when the primary attempt did not succeed, fallback is not
// disabled, HTML content exists, and a transport config could be built; in
// every other case the primary outcome is returned unchanged. A fallback
// failure keeps the outcome failed with both causes combined.
func (r Stage2Runner) Fallback(ctx context.Context, in Stage2Input, primary model.ExtractionOutcome) model.ExtractionOutcome {
	if primary.Success || !primary.Enabled {
		return primary
	}
	if in.Content.FitHTML == "" {
		return primary
	}
	cfg, ok := BuildLLMConfig(in.Provider, in.Model, in.Params, r.Timeout)
	if !ok {
		return primary
	}

	zap.L().Debug("stage 2 fallback extraction",
		zap.String("url", in.URL),
		zap.String("model", cfg.Model),
		zap.String("primary_error", primary.Error))

	raw, err := r.Extractor.Extract(ctx, cfg, in.Content.FitHTML, in.Prompt, in.Schema)
	if err != nil {
		return combineFailure(primary, err.Error())
	}

	parsed, err := llm.ParseJSON(raw)
	if err != nil {
		return combineFailure(primary, err.Error())
	}

	normalized, err := NormalizeToSchema(unwrapList(parsed), in.Schema)
	if err != nil {
		return combineFailure(primary, err.Error())
	}

	return successOutcome(normalized, true)
}

func combineFailure(primary model.ExtractionOutcome, fallbackErr string) model.ExtractionOutcome {
	primary.Error = fmt.Sprintf("%s, fallback error: %s", primary.Error, fallbackErr)
	return primary
}
