package pipeline

import (
	"context"
	"encoding/json"

	"dredge/internal/llm"
)

// Extractor is the external structured-extraction capability: given content
// and an instruction (plus an optional schema describing the desired
// shape), return the model's raw text response.
type Extractor interface {
	Extract(ctx context.Context, cfg llm.Config, content, instruction string, schema map[string]any) (string, error)
}

// LLMExtractor implements Extractor over the llm transport clients.
type LLMExtractor struct{}

func (LLMExtractor) Extract(ctx context.Context, cfg llm.Config, content, instruction string, schema map[string]any) (string, error) {
	client, err := llm.New(cfg)
	if err != nil {
		return "", err
	}

	system := "You extract structured data from web content. Respond with a single JSON object and no extra text."
	if schema != nil {
		if schemaJSON, err := json.Marshal(schema); err == nil {
			system += " The object must conform to this JSON Schema:\n" + string(schemaJSON)
		}
	}

	req := llm.Request{
		System: system,
		Prompt: instruction + "\n\nContent:\n" + content,
	}
	return client.Complete(ctx, req)
}
