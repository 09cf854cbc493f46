// Package llm provides the chat-completion transport behind structured
// extraction. Providers are selected by the qualified model name
// ("provider/model"); openai-compatible endpoints cover the regional
// providers that speak the same dialect at a different base URL.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// Config is the resolved transport configuration for one extraction call.
// Model is provider-qualified ("openai/gpt-4", "deepseek/deepseek-chat");
// sampling fields apply only when set.
type Config struct {
	Model            string
	APIKey           string
	BaseURL          string
	Temperature      *float64
	MaxTokens        *int
	TopP             *float64
	FrequencyPenalty *float64
	PresencePenalty  *float64
	Stop             []string
	N                *int
	Timeout          time.Duration
}

// Request is a single completion request: an optional system instruction
// plus the user prompt carrying instruction and content.
type Request struct {
	System string
	Prompt string
}

// Client executes one completion and returns the assistant text.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// New constructs a Client for the config's provider. Unknown providers are
// accepted when a base URL is supplied (treated as openai-compatible),
// otherwise rejected.
func New(cfg Config) (Client, error) {
	provider, model := splitModel(cfg.Model)

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := &http.Client{Timeout: timeout}

	switch provider {
	case "openai":
		return &openAIClient{cfg: cfg, model: model, baseURL: orDefault(cfg.BaseURL, "https://api.openai.com/v1"), http: httpClient}, nil
	case "deepseek":
		return &openAIClient{cfg: cfg, model: model, baseURL: orDefault(cfg.BaseURL, "https://api.deepseek.com"), http: httpClient}, nil
	case "anthropic":
		return &anthropicClient{cfg: cfg, model: model, http: httpClient}, nil
	case "google", "gemini":
		return &googleClient{cfg: cfg, model: model, http: httpClient}, nil
	default:
		if cfg.BaseURL != "" {
			return &openAIClient{cfg: cfg, model: model, baseURL: cfg.BaseURL, http: httpClient}, nil
		}
		return nil, fmt.Errorf("unsupported llm provider: %s", provider)
	}
}

// splitModel separates the provider prefix from the wire model name.
// Unqualified names default to openai.
func splitModel(qualified string) (provider, model string) {
	if i := strings.Index(qualified, "/"); i > 0 {
		return strings.ToLower(qualified[:i]), qualified[i+1:]
	}
	return "openai", qualified
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

// ParseJSON extracts the JSON value from completion text. It first tries
// the whole string, then the first balanced {...} block, then the first
// [...] block, tolerating fenced or chatty responses.
func ParseJSON(content string) (any, error) {
	var value any
	if err := json.Unmarshal([]byte(content), &value); err == nil {
		return value, nil
	}

	if start := strings.Index(content, "{"); start != -1 {
		if end := strings.LastIndex(content, "}"); end > start {
			if err := json.Unmarshal([]byte(content[start:end+1]), &value); err == nil {
				return value, nil
			}
		}
	}

	if start := strings.Index(content, "["); start != -1 {
		if end := strings.LastIndex(content, "]"); end > start {
			if err := json.Unmarshal([]byte(content[start:end+1]), &value); err == nil {
				return value, nil
			}
		}
	}

	return nil, errors.New("no JSON object found in content")
}

// openAIClient speaks OpenAI-compatible Chat Completions. It also serves
// deepseek, the regional openai-dialect providers, and any custom base URL.
type openAIClient struct {
	cfg     Config
	model   string
	baseURL string
	http    *http.Client
}

type openAIChatRequest struct {
	Model            string                `json:"model"`
	Messages         []openAIChatMessage   `json:"messages"`
	Temperature      float64               `json:"temperature"`
	MaxTokens        *int                  `json:"max_tokens,omitempty"`
	TopP             *float64              `json:"top_p,omitempty"`
	FrequencyPenalty *float64              `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64              `json:"presence_penalty,omitempty"`
	Stop             []string              `json:"stop,omitempty"`
	N                *int                  `json:"n,omitempty"`
	ResponseFormat   *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message openAIChatMessage `json:"message"`
	} `json:"choices"`
}

func (c *openAIClient) Complete(ctx context.Context, req Request) (string, error) {
	temperature := 0.0
	if c.cfg.Temperature != nil {
		temperature = *c.cfg.Temperature
	}

	messages := make([]openAIChatMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openAIChatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, openAIChatMessage{Role: "user", Content: req.Prompt})

	body := openAIChatRequest{
		Model:            c.model,
		Messages:         messages,
		Temperature:      temperature,
		MaxTokens:        c.cfg.MaxTokens,
		TopP:             c.cfg.TopP,
		FrequencyPenalty: c.cfg.FrequencyPenalty,
		PresencePenalty:  c.cfg.PresencePenalty,
		Stop:             c.cfg.Stop,
		N:                c.cfg.N,
		ResponseFormat:   &openAIResponseFormat{Type: "json_object"},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	endpoint := strings.TrimSuffix(c.baseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("chat completion failed with status %d", resp.StatusCode)
	}

	var parsed openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}

	return parsed.Choices[0].Message.Content, nil
}

// anthropicClient speaks Anthropic's Messages API.
type anthropicClient struct {
	cfg   Config
	model string
	http  *http.Client
}

type anthropicMessagesRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
	TopP        *float64           `json:"top_p,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string                 `json:"role"`
	Content []anthropicTextContent `json:"content"`
}

type anthropicTextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicMessagesResponse struct {
	Content []anthropicTextContent `json:"content"`
}

func (c *anthropicClient) Complete(ctx context.Context, req Request) (string, error) {
	maxTokens := 512
	if c.cfg.MaxTokens != nil {
		maxTokens = *c.cfg.MaxTokens
	}

	body := anthropicMessagesRequest{
		Model:       c.model,
		MaxTokens:   maxTokens,
		System:      req.System,
		Temperature: c.cfg.Temperature,
		TopP:        c.cfg.TopP,
		Messages: []anthropicMessage{
			{
				Role: "user",
				Content: []anthropicTextContent{
					{Type: "text", Text: req.Prompt},
				},
			},
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	endpoint := "https://api.anthropic.com/v1/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("anthropic messages request failed with status %d", resp.StatusCode)
	}

	var parsed anthropicMessagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	if len(parsed.Content) == 0 {
		return "", errors.New("anthropic messages returned no content")
	}

	return parsed.Content[0].Text, nil
}

// googleClient speaks Gemini's generateContent API.
type googleClient struct {
	cfg   Config
	model string
	http  *http.Client
}

type googleGenerateContentRequest struct {
	Contents         []googleContent         `json:"contents"`
	GenerationConfig *googleGenerationConfig `json:"generationConfig,omitempty"`
}

type googleGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
}

type googleContent struct {
	Parts []googlePart `json:"parts"`
}

type googlePart struct {
	Text string `json:"text,omitempty"`
}

type googleGenerateContentResponse struct {
	Candidates []struct {
		Content googleContent `json:"content"`
	} `json:"candidates"`
}

func (c *googleClient) Complete(ctx context.Context, req Request) (string, error) {
	text := req.Prompt
	if req.System != "" {
		text = req.System + "\n\n" + req.Prompt
	}

	body := googleGenerateContentRequest{
		Contents: []googleContent{
			{Parts: []googlePart{{Text: text}}},
		},
	}
	if c.cfg.Temperature != nil || c.cfg.TopP != nil || c.cfg.MaxTokens != nil {
		body.GenerationConfig = &googleGenerationConfig{
			Temperature:     c.cfg.Temperature,
			TopP:            c.cfg.TopP,
			MaxOutputTokens: c.cfg.MaxTokens,
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	base := "https://generativelanguage.googleapis.com/v1beta"
	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", base, c.model, url.QueryEscape(c.cfg.APIKey))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("google generateContent failed with status %d", resp.StatusCode)
	}

	var parsed googleGenerateContentResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("google generateContent returned no candidates")
	}

	var sb strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}
