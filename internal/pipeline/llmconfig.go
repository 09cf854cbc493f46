package pipeline

import (
	"strings"
	"time"

	"dredge/internal/llm"
)

// providerRoute fixes the model prefix and default endpoint for providers
// that speak the openai dialect from a regional base URL, plus deepseek
// which has its own prefix. A caller-supplied base_url always wins.
type providerRoute struct {
	prefix  string
	baseURL string
}

var providerRoutes = map[string]providerRoute{
	"qwen":     {prefix: "openai/", baseURL: "https://dashscope.aliyuncs.com/compatible-mode/v1"},
	"ernie":    {prefix: "openai/", baseURL: "https://aip.baidubce.com/rpc/2.0/ai_custom/v1/wenxinworkshop/chat"},
	"deepseek": {prefix: "deepseek/"},
}

const (
	defaultProvider = "openai"
	defaultModel    = "gpt-4"
)

// BuildLLMConfig translates a task's provider/model/params triple into the
// transport configuration. ok=false means no usable credential was found;
// the caller treats that as "skip extraction", not as an error. Malformed
// params never fail construction, they are simply ignored.
func BuildLLMConfig(provider, model string, params map[string]any, timeout time.Duration) (llm.Config, bool) {
	if provider == "" {
		provider = defaultProvider
	}
	if model == "" {
		model = defaultModel
	}

	apiKey, _ := paramString(params, "api_key")
	if apiKey == "" {
		apiKey, _ = paramString(params, "api_token")
	}
	if apiKey == "" {
		return llm.Config{}, false
	}

	baseURL, _ := paramString(params, "base_url")

	qualified := model
	if route, ok := providerRoutes[strings.ToLower(provider)]; ok {
		if !strings.Contains(model, "/") {
			qualified = route.prefix + model
		}
		if baseURL == "" {
			baseURL = route.baseURL
		}
	} else if !strings.Contains(model, "/") {
		qualified = provider + "/" + model
	}

	cfg := llm.Config{
		Model:            qualified,
		APIKey:           apiKey,
		BaseURL:          baseURL,
		Temperature:      paramFloat(params, "temperature"),
		MaxTokens:        paramInt(params, "max_tokens"),
		TopP:             paramFloat(params, "top_p"),
		FrequencyPenalty: paramFloat(params, "frequency_penalty"),
		PresencePenalty:  paramFloat(params, "presence_penalty"),
		Stop:             paramStrings(params, "stop"),
		N:                paramInt(params, "n"),
		Timeout:          timeout,
	}
	return cfg, true
}

func paramString(params map[string]any, key string) (string, bool) {
	v, ok := params[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// paramFloat reads a numeric param. JSON numbers arrive as float64; int is
// accepted for values set programmatically.
func paramFloat(params map[string]any, key string) *float64 {
	v, ok := params[key]
	if !ok {
		return nil
	}
	switch n := v.(type) {
	case float64:
		return &n
	case int:
		f := float64(n)
		return &f
	default:
		return nil
	}
}

func paramInt(params map[string]any, key string) *int {
	v, ok := params[key]
	if !ok {
		return nil
	}
	switch n := v.(type) {
	case float64:
		i := int(n)
		return &i
	case int:
		i := n
		return &i
	default:
		return nil
	}
}

// paramStrings reads a stop-sequence param given either as a single string
// or a list of strings.
func paramStrings(params map[string]any, key string) []string {
	v, ok := params[key]
	if !ok {
		return nil
	}
	switch s := v.(type) {
	case string:
		if s == "" {
			return nil
		}
		return []string{s}
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if str, ok := item.(string); ok && str != "" {
				out = append(out, str)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	case []string:
		return s
	default:
		return nil
	}
}
