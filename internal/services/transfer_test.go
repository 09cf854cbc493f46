package services

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"dredge/internal/model"
)

func TestParseTransferFormat(t *testing.T) {
	got, err := ParseTransferFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, got)

	got, err = ParseTransferFormat("json")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, got)

	got, err = ParseTransferFormat("yaml")
	require.NoError(t, err)
	assert.Equal(t, FormatYAML, got)

	_, err = ParseTransferFormat("toml")
	require.ErrorIs(t, err, ErrInvalid)
}

func sampleTransfer() TaskTransfer {
	dedup := true
	onlyAfter := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	return TaskTransfer{
		Name:           "news-crawl",
		Description:    "Nightly news crawl",
		URLs:           []string{"https://example.com/news"},
		CrawlConfig:    &model.CrawlConfig{CSSSelector: "article.post"},
		LLMProvider:    "openai",
		LLMModel:       "gpt-4",
		LLMParams:      map[string]any{"api_key": "sk-test"},
		PromptTemplate: "Extract the headline",
		OutputSchema: map[string]any{
			"properties": map[string]any{"title": map[string]any{"type": "string"}},
		},
		DeduplicationEnabled:    &dedup,
		OnlyAfterDate:           &onlyAfter,
		FallbackDownloadEnabled: true,
		FallbackMaxSizeMB:       5,
	}
}

func TestTaskTransferYAMLRoundTrip(t *testing.T) {
	original := sampleTransfer()

	encoded, err := yaml.Marshal(original)
	require.NoError(t, err)

	decoded, err := decodeTransfer(encoded, FormatYAML)
	require.NoError(t, err)

	assert.Equal(t, original.Name, decoded.Name)
	assert.Equal(t, original.URLs, decoded.URLs)
	assert.Equal(t, "article.post", decoded.CrawlConfig.CSSSelector)
	require.NotNil(t, decoded.OnlyAfterDate)
	assert.True(t, original.OnlyAfterDate.Equal(*decoded.OnlyAfterDate))
	assert.Equal(t, 5, decoded.FallbackMaxSizeMB)
}

func TestTaskTransferJSONRoundTrip(t *testing.T) {
	original := sampleTransfer()

	encoded, err := json.MarshalIndent(original, "", "  ")
	require.NoError(t, err)

	decoded, err := decodeTransfer(encoded, FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, original.Name, decoded.Name)
	assert.Equal(t, original.PromptTemplate, decoded.PromptTemplate)
	require.NotNil(t, decoded.DeduplicationEnabled)
	assert.True(t, *decoded.DeduplicationEnabled)
}

func TestTaskTransferInputCarriesSchemaReference(t *testing.T) {
	transfer := TaskTransfer{
		Name:         "ref-task",
		URLs:         []string{"https://example.com"},
		OutputSchema: "@schemas/news_article.json",
	}

	in, err := transfer.Input()
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage(`"@schemas/news_article.json"`), in.OutputSchema)
}

func TestTaskTransferInputNilSchema(t *testing.T) {
	transfer := TaskTransfer{Name: "plain", URLs: []string{"https://example.com"}}

	in, err := transfer.Input()
	require.NoError(t, err)
	assert.Nil(t, in.OutputSchema)
}

func TestDecodeTransferInvalidPayloads(t *testing.T) {
	_, err := decodeTransfer([]byte("{not json"), FormatJSON)
	require.ErrorIs(t, err, ErrInvalid)

	_, err = decodeTransfer([]byte("\t- broken: [yaml"), FormatYAML)
	require.ErrorIs(t, err, ErrInvalid)
}
