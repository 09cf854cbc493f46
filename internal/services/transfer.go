package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"dredge/internal/model"
	"dredge/internal/store"
)

// TransferFormat selects the import/export encoding.
type TransferFormat string

const (
	FormatJSON TransferFormat = "json"
	FormatYAML TransferFormat = "yaml"
)

// ParseTransferFormat validates a format query parameter; empty means JSON.
func ParseTransferFormat(s string) (TransferFormat, error) {
	switch s {
	case "", "json":
		return FormatJSON, nil
	case "yaml":
		return FormatYAML, nil
	default:
		return "", eris.Wrap(ErrInvalid, "format must be 'json' or 'yaml'")
	}
}

// TaskTransfer is the portable task definition written by export and
// accepted by import. OutputSchema is typed loosely so an import file can
// carry either an inline schema object or an @schemas/ reference string.
type TaskTransfer struct {
	Name                    string             `json:"name" yaml:"name"`
	Description             string             `json:"description,omitempty" yaml:"description,omitempty"`
	URLs                    []string           `json:"urls" yaml:"urls"`
	CrawlConfig             *model.CrawlConfig `json:"crawl_config,omitempty" yaml:"crawl_config,omitempty"`
	LLMProvider             string             `json:"llm_provider,omitempty" yaml:"llm_provider,omitempty"`
	LLMModel                string             `json:"llm_model,omitempty" yaml:"llm_model,omitempty"`
	LLMParams               map[string]any     `json:"llm_params,omitempty" yaml:"llm_params,omitempty"`
	PromptTemplate          string             `json:"prompt_template,omitempty" yaml:"prompt_template,omitempty"`
	OutputSchema            any                `json:"output_schema,omitempty" yaml:"output_schema,omitempty"`
	DeduplicationEnabled    *bool              `json:"deduplication_enabled,omitempty" yaml:"deduplication_enabled,omitempty"`
	OnlyAfterDate           *time.Time         `json:"only_after_date,omitempty" yaml:"only_after_date,omitempty"`
	FallbackDownloadEnabled bool               `json:"fallback_download_enabled,omitempty" yaml:"fallback_download_enabled,omitempty"`
	FallbackMaxSizeMB       int                `json:"fallback_max_size_mb,omitempty" yaml:"fallback_max_size_mb,omitempty"`
}

// Input converts the portable definition into a create payload. The loose
// schema value round-trips through JSON so admission-time resolution sees
// the same shapes the HTTP API does.
func (t TaskTransfer) Input() (TaskInput, error) {
	in := TaskInput{
		Name:                    t.Name,
		Description:             t.Description,
		URLs:                    t.URLs,
		CrawlConfig:             t.CrawlConfig,
		LLMProvider:             t.LLMProvider,
		LLMModel:                t.LLMModel,
		LLMParams:               t.LLMParams,
		PromptTemplate:          t.PromptTemplate,
		DeduplicationEnabled:    t.DeduplicationEnabled,
		OnlyAfterDate:           t.OnlyAfterDate,
		FallbackDownloadEnabled: t.FallbackDownloadEnabled,
		FallbackMaxSizeMB:       t.FallbackMaxSizeMB,
	}
	if t.OutputSchema != nil {
		raw, err := json.Marshal(t.OutputSchema)
		if err != nil {
			return TaskInput{}, eris.Wrap(ErrInvalid, "output_schema is not encodable")
		}
		in.OutputSchema = raw
	}
	return in, nil
}

// TransferService imports and exports portable task definitions.
type TransferService interface {
	Export(ctx context.Context, taskID uuid.UUID, format TransferFormat) ([]byte, error)
	Import(ctx context.Context, content []byte, format TransferFormat) (*model.CrawlTask, error)
}

type transferService struct {
	st    *store.Store
	tasks TaskService
}

func NewTransferService(st *store.Store, tasks TaskService) TransferService {
	return &transferService{st: st, tasks: tasks}
}

func (s *transferService) Export(ctx context.Context, taskID uuid.UUID, format TransferFormat) ([]byte, error) {
	task, err := s.st.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, eris.Wrap(ErrNotFound, "task")
	}

	dedup := task.DeduplicationEnabled
	transfer := TaskTransfer{
		Name:                    task.Name,
		Description:             task.Description,
		URLs:                    task.URLs,
		CrawlConfig:             task.CrawlConfig,
		LLMProvider:             task.LLMProvider,
		LLMModel:                task.LLMModel,
		LLMParams:               task.LLMParams,
		PromptTemplate:          task.PromptTemplate,
		DeduplicationEnabled:    &dedup,
		OnlyAfterDate:           task.OnlyAfterDate,
		FallbackDownloadEnabled: task.FallbackDownloadEnabled,
		FallbackMaxSizeMB:       task.FallbackMaxSizeMB,
	}
	if task.OutputSchema != nil {
		transfer.OutputSchema = task.OutputSchema
	}

	if format == FormatYAML {
		return yaml.Marshal(transfer)
	}
	return json.MarshalIndent(transfer, "", "  ")
}

func (s *transferService) Import(ctx context.Context, content []byte, format TransferFormat) (*model.CrawlTask, error) {
	transfer, err := decodeTransfer(content, format)
	if err != nil {
		return nil, err
	}
	in, err := transfer.Input()
	if err != nil {
		return nil, err
	}
	return s.tasks.Create(ctx, in)
}

func decodeTransfer(content []byte, format TransferFormat) (TaskTransfer, error) {
	var transfer TaskTransfer
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(content, &transfer); err != nil {
			return TaskTransfer{}, eris.Wrap(ErrInvalid, "invalid YAML task definition: "+err.Error())
		}
	default:
		if err := json.Unmarshal(content, &transfer); err != nil {
			return TaskTransfer{}, eris.Wrap(ErrInvalid, "invalid JSON task definition: "+err.Error())
		}
	}
	return transfer, nil
}
