// Package services holds the business operations between the HTTP layer
// and the store: task CRUD with validation, run lifecycle and result
// assembly, task import/export, the defaults merge applied when a run
// materializes its task, and startup seeding.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"dredge/internal/model"
	"dredge/internal/store"
	"dredge/internal/templates"
)

// ErrInvalid marks request-shape problems; the HTTP layer maps it to 400.
var ErrInvalid = errors.New("invalid request")

// ErrNotFound marks lookups of absent entities; the HTTP layer maps it
// to 404.
var ErrNotFound = errors.New("not found")

const defaultFallbackMaxSizeMB = 10

// TaskInput is the payload for creating a task. OutputSchema arrives as
// raw JSON so it can carry either an inline schema object or an
// @schemas/ reference; references are resolved here, at admission,
// and the task always stores the resolved object.
type TaskInput struct {
	Name                    string
	Description             string
	URLs                    []string
	CrawlConfig             *model.CrawlConfig
	LLMProvider             string
	LLMModel                string
	LLMParams               map[string]any
	PromptTemplate          string
	OutputSchema            json.RawMessage
	DeduplicationEnabled    *bool
	OnlyAfterDate           *time.Time
	FallbackDownloadEnabled bool
	FallbackMaxSizeMB       int
}

// TaskUpdate carries a partial update; nil fields are left unchanged.
type TaskUpdate struct {
	Name                    *string
	Description             *string
	URLs                    []string
	CrawlConfig             *model.CrawlConfig
	LLMProvider             *string
	LLMModel                *string
	LLMParams               map[string]any
	PromptTemplate          *string
	OutputSchema            json.RawMessage
	DeduplicationEnabled    *bool
	OnlyAfterDate           *time.Time
	FallbackDownloadEnabled *bool
	FallbackMaxSizeMB       *int
}

// TaskService encapsulates task persistence and validation so HTTP
// handlers do not depend directly on the store implementation.
type TaskService interface {
	Create(ctx context.Context, in TaskInput) (*model.CrawlTask, error)
	Get(ctx context.Context, id uuid.UUID) (*model.CrawlTask, error)
	List(ctx context.Context, limit, offset int) ([]model.CrawlTask, error)
	Update(ctx context.Context, id uuid.UUID, upd TaskUpdate) (*model.CrawlTask, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type taskService struct {
	st       *store.Store
	resolver *templates.Resolver
}

func NewTaskService(st *store.Store, resolver *templates.Resolver) TaskService {
	return &taskService{st: st, resolver: resolver}
}

func (s *taskService) Create(ctx context.Context, in TaskInput) (*model.CrawlTask, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, eris.Wrap(ErrInvalid, "name is required")
	}
	if err := validateURLs(in.URLs); err != nil {
		return nil, err
	}
	if err := validatePromptRef(in.PromptTemplate); err != nil {
		return nil, err
	}
	schema, err := s.resolver.ResolveSchema(in.OutputSchema)
	if err != nil {
		return nil, eris.Wrap(ErrInvalid, err.Error())
	}

	task := model.CrawlTask{
		Name:                    name,
		Description:             in.Description,
		URLs:                    in.URLs,
		CrawlConfig:             in.CrawlConfig,
		LLMProvider:             in.LLMProvider,
		LLMModel:                in.LLMModel,
		LLMParams:               in.LLMParams,
		PromptTemplate:          in.PromptTemplate,
		OutputSchema:            schema,
		DeduplicationEnabled:    true,
		OnlyAfterDate:           in.OnlyAfterDate,
		FallbackDownloadEnabled: in.FallbackDownloadEnabled,
		FallbackMaxSizeMB:       in.FallbackMaxSizeMB,
	}
	if in.DeduplicationEnabled != nil {
		task.DeduplicationEnabled = *in.DeduplicationEnabled
	}
	if task.FallbackMaxSizeMB <= 0 {
		task.FallbackMaxSizeMB = defaultFallbackMaxSizeMB
	}

	created, err := s.st.CreateTask(ctx, task)
	if err != nil {
		return nil, err
	}
	zap.L().Info("task created",
		zap.String("task_id", created.ID.String()),
		zap.String("name", created.Name),
		zap.Int("urls", len(created.URLs)))
	return created, nil
}

func (s *taskService) Get(ctx context.Context, id uuid.UUID) (*model.CrawlTask, error) {
	return s.st.GetTask(ctx, id)
}

func (s *taskService) List(ctx context.Context, limit, offset int) ([]model.CrawlTask, error) {
	return s.st.ListTasks(ctx, limit, offset)
}

func (s *taskService) Update(ctx context.Context, id uuid.UUID, upd TaskUpdate) (*model.CrawlTask, error) {
	task, err := s.st.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, eris.Wrap(ErrNotFound, "task")
	}

	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, eris.Wrap(ErrInvalid, "name is required")
		}
		task.Name = name
	}
	if upd.Description != nil {
		task.Description = *upd.Description
	}
	if upd.URLs != nil {
		if err := validateURLs(upd.URLs); err != nil {
			return nil, err
		}
		task.URLs = upd.URLs
	}
	if upd.CrawlConfig != nil {
		task.CrawlConfig = upd.CrawlConfig
	}
	if upd.LLMProvider != nil {
		task.LLMProvider = *upd.LLMProvider
	}
	if upd.LLMModel != nil {
		task.LLMModel = *upd.LLMModel
	}
	if upd.LLMParams != nil {
		task.LLMParams = upd.LLMParams
	}
	if upd.PromptTemplate != nil {
		if err := validatePromptRef(*upd.PromptTemplate); err != nil {
			return nil, err
		}
		task.PromptTemplate = *upd.PromptTemplate
	}
	if upd.OutputSchema != nil {
		schema, err := s.resolver.ResolveSchema(upd.OutputSchema)
		if err != nil {
			return nil, eris.Wrap(ErrInvalid, err.Error())
		}
		task.OutputSchema = schema
	}
	if upd.DeduplicationEnabled != nil {
		task.DeduplicationEnabled = *upd.DeduplicationEnabled
	}
	if upd.OnlyAfterDate != nil {
		task.OnlyAfterDate = upd.OnlyAfterDate
	}
	if upd.FallbackDownloadEnabled != nil {
		task.FallbackDownloadEnabled = *upd.FallbackDownloadEnabled
	}
	if upd.FallbackMaxSizeMB != nil && *upd.FallbackMaxSizeMB > 0 {
		task.FallbackMaxSizeMB = *upd.FallbackMaxSizeMB
	}

	if err := s.st.UpdateTask(ctx, task); err != nil {
		return nil, err
	}
	zap.L().Info("task updated", zap.String("task_id", task.ID.String()))
	return task, nil
}

func (s *taskService) Delete(ctx context.Context, id uuid.UUID) error {
	task, err := s.st.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if task == nil {
		return eris.Wrap(ErrNotFound, "task")
	}
	if err := s.st.DeleteTask(ctx, id); err != nil {
		return err
	}
	zap.L().Info("task deleted", zap.String("task_id", id.String()))
	return nil
}

func validateURLs(urls []string) error {
	if len(urls) == 0 {
		return eris.Wrap(ErrInvalid, "at least one url is required")
	}
	for _, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return eris.Wrapf(ErrInvalid, "malformed url %q", raw)
		}
	}
	return nil
}

// validatePromptRef rejects @-references that could never resolve. File
// existence is checked at run time, when the reference is read.
func validatePromptRef(prompt string) error {
	if strings.HasPrefix(prompt, "@") && !templates.IsPromptRef(prompt) {
		return eris.Wrapf(ErrInvalid, "invalid prompt reference %q", prompt)
	}
	return nil
}
