package http

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"dredge/internal/model"
	"dredge/internal/services"
)

// TaskRequest is the create/update payload. Pointer fields distinguish
// "omitted" from zero values so PUT can apply partial updates.
type TaskRequest struct {
	Name                    *string            `json:"name,omitempty"`
	Description             *string            `json:"description,omitempty"`
	URLs                    []string           `json:"urls,omitempty"`
	CrawlConfig             *model.CrawlConfig `json:"crawl_config,omitempty"`
	LLMProvider             *string            `json:"llm_provider,omitempty"`
	LLMModel                *string            `json:"llm_model,omitempty"`
	LLMParams               map[string]any     `json:"llm_params,omitempty"`
	PromptTemplate          *string            `json:"prompt_template,omitempty"`
	OutputSchema            json.RawMessage    `json:"output_schema,omitempty"`
	DeduplicationEnabled    *bool              `json:"deduplication_enabled,omitempty"`
	OnlyAfterDate           *time.Time         `json:"only_after_date,omitempty"`
	FallbackDownloadEnabled *bool              `json:"fallback_download_enabled,omitempty"`
	FallbackMaxSizeMB       *int               `json:"fallback_max_size_mb,omitempty"`
}

type TaskItem struct {
	ID                      uuid.UUID          `json:"id"`
	Name                    string             `json:"name"`
	Description             string             `json:"description,omitempty"`
	URLs                    []string           `json:"urls"`
	CrawlConfig             *model.CrawlConfig `json:"crawl_config,omitempty"`
	LLMProvider             string             `json:"llm_provider,omitempty"`
	LLMModel                string             `json:"llm_model,omitempty"`
	LLMParams               map[string]any     `json:"llm_params,omitempty"`
	PromptTemplate          string             `json:"prompt_template,omitempty"`
	OutputSchema            map[string]any     `json:"output_schema,omitempty"`
	DeduplicationEnabled    bool               `json:"deduplication_enabled"`
	OnlyAfterDate           *time.Time         `json:"only_after_date,omitempty"`
	FallbackDownloadEnabled bool               `json:"fallback_download_enabled"`
	FallbackMaxSizeMB       int                `json:"fallback_max_size_mb"`
	CreatedAt               time.Time          `json:"created_at"`
	UpdatedAt               time.Time          `json:"updated_at"`
}

type RunItem struct {
	ID               uuid.UUID  `json:"id"`
	TaskID           uuid.UUID  `json:"task_id"`
	Status           string     `json:"status"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	URLsCrawled      int        `json:"urls_crawled"`
	URLsFailed       int        `json:"urls_failed"`
	DocumentsCreated int        `json:"documents_created"`
	StoragePath      string     `json:"storage_path,omitempty"`
	ManifestPath     string     `json:"manifest_path,omitempty"`
	LogsPath         string     `json:"logs_path,omitempty"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

type DocumentItem struct {
	ID             uuid.UUID          `json:"id"`
	RunID          uuid.UUID          `json:"run_id"`
	SourceURL      string             `json:"source_url"`
	Title          string             `json:"title,omitempty"`
	Content        string             `json:"content,omitempty"`
	StructuredData json.RawMessage    `json:"structured_data,omitempty"`
	Metadata       model.PageMetadata `json:"metadata"`
	Stage2Status   json.RawMessage    `json:"stage2_status,omitempty"`
	MarkdownPath   string             `json:"markdown_path,omitempty"`
	JSONPath       string             `json:"json_path,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

type ImageItem struct {
	ID             uuid.UUID `json:"id"`
	DocumentID     uuid.UUID `json:"document_id"`
	OriginalURL    string    `json:"original_url"`
	StoragePath    string    `json:"storage_path,omitempty"`
	AltText        string    `json:"alt_text,omitempty"`
	SizeBytes      *int64    `json:"size_bytes,omitempty"`
	MimeType       string    `json:"mime_type,omitempty"`
	DownloadStatus string    `json:"download_status"`
	DownloadMethod string    `json:"download_method,omitempty"`
}

type AttachmentItem struct {
	ID             uuid.UUID `json:"id"`
	DocumentID     uuid.UUID `json:"document_id"`
	OriginalURL    string    `json:"original_url"`
	StoragePath    string    `json:"storage_path,omitempty"`
	Filename       string    `json:"filename,omitempty"`
	SizeBytes      *int64    `json:"size_bytes,omitempty"`
	MimeType       string    `json:"mime_type,omitempty"`
	DownloadStatus string    `json:"download_status"`
	DownloadMethod string    `json:"download_method,omitempty"`
}

// ErrorResponse is the error envelope shared by every endpoint.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error"`
}

type TaskResponse struct {
	Success bool      `json:"success"`
	Task    *TaskItem `json:"task,omitempty"`
}

type ListTasksResponse struct {
	Success bool       `json:"success"`
	Tasks   []TaskItem `json:"tasks"`
}

type RunResponse struct {
	Success bool     `json:"success"`
	Run     *RunItem `json:"run,omitempty"`
	Message string   `json:"message,omitempty"`
}

type ListRunsResponse struct {
	Success bool      `json:"success"`
	Runs    []RunItem `json:"runs"`
}

type RunResultResponse struct {
	Success     bool             `json:"success"`
	Run         *RunItem         `json:"run,omitempty"`
	Documents   []DocumentItem   `json:"documents"`
	Images      []ImageItem      `json:"images"`
	Attachments []AttachmentItem `json:"attachments"`
}

type RunLogsResponse struct {
	Success     bool   `json:"success"`
	RunID       string `json:"run_id"`
	StoragePath string `json:"storage_path,omitempty"`
	LogsPath    string `json:"logs_path"`
	ManifestURL string `json:"manifest_url,omitempty"`
	ErrorLogURL string `json:"error_log_url,omitempty"`
	Message     string `json:"message,omitempty"`
}

func taskItem(t *model.CrawlTask) *TaskItem {
	return &TaskItem{
		ID:                      t.ID,
		Name:                    t.Name,
		Description:             t.Description,
		URLs:                    t.URLs,
		CrawlConfig:             t.CrawlConfig,
		LLMProvider:             t.LLMProvider,
		LLMModel:                t.LLMModel,
		LLMParams:               t.LLMParams,
		PromptTemplate:          t.PromptTemplate,
		OutputSchema:            t.OutputSchema,
		DeduplicationEnabled:    t.DeduplicationEnabled,
		OnlyAfterDate:           t.OnlyAfterDate,
		FallbackDownloadEnabled: t.FallbackDownloadEnabled,
		FallbackMaxSizeMB:       t.FallbackMaxSizeMB,
		CreatedAt:               t.CreatedAt,
		UpdatedAt:               t.UpdatedAt,
	}
}

func runItem(r *model.TaskRun) *RunItem {
	return &RunItem{
		ID:               r.ID,
		TaskID:           r.TaskID,
		Status:           string(r.Status),
		StartedAt:        r.StartedAt,
		CompletedAt:      r.CompletedAt,
		URLsCrawled:      r.URLsCrawled,
		URLsFailed:       r.URLsFailed,
		DocumentsCreated: r.DocumentsCreated,
		StoragePath:      r.StoragePath,
		ManifestPath:     r.ManifestPath,
		LogsPath:         r.LogsPath,
		ErrorMessage:     r.ErrorMessage,
		CreatedAt:        r.CreatedAt,
	}
}

func documentItem(d model.Document) DocumentItem {
	return DocumentItem{
		ID:             d.ID,
		RunID:          d.RunID,
		SourceURL:      d.SourceURL,
		Title:          d.Title,
		Content:        d.Content,
		StructuredData: d.StructuredData,
		Metadata:       d.Metadata,
		Stage2Status:   d.Stage2Status,
		MarkdownPath:   d.MarkdownPath,
		JSONPath:       d.JSONPath,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

func imageItem(img model.DocumentImage) ImageItem {
	return ImageItem{
		ID:             img.ID,
		DocumentID:     img.DocumentID,
		OriginalURL:    img.OriginalURL,
		StoragePath:    img.StoragePath,
		AltText:        img.AltText,
		SizeBytes:      img.SizeBytes,
		MimeType:       img.MimeType,
		DownloadStatus: string(img.DownloadStatus),
		DownloadMethod: string(img.DownloadMethod),
	}
}

func attachmentItem(att model.DocumentAttachment) AttachmentItem {
	return AttachmentItem{
		ID:             att.ID,
		DocumentID:     att.DocumentID,
		OriginalURL:    att.OriginalURL,
		StoragePath:    att.StoragePath,
		Filename:       att.Filename,
		SizeBytes:      att.SizeBytes,
		MimeType:       att.MimeType,
		DownloadStatus: string(att.DownloadStatus),
		DownloadMethod: string(att.DownloadMethod),
	}
}

// taskInput converts a request payload for create, where omitted
// optional fields fall back to their zero values.
func taskInput(req TaskRequest) services.TaskInput {
	in := services.TaskInput{
		URLs:                 req.URLs,
		CrawlConfig:          req.CrawlConfig,
		LLMParams:            req.LLMParams,
		OutputSchema:         req.OutputSchema,
		DeduplicationEnabled: req.DeduplicationEnabled,
		OnlyAfterDate:        req.OnlyAfterDate,
	}
	if req.Name != nil {
		in.Name = *req.Name
	}
	if req.Description != nil {
		in.Description = *req.Description
	}
	if req.LLMProvider != nil {
		in.LLMProvider = *req.LLMProvider
	}
	if req.LLMModel != nil {
		in.LLMModel = *req.LLMModel
	}
	if req.PromptTemplate != nil {
		in.PromptTemplate = *req.PromptTemplate
	}
	if req.FallbackDownloadEnabled != nil {
		in.FallbackDownloadEnabled = *req.FallbackDownloadEnabled
	}
	if req.FallbackMaxSizeMB != nil {
		in.FallbackMaxSizeMB = *req.FallbackMaxSizeMB
	}
	return in
}

func taskUpdate(req TaskRequest) services.TaskUpdate {
	return services.TaskUpdate{
		Name:                    req.Name,
		Description:             req.Description,
		URLs:                    req.URLs,
		CrawlConfig:             req.CrawlConfig,
		LLMProvider:             req.LLMProvider,
		LLMModel:                req.LLMModel,
		LLMParams:               req.LLMParams,
		PromptTemplate:          req.PromptTemplate,
		OutputSchema:            req.OutputSchema,
		DeduplicationEnabled:    req.DeduplicationEnabled,
		OnlyAfterDate:           req.OnlyAfterDate,
		FallbackDownloadEnabled: req.FallbackDownloadEnabled,
		FallbackMaxSizeMB:       req.FallbackMaxSizeMB,
	}
}
