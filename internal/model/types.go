package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RunStatus represents the lifecycle state of a task run in the
// task_runs table. These values must match the text values stored in
// the database (task_runs.status). A pending row doubles as the work
// queue entry the worker claims.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// DownloadStatus records the outcome of fetching an auxiliary resource
// (image or attachment). Stored as text in document_images and
// document_attachments.
type DownloadStatus string

const (
	DownloadPending DownloadStatus = "pending"
	DownloadSuccess DownloadStatus = "success"
	DownloadFailed  DownloadStatus = "failed"
	DownloadSkipped DownloadStatus = "skipped"
)

// DownloadMethod records which path supplied the bytes for a resource:
// the crawl engine itself, or the worker's fallback HTTP download.
type DownloadMethod string

const (
	DownloadMethodEngine   DownloadMethod = "engine"
	DownloadMethodFallback DownloadMethod = "fallback"
)

// CrawlConfig holds the per-task crawl options stored in the
// crawl_tasks.crawl_config jsonb column. All fields are optional;
// pointer types distinguish "unset" from zero values where the
// distinction matters downstream.
type CrawlConfig struct {
	JSCode                 string   `json:"js_code,omitempty" yaml:"js_code,omitempty"`
	WaitFor                string   `json:"wait_for,omitempty" yaml:"wait_for,omitempty"`
	CSSSelector            string   `json:"css_selector,omitempty" yaml:"css_selector,omitempty"`
	ContentSelector        string   `json:"content_selector,omitempty" yaml:"content_selector,omitempty"`
	Screenshot             bool     `json:"screenshot,omitempty" yaml:"screenshot,omitempty"`
	PDF                    bool     `json:"pdf,omitempty" yaml:"pdf,omitempty"`
	ContentFilterThreshold *float64 `json:"content_filter_threshold,omitempty" yaml:"content_filter_threshold,omitempty"`
	Stage2FallbackEnabled  *bool    `json:"stage2_fallback_enabled,omitempty" yaml:"stage2_fallback_enabled,omitempty"`
	Verbose                bool     `json:"verbose,omitempty" yaml:"verbose,omitempty"`
}

// CrawlTask mirrors a crawl_tasks row: a named list of URLs plus crawl
// options and an optional LLM extraction step.
type CrawlTask struct {
	ID                      uuid.UUID
	Name                    string
	Description             string
	URLs                    []string
	CrawlConfig             *CrawlConfig
	LLMProvider             string
	LLMModel                string
	LLMParams               map[string]any
	PromptTemplate          string
	OutputSchema            map[string]any
	DeduplicationEnabled    bool
	OnlyAfterDate           *time.Time
	FallbackDownloadEnabled bool
	FallbackMaxSizeMB       int
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// TaskRun mirrors a task_runs row: one asynchronous execution of a
// task's URL list with aggregate statistics and storage pointers.
type TaskRun struct {
	ID               uuid.UUID
	TaskID           uuid.UUID
	Status           RunStatus
	StartedAt        *time.Time
	CompletedAt      *time.Time
	URLsCrawled      int
	URLsFailed       int
	DocumentsCreated int
	StoragePath      string
	ManifestPath     string
	LogsPath         string
	ErrorMessage     string
	CreatedAt        time.Time
}

// PageMetadata is the page-level metadata extracted during a crawl and
// stored in the documents.metadata jsonb column.
type PageMetadata struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Language    string `json:"language,omitempty"`
	Keywords    string `json:"keywords,omitempty"`
}

// ExtractionOutcome is the machine-readable status of the structured
// extraction stage for one URL. It is both the log source and the
// persisted diagnostic record (documents.stage2_status), so operators
// can distinguish "extraction was skipped" from "extraction ran and
// failed" from "extraction succeeded via the fallback path".
type ExtractionOutcome struct {
	Enabled         bool           `json:"enabled"`
	Success         bool           `json:"success"`
	Error           string         `json:"error,omitempty"`
	OutputSizeBytes *int           `json:"output_size_bytes,omitempty"`
	FallbackUsed    bool           `json:"fallback_used"`
	Data            map[string]any `json:"data,omitempty"`
}

// Document mirrors a documents row: the crawled content for one URL
// within one run, upserted on (run_id, source_url).
type Document struct {
	ID             uuid.UUID
	RunID          uuid.UUID
	SourceURL      string
	Title          string
	Content        string
	StructuredData json.RawMessage
	Metadata       PageMetadata
	Stage2Status   json.RawMessage
	MarkdownPath   string
	JSONPath       string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DocumentImage mirrors a document_images row, upserted on
// (document_id, original_url).
type DocumentImage struct {
	ID             uuid.UUID
	DocumentID     uuid.UUID
	OriginalURL    string
	StoragePath    string
	AltText        string
	SizeBytes      *int64
	MimeType       string
	DownloadStatus DownloadStatus
	DownloadMethod DownloadMethod
	CreatedAt      time.Time
}

// DocumentAttachment mirrors a document_attachments row, upserted on
// (document_id, original_url).
type DocumentAttachment struct {
	ID             uuid.UUID
	DocumentID     uuid.UUID
	OriginalURL    string
	StoragePath    string
	Filename       string
	SizeBytes      *int64
	MimeType       string
	DownloadStatus DownloadStatus
	DownloadMethod DownloadMethod
	CreatedAt      time.Time
}

// CrawledURL mirrors a crawled_urls row: the upsert-by-url registry
// used for cross-run deduplication.
type CrawledURL struct {
	ID             uuid.UUID
	URL            string
	TaskID         uuid.UUID
	FirstCrawledAt time.Time
	LastCrawledAt  time.Time
	CrawlCount     int
}
