package worker

import (
	"time"

	"github.com/google/uuid"

	"dredge/internal/model"
)

// RunManifest summarizes a finished run. It is written to
// logs/run_manifest.json and presigned through the logs endpoint.
type RunManifest struct {
	RunID            uuid.UUID      `json:"run_id"`
	TaskID           uuid.UUID      `json:"task_id"`
	TaskName         string         `json:"task_name"`
	StartedAt        time.Time      `json:"started_at"`
	URLsCrawled      int            `json:"urls_crawled"`
	URLsFailed       int            `json:"urls_failed"`
	DocumentsCreated int            `json:"documents_created"`
	Configuration    ManifestConfig `json:"configuration"`
}

// ManifestConfig echoes the task settings a run executed with, so the
// manifest stays interpretable after the task is edited or deleted.
type ManifestConfig struct {
	URLs                 []string `json:"urls"`
	DeduplicationEnabled bool     `json:"deduplication_enabled"`
	LLMProvider          string   `json:"llm_provider,omitempty"`
	LLMModel             string   `json:"llm_model,omitempty"`
}

// ResourceIndex lists everything a run stored, written to
// logs/resource_index.json.
type ResourceIndex struct {
	RunID       uuid.UUID           `json:"run_id"`
	GeneratedAt time.Time           `json:"generated_at"`
	Documents   []IndexedDocument   `json:"documents"`
	Images      []IndexedImage      `json:"images"`
	Attachments []IndexedAttachment `json:"attachments"`
}

type IndexedDocument struct {
	ID           uuid.UUID `json:"id"`
	SourceURL    string    `json:"source_url"`
	Title        string    `json:"title,omitempty"`
	MarkdownPath string    `json:"markdown_path,omitempty"`
	JSONPath     string    `json:"json_path,omitempty"`
}

type IndexedImage struct {
	ID             uuid.UUID `json:"id"`
	OriginalURL    string    `json:"original_url"`
	StoragePath    string    `json:"storage_path,omitempty"`
	DownloadStatus string    `json:"download_status"`
}

type IndexedAttachment struct {
	ID             uuid.UUID `json:"id"`
	OriginalURL    string    `json:"original_url"`
	StoragePath    string    `json:"storage_path,omitempty"`
	DownloadStatus string    `json:"download_status"`
}

// ErrorLog records the URLs a run could not process, written to
// logs/error_log.json only when at least one URL failed.
type ErrorLog struct {
	RunID       uuid.UUID  `json:"run_id"`
	GeneratedAt time.Time  `json:"generated_at"`
	Errors      []URLError `json:"errors"`
}

type URLError struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

func buildManifest(run model.TaskRun, task *model.CrawlTask, crawled, failed, documents int) RunManifest {
	started := run.CreatedAt
	if run.StartedAt != nil {
		started = *run.StartedAt
	}
	return RunManifest{
		RunID:            run.ID,
		TaskID:           task.ID,
		TaskName:         task.Name,
		StartedAt:        started.UTC(),
		URLsCrawled:      crawled,
		URLsFailed:       failed,
		DocumentsCreated: documents,
		Configuration: ManifestConfig{
			URLs:                 task.URLs,
			DeduplicationEnabled: task.DeduplicationEnabled,
			LLMProvider:          task.LLMProvider,
			LLMModel:             task.LLMModel,
		},
	}
}

func buildResourceIndex(runID uuid.UUID, docs []model.Document, images []model.DocumentImage, atts []model.DocumentAttachment) ResourceIndex {
	idx := ResourceIndex{
		RunID:       runID,
		GeneratedAt: time.Now().UTC(),
		Documents:   make([]IndexedDocument, 0, len(docs)),
		Images:      make([]IndexedImage, 0, len(images)),
		Attachments: make([]IndexedAttachment, 0, len(atts)),
	}
	for _, d := range docs {
		idx.Documents = append(idx.Documents, IndexedDocument{
			ID:           d.ID,
			SourceURL:    d.SourceURL,
			Title:        d.Title,
			MarkdownPath: d.MarkdownPath,
			JSONPath:     d.JSONPath,
		})
	}
	for _, img := range images {
		idx.Images = append(idx.Images, IndexedImage{
			ID:             img.ID,
			OriginalURL:    img.OriginalURL,
			StoragePath:    img.StoragePath,
			DownloadStatus: string(img.DownloadStatus),
		})
	}
	for _, att := range atts {
		idx.Attachments = append(idx.Attachments, IndexedAttachment{
			ID:             att.ID,
			OriginalURL:    att.OriginalURL,
			StoragePath:    att.StoragePath,
			DownloadStatus: string(att.DownloadStatus),
		})
	}
	return idx
}

func buildErrorLog(runID uuid.UUID, failures []URLError) ErrorLog {
	if failures == nil {
		failures = []URLError{}
	}
	return ErrorLog{
		RunID:       runID,
		GeneratedAt: time.Now().UTC(),
		Errors:      failures,
	}
}
