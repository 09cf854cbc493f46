package worker

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dredge/internal/model"
)

func TestBuildManifest(t *testing.T) {
	task := testTask("https://example.com/a", "https://example.com/b")
	task.DeduplicationEnabled = true
	task.LLMProvider = "openai"
	task.LLMModel = "gpt-4"

	run := testRun(task.ID)
	m := buildManifest(run, task, 2, 1, 2)

	assert.Equal(t, run.ID, m.RunID)
	assert.Equal(t, task.ID, m.TaskID)
	assert.Equal(t, "news-crawl", m.TaskName)
	assert.Equal(t, *run.StartedAt, m.StartedAt)
	assert.Equal(t, 2, m.URLsCrawled)
	assert.Equal(t, 1, m.URLsFailed)
	assert.Equal(t, 2, m.DocumentsCreated)
	assert.Equal(t, task.URLs, m.Configuration.URLs)
	assert.True(t, m.Configuration.DeduplicationEnabled)
	assert.Equal(t, "openai", m.Configuration.LLMProvider)
	assert.Equal(t, "gpt-4", m.Configuration.LLMModel)
}

func TestBuildManifestFallsBackToCreatedAt(t *testing.T) {
	task := testTask("https://example.com/a")
	run := testRun(task.ID)
	run.StartedAt = nil
	run.CreatedAt = time.Date(2025, 6, 2, 8, 30, 0, 0, time.UTC)

	m := buildManifest(run, task, 0, 1, 0)
	assert.Equal(t, run.CreatedAt, m.StartedAt)
}

func TestBuildResourceIndexMapsRows(t *testing.T) {
	runID := uuid.New()
	docs := []model.Document{{
		ID:           uuid.New(),
		RunID:        runID,
		SourceURL:    "https://example.com/release",
		Title:        "Release",
		MarkdownPath: "2025-06-01/run/markdown/doc.md",
	}}
	size := int64(512)
	images := []model.DocumentImage{{
		ID:             uuid.New(),
		OriginalURL:    "https://example.com/logo.png",
		StoragePath:    "2025-06-01/run/images/logo.png",
		SizeBytes:      &size,
		DownloadStatus: model.DownloadSuccess,
	}}
	atts := []model.DocumentAttachment{{
		ID:             uuid.New(),
		OriginalURL:    "https://example.com/report.pdf",
		DownloadStatus: model.DownloadSkipped,
	}}

	idx := buildResourceIndex(runID, docs, images, atts)

	assert.Equal(t, runID, idx.RunID)
	assert.WithinDuration(t, time.Now().UTC(), idx.GeneratedAt, time.Minute)

	require.Len(t, idx.Documents, 1)
	assert.Equal(t, docs[0].ID, idx.Documents[0].ID)
	assert.Equal(t, "https://example.com/release", idx.Documents[0].SourceURL)
	assert.Equal(t, "Release", idx.Documents[0].Title)
	assert.Equal(t, "2025-06-01/run/markdown/doc.md", idx.Documents[0].MarkdownPath)
	assert.Empty(t, idx.Documents[0].JSONPath)

	require.Len(t, idx.Images, 1)
	assert.Equal(t, "success", idx.Images[0].DownloadStatus)
	assert.Equal(t, "2025-06-01/run/images/logo.png", idx.Images[0].StoragePath)

	require.Len(t, idx.Attachments, 1)
	assert.Equal(t, "skipped", idx.Attachments[0].DownloadStatus)
	assert.Empty(t, idx.Attachments[0].StoragePath)
}

func TestBuildResourceIndexEmitsEmptyArrays(t *testing.T) {
	idx := buildResourceIndex(uuid.New(), nil, nil, nil)

	data, err := json.Marshal(idx)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"documents":[]`)
	assert.Contains(t, string(data), `"images":[]`)
	assert.Contains(t, string(data), `"attachments":[]`)
}

func TestBuildErrorLogNeverNil(t *testing.T) {
	log := buildErrorLog(uuid.New(), nil)
	require.NotNil(t, log.Errors)
	assert.Empty(t, log.Errors)

	log = buildErrorLog(uuid.New(), []URLError{{URL: "https://example.com/x", Error: "Crawl failed: timeout"}})
	require.Len(t, log.Errors, 1)
	assert.Equal(t, "https://example.com/x", log.Errors[0].URL)
}
