package objstore

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ResourceType names the per-run subdirectory a stored object belongs
// to. The bucket layout is {YYYY-MM-DD}/{run_id}/{resource_type}/{filename}.
type ResourceType string

const (
	ResourceMarkdown    ResourceType = "markdown"
	ResourceJSON        ResourceType = "json"
	ResourceImages      ResourceType = "images"
	ResourceAttachments ResourceType = "attachments"
	ResourceLogs        ResourceType = "logs"
)

// RunRoot returns the object prefix shared by everything a run stores:
// the run's start date (UTC) followed by the run ID.
func RunRoot(day time.Time, runID uuid.UUID) string {
	return fmt.Sprintf("%s/%s", day.UTC().Format("2006-01-02"), runID)
}

// LogsRoot returns the prefix for a run's manifest and log objects.
func LogsRoot(day time.Time, runID uuid.UUID) string {
	return fmt.Sprintf("%s/%s", RunRoot(day, runID), ResourceLogs)
}

// ResourcePath builds the full object name for one stored file.
func ResourcePath(day time.Time, runID uuid.UUID, rt ResourceType, filename string) string {
	return fmt.Sprintf("%s/%s/%s", RunRoot(day, runID), rt, filename)
}

// Document renditions are named by document ID so re-crawled URLs
// overwrite their previous objects instead of accumulating copies.

func MarkdownFilename(docID uuid.UUID) string { return docID.String() + ".md" }

func JSONFilename(docID uuid.UUID) string { return docID.String() + ".json" }

func ScreenshotFilename(docID uuid.UUID) string { return docID.String() + "_screenshot.png" }

func PDFFilename(docID uuid.UUID) string { return docID.String() + ".pdf" }

// Well-known objects written under logs/ when a run finishes.
const (
	ManifestFilename      = "run_manifest.json"
	ResourceIndexFilename = "resource_index.json"
	ErrorLogFilename      = "error_log.json"
)
