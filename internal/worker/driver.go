package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"dredge/internal/config"
	"dredge/internal/engine"
	"dredge/internal/metrics"
	"dredge/internal/model"
	"dredge/internal/objstore"
	"dredge/internal/pipeline"
	"dredge/internal/services"
	"dredge/internal/store"
	"dredge/internal/templates"
)

const (
	defaultMaxConcurrentURLs = 3
	defaultDownloadTimeout   = 30 * time.Second
)

// runStore is the slice of the store a run touches.
type runStore interface {
	GetTask(ctx context.Context, id uuid.UUID) (*model.CrawlTask, error)
	IsURLCrawled(ctx context.Context, url string, taskID uuid.UUID, onlyAfter *time.Time) (bool, error)
	RegisterURL(ctx context.Context, url string, taskID uuid.UUID) (*model.CrawledURL, error)
	UpsertDocument(ctx context.Context, d model.Document) (*model.Document, error)
	SetDocumentStoragePaths(ctx context.Context, id uuid.UUID, markdownPath, jsonPath string) error
	UpsertImage(ctx context.Context, img model.DocumentImage) (*model.DocumentImage, error)
	UpsertAttachment(ctx context.Context, att model.DocumentAttachment) (*model.DocumentAttachment, error)
	ListDocumentsByRun(ctx context.Context, runID uuid.UUID) ([]model.Document, error)
	ListImagesByRun(ctx context.Context, runID uuid.UUID) ([]model.DocumentImage, error)
	ListAttachmentsByRun(ctx context.Context, runID uuid.UUID) ([]model.DocumentAttachment, error)
	CompleteRun(ctx context.Context, id uuid.UUID, urlsCrawled, urlsFailed, documentsCreated int, storagePath, manifestPath, logsPath string) error
	FailRun(ctx context.Context, id uuid.UUID, message string) error
}

// blobStore is the object-storage surface a run writes through.
type blobStore interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) (string, error)
	UploadJSON(ctx context.Context, path string, v any) (string, error)
}

// crawler runs one URL through the fetch, cleaning, and extraction
// pipeline.
type crawler interface {
	Crawl(ctx context.Context, req pipeline.CrawlRequest) *pipeline.CrawlResult
}

// newRunCrawler builds the pipeline for one run. The returned closer
// tears down the browser session when the run finishes. Swapped in
// tests.
var newRunCrawler = func(cfg *config.Config) (crawler, func() error) {
	eng := engine.New(cfg.Engine)
	llmTimeout := time.Duration(cfg.LLM.TimeoutMs) * time.Millisecond
	return pipeline.NewOrchestrator(eng, pipeline.LLMExtractor{}, cfg.Pipeline, llmTimeout), eng.Close
}

// Driver executes claimed task runs end to end. One Driver serves the
// whole process; each Execute call builds its own pipeline so browser
// sessions never outlive their run.
type Driver struct {
	st       runStore
	blobs    blobStore
	cfg      *config.Config
	defaults services.TaskDefaults
	resolver *templates.Resolver
	dl       *http.Client
}

func NewDriver(cfg *config.Config, st *store.Store, blobs *objstore.Client, defaults services.TaskDefaults, resolver *templates.Resolver) *Driver {
	timeout := time.Duration(cfg.Downloads.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = defaultDownloadTimeout
	}
	return &Driver{
		st:       st,
		blobs:    blobs,
		cfg:      cfg,
		defaults: defaults,
		resolver: resolver,
		dl:       &http.Client{Timeout: timeout},
	}
}

// runStats aggregates per-URL outcomes across the concurrent crawl
// goroutines. Read without the lock only after the errgroup returns.
type runStats struct {
	mu        sync.Mutex
	crawled   int
	failed    int
	documents int
	skipped   int
	failures  []URLError
}

func (s *runStats) success() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.crawled++
	s.documents++
}

func (s *runStats) fail(url, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed++
	s.failures = append(s.failures, URLError{URL: url, Error: message})
}

func (s *runStats) skip() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skipped++
}

// Execute drives one claimed run: materialize the effective task, crawl
// its URL list with bounded concurrency, and finalize statistics and
// manifests. Per-URL failures are recorded and never abort the run;
// failures at the run level (task gone, storage down) mark it failed.
func (d *Driver) Execute(ctx context.Context, run model.TaskRun) {
	if ms := d.cfg.Worker.RunTimeoutMs; ms > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(ms)*time.Millisecond)
		defer cancel()
	}
	log := zap.L().With(
		zap.String("run_id", run.ID.String()),
		zap.String("task_id", run.TaskID.String()))

	task, err := d.st.GetTask(ctx, run.TaskID)
	if err != nil {
		d.fail(log, run.ID, "load task: "+err.Error())
		return
	}
	if task == nil {
		d.fail(log, run.ID, fmt.Sprintf("task %s not found", run.TaskID))
		return
	}
	log = log.With(zap.String("task", task.Name))

	eff := services.MergeDefaults(task, d.defaults)
	prompt, err := d.resolver.ResolvePrompt(eff.Prompt)
	if err != nil {
		d.fail(log, run.ID, err.Error())
		return
	}
	eff.Prompt = prompt

	cr, closeCrawler := newRunCrawler(d.cfg)
	defer func() {
		if err := closeCrawler(); err != nil {
			log.Warn("crawler shutdown failed", zap.Error(err))
		}
	}()

	log.Info("run started", zap.Int("urls", len(task.URLs)))

	stats := &runStats{}
	var g errgroup.Group
	limit := d.cfg.Worker.MaxConcurrentURLs
	if limit <= 0 {
		limit = defaultMaxConcurrentURLs
	}
	g.SetLimit(limit)
	for _, rawURL := range task.URLs {
		rawURL := rawURL
		g.Go(func() error {
			d.crawlOne(ctx, cr, run, task, eff, rawURL, stats)
			return nil
		})
	}
	_ = g.Wait()

	if err := d.finalize(ctx, run, task, stats); err != nil {
		d.fail(log, run.ID, err.Error())
		return
	}
	metrics.RecordRun("completed")
	log.Info("run completed",
		zap.Int("urls_crawled", stats.crawled),
		zap.Int("urls_failed", stats.failed),
		zap.Int("urls_skipped", stats.skipped),
		zap.Int("documents_created", stats.documents))
}

// fail marks the run failed. The status write uses a fresh context so
// a cancelled run can still record why it stopped.
func (d *Driver) fail(log *zap.Logger, runID uuid.UUID, message string) {
	log.Error("run failed", zap.String("reason", message))
	if err := d.st.FailRun(context.Background(), runID, message); err != nil {
		log.Error("run status update failed", zap.Error(err))
	}
	metrics.RecordRun("failed")
}

func (d *Driver) crawlOne(ctx context.Context, cr crawler, run model.TaskRun, task *model.CrawlTask, eff services.EffectiveTask, rawURL string, stats *runStats) {
	log := zap.L().With(
		zap.String("run_id", run.ID.String()),
		zap.String("url", rawURL))

	if task.DeduplicationEnabled {
		crawled, err := d.st.IsURLCrawled(ctx, rawURL, task.ID, task.OnlyAfterDate)
		if err != nil {
			stats.fail(rawURL, "registry lookup: "+err.Error())
			metrics.RecordURL("failed")
			log.Warn("registry lookup failed", zap.Error(err))
			return
		}
		if crawled {
			stats.skip()
			metrics.RecordURL("skipped")
			log.Info("skipping already crawled url")
			return
		}
	}

	res := cr.Crawl(ctx, pipeline.CrawlRequest{
		URL:      rawURL,
		Config:   task.CrawlConfig,
		Provider: eff.Provider,
		Model:    eff.Model,
		Params:   eff.Params,
		Prompt:   eff.Prompt,
		Schema:   eff.Schema,
	})
	if !res.Success {
		stats.fail(rawURL, res.Error)
		metrics.RecordURL("failed")
		log.Warn("crawl failed", zap.String("error", res.Error))
		return
	}

	doc, err := d.persistDocument(ctx, run, res)
	if err != nil {
		stats.fail(rawURL, err.Error())
		metrics.RecordURL("failed")
		log.Warn("document persist failed", zap.Error(err))
		return
	}
	stats.success()
	metrics.RecordURL("success")

	d.processImages(ctx, run, task, doc, res.Media.Images)
	d.processAttachments(ctx, run, task, doc, res.Links)

	if _, err := d.st.RegisterURL(ctx, rawURL, task.ID); err != nil {
		log.Warn("url registry update failed", zap.Error(err))
	}

	log.Info("url crawled",
		zap.String("document_id", doc.ID.String()),
		zap.Bool("stage2_enabled", res.Stage2.Enabled),
		zap.Bool("stage2_success", res.Stage2.Success),
		zap.Bool("stage2_fallback_used", res.Stage2.FallbackUsed),
		zap.String("stage2_error", res.Stage2.Error))
}

// persistDocument upserts the document row and uploads its renditions.
// Only the row write can fail the URL; artifact uploads are logged and
// skipped so object-storage hiccups degrade to missing paths.
func (d *Driver) persistDocument(ctx context.Context, run model.TaskRun, res *pipeline.CrawlResult) (*model.Document, error) {
	doc := model.Document{
		RunID:     run.ID,
		SourceURL: res.URL,
		Title:     res.Metadata.Title,
		Content:   res.Markdown,
		Metadata:  res.Metadata,
	}
	if res.StructuredData != nil {
		data, err := json.Marshal(res.StructuredData)
		if err != nil {
			return nil, eris.Wrap(err, "worker: marshal structured data")
		}
		doc.StructuredData = data
	}
	stage2, err := json.Marshal(res.Stage2)
	if err != nil {
		return nil, eris.Wrap(err, "worker: marshal stage2 status")
	}
	doc.Stage2Status = stage2

	saved, err := d.st.UpsertDocument(ctx, doc)
	if err != nil {
		return nil, err
	}

	day := runDay(run)
	var markdownPath, jsonPath string
	if res.Markdown != "" {
		path := objstore.ResourcePath(day, run.ID, objstore.ResourceMarkdown, objstore.MarkdownFilename(saved.ID))
		if _, err := d.blobs.Upload(ctx, path, []byte(res.Markdown), "text/markdown"); err != nil {
			zap.L().Warn("markdown upload failed", zap.String("url", res.URL), zap.Error(err))
		} else {
			markdownPath = path
		}
	}
	if res.StructuredData != nil {
		path := objstore.ResourcePath(day, run.ID, objstore.ResourceJSON, objstore.JSONFilename(saved.ID))
		if _, err := d.blobs.UploadJSON(ctx, path, res.StructuredData); err != nil {
			zap.L().Warn("structured data upload failed", zap.String("url", res.URL), zap.Error(err))
		} else {
			jsonPath = path
		}
	}
	if len(res.Screenshot) > 0 {
		path := objstore.ResourcePath(day, run.ID, objstore.ResourceImages, objstore.ScreenshotFilename(saved.ID))
		if _, err := d.blobs.Upload(ctx, path, res.Screenshot, "image/png"); err != nil {
			zap.L().Warn("screenshot upload failed", zap.String("url", res.URL), zap.Error(err))
		}
	}
	if len(res.PDF) > 0 {
		path := objstore.ResourcePath(day, run.ID, objstore.ResourceAttachments, objstore.PDFFilename(saved.ID))
		if _, err := d.blobs.Upload(ctx, path, res.PDF, "application/pdf"); err != nil {
			zap.L().Warn("pdf upload failed", zap.String("url", res.URL), zap.Error(err))
		}
	}

	if markdownPath != "" || jsonPath != "" {
		if err := d.st.SetDocumentStoragePaths(ctx, saved.ID, markdownPath, jsonPath); err != nil {
			zap.L().Warn("document path update failed", zap.String("url", res.URL), zap.Error(err))
		} else {
			saved.MarkdownPath = markdownPath
			saved.JSONPath = jsonPath
		}
	}
	return saved, nil
}

// finalize writes the run's manifest, resource index, and (when URLs
// failed) error log, then records the terminal row. The status write
// uses a fresh context for the same reason fail does.
func (d *Driver) finalize(ctx context.Context, run model.TaskRun, task *model.CrawlTask, stats *runStats) error {
	day := runDay(run)

	docs, err := d.st.ListDocumentsByRun(ctx, run.ID)
	if err != nil {
		return err
	}
	images, err := d.st.ListImagesByRun(ctx, run.ID)
	if err != nil {
		return err
	}
	atts, err := d.st.ListAttachmentsByRun(ctx, run.ID)
	if err != nil {
		return err
	}

	manifestPath := objstore.ResourcePath(day, run.ID, objstore.ResourceLogs, objstore.ManifestFilename)
	manifest := buildManifest(run, task, stats.crawled, stats.failed, stats.documents)
	if _, err := d.blobs.UploadJSON(ctx, manifestPath, manifest); err != nil {
		return err
	}

	indexPath := objstore.ResourcePath(day, run.ID, objstore.ResourceLogs, objstore.ResourceIndexFilename)
	if _, err := d.blobs.UploadJSON(ctx, indexPath, buildResourceIndex(run.ID, docs, images, atts)); err != nil {
		return err
	}

	if stats.failed > 0 {
		errPath := objstore.ResourcePath(day, run.ID, objstore.ResourceLogs, objstore.ErrorLogFilename)
		if _, err := d.blobs.UploadJSON(ctx, errPath, buildErrorLog(run.ID, stats.failures)); err != nil {
			return err
		}
	}

	return d.st.CompleteRun(context.Background(), run.ID,
		stats.crawled, stats.failed, stats.documents,
		objstore.RunRoot(day, run.ID), manifestPath, objstore.LogsRoot(day, run.ID))
}

// runDay anchors a run's object paths to the day it started, so reads
// after midnight still resolve the same prefix.
func runDay(run model.TaskRun) time.Time {
	if run.StartedAt != nil {
		return run.StartedAt.UTC()
	}
	return run.CreatedAt.UTC()
}
