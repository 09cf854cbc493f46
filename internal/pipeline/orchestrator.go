package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"dredge/internal/config"
	"dredge/internal/engine"
	"dredge/internal/metrics"
	"dredge/internal/model"
)

// Fetcher is the page-fetch capability the orchestrator drives. Satisfied
// by *engine.Engine.
type Fetcher interface {
	Fetch(ctx context.Context, url string, opts engine.Options) (*engine.Result, error)
}

// CrawlRequest is the immutable per-URL input: the URL, the task's crawl
// options, and the optional extraction descriptor (provider/model/params,
// prompt, output schema).
type CrawlRequest struct {
	URL      string
	Config   *model.CrawlConfig
	Provider string
	Model    string
	Params   map[string]any
	Prompt   string
	Schema   map[string]any
}

// CrawlResult is the envelope handed to the run driver for persistence.
// Markdown is the raw representation, MarkdownFit the cleaned one;
// StructuredData is set only when extraction succeeded, while Stage2 always
// carries the full diagnostic outcome.
type CrawlResult struct {
	Success        bool
	URL            string
	Error          string
	HTML           string
	CleanedHTML    string
	Markdown       string
	MarkdownFit    string
	Metadata       model.PageMetadata
	Links          engine.Links
	Media          engine.Media
	StructuredData map[string]any
	Screenshot     []byte
	PDF            []byte
	Stage2         model.ExtractionOutcome
}

// Orchestrator composes content selection, fetch, stage-1 cleaning, and
// stage-2 extraction (with its fallback) for one URL at a time. It is
// stateless across calls and safe to use from concurrent URL crawls.
type Orchestrator struct {
	fetcher         Fetcher
	stage1          Stage1Cleaner
	stage2          Stage2Runner
	fallbackEnabled bool
	filterThreshold float64
}

func NewOrchestrator(fetcher Fetcher, extractor Extractor, cfg config.PipelineConfig, llmTimeout time.Duration) *Orchestrator {
	return &Orchestrator{
		fetcher:         fetcher,
		stage1:          Stage1Cleaner{MinReduction: cfg.MinReductionRatio},
		stage2:          Stage2Runner{Extractor: extractor, Timeout: llmTimeout},
		fallbackEnabled: cfg.FallbackExtractionEnabled,
		filterThreshold: cfg.ContentFilterThreshold,
	}
}

// Crawl always returns a result object: fetch failure is the only state
// that short-circuits, and it is reported through Success/Error plus a
// stage-2 outcome echoing whether extraction had been enabled.
func (o *Orchestrator) Crawl(ctx context.Context, req CrawlRequest) *CrawlResult {
	in := Stage2Input{
		URL:      req.URL,
		Provider: req.Provider,
		Model:    req.Model,
		Params:   req.Params,
		Prompt:   req.Prompt,
		Schema:   req.Schema,
	}

	selector, reason := SelectContentSelector(req.Config)
	zap.L().Debug("content selector chosen",
		zap.String("url", req.URL),
		zap.String("selector", selector),
		zap.String("reason", reason))

	res, err := o.fetcher.Fetch(ctx, req.URL, o.fetchOptions(req.Config, selector))
	if err != nil {
		return &CrawlResult{
			Success: false,
			URL:     req.URL,
			Error:   err.Error(),
			Stage2: model.ExtractionOutcome{
				Enabled: in.Enabled(),
				Success: false,
				Error:   "Crawl failed: " + err.Error(),
			},
		}
	}

	cleaned := o.stage1.Clean(res)
	in.Content = cleaned

	outcome := o.stage2.Attempt(ctx, in)
	if outcome.Enabled && !outcome.Success && o.allowFallback(req.Config) {
		outcome = o.stage2.Fallback(ctx, in, outcome)
	}
	if outcome.Enabled {
		metrics.RecordExtraction(req.Provider, req.Model, outcome.Success)
		if outcome.FallbackUsed {
			metrics.RecordExtractionFallback(req.Provider)
		}
	}

	result := &CrawlResult{
		Success:     true,
		URL:         res.URL,
		HTML:        res.HTML,
		CleanedHTML: res.CleanedHTML,
		Markdown:    cleaned.Raw,
		MarkdownFit: cleaned.Fit,
		Metadata:    res.Metadata,
		Links:       res.Links,
		Media:       res.Media,
		Screenshot:  res.Screenshot,
		PDF:         res.PDF,
		Stage2:      outcome,
	}
	if outcome.Success {
		result.StructuredData = outcome.Data
	}
	return result
}

func (o *Orchestrator) fetchOptions(cfg *model.CrawlConfig, selector string) engine.Options {
	opts := engine.Options{
		Selector:        selector,
		FilterThreshold: o.filterThreshold,
	}
	if cfg != nil {
		opts.JSCode = cfg.JSCode
		opts.WaitFor = cfg.WaitFor
		opts.Screenshot = cfg.Screenshot
		opts.PDF = cfg.PDF
		if cfg.ContentFilterThreshold != nil {
			opts.FilterThreshold = *cfg.ContentFilterThreshold
		}
	}
	return opts
}

func (o *Orchestrator) allowFallback(cfg *model.CrawlConfig) bool {
	if cfg != nil && cfg.Stage2FallbackEnabled != nil {
		return *cfg.Stage2FallbackEnabled
	}
	return o.fallbackEnabled
}
