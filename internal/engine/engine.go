// Package engine implements the page-fetch capability used by crawl runs:
// a plain HTTP fetcher, a rod-driven browser fetcher for pages that need
// rendering, and the shared post-fetch extraction (metadata, links, media,
// markdown) both paths feed into.
package engine

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/rotisserie/eris"

	"dredge/internal/config"
	"dredge/internal/model"
)

// Fetch modes. Auto picks the browser only when the request needs it.
const (
	ModeHTTP    = "http"
	ModeBrowser = "browser"
	ModeAuto    = "auto"
)

const (
	defaultTimeout         = 30 * time.Second
	defaultFilterThreshold = 0.48
)

// Options carries the per-URL fetch directives taken from a task's crawl
// configuration. Selector is the already-resolved content selector used to
// scope the fit region; FilterThreshold tunes the density pruner (zero means
// the default).
type Options struct {
	JSCode          string
	WaitFor         string
	Selector        string
	Screenshot      bool
	PDF             bool
	FilterThreshold float64
}

// ImageRef is one image discovered in a fetched page. Data is set only
// when the browser already holds the image bytes; HTTP-mode fetches
// leave it nil and the worker's fallback download takes over.
type ImageRef struct {
	URL  string
	Alt  string
	Data []byte
}

// Media groups the embedded resources discovered in a fetched page.
type Media struct {
	Images []ImageRef
	Videos []string
	Audios []string
}

// Links holds discovered anchors split by host: internal links share the
// fetched page's host (or a subdomain of it), everything else is external.
type Links struct {
	Internal []string
	External []string
}

// Result is the fetch envelope handed to the cleaning pipeline. CleanedHTML
// is the selector-scoped region when the selector matched, otherwise the
// full page; FitMarkdown is empty when pruning produced nothing usable,
// which the pipeline treats as a signal to re-clean from CleanedHTML.
type Result struct {
	URL         string
	StatusCode  int
	HTML        string
	CleanedHTML string
	RawMarkdown string
	FitMarkdown string
	Metadata    model.PageMetadata
	Links       Links
	Media       Media
	Screenshot  []byte
	PDF         []byte
}

// Engine fetches pages according to its configured mode. One Engine is
// created per run; the browser connection is established on first use and
// held until Close.
type Engine struct {
	cfg    config.EngineConfig
	client *http.Client
	robots *robotsGate

	mu      sync.Mutex
	browser *rod.Browser
}

// New builds an Engine from configuration. The HTTP client and the robots
// gate (when respect_robots is set) are shared across all fetches.
func New(cfg config.EngineConfig) *Engine {
	timeout := defaultTimeout
	if cfg.TimeoutMs > 0 {
		timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
	}

	client := &http.Client{Timeout: timeout}

	e := &Engine{
		cfg:    cfg,
		client: client,
	}
	if cfg.RespectRobots {
		e.robots = newRobotsGate(client, cfg.UserAgent)
	}
	return e
}

// Fetch retrieves a single URL and returns the full envelope. The browser is
// used when the configured mode demands it, or in auto mode when the options
// require rendering (js_code, wait_for, screenshot, pdf).
func (e *Engine) Fetch(ctx context.Context, rawURL string, opts Options) (*Result, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "engine: parse url %q", rawURL)
	}
	if u.Scheme == "" {
		u.Scheme = "http"
	}

	if e.robots != nil && !e.robots.allowed(ctx, u) {
		return nil, eris.Errorf("engine: %s blocked by robots.txt", u.String())
	}

	if e.needsBrowser(opts) {
		return e.fetchBrowser(ctx, u, opts)
	}

	htmlStr, status, err := e.fetchHTTP(ctx, u)
	if err != nil {
		return nil, err
	}
	return e.buildResult(u, htmlStr, status, opts)
}

func (e *Engine) needsBrowser(opts Options) bool {
	switch e.cfg.Mode {
	case ModeBrowser:
		return true
	case ModeHTTP:
		return false
	default:
		return opts.JSCode != "" || opts.WaitFor != "" || opts.Screenshot || opts.PDF
	}
}

// session returns the shared browser connection, establishing it on first
// use. The connection is deliberately not bound to a fetch context so that
// one URL's cancellation cannot tear down the session mid-run; page-level
// operations carry their own context and timeout.
func (e *Engine) session() (*rod.Browser, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.browser != nil {
		return e.browser, nil
	}

	browser := rod.New()
	if e.cfg.Rod.ControlURL != "" {
		browser = browser.ControlURL(e.cfg.Rod.ControlURL)
	}
	if err := browser.Connect(); err != nil {
		return nil, eris.Wrap(err, "engine: connect browser")
	}

	e.browser = browser
	return browser, nil
}

// Close releases the browser connection if one was established.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.browser == nil {
		return nil
	}
	browser := e.browser
	e.browser = nil

	if err := browser.Close(); err != nil {
		return eris.Wrap(err, "engine: close browser")
	}
	return nil
}
