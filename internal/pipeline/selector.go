// Package pipeline implements the two-stage content-cleaning and extraction
// pipeline: content-region selection, stage-1 noise removal with a
// structural fallback cleaner, and stage-2 schema-constrained LLM extraction
// with a direct-HTML fallback path. Stage failures never propagate as
// errors; they are reported through the structured ExtractionOutcome so
// operators can tell "skipped" from "ran and failed" from "succeeded via
// fallback".
package pipeline

import (
	"strings"

	"dredge/internal/model"
)

// Selection reasons, logged for operator diagnostics.
const (
	ReasonExplicitOverride = "explicit-override"
	ReasonUserProvided     = "user-provided"
	ReasonHeuristic        = "heuristic"
)

// Common content-container selectors tried when a task does not name a
// region. Order matters: article first, then the usual main/content ids
// and classes.
var heuristicSelectors = []string{
	"article",
	"main",
	`[role="main"]`,
	".main-content",
	"#main-content",
	".content",
	"#content",
	".post-content",
	".entry-content",
	".article-content",
}

// SelectContentSelector decides which CSS region of the page holds the
// primary content. css_selector wins over content_selector (it is the
// older field and callers that set it expect it to be authoritative);
// without either, the heuristic candidate list applies.
func SelectContentSelector(cfg *model.CrawlConfig) (selector, reason string) {
	if cfg != nil {
		if cfg.CSSSelector != "" {
			return cfg.CSSSelector, ReasonExplicitOverride
		}
		if cfg.ContentSelector != "" {
			return cfg.ContentSelector, ReasonUserProvided
		}
	}
	return strings.Join(heuristicSelectors, ", "), ReasonHeuristic
}
