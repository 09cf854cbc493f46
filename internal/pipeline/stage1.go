package pipeline

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"dredge/internal/engine"
)

// CleanedContent is the stage-1 output: the raw markdown, the cleaned "fit"
// text, and the HTML region the fit was derived from (kept for the stage-2
// fallback path, which extracts against HTML).
type CleanedContent struct {
	Raw     string
	Fit     string
	FitHTML string
}

// defaultMinReduction is the minimum acceptable de-noising ratio: a fit
// under 5% smaller than raw means the density filter did not really clean
// anything.
const defaultMinReduction = 0.05

// Stage1Cleaner produces raw and fit text from a fetch result. When the
// engine's density filter was ineffective, it re-cleans from HTML with a
// deterministic structural pass: the density heuristic misjudges some page
// structures (dense non-Latin-script pages in particular), and the
// structural pass guarantees some noise reduction instead of silently
// returning near-raw content.
type Stage1Cleaner struct {
	MinReduction float64
}

// Clean never fails: a fallback-cleaning problem leaves fit as previously
// computed.
func (c Stage1Cleaner) Clean(res *engine.Result) CleanedContent {
	content := CleanedContent{
		Raw:     res.RawMarkdown,
		Fit:     res.FitMarkdown,
		FitHTML: res.CleanedHTML,
	}

	minReduction := c.MinReduction
	if minReduction <= 0 {
		minReduction = defaultMinReduction
	}

	ineffective := content.Fit == ""
	if !ineffective && content.Raw != "" {
		reduction := float64(len(content.Raw)-len(content.Fit)) / float64(len(content.Raw))
		ineffective = reduction < minReduction
	}
	if !ineffective {
		return content
	}

	htmlSrc := content.FitHTML
	if htmlSrc == "" {
		htmlSrc = res.HTML
	}
	if htmlSrc == "" {
		return content
	}

	if cleaned := structuralClean(htmlSrc); cleaned != "" {
		zap.L().Debug("stage 1 density filter ineffective, applied structural cleaning",
			zap.String("url", res.URL),
			zap.Int("raw_len", len(content.Raw)),
			zap.Int("fit_len", len(content.Fit)))
		content.Fit = cleaned
	}

	return content
}

// Subtrees that never hold primary content.
const noiseSelector = "nav, header, footer, aside, script, style, noscript"

var blockTags = map[string]struct{}{
	"p": {}, "div": {}, "section": {}, "article": {}, "main": {},
	"h1": {}, "h2": {}, "h3": {}, "h4": {}, "h5": {}, "h6": {},
	"ul": {}, "ol": {}, "li": {}, "table": {}, "thead": {}, "tbody": {},
	"tr": {}, "blockquote": {}, "pre": {}, "figure": {}, "figcaption": {},
	"dl": {}, "dt": {}, "dd": {}, "form": {}, "fieldset": {}, "hr": {},
}

var (
	hspaceRe      = regexp.MustCompile(`[ \t]{2,}`)
	newlineEdgeRe = regexp.MustCompile(`[ \t]*\n[ \t]*`)
	newlineRunRe  = regexp.MustCompile(`\n{3,}`)
)

// structuralClean drops noise subtrees, renders the remaining tree as text
// with block separators, and collapses whitespace. Returns "" when the
// HTML cannot be parsed or nothing remains.
func structuralClean(htmlStr string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if err != nil {
		return ""
	}

	doc.Find(noiseSelector).Remove()

	root := doc.Find("body").First()
	if root.Length() == 0 {
		return ""
	}

	var sb strings.Builder
	appendBlockText(root, &sb)

	text := hspaceRe.ReplaceAllString(sb.String(), " ")
	text = newlineEdgeRe.ReplaceAllString(text, "\n")
	text = newlineRunRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

func appendBlockText(sel *goquery.Selection, sb *strings.Builder) {
	sel.Contents().Each(func(_ int, child *goquery.Selection) {
		name := goquery.NodeName(child)
		switch name {
		case "#text":
			sb.WriteString(child.Text())
		case "br":
			sb.WriteString("\n")
		default:
			_, block := blockTags[name]
			if block {
				sb.WriteString("\n")
			}
			appendBlockText(child, sb)
			if block {
				sb.WriteString("\n\n")
			}
		}
	})
}
