package engine

import (
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Per-tag weights for the density score. Landmark noise containers score
// low so that even link-light navigation chrome is pruned; content
// containers get a boost.
var tagWeights = map[string]float64{
	"article":    1.5,
	"main":       1.4,
	"section":    1.2,
	"p":          1.2,
	"blockquote": 1.1,
	"div":        1.0,
	"table":      0.9,
	"ul":         0.8,
	"ol":         0.8,
	"form":       0.5,
	"header":     0.4,
	"footer":     0.4,
	"aside":      0.4,
	"nav":        0.3,
}

const pruneCandidates = "article, main, section, p, blockquote, div, table, ul, ol, form, header, footer, aside, nav"

// pruneHTML drops low-signal blocks from htmlStr and returns the remaining
// body HTML. Blocks are scored by text density discounted by link density
// and the tag weight; anything under the threshold is removed. Candidates
// are visited deepest-first so that pruning noisy children rescues an
// otherwise content-heavy ancestor.
func pruneHTML(htmlStr string, threshold float64) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if err != nil {
		return ""
	}

	doc.Find("script, style, noscript, template").Remove()

	type candidate struct {
		sel   *goquery.Selection
		depth int
	}
	var candidates []candidate
	doc.Find(pruneCandidates).Each(func(_ int, sel *goquery.Selection) {
		candidates = append(candidates, candidate{sel: sel, depth: nodeDepth(sel)})
	})
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].depth > candidates[j].depth
	})

	for _, c := range candidates {
		if blockScore(c.sel) < threshold {
			c.sel.Remove()
		}
	}

	body := doc.Find("body").First()
	if body.Length() == 0 {
		return ""
	}
	out, err := body.Html()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

// blockScore rates how content-like a block is: the share of its serialized
// form that is text, discounted by how much of that text sits inside links,
// scaled by the tag weight.
func blockScore(sel *goquery.Selection) float64 {
	text := normalizeSpace(sel.Text())
	textLen := float64(len(text))
	if textLen == 0 {
		return 0
	}

	var linkLen float64
	sel.Find("a").Each(func(_ int, a *goquery.Selection) {
		linkLen += float64(len(normalizeSpace(a.Text())))
	})
	linkDensity := linkLen / textLen
	if linkDensity > 1 {
		linkDensity = 1
	}

	outer, err := goquery.OuterHtml(sel)
	if err != nil || outer == "" {
		return 0
	}
	textDensity := textLen / float64(len(outer))

	weight := 1.0
	if w, ok := tagWeights[goquery.NodeName(sel)]; ok {
		weight = w
	}

	return weight * textDensity * (1 - linkDensity)
}

func nodeDepth(sel *goquery.Selection) int {
	depth := 0
	for p := sel.Parent(); p.Length() > 0; p = p.Parent() {
		depth++
	}
	return depth
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
