package engine

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func selectionFor(t *testing.T, htmlStr, selector string) *goquery.Selection {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	require.NoError(t, err)
	sel := doc.Find(selector).First()
	require.Equal(t, 1, sel.Length())
	return sel
}

func TestPruneHTMLDropsNavigationChrome(t *testing.T) {
	page := `<html><body>
<nav><a href="/home">Home</a><a href="/docs">Docs</a><a href="/about">About</a></nav>
<article><p>` + articleBody + `</p></article>
<footer><p>© 2025 Example Corp</p><a href="/privacy">Privacy</a></footer>
</body></html>`

	pruned := pruneHTML(page, defaultFilterThreshold)

	assert.Contains(t, pruned, "scheduling core")
	assert.NotContains(t, pruned, "Home")
	assert.NotContains(t, pruned, "Privacy")
	assert.NotContains(t, pruned, "© 2025")
}

func TestPruneHTMLRescuesContentWrapper(t *testing.T) {
	// The wrapper div scores poorly while it still contains the link-heavy
	// menu; pruning the menu first must leave the wrapper intact.
	menu := strings.Repeat(`<a href="/section">A fairly long navigation entry label</a>`, 10)
	page := `<html><body><div id="page"><nav>` + menu + `</nav><p>` + articleBody + `</p></div></body></html>`

	pruned := pruneHTML(page, defaultFilterThreshold)

	assert.Contains(t, pruned, `id="page"`)
	assert.Contains(t, pruned, "scheduling core")
	assert.NotContains(t, pruned, "navigation entry label")
}

func TestPruneHTMLRemovesScriptAndStyle(t *testing.T) {
	page := `<html><body>
<script>var tracker = "beacon";</script>
<style>.hidden { display: none; }</style>
<p>` + articleBody + `</p>
</body></html>`

	pruned := pruneHTML(page, defaultFilterThreshold)

	assert.Contains(t, pruned, "scheduling core")
	assert.NotContains(t, pruned, "tracker")
	assert.NotContains(t, pruned, "display: none")
}

func TestPruneHTMLEmptyWhenNothingSurvives(t *testing.T) {
	page := `<html><body><nav><a href="/a">One</a><a href="/b">Two</a></nav></body></html>`
	assert.Empty(t, pruneHTML(page, defaultFilterThreshold))
}

func TestBlockScore(t *testing.T) {
	assert.Zero(t, blockScore(selectionFor(t, "<div></div>", "div")))

	content := blockScore(selectionFor(t, "<p>"+articleBody+"</p>", "p"))
	linkFarm := blockScore(selectionFor(t, `<ul><li><a href="/a">First entry</a></li><li><a href="/b">Second entry</a></li></ul>`, "ul"))
	assert.Greater(t, content, defaultFilterThreshold)
	assert.Less(t, linkFarm, defaultFilterThreshold)
}
