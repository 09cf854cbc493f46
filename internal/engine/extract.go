package engine

import (
	"net/url"
	"strings"

	htmlmd "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"dredge/internal/model"
)

// buildResult turns fetched HTML into the full envelope: metadata, link and
// media extraction, raw markdown from the whole page, and fit markdown from
// the selector-scoped, density-pruned region.
func (e *Engine) buildResult(u *url.URL, htmlStr string, status int, opts Options) (*Result, error) {
	res := &Result{
		URL:        u.String(),
		StatusCode: status,
		HTML:       htmlStr,
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if err != nil {
		// Unparseable pages still get a best-effort markdown rendering.
		if md, mdErr := htmlToMarkdown(u, htmlStr); mdErr == nil {
			res.RawMarkdown = md
		}
		res.CleanedHTML = htmlStr
		return res, nil
	}

	res.Metadata = extractMetadata(doc)
	res.Links = extractLinks(doc, u)
	res.Media = extractMedia(doc, u)

	md, mdErr := htmlToMarkdown(u, htmlStr)
	if mdErr != nil {
		md = doc.Text()
	}
	res.RawMarkdown = md

	scoped := scopeHTML(doc, opts.Selector)
	if scoped == "" {
		scoped = htmlStr
	}
	res.CleanedHTML = scoped

	threshold := opts.FilterThreshold
	if threshold <= 0 {
		threshold = defaultFilterThreshold
	}
	if fitHTML := pruneHTML(scoped, threshold); fitHTML != "" {
		if fit, err := htmlToMarkdown(u, fitHTML); err == nil {
			res.FitMarkdown = strings.TrimSpace(fit)
		}
	}

	return res, nil
}

func htmlToMarkdown(u *url.URL, htmlStr string) (string, error) {
	converter := htmlmd.NewConverter(u.Hostname(), true, nil)
	return converter.ConvertString(htmlStr)
}

// scopeHTML returns the outer HTML of the first element matching selector,
// or "" when the selector is empty or matches nothing.
func scopeHTML(doc *goquery.Document, selector string) string {
	if selector == "" {
		return ""
	}
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return ""
	}
	out, err := goquery.OuterHtml(sel)
	if err != nil {
		return ""
	}
	return out
}

func extractMetadata(doc *goquery.Document) model.PageMetadata {
	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("meta[property=og:title]").AttrOr("content", ""))
	}

	desc := strings.TrimSpace(doc.Find("meta[name=description]").AttrOr("content", ""))
	if desc == "" {
		desc = strings.TrimSpace(doc.Find("meta[property=og:description]").AttrOr("content", ""))
	}

	lang, _ := doc.Find("html").First().Attr("lang")
	keywords := strings.TrimSpace(doc.Find("meta[name=keywords]").AttrOr("content", ""))

	return model.PageMetadata{
		Title:       title,
		Description: desc,
		Language:    strings.TrimSpace(lang),
		Keywords:    keywords,
	}
}

func extractLinks(doc *goquery.Document, base *url.URL) Links {
	seen := make(map[string]struct{})
	var links Links

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		linkURL, err := url.Parse(href)
		if err != nil {
			return
		}
		if !linkURL.IsAbs() {
			linkURL = base.ResolveReference(linkURL)
		}
		if linkURL.Scheme != "http" && linkURL.Scheme != "https" {
			return
		}
		linkURL.Fragment = ""

		finalURL := linkURL.String()
		if _, exists := seen[finalURL]; exists {
			return
		}
		seen[finalURL] = struct{}{}

		if sameHostOrSubdomain(base.Hostname(), linkURL.Hostname()) {
			links.Internal = append(links.Internal, finalURL)
		} else {
			links.External = append(links.External, finalURL)
		}
	})

	return links
}

func sameHostOrSubdomain(baseHost, host string) bool {
	if host == "" {
		return false
	}
	if strings.EqualFold(baseHost, host) {
		return true
	}
	return strings.HasSuffix(strings.ToLower(host), "."+strings.ToLower(baseHost))
}

func extractMedia(doc *goquery.Document, base *url.URL) Media {
	var media Media
	seen := make(map[string]struct{})

	resolve := func(src string) string {
		src = strings.TrimSpace(src)
		if src == "" {
			return ""
		}
		resURL, err := url.Parse(src)
		if err != nil {
			return ""
		}
		if !resURL.IsAbs() {
			resURL = base.ResolveReference(resURL)
		}
		if resURL.Scheme != "http" && resURL.Scheme != "https" {
			return ""
		}
		resURL.Fragment = ""
		return resURL.String()
	}

	addImage := func(src, alt string) {
		urlStr := resolve(src)
		if urlStr == "" {
			return
		}
		if _, exists := seen[urlStr]; exists {
			return
		}
		seen[urlStr] = struct{}{}
		media.Images = append(media.Images, ImageRef{URL: urlStr, Alt: strings.TrimSpace(alt)})
	}

	doc.Find("img[src]").Each(func(_ int, sel *goquery.Selection) {
		addImage(sel.AttrOr("src", ""), sel.AttrOr("alt", ""))
	})

	// <source srcset="url1 1x, url2 2x">: take the first candidate.
	doc.Find("picture source[srcset]").Each(func(_ int, sel *goquery.Selection) {
		srcset := strings.TrimSpace(sel.AttrOr("srcset", ""))
		if srcset == "" {
			return
		}
		parts := strings.Split(srcset, ",")
		first := strings.Fields(strings.TrimSpace(parts[0]))
		if len(first) == 0 {
			return
		}
		addImage(first[0], "")
	})

	addTo := func(list *[]string, src string) {
		urlStr := resolve(src)
		if urlStr == "" {
			return
		}
		if _, exists := seen[urlStr]; exists {
			return
		}
		seen[urlStr] = struct{}{}
		*list = append(*list, urlStr)
	}

	doc.Find("video[src], video source[src]").Each(func(_ int, sel *goquery.Selection) {
		addTo(&media.Videos, sel.AttrOr("src", ""))
	})
	doc.Find("audio[src], audio source[src]").Each(func(_ int, sel *goquery.Selection) {
		addTo(&media.Audios, sel.AttrOr("src", ""))
	})

	return media
}
