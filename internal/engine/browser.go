package engine

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

func (e *Engine) fetchBrowser(ctx context.Context, u *url.URL, opts Options) (*Result, error) {
	browser, err := e.session()
	if err != nil {
		return nil, err
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: u.String()})
	if err != nil {
		return nil, eris.Wrapf(err, "engine: open page %s", u.String())
	}
	defer page.MustClose()

	page = page.Context(ctx)
	if e.cfg.Rod.PageTimeoutMs > 0 {
		page = page.Timeout(time.Duration(e.cfg.Rod.PageTimeoutMs) * time.Millisecond)
	}

	if err := page.WaitLoad(); err != nil {
		return nil, eris.Wrapf(err, "engine: load %s", u.String())
	}

	if opts.JSCode != "" {
		if _, err := page.Eval(wrapJS(opts.JSCode)); err != nil {
			return nil, eris.Wrapf(err, "engine: run js_code on %s", u.String())
		}
	}

	if opts.WaitFor != "" {
		if _, err := page.Element(opts.WaitFor); err != nil {
			return nil, eris.Wrapf(err, "engine: wait_for %q on %s", opts.WaitFor, u.String())
		}
	}

	htmlStr, err := page.HTML()
	if err != nil {
		return nil, eris.Wrapf(err, "engine: read html %s", u.String())
	}

	res, err := e.buildResult(u, htmlStr, http.StatusOK, opts)
	if err != nil {
		return nil, err
	}

	// The browser has already fetched the page's images; read them back
	// from its cache instead of re-downloading. A miss leaves Data nil.
	for i, img := range res.Media.Images {
		data, err := page.GetResource(img.URL)
		if err != nil || len(data) == 0 {
			zap.L().Debug("image resource not in browser cache",
				zap.String("url", img.URL), zap.Error(err))
			continue
		}
		res.Media.Images[i].Data = data
	}

	// Screenshot and PDF capture are best-effort: a capture failure should
	// not fail an otherwise successful fetch.
	if opts.Screenshot {
		shot, err := page.Screenshot(true, &proto.PageCaptureScreenshot{
			Format: proto.PageCaptureScreenshotFormatPng,
		})
		if err != nil {
			zap.L().Warn("screenshot capture failed", zap.String("url", u.String()), zap.Error(err))
		} else {
			res.Screenshot = shot
		}
	}

	if opts.PDF {
		stream, err := page.PDF(&proto.PagePrintToPDF{})
		if err != nil {
			zap.L().Warn("pdf capture failed", zap.String("url", u.String()), zap.Error(err))
		} else {
			data, err := io.ReadAll(stream)
			if err != nil {
				zap.L().Warn("pdf read failed", zap.String("url", u.String()), zap.Error(err))
			} else {
				res.PDF = data
			}
		}
	}

	return res, nil
}

// wrapJS turns bare statements into a callable so page.Eval accepts both
// full function expressions and plain script snippets.
func wrapJS(code string) string {
	trimmed := strings.TrimSpace(code)
	if strings.HasPrefix(trimmed, "(") || strings.HasPrefix(trimmed, "function") || strings.HasPrefix(trimmed, "async") {
		return code
	}
	return "() => {\n" + code + "\n}"
}
