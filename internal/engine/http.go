package engine

import (
	"context"
	"io"
	"net/http"
	"net/url"

	"github.com/rotisserie/eris"
)

func (e *Engine) fetchHTTP(ctx context.Context, u *url.URL) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", 0, eris.Wrap(err, "engine: build request")
	}
	if e.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", e.cfg.UserAgent)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return "", 0, eris.Wrapf(err, "engine: fetch %s", u.String())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", resp.StatusCode, eris.Wrapf(err, "engine: read %s", u.String())
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return "", resp.StatusCode, eris.Errorf("engine: fetch %s failed with status %d", u.String(), resp.StatusCode)
	}

	return string(body), resp.StatusCode, nil
}
