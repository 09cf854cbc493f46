package engine

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"

	robotstxt "github.com/temoto/robotstxt"
)

// robotsGate caches robots.txt verdicts per host. Fetch or parse failures
// are treated as permissive, matching the usual crawler convention that an
// unreachable robots.txt does not block the site.
type robotsGate struct {
	client    *http.Client
	userAgent string

	mu    sync.Mutex
	hosts map[string]*robotstxt.RobotsData
}

func newRobotsGate(client *http.Client, userAgent string) *robotsGate {
	return &robotsGate{
		client:    client,
		userAgent: userAgent,
		hosts:     make(map[string]*robotstxt.RobotsData),
	}
}

func (g *robotsGate) allowed(ctx context.Context, u *url.URL) bool {
	data := g.dataFor(ctx, u)
	if data == nil {
		return true
	}
	return data.FindGroup(g.userAgent).Test(u.RequestURI())
}

func (g *robotsGate) dataFor(ctx context.Context, u *url.URL) *robotstxt.RobotsData {
	key := u.Scheme + "://" + u.Host

	g.mu.Lock()
	data, ok := g.hosts[key]
	g.mu.Unlock()
	if ok {
		return data
	}

	data = g.fetch(ctx, u)

	g.mu.Lock()
	g.hosts[key] = data
	g.mu.Unlock()
	return data
}

func (g *robotsGate) fetch(ctx context.Context, u *url.URL) *robotstxt.RobotsData {
	robotsURL := &url.URL{
		Scheme: u.Scheme,
		Host:   u.Host,
		Path:   "/robots.txt",
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return nil
	}
	if g.userAgent != "" {
		req.Header.Set("User-Agent", g.userAgent)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil
	}

	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil
	}
	return data
}
