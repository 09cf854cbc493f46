package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Simple Prometheus-style metrics for the API and worker.
// This is intentionally minimal and in-memory only.

var (
	mu             sync.RWMutex
	requestsTotal  = make(map[reqKey]int64)
	latencyMsSum   = make(map[latKey]int64)
	latencyMsCount = make(map[latKey]int64)

	runsTotal        = make(map[string]int64)
	urlsTotal        = make(map[string]int64)
	extractionsTotal = make(map[extractKey]int64)
	fallbacksTotal   = make(map[string]int64)
	downloadsTotal   = make(map[downloadKey]int64)

	retentionRunsDeleted int64
)

type reqKey struct {
	Method string
	Path   string
	Status int
}

type latKey struct {
	Method string
	Path   string
}

type extractKey struct {
	Provider string
	Model    string
	Outcome  string
}

type downloadKey struct {
	Type   string
	Status string
}

// RecordRequest increments request counter and records latency.
func RecordRequest(method, path string, status int, latencyMs int64) {
	mu.Lock()
	defer mu.Unlock()

	rk := reqKey{Method: method, Path: path, Status: status}
	requestsTotal[rk]++

	lk := latKey{Method: method, Path: path}
	latencyMsSum[lk] += latencyMs
	latencyMsCount[lk]++
}

// RecordRun counts a finished run by terminal status.
func RecordRun(status string) {
	mu.Lock()
	defer mu.Unlock()
	runsTotal[status]++
}

// RecordURL counts one URL processed by the worker. Outcome is
// success, failed, or skipped (deduplicated).
func RecordURL(outcome string) {
	mu.Lock()
	defer mu.Unlock()
	urlsTotal[outcome]++
}

// RecordExtraction counts a structured extraction attempt.
func RecordExtraction(provider, model string, success bool) {
	mu.Lock()
	defer mu.Unlock()

	outcome := "error"
	if success {
		outcome = "success"
	}
	extractionsTotal[extractKey{Provider: provider, Model: model, Outcome: outcome}]++
}

// RecordExtractionFallback counts an extraction that succeeded only
// through the fallback path.
func RecordExtractionFallback(provider string) {
	mu.Lock()
	defer mu.Unlock()
	fallbacksTotal[provider]++
}

// RecordDownload counts a resource download attempt. Type is image or
// attachment; status matches the stored download_status.
func RecordDownload(resourceType, status string) {
	mu.Lock()
	defer mu.Unlock()
	downloadsTotal[downloadKey{Type: resourceType, Status: status}]++
}

// RecordRetentionRuns increments the counter of runs deleted by TTL.
func RecordRetentionRuns(deleted int64) {
	if deleted <= 0 {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	retentionRunsDeleted += deleted
}

// Export returns Prometheus-style metrics text.
func Export() string {
	mu.RLock()
	defer mu.RUnlock()

	var b strings.Builder

	b.WriteString("# HELP dredge_http_requests_total Total HTTP requests\n")
	b.WriteString("# TYPE dredge_http_requests_total counter\n")

	// Sort keys for stable output
	var reqKeys []reqKey
	for k := range requestsTotal {
		reqKeys = append(reqKeys, k)
	}
	sort.Slice(reqKeys, func(i, j int) bool {
		if reqKeys[i].Method != reqKeys[j].Method {
			return reqKeys[i].Method < reqKeys[j].Method
		}
		if reqKeys[i].Path != reqKeys[j].Path {
			return reqKeys[i].Path < reqKeys[j].Path
		}
		return reqKeys[i].Status < reqKeys[j].Status
	})

	for _, k := range reqKeys {
		fmt.Fprintf(&b, "dredge_http_requests_total{method=\"%s\",path=\"%s\",status=\"%d\"} %d\n",
			k.Method, k.Path, k.Status, requestsTotal[k])
	}

	b.WriteString("# HELP dredge_http_request_duration_ms_sum Total request duration in milliseconds\n")
	b.WriteString("# TYPE dredge_http_request_duration_ms_sum counter\n")
	b.WriteString("# HELP dredge_http_request_duration_ms_count Request count for latency metric\n")
	b.WriteString("# TYPE dredge_http_request_duration_ms_count counter\n")

	var latKeys []latKey
	for k := range latencyMsSum {
		latKeys = append(latKeys, k)
	}
	sort.Slice(latKeys, func(i, j int) bool {
		if latKeys[i].Method != latKeys[j].Method {
			return latKeys[i].Method < latKeys[j].Method
		}
		return latKeys[i].Path < latKeys[j].Path
	})

	for _, k := range latKeys {
		fmt.Fprintf(&b, "dredge_http_request_duration_ms_sum{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, latencyMsSum[k])
		fmt.Fprintf(&b, "dredge_http_request_duration_ms_count{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, latencyMsCount[k])
	}

	b.WriteString("# HELP dredge_runs_total Finished task runs by terminal status\n")
	b.WriteString("# TYPE dredge_runs_total counter\n")

	var statuses []string
	for s := range runsTotal {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		fmt.Fprintf(&b, "dredge_runs_total{status=\"%s\"} %d\n", s, runsTotal[s])
	}

	b.WriteString("# HELP dredge_urls_total URLs processed by the worker\n")
	b.WriteString("# TYPE dredge_urls_total counter\n")

	var outcomes []string
	for o := range urlsTotal {
		outcomes = append(outcomes, o)
	}
	sort.Strings(outcomes)
	for _, o := range outcomes {
		fmt.Fprintf(&b, "dredge_urls_total{outcome=\"%s\"} %d\n", o, urlsTotal[o])
	}

	b.WriteString("# HELP dredge_extractions_total Structured extraction attempts\n")
	b.WriteString("# TYPE dredge_extractions_total counter\n")

	var extKeys []extractKey
	for k := range extractionsTotal {
		extKeys = append(extKeys, k)
	}
	sort.Slice(extKeys, func(i, j int) bool {
		if extKeys[i].Provider != extKeys[j].Provider {
			return extKeys[i].Provider < extKeys[j].Provider
		}
		if extKeys[i].Model != extKeys[j].Model {
			return extKeys[i].Model < extKeys[j].Model
		}
		return extKeys[i].Outcome < extKeys[j].Outcome
	})

	for _, k := range extKeys {
		fmt.Fprintf(&b, "dredge_extractions_total{provider=\"%s\",model=\"%s\",outcome=\"%s\"} %d\n",
			k.Provider, k.Model, k.Outcome, extractionsTotal[k])
	}

	b.WriteString("# HELP dredge_extraction_fallbacks_total Extractions that succeeded via the fallback path\n")
	b.WriteString("# TYPE dredge_extraction_fallbacks_total counter\n")

	var providers []string
	for p := range fallbacksTotal {
		providers = append(providers, p)
	}
	sort.Strings(providers)
	for _, p := range providers {
		fmt.Fprintf(&b, "dredge_extraction_fallbacks_total{provider=\"%s\"} %d\n", p, fallbacksTotal[p])
	}

	b.WriteString("# HELP dredge_resource_downloads_total Image and attachment download attempts\n")
	b.WriteString("# TYPE dredge_resource_downloads_total counter\n")

	var dlKeys []downloadKey
	for k := range downloadsTotal {
		dlKeys = append(dlKeys, k)
	}
	sort.Slice(dlKeys, func(i, j int) bool {
		if dlKeys[i].Type != dlKeys[j].Type {
			return dlKeys[i].Type < dlKeys[j].Type
		}
		return dlKeys[i].Status < dlKeys[j].Status
	})

	for _, k := range dlKeys {
		fmt.Fprintf(&b, "dredge_resource_downloads_total{type=\"%s\",status=\"%s\"} %d\n",
			k.Type, k.Status, downloadsTotal[k])
	}

	b.WriteString("# HELP dredge_retention_runs_deleted_total Total runs deleted by TTL\n")
	b.WriteString("# TYPE dredge_retention_runs_deleted_total counter\n")
	fmt.Fprintf(&b, "dredge_retention_runs_deleted_total %d\n", retentionRunsDeleted)

	return b.String()
}
