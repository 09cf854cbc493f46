package worker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"dredge/internal/engine"
	"dredge/internal/metrics"
	"dredge/internal/model"
	"dredge/internal/objstore"
)

const defaultMaxSizeMB = 10

// attachmentExts are the non-HTML file types recorded as document
// attachments when they appear as links on a crawled page.
var attachmentExts = map[string]struct{}{
	".pdf":  {},
	".doc":  {},
	".docx": {},
	".xls":  {},
	".xlsx": {},
	".ppt":  {},
	".pptx": {},
	".zip":  {},
	".tar":  {},
	".gz":   {},
	".csv":  {},
	".rtf":  {},
	".odt":  {},
	".epub": {},
}

// effectiveFallback merges the task's fallback-download settings with
// the instance defaults: downloads run when either side enables them,
// and the task's size cap wins when set.
func (d *Driver) effectiveFallback(task *model.CrawlTask) (bool, int) {
	enabled := task.FallbackDownloadEnabled || d.cfg.Downloads.FallbackEnabled
	maxMB := task.FallbackMaxSizeMB
	if maxMB <= 0 {
		maxMB = d.cfg.Downloads.MaxSizeMB
	}
	if maxMB <= 0 {
		maxMB = defaultMaxSizeMB
	}
	return enabled, maxMB
}

func (d *Driver) processImages(ctx context.Context, run model.TaskRun, task *model.CrawlTask, doc *model.Document, images []engine.ImageRef) {
	for _, img := range images {
		if img.URL == "" {
			continue
		}
		d.processImage(ctx, run, task, doc, img)
	}
}

// processImage records one page image. Bytes the engine already holds
// are uploaded as-is; otherwise the fallback download runs when the
// task allows it. Every outcome ends in an upserted row, so a failed
// image never aborts its URL.
func (d *Driver) processImage(ctx context.Context, run model.TaskRun, task *model.CrawlTask, doc *model.Document, img engine.ImageRef) {
	rec := model.DocumentImage{
		DocumentID:     doc.ID,
		OriginalURL:    img.URL,
		AltText:        img.Alt,
		DownloadStatus: model.DownloadSkipped,
	}
	day := runDay(run)
	fallbackEnabled, maxMB := d.effectiveFallback(task)

	switch {
	case len(img.Data) > 0:
		rec.DownloadMethod = model.DownloadMethodEngine
		mime := http.DetectContentType(img.Data)
		filename := resourceFilename(img.URL, fmt.Sprintf("image_%s.jpg", shortHex()))
		objPath := objstore.ResourcePath(day, run.ID, objstore.ResourceImages, filename)
		if _, err := d.blobs.Upload(ctx, objPath, img.Data, mime); err != nil {
			rec.DownloadStatus = model.DownloadFailed
			zap.L().Warn("image upload failed", zap.String("url", img.URL), zap.Error(err))
			break
		}
		size := int64(len(img.Data))
		rec.StoragePath = objPath
		rec.SizeBytes = &size
		rec.MimeType = mime
		rec.DownloadStatus = model.DownloadSuccess

	case fallbackEnabled:
		rec.DownloadMethod = model.DownloadMethodFallback
		res, err := d.downloadResource(ctx, img.URL, maxMB)
		if err != nil {
			rec.DownloadStatus = model.DownloadFailed
			zap.L().Warn("image download failed", zap.String("url", img.URL), zap.Error(err))
			break
		}
		objPath := objstore.ResourcePath(day, run.ID, objstore.ResourceImages, res.Filename)
		if _, err := d.blobs.Upload(ctx, objPath, res.Content, res.MimeType); err != nil {
			rec.DownloadStatus = model.DownloadFailed
			zap.L().Warn("image upload failed", zap.String("url", img.URL), zap.Error(err))
			break
		}
		rec.StoragePath = objPath
		rec.SizeBytes = &res.SizeBytes
		rec.MimeType = res.MimeType
		rec.DownloadStatus = model.DownloadSuccess
	}

	if _, err := d.st.UpsertImage(ctx, rec); err != nil {
		zap.L().Warn("image record update failed", zap.String("url", img.URL), zap.Error(err))
		return
	}
	metrics.RecordDownload("image", string(rec.DownloadStatus))
}

func (d *Driver) processAttachments(ctx context.Context, run model.TaskRun, task *model.CrawlTask, doc *model.Document, links engine.Links) {
	for _, rawURL := range attachmentLinks(links) {
		d.processAttachment(ctx, run, task, doc, rawURL)
	}
}

func (d *Driver) processAttachment(ctx context.Context, run model.TaskRun, task *model.CrawlTask, doc *model.Document, rawURL string) {
	rec := model.DocumentAttachment{
		DocumentID:     doc.ID,
		OriginalURL:    rawURL,
		Filename:       resourceFilename(rawURL, "resource_"+shortHex()),
		DownloadStatus: model.DownloadSkipped,
	}

	if fallbackEnabled, maxMB := d.effectiveFallback(task); fallbackEnabled {
		rec.DownloadMethod = model.DownloadMethodFallback
		res, err := d.downloadResource(ctx, rawURL, maxMB)
		if err != nil {
			rec.DownloadStatus = model.DownloadFailed
			zap.L().Warn("attachment download failed", zap.String("url", rawURL), zap.Error(err))
		} else {
			objPath := objstore.ResourcePath(runDay(run), run.ID, objstore.ResourceAttachments, res.Filename)
			if _, err := d.blobs.Upload(ctx, objPath, res.Content, res.MimeType); err != nil {
				rec.DownloadStatus = model.DownloadFailed
				zap.L().Warn("attachment upload failed", zap.String("url", rawURL), zap.Error(err))
			} else {
				rec.StoragePath = objPath
				rec.Filename = res.Filename
				rec.SizeBytes = &res.SizeBytes
				rec.MimeType = res.MimeType
				rec.DownloadStatus = model.DownloadSuccess
			}
		}
	}

	if _, err := d.st.UpsertAttachment(ctx, rec); err != nil {
		zap.L().Warn("attachment record update failed", zap.String("url", rawURL), zap.Error(err))
		return
	}
	metrics.RecordDownload("attachment", string(rec.DownloadStatus))
}

// attachmentLinks filters a page's links down to attachment-like URLs,
// deduplicated in first-seen order.
func attachmentLinks(links engine.Links) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, group := range [][]string{links.Internal, links.External} {
		for _, raw := range group {
			u, err := url.Parse(raw)
			if err != nil {
				continue
			}
			ext := strings.ToLower(path.Ext(u.Path))
			if _, ok := attachmentExts[ext]; !ok {
				continue
			}
			if _, dup := seen[raw]; dup {
				continue
			}
			seen[raw] = struct{}{}
			out = append(out, raw)
		}
	}
	return out
}

// downloadResult carries one fallback-downloaded resource.
type downloadResult struct {
	Content   []byte
	SizeBytes int64
	MimeType  string
	Filename  string
}

// downloadResource fetches an auxiliary resource under a size cap. A
// HEAD probe rejects resources whose reported length already exceeds
// the cap; the cap is enforced again while reading the GET body. HEAD
// failures are tolerated, size rejections are not.
func (d *Driver) downloadResource(ctx context.Context, rawURL string, maxSizeMB int) (*downloadResult, error) {
	maxBytes := int64(maxSizeMB) << 20

	head, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "worker: resource url %s", rawURL)
	}
	if resp, err := d.dl.Do(head); err == nil {
		resp.Body.Close()
		if resp.ContentLength > maxBytes {
			return nil, eris.Errorf("worker: resource %s exceeds %dMB limit", rawURL, maxSizeMB)
		}
	} else {
		zap.L().Debug("resource HEAD probe failed", zap.String("url", rawURL), zap.Error(err))
	}

	get, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "worker: resource url %s", rawURL)
	}
	resp, err := d.dl.Do(get)
	if err != nil {
		return nil, eris.Wrapf(err, "worker: download %s", rawURL)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, eris.Errorf("worker: download %s failed with status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, eris.Wrapf(err, "worker: read %s", rawURL)
	}
	if int64(len(body)) > maxBytes {
		return nil, eris.Errorf("worker: resource %s exceeds %dMB limit", rawURL, maxSizeMB)
	}

	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = "application/octet-stream"
	}
	return &downloadResult{
		Content:   body,
		SizeBytes: int64(len(body)),
		MimeType:  mime,
		Filename:  resourceFilename(rawURL, "resource_"+shortHex()),
	}, nil
}

// resourceFilename derives an object name from a URL's path basename,
// falling back to the supplied generated name when the path has no
// usable final segment.
func resourceFilename(rawURL, fallback string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fallback
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return fallback
	}
	return name
}

func shortHex() string {
	u := uuid.New()
	return fmt.Sprintf("%x", u[:4])
}
