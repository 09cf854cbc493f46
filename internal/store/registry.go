package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"dredge/internal/model"
)

// IsURLCrawled reports whether url was already crawled for this task.
// When onlyAfter is set, a crawl recorded before that time does not
// count and the URL stays eligible.
func (s *Store) IsURLCrawled(ctx context.Context, url string, taskID uuid.UUID, onlyAfter *time.Time) (bool, error) {
	var last time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT last_crawled_at FROM crawled_urls WHERE url = $1 AND task_id = $2`,
		url, taskID,
	).Scan(&last)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, eris.Wrap(err, "store: registry lookup")
	}
	if onlyAfter != nil && last.Before(*onlyAfter) {
		return false, nil
	}
	return true, nil
}

// RegisterURL records url as crawled. The registry is keyed by URL
// alone, so a URL crawled by a second task keeps one row: the counter
// is bumped and the row reassigned to the crawling task.
func (s *Store) RegisterURL(ctx context.Context, url string, taskID uuid.UUID) (*model.CrawledURL, error) {
	var cu model.CrawledURL
	err := s.pool.QueryRow(ctx,
		`INSERT INTO crawled_urls (id, url, task_id)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (url) DO UPDATE SET
		     crawl_count = crawled_urls.crawl_count + 1,
		     last_crawled_at = now(),
		     task_id = EXCLUDED.task_id
		 RETURNING id, url, task_id, first_crawled_at, last_crawled_at, crawl_count`,
		newID(), url, taskID,
	).Scan(&cu.ID, &cu.URL, &cu.TaskID, &cu.FirstCrawledAt, &cu.LastCrawledAt, &cu.CrawlCount)
	if err != nil {
		return nil, eris.Wrap(err, "store: register url")
	}
	return &cu, nil
}
