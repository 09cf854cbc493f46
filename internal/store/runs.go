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

const runColumns = `id, task_id, status, started_at, completed_at, urls_crawled, urls_failed, documents_created, storage_path, manifest_path, logs_path, error_message, created_at`

// CreateRun inserts a pending run for a task. A pending row doubles as
// the queue entry the worker claims.
func (s *Store) CreateRun(ctx context.Context, taskID uuid.UUID) (*model.TaskRun, error) {
	r := model.TaskRun{
		ID:        newID(),
		TaskID:    taskID,
		Status:    model.RunPending,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO task_runs (id, task_id, status, created_at) VALUES ($1, $2, $3, $4)`,
		r.ID, r.TaskID, string(r.Status), r.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "store: insert run")
	}
	return &r, nil
}

// GetRun fetches a run by ID. Returns (nil, nil) when no row exists.
func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (*model.TaskRun, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM task_runs WHERE id = $1`, id)
	r, err := scanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "store: get run")
	}
	return r, nil
}

// ListRunsByTask returns a task's runs newest-first.
func (s *Store) ListRunsByTask(ctx context.Context, taskID uuid.UUID, limit, offset int) ([]model.TaskRun, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+runColumns+` FROM task_runs WHERE task_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		taskID, limit, offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "store: list runs")
	}
	defer rows.Close()

	var runs []model.TaskRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "store: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "store: list runs")
}

// ClaimPendingRuns atomically moves up to limit pending runs to
// running and returns them oldest-first. SKIP LOCKED keeps concurrent
// workers from claiming the same run.
func (s *Store) ClaimPendingRuns(ctx context.Context, limit int) ([]model.TaskRun, error) {
	rows, err := s.pool.Query(ctx,
		`UPDATE task_runs SET status = 'running', started_at = now()
		 WHERE id IN (
		     SELECT id FROM task_runs WHERE status = 'pending'
		     ORDER BY created_at
		     LIMIT $1
		     FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+runColumns,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "store: claim pending runs")
	}
	defer rows.Close()

	var runs []model.TaskRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "store: scan claimed run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "store: claim pending runs")
}

// CompleteRun finalizes a run with its aggregate statistics and object
// storage locations.
func (s *Store) CompleteRun(ctx context.Context, id uuid.UUID, urlsCrawled, urlsFailed, documentsCreated int, storagePath, manifestPath, logsPath string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE task_runs SET status = 'completed', completed_at = now(), urls_crawled = $1, urls_failed = $2, documents_created = $3, storage_path = $4, manifest_path = $5, logs_path = $6 WHERE id = $7`,
		urlsCrawled, urlsFailed, documentsCreated,
		nullStr(storagePath), nullStr(manifestPath), nullStr(logsPath), id,
	)
	if err != nil {
		return eris.Wrapf(err, "store: complete run %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("store: run not found: %s", id)
	}
	return nil
}

// FailRun marks a run failed with a human-readable reason.
func (s *Store) FailRun(ctx context.Context, id uuid.UUID, message string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE task_runs SET status = 'failed', completed_at = now(), error_message = $1 WHERE id = $2`,
		nullStr(message), id,
	)
	if err != nil {
		return eris.Wrapf(err, "store: fail run %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("store: run not found: %s", id)
	}
	return nil
}

// PendingRunCount reports the queue depth.
func (s *Store) PendingRunCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM task_runs WHERE status = 'pending'`).Scan(&n)
	if err != nil {
		return 0, eris.Wrap(err, "store: pending run count")
	}
	return n, nil
}

// DeleteRunsCompletedBefore removes terminal runs older than cutoff.
// Documents and downloaded resource rows cascade.
func (s *Store) DeleteRunsCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM task_runs WHERE completed_at IS NOT NULL AND completed_at < $1`, cutoff)
	if err != nil {
		return 0, eris.Wrap(err, "store: delete old runs")
	}
	return tag.RowsAffected(), nil
}

func scanRun(row rowScanner) (*model.TaskRun, error) {
	var (
		r                               model.TaskRun
		storage, manifest, logs, errMsg *string
	)
	if err := row.Scan(
		&r.ID, &r.TaskID, &r.Status, &r.StartedAt, &r.CompletedAt,
		&r.URLsCrawled, &r.URLsFailed, &r.DocumentsCreated,
		&storage, &manifest, &logs, &errMsg, &r.CreatedAt,
	); err != nil {
		return nil, err
	}
	r.StoragePath = strv(storage)
	r.ManifestPath = strv(manifest)
	r.LogsPath = strv(logs)
	r.ErrorMessage = strv(errMsg)
	return &r, nil
}
