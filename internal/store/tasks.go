package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"github.com/sqlc-dev/pqtype"

	"dredge/internal/model"
)

const taskColumns = `id, name, description, urls, crawl_config, llm_provider, llm_model, llm_params, prompt_template, output_schema, deduplication_enabled, only_after_date, fallback_download_enabled, fallback_max_size_mb, created_at, updated_at`

// CreateTask inserts a new crawl task and returns it with the
// generated ID and timestamps filled in.
func (s *Store) CreateTask(ctx context.Context, t model.CrawlTask) (*model.CrawlTask, error) {
	t.ID = newID()
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	urlsJSON, cfg, params, schema, err := taskJSONColumns(&t)
	if err != nil {
		return nil, err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO crawl_tasks (id, name, description, urls, crawl_config, llm_provider, llm_model, llm_params, prompt_template, output_schema, deduplication_enabled, only_after_date, fallback_download_enabled, fallback_max_size_mb, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		t.ID, t.Name, nullStr(t.Description), urlsJSON, cfg,
		nullStr(t.LLMProvider), nullStr(t.LLMModel), params, nullStr(t.PromptTemplate), schema,
		t.DeduplicationEnabled, t.OnlyAfterDate, t.FallbackDownloadEnabled, t.FallbackMaxSizeMB,
		t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "store: insert task")
	}
	return &t, nil
}

// GetTask fetches a task by ID. Returns (nil, nil) when no row exists.
func (s *Store) GetTask(ctx context.Context, id uuid.UUID) (*model.CrawlTask, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM crawl_tasks WHERE id = $1`, id)
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "store: get task")
	}
	return t, nil
}

// GetTaskByName fetches the oldest task with the given name. Returns
// (nil, nil) when no row exists. Used for idempotent seeding.
func (s *Store) GetTaskByName(ctx context.Context, name string) (*model.CrawlTask, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM crawl_tasks WHERE name = $1 ORDER BY created_at LIMIT 1`, name)
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "store: get task by name")
	}
	return t, nil
}

// ListTasks returns tasks newest-first.
func (s *Store) ListTasks(ctx context.Context, limit, offset int) ([]model.CrawlTask, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM crawl_tasks ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "store: list tasks")
	}
	defer rows.Close()

	var tasks []model.CrawlTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, eris.Wrap(err, "store: scan task")
		}
		tasks = append(tasks, *t)
	}
	return tasks, eris.Wrap(rows.Err(), "store: list tasks")
}

// UpdateTask replaces all mutable columns of a task.
func (s *Store) UpdateTask(ctx context.Context, t *model.CrawlTask) error {
	urlsJSON, cfg, params, schema, err := taskJSONColumns(t)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE crawl_tasks SET name = $1, description = $2, urls = $3, crawl_config = $4, llm_provider = $5, llm_model = $6, llm_params = $7, prompt_template = $8, output_schema = $9, deduplication_enabled = $10, only_after_date = $11, fallback_download_enabled = $12, fallback_max_size_mb = $13, updated_at = now() WHERE id = $14`,
		t.Name, nullStr(t.Description), urlsJSON, cfg,
		nullStr(t.LLMProvider), nullStr(t.LLMModel), params, nullStr(t.PromptTemplate), schema,
		t.DeduplicationEnabled, t.OnlyAfterDate, t.FallbackDownloadEnabled, t.FallbackMaxSizeMB,
		t.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "store: update task %s", t.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("store: task not found: %s", t.ID)
	}
	return nil
}

// DeleteTask removes a task. Runs and documents cascade.
func (s *Store) DeleteTask(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM crawl_tasks WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "store: delete task %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("store: task not found: %s", id)
	}
	return nil
}

// taskJSONColumns marshals the jsonb columns of a task. urls is NOT
// NULL in the schema; the other three columns collapse to SQL NULL
// when unset.
func taskJSONColumns(t *model.CrawlTask) (urls []byte, cfg, params, schema pqtype.NullRawMessage, err error) {
	urls, err = json.Marshal(t.URLs)
	if err != nil {
		return nil, cfg, params, schema, eris.Wrap(err, "store: marshal urls")
	}
	if t.CrawlConfig != nil {
		b, merr := json.Marshal(t.CrawlConfig)
		if merr != nil {
			return nil, cfg, params, schema, eris.Wrap(merr, "store: marshal crawl_config")
		}
		cfg = nullJSON(b)
	}
	if len(t.LLMParams) > 0 {
		b, merr := json.Marshal(t.LLMParams)
		if merr != nil {
			return nil, cfg, params, schema, eris.Wrap(merr, "store: marshal llm_params")
		}
		params = nullJSON(b)
	}
	if len(t.OutputSchema) > 0 {
		b, merr := json.Marshal(t.OutputSchema)
		if merr != nil {
			return nil, cfg, params, schema, eris.Wrap(merr, "store: marshal output_schema")
		}
		schema = nullJSON(b)
	}
	return urls, cfg, params, schema, nil
}

func scanTask(row rowScanner) (*model.CrawlTask, error) {
	var (
		t                           model.CrawlTask
		desc, provider, mdl, prompt *string
		urlsJSON                    []byte
		cfg, params, schema         pqtype.NullRawMessage
	)
	if err := row.Scan(
		&t.ID, &t.Name, &desc, &urlsJSON, &cfg,
		&provider, &mdl, &params, &prompt, &schema,
		&t.DeduplicationEnabled, &t.OnlyAfterDate, &t.FallbackDownloadEnabled, &t.FallbackMaxSizeMB,
		&t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	t.Description = strv(desc)
	t.LLMProvider = strv(provider)
	t.LLMModel = strv(mdl)
	t.PromptTemplate = strv(prompt)

	if err := json.Unmarshal(urlsJSON, &t.URLs); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal urls")
	}
	if cfg.Valid {
		t.CrawlConfig = &model.CrawlConfig{}
		if err := json.Unmarshal(cfg.RawMessage, t.CrawlConfig); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal crawl_config")
		}
	}
	if params.Valid {
		if err := json.Unmarshal(params.RawMessage, &t.LLMParams); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal llm_params")
		}
	}
	if schema.Valid {
		if err := json.Unmarshal(schema.RawMessage, &t.OutputSchema); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal output_schema")
		}
	}
	return &t, nil
}
