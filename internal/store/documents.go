package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"github.com/sqlc-dev/pqtype"

	"dredge/internal/model"
)

const documentColumns = `id, run_id, source_url, title, content, structured_data, metadata, stage2_status, markdown_path, json_path, created_at, updated_at`

// UpsertDocument inserts or replaces the document for (run, source
// URL) and returns the stored row.
func (s *Store) UpsertDocument(ctx context.Context, d model.Document) (*model.Document, error) {
	if d.ID == uuid.Nil {
		d.ID = newID()
	}
	metaJSON, err := json.Marshal(d.Metadata)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal metadata")
	}

	err = s.pool.QueryRow(ctx,
		`INSERT INTO documents (id, run_id, source_url, title, content, structured_data, metadata, stage2_status, markdown_path, json_path)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (run_id, source_url) DO UPDATE SET
		     title = EXCLUDED.title,
		     content = EXCLUDED.content,
		     structured_data = EXCLUDED.structured_data,
		     metadata = EXCLUDED.metadata,
		     stage2_status = EXCLUDED.stage2_status,
		     markdown_path = EXCLUDED.markdown_path,
		     json_path = EXCLUDED.json_path,
		     updated_at = now()
		 RETURNING id, created_at, updated_at`,
		d.ID, d.RunID, d.SourceURL, nullStr(d.Title), nullStr(d.Content),
		nullJSON(d.StructuredData), nullJSON(metaJSON), nullJSON(d.Stage2Status),
		nullStr(d.MarkdownPath), nullStr(d.JSONPath),
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "store: upsert document")
	}
	return &d, nil
}

// SetDocumentStoragePaths records where the document's markdown and
// JSON renditions were uploaded.
func (s *Store) SetDocumentStoragePaths(ctx context.Context, id uuid.UUID, markdownPath, jsonPath string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET markdown_path = $1, json_path = $2, updated_at = now() WHERE id = $3`,
		nullStr(markdownPath), nullStr(jsonPath), id,
	)
	if err != nil {
		return eris.Wrapf(err, "store: set document paths %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("store: document not found: %s", id)
	}
	return nil
}

// GetDocument fetches a document by ID. Returns (nil, nil) when no row
// exists.
func (s *Store) GetDocument(ctx context.Context, id uuid.UUID) (*model.Document, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	d, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "store: get document")
	}
	return d, nil
}

// ListDocumentsByRun returns a run's documents in creation order.
func (s *Store) ListDocumentsByRun(ctx context.Context, runID uuid.UUID) ([]model.Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE run_id = $1 ORDER BY created_at`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "store: list documents")
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, eris.Wrap(err, "store: scan document")
		}
		docs = append(docs, *d)
	}
	return docs, eris.Wrap(rows.Err(), "store: list documents")
}

// UpsertImage inserts or replaces the image record for (document,
// original URL).
func (s *Store) UpsertImage(ctx context.Context, img model.DocumentImage) (*model.DocumentImage, error) {
	if img.ID == uuid.Nil {
		img.ID = newID()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO document_images (id, document_id, original_url, storage_path, alt_text, size_bytes, mime_type, download_status, download_method)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (document_id, original_url) DO UPDATE SET
		     storage_path = EXCLUDED.storage_path,
		     alt_text = EXCLUDED.alt_text,
		     size_bytes = EXCLUDED.size_bytes,
		     mime_type = EXCLUDED.mime_type,
		     download_status = EXCLUDED.download_status,
		     download_method = EXCLUDED.download_method
		 RETURNING id, created_at`,
		img.ID, img.DocumentID, img.OriginalURL, nullStr(img.StoragePath), nullStr(img.AltText),
		img.SizeBytes, nullStr(img.MimeType), string(img.DownloadStatus), nullStr(string(img.DownloadMethod)),
	).Scan(&img.ID, &img.CreatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "store: upsert image")
	}
	return &img, nil
}

// ListImagesByRun returns all image records for a run's documents.
func (s *Store) ListImagesByRun(ctx context.Context, runID uuid.UUID) ([]model.DocumentImage, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT i.id, i.document_id, i.original_url, i.storage_path, i.alt_text, i.size_bytes, i.mime_type, i.download_status, i.download_method, i.created_at
		 FROM document_images i
		 JOIN documents d ON d.id = i.document_id
		 WHERE d.run_id = $1
		 ORDER BY i.created_at`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "store: list images")
	}
	defer rows.Close()

	var images []model.DocumentImage
	for rows.Next() {
		var (
			img                      model.DocumentImage
			storage, alt, mime, meth *string
		)
		if err := rows.Scan(&img.ID, &img.DocumentID, &img.OriginalURL, &storage, &alt,
			&img.SizeBytes, &mime, &img.DownloadStatus, &meth, &img.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "store: scan image")
		}
		img.StoragePath = strv(storage)
		img.AltText = strv(alt)
		img.MimeType = strv(mime)
		img.DownloadMethod = model.DownloadMethod(strv(meth))
		images = append(images, img)
	}
	return images, eris.Wrap(rows.Err(), "store: list images")
}

// UpsertAttachment inserts or replaces the attachment record for
// (document, original URL).
func (s *Store) UpsertAttachment(ctx context.Context, att model.DocumentAttachment) (*model.DocumentAttachment, error) {
	if att.ID == uuid.Nil {
		att.ID = newID()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO document_attachments (id, document_id, original_url, storage_path, filename, size_bytes, mime_type, download_status, download_method)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (document_id, original_url) DO UPDATE SET
		     storage_path = EXCLUDED.storage_path,
		     filename = EXCLUDED.filename,
		     size_bytes = EXCLUDED.size_bytes,
		     mime_type = EXCLUDED.mime_type,
		     download_status = EXCLUDED.download_status,
		     download_method = EXCLUDED.download_method
		 RETURNING id, created_at`,
		att.ID, att.DocumentID, att.OriginalURL, nullStr(att.StoragePath), nullStr(att.Filename),
		att.SizeBytes, nullStr(att.MimeType), string(att.DownloadStatus), nullStr(string(att.DownloadMethod)),
	).Scan(&att.ID, &att.CreatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "store: upsert attachment")
	}
	return &att, nil
}

// ListAttachmentsByRun returns all attachment records for a run's
// documents.
func (s *Store) ListAttachmentsByRun(ctx context.Context, runID uuid.UUID) ([]model.DocumentAttachment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT a.id, a.document_id, a.original_url, a.storage_path, a.filename, a.size_bytes, a.mime_type, a.download_status, a.download_method, a.created_at
		 FROM document_attachments a
		 JOIN documents d ON d.id = a.document_id
		 WHERE d.run_id = $1
		 ORDER BY a.created_at`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "store: list attachments")
	}
	defer rows.Close()

	var atts []model.DocumentAttachment
	for rows.Next() {
		var (
			att                       model.DocumentAttachment
			storage, name, mime, meth *string
		)
		if err := rows.Scan(&att.ID, &att.DocumentID, &att.OriginalURL, &storage, &name,
			&att.SizeBytes, &mime, &att.DownloadStatus, &meth, &att.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "store: scan attachment")
		}
		att.StoragePath = strv(storage)
		att.Filename = strv(name)
		att.MimeType = strv(mime)
		att.DownloadMethod = model.DownloadMethod(strv(meth))
		atts = append(atts, att)
	}
	return atts, eris.Wrap(rows.Err(), "store: list attachments")
}

func scanDocument(row rowScanner) (*model.Document, error) {
	var (
		d                                model.Document
		title, content, mdPath, jsonPath *string
		structured, meta, stage2         pqtype.NullRawMessage
	)
	if err := row.Scan(
		&d.ID, &d.RunID, &d.SourceURL, &title, &content,
		&structured, &meta, &stage2, &mdPath, &jsonPath,
		&d.CreatedAt, &d.UpdatedAt,
	); err != nil {
		return nil, err
	}
	d.Title = strv(title)
	d.Content = strv(content)
	d.MarkdownPath = strv(mdPath)
	d.JSONPath = strv(jsonPath)
	if structured.Valid {
		d.StructuredData = structured.RawMessage
	}
	if stage2.Valid {
		d.Stage2Status = stage2.RawMessage
	}
	if meta.Valid {
		if err := json.Unmarshal(meta.RawMessage, &d.Metadata); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal metadata")
		}
	}
	return &d, nil
}
