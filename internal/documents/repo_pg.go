package documents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// PGRepo implements DocumentsRepo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const documentColumns = `id, user_id, original_name, file_type, mime_type, size_bytes, storage_provider, url, storage_id, text, upload_date`

// searchVector must match the expression of documents_search_idx.
const searchVector = `to_tsvector('simple', original_name || ' ' || text)`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (Document, error) {
	var doc Document
	err := row.Scan(
		&doc.ID,
		&doc.UserID,
		&doc.OriginalName,
		&doc.FileType,
		&doc.MimeType,
		&doc.Size,
		&doc.StorageProvider,
		&doc.URL,
		&doc.StorageID,
		&doc.Text,
		&doc.UploadDate,
	)
	return doc, err
}

// Create inserts a new document.
func (r *PGRepo) Create(ctx context.Context, doc Document) error {
	const query = `
INSERT INTO documents (` + documentColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.DB.ExecContext(
		ctx,
		query,
		doc.ID,
		doc.UserID,
		doc.OriginalName,
		doc.FileType,
		doc.MimeType,
		doc.Size,
		doc.StorageProvider,
		doc.URL,
		doc.StorageID,
		doc.Text,
		doc.UploadDate,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// GetByID fetches a document by ID for its owner.
func (r *PGRepo) GetByID(ctx context.Context, userID, documentID string) (Document, error) {
	const query = `
SELECT ` + documentColumns + `
FROM documents
WHERE id = $1 AND user_id = $2`

	doc, err := scanDocument(r.DB.QueryRowContext(ctx, query, documentID, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	return doc, nil
}

// DeleteByIDAndUser removes the row only when it belongs to userID and
// returns what was removed.
func (r *PGRepo) DeleteByIDAndUser(ctx context.Context, documentID, userID string) (Document, error) {
	const query = `
DELETE FROM documents
WHERE id = $1 AND user_id = $2
RETURNING ` + documentColumns

	doc, err := scanDocument(r.DB.QueryRowContext(ctx, query, documentID, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	return doc, nil
}

// ListByUser lists documents newest first, optionally filtered by a full-text query.
func (r *PGRepo) ListByUser(ctx context.Context, userID string, opts ListOptions) ([]Document, error) {
	var b strings.Builder
	b.WriteString("\nSELECT " + documentColumns + "\nFROM documents\nWHERE user_id = $1")
	args := []any{userID}

	if q := strings.TrimSpace(opts.Query); q != "" {
		args = append(args, q)
		fmt.Fprintf(&b, "\n  AND %s @@ plainto_tsquery('simple', $%d)", searchVector, len(args))
	}
	b.WriteString("\nORDER BY upload_date DESC, id")
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		fmt.Fprintf(&b, "\nLIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		fmt.Fprintf(&b, "\nOFFSET $%d", len(args))
	}

	rows, err := r.DB.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

var _ DocumentsRepo = (*PGRepo)(nil)
