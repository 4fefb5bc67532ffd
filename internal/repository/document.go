package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dharsanguruparan/SignDrop/internal/model"
)

const documentColumns = `id, title, path, fingerprint, signature, content_type, size, page_count,
	uploader_id, deleted_at, deleted_by, purged_at, created_at, updated_at`

// DocumentRepository wraps the SQL of the documents table.
type DocumentRepository struct {
	db DBTX
}

// NewDocumentRepository constructs a repository.
func NewDocumentRepository(db DBTX) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// CreateDocument inserts doc. A live document with the same fingerprint makes
// the partial unique index fire, which is reported as ErrDuplicate.
func (r *DocumentRepository) CreateDocument(ctx context.Context, doc *model.Document) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, doc.ID, doc.Title, doc.Path, doc.Fingerprint, doc.Signature, doc.ContentType, doc.Size, doc.PageCount,
		doc.UploaderID, doc.DeletedAt, doc.DeletedBy, doc.PurgedAt, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert document: %w", ErrDuplicate)
		}
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// GetDocument returns a document by id, deleted or not.
func (r *DocumentRepository) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	row := r.db.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id=$1`, id)
	doc, err := scanDocument(row)
	if err != nil {
		return nil, fmt.Errorf("select document: %w", err)
	}
	return doc, nil
}

// FindLiveDocumentByFingerprint returns the non-deleted document with the
// given fingerprint.
func (r *DocumentRepository) FindLiveDocumentByFingerprint(ctx context.Context, fingerprint string) (*model.Document, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE fingerprint=$1 AND deleted_at IS NULL
	`, fingerprint)
	doc, err := scanDocument(row)
	if err != nil {
		return nil, fmt.Errorf("select document by fingerprint: %w", err)
	}
	return doc, nil
}

// ListDocuments returns documents newest first.
func (r *DocumentRepository) ListDocuments(ctx context.Context, filter DocumentFilter) ([]model.Document, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE ($1 = '' OR uploader_id = $1)
		  AND ($2 OR deleted_at IS NULL)
		ORDER BY created_at DESC, id
	`, filter.UploaderID, filter.IncludeDeleted)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return collectDocuments(rows)
}

// SoftDeleteDocument marks a live document deleted. Deleting a missing or
// already deleted document returns ErrNotFound.
func (r *DocumentRepository) SoftDeleteDocument(ctx context.Context, id, by string, at time.Time) (*model.Document, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE documents
		SET deleted_at=$2, deleted_by=$3, updated_at=$2
		WHERE id=$1 AND deleted_at IS NULL
		RETURNING `+documentColumns, id, at, by)
	doc, err := scanDocument(row)
	if err != nil {
		return nil, fmt.Errorf("soft delete document: %w", err)
	}
	return doc, nil
}

// RetitleDocument updates the title of a live document. A missing or deleted
// document returns ErrNotFound.
func (r *DocumentRepository) RetitleDocument(ctx context.Context, id, title string, at time.Time) (*model.Document, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE documents
		SET title=$2, updated_at=$3
		WHERE id=$1 AND deleted_at IS NULL
		RETURNING `+documentColumns, id, title, at)
	doc, err := scanDocument(row)
	if err != nil {
		return nil, fmt.Errorf("retitle document: %w", err)
	}
	return doc, nil
}

// ListPurgeableDocuments returns documents soft-deleted before deletedBefore
// whose bytes have not been reclaimed yet, oldest first.
func (r *DocumentRepository) ListPurgeableDocuments(ctx context.Context, deletedBefore time.Time, limit int) ([]model.Document, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE deleted_at IS NOT NULL AND deleted_at < $1 AND purged_at IS NULL
		ORDER BY deleted_at
		LIMIT $2
	`, deletedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("list purgeable documents: %w", err)
	}
	return collectDocuments(rows)
}

// MarkDocumentPurged records that the bytes of a deleted document are gone.
func (r *DocumentRepository) MarkDocumentPurged(ctx context.Context, id string, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE documents SET purged_at=$2, updated_at=$2
		WHERE id=$1 AND deleted_at IS NOT NULL AND purged_at IS NULL
	`, id, at)
	if err != nil {
		return fmt.Errorf("mark document purged: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark document purged: %w", ErrNotFound)
	}
	return nil
}

func scanDocument(row scanner) (*model.Document, error) {
	var doc model.Document
	err := row.Scan(&doc.ID, &doc.Title, &doc.Path, &doc.Fingerprint, &doc.Signature, &doc.ContentType,
		&doc.Size, &doc.PageCount, &doc.UploaderID, &doc.DeletedAt, &doc.DeletedBy, &doc.PurgedAt,
		&doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &doc, nil
}

func collectDocuments(rows pgx.Rows) ([]model.Document, error) {
	defer rows.Close()
	docs := []model.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}
