package repository

import (
	"context"
	"fmt"

	"github.com/dharsanguruparan/SignDrop/internal/model"
)

// HistoryRepository wraps the SQL of the document_history table. Rows are
// only ever inserted.
type HistoryRepository struct {
	db DBTX
}

// NewHistoryRepository constructs a repository.
func NewHistoryRepository(db DBTX) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// AppendHistory inserts one entry.
func (r *HistoryRepository) AppendHistory(ctx context.Context, entry *model.HistoryEntry) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO document_history (id, document_id, request_id, actor_id, action, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, entry.ID, entry.DocumentID, entry.RequestID, entry.ActorID, entry.Action, entry.Detail, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}
	return nil
}

// ListHistory returns the entries of a document in the order they happened.
func (r *HistoryRepository) ListHistory(ctx context.Context, documentID string) ([]model.HistoryEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, document_id, request_id, actor_id, action, detail, created_at
		FROM document_history WHERE document_id=$1
		ORDER BY created_at, seq
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	entries := []model.HistoryEntry{}
	for rows.Next() {
		var e model.HistoryEntry
		if err := rows.Scan(&e.ID, &e.DocumentID, &e.RequestID, &e.ActorID, &e.Action, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return entries, nil
}
