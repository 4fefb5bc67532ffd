package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dharsanguruparan/SignDrop/internal/model"
)

const shareColumns = `token, document_id, permission, created_by, expires_at, revoked_at, created_at`

// ShareRepository wraps the SQL of the shares table.
type ShareRepository struct {
	db DBTX
}

// NewShareRepository constructs a repository.
func NewShareRepository(db DBTX) *ShareRepository {
	return &ShareRepository{db: db}
}

// CreateShare inserts a share token.
func (r *ShareRepository) CreateShare(ctx context.Context, share *model.Share) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO shares (`+shareColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, share.Token, share.DocumentID, share.Permission, share.CreatedBy, share.ExpiresAt, share.RevokedAt, share.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert share: %w", ErrDuplicate)
		}
		return fmt.Errorf("insert share: %w", err)
	}
	return nil
}

// GetShare returns a share by token, revoked or not.
func (r *ShareRepository) GetShare(ctx context.Context, token string) (*model.Share, error) {
	share, err := scanShare(r.db.QueryRow(ctx, `SELECT `+shareColumns+` FROM shares WHERE token=$1`, token))
	if err != nil {
		return nil, fmt.Errorf("select share: %w", err)
	}
	return share, nil
}

// RevokeShare revokes an active share. Unknown or already revoked tokens
// return ErrNotFound.
func (r *ShareRepository) RevokeShare(ctx context.Context, token string, at time.Time) (*model.Share, error) {
	share, err := scanShare(r.db.QueryRow(ctx, `
		UPDATE shares SET revoked_at=$2
		WHERE token=$1 AND revoked_at IS NULL
		RETURNING `+shareColumns, token, at))
	if err != nil {
		return nil, fmt.Errorf("revoke share: %w", err)
	}
	return share, nil
}

func scanShare(row scanner) (*model.Share, error) {
	var s model.Share
	err := row.Scan(&s.Token, &s.DocumentID, &s.Permission, &s.CreatedBy, &s.ExpiresAt, &s.RevokedAt, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}
