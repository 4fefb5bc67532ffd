package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dharsanguruparan/SignDrop/internal/model"
)

const requestColumns = `r.id, r.document_id, r.signer_id, r.requested_by, r.page, r.x, r.y, r.width, r.height,
	r.font_size, r.type, r.text, r.status, r.signed, r.notes, r.created_at, r.signed_at, r.rejected_at`

// RequestRepository wraps the SQL of the signature_requests table.
type RequestRepository struct {
	db DBTX
}

// NewRequestRepository constructs a repository.
func NewRequestRepository(db DBTX) *RequestRepository {
	return &RequestRepository{db: db}
}

// CreateRequest inserts a new request.
func (r *RequestRepository) CreateRequest(ctx context.Context, req *model.SignatureRequest) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO signature_requests (id, document_id, signer_id, requested_by, page, x, y, width, height,
			font_size, type, text, status, signed, notes, created_at, signed_at, rejected_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
	`, req.ID, req.DocumentID, req.SignerID, req.RequestedBy, req.Page, req.X, req.Y, req.Width, req.Height,
		req.FontSize, req.Type, req.Text, req.Status, req.Signed, req.Notes, req.CreatedAt, req.SignedAt, req.RejectedAt)
	if err != nil {
		return fmt.Errorf("insert signature request: %w", err)
	}
	return nil
}

// GetRequest returns a request by id.
func (r *RequestRepository) GetRequest(ctx context.Context, id string) (*model.SignatureRequest, error) {
	row := r.db.QueryRow(ctx, `SELECT `+requestColumns+` FROM signature_requests r WHERE r.id=$1`, id)
	req, err := scanRequest(row)
	if err != nil {
		return nil, fmt.Errorf("select signature request: %w", err)
	}
	return req, nil
}

// ResolveRequest moves a pending request to a terminal state with one
// conditional UPDATE, so exactly one of two racing transitions succeeds.
func (r *RequestRepository) ResolveRequest(ctx context.Context, res model.Resolution) (*model.SignatureRequest, error) {
	if !res.Status.Terminal() {
		return nil, fmt.Errorf("resolve signature request: invalid target status %q", res.Status)
	}
	signed := res.Status == model.StatusSigned
	row := r.db.QueryRow(ctx, `
		UPDATE signature_requests r
		SET status=$2,
			signed=$3,
			notes=COALESCE($4, r.notes),
			signed_at=CASE WHEN $3 THEN $5::timestamptz ELSE r.signed_at END,
			rejected_at=CASE WHEN $3 THEN r.rejected_at ELSE $5::timestamptz END
		WHERE r.id=$1 AND r.status='pending'
		RETURNING `+requestColumns,
		res.RequestID, res.Status, signed, res.Notes, res.At)
	req, err := scanRequest(row)
	if err == nil {
		return req, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("resolve signature request: %w", err)
	}

	// Nothing matched: either the id is unknown or another transition won.
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM signature_requests WHERE id=$1)`, res.RequestID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("resolve signature request: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("resolve signature request: %w", ErrNotPending)
	}
	return nil, fmt.Errorf("resolve signature request: %w", ErrNotFound)
}

// ListRequestsForUser returns the requests a user must act on or that target
// documents they uploaded, skipping deleted documents, newest first.
func (r *RequestRepository) ListRequestsForUser(ctx context.Context, userID string) ([]model.SignatureRequest, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+requestColumns+`
		FROM signature_requests r
		JOIN documents d ON d.id = r.document_id
		WHERE d.deleted_at IS NULL AND (r.signer_id=$1 OR d.uploader_id=$1)
		ORDER BY r.created_at DESC, r.id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list requests for user: %w", err)
	}
	return collectRequests(rows)
}

// ListRequestsForDocument returns the requests of one document, oldest first.
func (r *RequestRepository) ListRequestsForDocument(ctx context.Context, documentID string) ([]model.SignatureRequest, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+requestColumns+`
		FROM signature_requests r
		WHERE r.document_id=$1
		ORDER BY r.created_at, r.id
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list requests for document: %w", err)
	}
	return collectRequests(rows)
}

// AggregateRequests counts the requests of a document by status in a single
// statement, so the counts come from one snapshot.
func (r *RequestRepository) AggregateRequests(ctx context.Context, documentID string) (model.Aggregate, error) {
	var agg model.Aggregate
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status='signed'),
			COUNT(*) FILTER (WHERE status='pending'),
			COUNT(*) FILTER (WHERE status='rejected')
		FROM signature_requests WHERE document_id=$1
	`, documentID).Scan(&agg.Total, &agg.Signed, &agg.Pending, &agg.Rejected)
	if err != nil {
		return model.Aggregate{}, fmt.Errorf("aggregate signature requests: %w", err)
	}
	return agg, nil
}

func scanRequest(row scanner) (*model.SignatureRequest, error) {
	var req model.SignatureRequest
	err := row.Scan(&req.ID, &req.DocumentID, &req.SignerID, &req.RequestedBy, &req.Page, &req.X, &req.Y,
		&req.Width, &req.Height, &req.FontSize, &req.Type, &req.Text, &req.Status, &req.Signed, &req.Notes,
		&req.CreatedAt, &req.SignedAt, &req.RejectedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &req, nil
}

func collectRequests(rows pgx.Rows) ([]model.SignatureRequest, error) {
	defer rows.Close()
	reqs := []model.SignatureRequest{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan signature request: %w", err)
		}
		reqs = append(reqs, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signature requests: %w", err)
	}
	return reqs, nil
}
