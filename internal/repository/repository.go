// Package repository defines the persistence contracts of SignDrop and their
// Postgres implementation. The in-memory implementation lives in memstore.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dharsanguruparan/SignDrop/internal/model"
)

var (
	// ErrNotFound is returned when no row matches.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when an insert violates a unique constraint,
	// e.g. a second live document with the same fingerprint.
	ErrDuplicate = errors.New("duplicate record")
	// ErrNotPending is returned by ResolveRequest when the request exists but
	// already left the pending state.
	ErrNotPending = errors.New("request is not pending")
)

// DocumentFilter narrows ListDocuments. An empty UploaderID lists every
// uploader.
type DocumentFilter struct {
	UploaderID     string
	IncludeDeleted bool
}

// Documents persists document records.
type Documents interface {
	CreateDocument(ctx context.Context, doc *model.Document) error
	GetDocument(ctx context.Context, id string) (*model.Document, error)
	FindLiveDocumentByFingerprint(ctx context.Context, fingerprint string) (*model.Document, error)
	ListDocuments(ctx context.Context, filter DocumentFilter) ([]model.Document, error)
	SoftDeleteDocument(ctx context.Context, id, by string, at time.Time) (*model.Document, error)
	// RetitleDocument changes the title of a live document.
	RetitleDocument(ctx context.Context, id, title string, at time.Time) (*model.Document, error)
	ListPurgeableDocuments(ctx context.Context, deletedBefore time.Time, limit int) ([]model.Document, error)
	MarkDocumentPurged(ctx context.Context, id string, at time.Time) error
}

// Requests persists signature requests.
type Requests interface {
	CreateRequest(ctx context.Context, req *model.SignatureRequest) error
	GetRequest(ctx context.Context, id string) (*model.SignatureRequest, error)
	// ResolveRequest applies res only if the request is still pending. It
	// returns ErrNotPending when another transition won, ErrNotFound when the
	// request does not exist.
	ResolveRequest(ctx context.Context, res model.Resolution) (*model.SignatureRequest, error)
	ListRequestsForUser(ctx context.Context, userID string) ([]model.SignatureRequest, error)
	ListRequestsForDocument(ctx context.Context, documentID string) ([]model.SignatureRequest, error)
	AggregateRequests(ctx context.Context, documentID string) (model.Aggregate, error)
}

// History persists the append-only document history.
type History interface {
	AppendHistory(ctx context.Context, entry *model.HistoryEntry) error
	ListHistory(ctx context.Context, documentID string) ([]model.HistoryEntry, error)
}

// Shares persists share tokens.
type Shares interface {
	CreateShare(ctx context.Context, share *model.Share) error
	GetShare(ctx context.Context, token string) (*model.Share, error)
	RevokeShare(ctx context.Context, token string, at time.Time) (*model.Share, error)
}

// Users persists the user directory.
type Users interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUser(ctx context.Context, id string) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
}

// Store is the full persistence surface used by the services.
type Store interface {
	Documents
	Requests
	History
	Shares
	Users
}

// DBTX is the subset of pgx used by the repositories. *pgxpool.Pool,
// *pgx.Conn and pgx.Tx all satisfy it.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// uniqueViolation is the Postgres SQLSTATE for unique_violation.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

type scanner interface {
	Scan(dest ...any) error
}

// PostgresStore implements Store on top of a pgx connection pool.
type PostgresStore struct {
	*DocumentRepository
	*RequestRepository
	*HistoryRepository
	*ShareRepository
	*UserRepository
}

// NewPostgresStore wires every repository to db.
func NewPostgresStore(db DBTX) *PostgresStore {
	return &PostgresStore{
		DocumentRepository: NewDocumentRepository(db),
		RequestRepository:  NewRequestRepository(db),
		HistoryRepository:  NewHistoryRepository(db),
		ShareRepository:    NewShareRepository(db),
		UserRepository:     NewUserRepository(db),
	}
}

var _ Store = (*PostgresStore)(nil)
