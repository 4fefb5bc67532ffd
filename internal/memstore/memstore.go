// Package memstore implements repository.Store in memory on go-memdb. It
// backs development runs without Postgres and the service tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-memdb"

	"github.com/dharsanguruparan/SignDrop/internal/model"
	"github.com/dharsanguruparan/SignDrop/internal/repository"
)

// DB is an in-memory repository.Store. memdb serializes write transactions,
// so a lookup followed by an insert inside one write txn is atomic.
type DB struct {
	db         *memdb.MemDB
	historySeq atomic.Uint64
}

var _ repository.Store = (*DB)(nil)

// New returns an empty in-memory store.
func New() (*DB, error) {
	db, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, fmt.Errorf("new memdb: %w", err)
	}
	return &DB{db: db}, nil
}

// CreateDocument inserts doc unless a live document has the same fingerprint.
func (d *DB) CreateDocument(_ context.Context, doc *model.Document) error {
	txn := d.db.Txn(true)
	defer txn.Abort()

	if existing, err := txn.First(tblDocuments, "id", doc.ID); err != nil {
		return fmt.Errorf("insert document: %w", err)
	} else if existing != nil {
		return fmt.Errorf("insert document %s: %w", doc.ID, repository.ErrDuplicate)
	}
	if !doc.Deleted() {
		existing, err := txn.First(tblDocuments, "live_fingerprint", doc.Fingerprint)
		if err != nil {
			return fmt.Errorf("insert document: %w", err)
		}
		if existing != nil {
			return fmt.Errorf("insert document: %w", repository.ErrDuplicate)
		}
	}
	if err := txn.Insert(tblDocuments, newDocumentRow(*doc)); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	txn.Commit()
	return nil
}

// GetDocument returns a document by id, deleted or not.
func (d *DB) GetDocument(_ context.Context, id string) (*model.Document, error) {
	txn := d.db.Txn(false)
	defer txn.Abort()

	row, err := getDocumentRow(txn, id)
	if err != nil {
		return nil, fmt.Errorf("select document: %w", err)
	}
	doc := row.Doc
	return &doc, nil
}

// FindLiveDocumentByFingerprint returns the live document with fingerprint.
func (d *DB) FindLiveDocumentByFingerprint(_ context.Context, fingerprint string) (*model.Document, error) {
	if fingerprint == "" {
		return nil, fmt.Errorf("select document by fingerprint: %w", repository.ErrNotFound)
	}
	txn := d.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tblDocuments, "live_fingerprint", fingerprint)
	if err != nil {
		return nil, fmt.Errorf("select document by fingerprint: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("select document by fingerprint: %w", repository.ErrNotFound)
	}
	doc := raw.(*documentRow).Doc
	return &doc, nil
}

// ListDocuments returns documents newest first.
func (d *DB) ListDocuments(_ context.Context, filter repository.DocumentFilter) ([]model.Document, error) {
	txn := d.db.Txn(false)
	defer txn.Abort()

	var (
		iter memdb.ResultIterator
		err  error
	)
	if filter.UploaderID != "" {
		iter, err = txn.Get(tblDocuments, "uploader_id", filter.UploaderID)
	} else {
		iter, err = txn.Get(tblDocuments, "id")
	}
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	docs := []model.Document{}
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		doc := raw.(*documentRow).Doc
		if doc.Deleted() && !filter.IncludeDeleted {
			continue
		}
		docs = append(docs, doc)
	}
	sort.SliceStable(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.After(docs[j].CreatedAt)
		}
		return docs[i].ID < docs[j].ID
	})
	return docs, nil
}

// SoftDeleteDocument marks a live document deleted.
func (d *DB) SoftDeleteDocument(_ context.Context, id, by string, at time.Time) (*model.Document, error) {
	txn := d.db.Txn(true)
	defer txn.Abort()

	row, err := getDocumentRow(txn, id)
	if err != nil {
		return nil, fmt.Errorf("soft delete document: %w", err)
	}
	if row.Doc.Deleted() {
		return nil, fmt.Errorf("soft delete document: %w", repository.ErrNotFound)
	}

	doc := row.Doc
	doc.DeletedAt = &at
	doc.DeletedBy = &by
	doc.UpdatedAt = at
	if err := txn.Insert(tblDocuments, newDocumentRow(doc)); err != nil {
		return nil, fmt.Errorf("soft delete document: %w", err)
	}
	txn.Commit()
	return &doc, nil
}

// RetitleDocument updates the title of a live document.
func (d *DB) RetitleDocument(_ context.Context, id, title string, at time.Time) (*model.Document, error) {
	txn := d.db.Txn(true)
	defer txn.Abort()

	row, err := getDocumentRow(txn, id)
	if err != nil {
		return nil, fmt.Errorf("retitle document: %w", err)
	}
	if row.Doc.Deleted() {
		return nil, fmt.Errorf("retitle document: %w", repository.ErrNotFound)
	}

	doc := row.Doc
	doc.Title = title
	doc.UpdatedAt = at
	if err := txn.Insert(tblDocuments, newDocumentRow(doc)); err != nil {
		return nil, fmt.Errorf("retitle document: %w", err)
	}
	txn.Commit()
	return &doc, nil
}

// ListPurgeableDocuments returns documents deleted before deletedBefore whose
// bytes are still present, oldest deletion first.
func (d *DB) ListPurgeableDocuments(_ context.Context, deletedBefore time.Time, limit int) ([]model.Document, error) {
	txn := d.db.Txn(false)
	defer txn.Abort()

	iter, err := txn.Get(tblDocuments, "id")
	if err != nil {
		return nil, fmt.Errorf("list purgeable documents: %w", err)
	}
	docs := []model.Document{}
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		doc := raw.(*documentRow).Doc
		if doc.DeletedAt != nil && doc.DeletedAt.Before(deletedBefore) && doc.PurgedAt == nil {
			docs = append(docs, doc)
		}
	}
	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].DeletedAt.Before(*docs[j].DeletedAt)
	})
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

// MarkDocumentPurged records that the bytes of a deleted document are gone.
func (d *DB) MarkDocumentPurged(_ context.Context, id string, at time.Time) error {
	txn := d.db.Txn(true)
	defer txn.Abort()

	row, err := getDocumentRow(txn, id)
	if err != nil {
		return fmt.Errorf("mark document purged: %w", err)
	}
	if !row.Doc.Deleted() || row.Doc.PurgedAt != nil {
		return fmt.Errorf("mark document purged: %w", repository.ErrNotFound)
	}
	doc := row.Doc
	doc.PurgedAt = &at
	doc.UpdatedAt = at
	if err := txn.Insert(tblDocuments, newDocumentRow(doc)); err != nil {
		return fmt.Errorf("mark document purged: %w", err)
	}
	txn.Commit()
	return nil
}

func getDocumentRow(txn *memdb.Txn, id string) (*documentRow, error) {
	raw, err := txn.First(tblDocuments, "id", id)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, repository.ErrNotFound
	}
	return raw.(*documentRow), nil
}

// CreateRequest inserts a request.
func (d *DB) CreateRequest(_ context.Context, req *model.SignatureRequest) error {
	txn := d.db.Txn(true)
	defer txn.Abort()

	if existing, err := txn.First(tblRequests, "id", req.ID); err != nil {
		return fmt.Errorf("insert signature request: %w", err)
	} else if existing != nil {
		return fmt.Errorf("insert signature request %s: %w", req.ID, repository.ErrDuplicate)
	}
	row := &requestRow{ID: req.ID, DocumentID: req.DocumentID, SignerID: req.SignerID, Req: *req}
	if err := txn.Insert(tblRequests, row); err != nil {
		return fmt.Errorf("insert signature request: %w", err)
	}
	txn.Commit()
	return nil
}

// GetRequest returns a request by id.
func (d *DB) GetRequest(_ context.Context, id string) (*model.SignatureRequest, error) {
	txn := d.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tblRequests, "id", id)
	if err != nil {
		return nil, fmt.Errorf("select signature request: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("select signature request: %w", repository.ErrNotFound)
	}
	req := raw.(*requestRow).Req
	return &req, nil
}

// ResolveRequest applies res if the request is still pending. The check and
// the write share one write txn.
func (d *DB) ResolveRequest(_ context.Context, res model.Resolution) (*model.SignatureRequest, error) {
	if !res.Status.Terminal() {
		return nil, fmt.Errorf("resolve signature request: invalid target status %q", res.Status)
	}
	txn := d.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tblRequests, "id", res.RequestID)
	if err != nil {
		return nil, fmt.Errorf("resolve signature request: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("resolve signature request: %w", repository.ErrNotFound)
	}
	row := raw.(*requestRow)
	if row.Req.Status != model.StatusPending {
		return nil, fmt.Errorf("resolve signature request: %w", repository.ErrNotPending)
	}

	req := row.Req
	req.Status = res.Status
	if res.Notes != nil {
		req.Notes = res.Notes
	}
	at := res.At
	if res.Status == model.StatusSigned {
		req.Signed = true
		req.SignedAt = &at
	} else {
		req.RejectedAt = &at
	}
	if err := txn.Insert(tblRequests, &requestRow{ID: req.ID, DocumentID: req.DocumentID, SignerID: req.SignerID, Req: req}); err != nil {
		return nil, fmt.Errorf("resolve signature request: %w", err)
	}
	txn.Commit()
	return &req, nil
}

// ListRequestsForUser returns requests on live documents that the user must
// sign or that target documents they uploaded, newest first.
func (d *DB) ListRequestsForUser(_ context.Context, userID string) ([]model.SignatureRequest, error) {
	txn := d.db.Txn(false)
	defer txn.Abort()

	iter, err := txn.Get(tblRequests, "id")
	if err != nil {
		return nil, fmt.Errorf("list requests for user: %w", err)
	}
	reqs := []model.SignatureRequest{}
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		req := raw.(*requestRow).Req
		docRow, err := getDocumentRow(txn, req.DocumentID)
		if err != nil {
			continue
		}
		if docRow.Doc.Deleted() {
			continue
		}
		if req.SignerID == userID || docRow.Doc.UploaderID == userID {
			reqs = append(reqs, req)
		}
	}
	sort.SliceStable(reqs, func(i, j int) bool {
		if !reqs[i].CreatedAt.Equal(reqs[j].CreatedAt) {
			return reqs[i].CreatedAt.After(reqs[j].CreatedAt)
		}
		return reqs[i].ID < reqs[j].ID
	})
	return reqs, nil
}

// ListRequestsForDocument returns the requests of a document, oldest first.
func (d *DB) ListRequestsForDocument(_ context.Context, documentID string) ([]model.SignatureRequest, error) {
	txn := d.db.Txn(false)
	defer txn.Abort()

	reqs, err := requestsOf(txn, documentID)
	if err != nil {
		return nil, fmt.Errorf("list requests for document: %w", err)
	}
	sort.SliceStable(reqs, func(i, j int) bool {
		if !reqs[i].CreatedAt.Equal(reqs[j].CreatedAt) {
			return reqs[i].CreatedAt.Before(reqs[j].CreatedAt)
		}
		return reqs[i].ID < reqs[j].ID
	})
	return reqs, nil
}

// AggregateRequests counts the requests of a document from one read txn
// snapshot.
func (d *DB) AggregateRequests(_ context.Context, documentID string) (model.Aggregate, error) {
	txn := d.db.Txn(false)
	defer txn.Abort()

	reqs, err := requestsOf(txn, documentID)
	if err != nil {
		return model.Aggregate{}, fmt.Errorf("aggregate signature requests: %w", err)
	}
	var agg model.Aggregate
	for _, r := range reqs {
		agg.Add(r.Status)
	}
	return agg, nil
}

func requestsOf(txn *memdb.Txn, documentID string) ([]model.SignatureRequest, error) {
	iter, err := txn.Get(tblRequests, "document_id", documentID)
	if err != nil {
		return nil, err
	}
	reqs := []model.SignatureRequest{}
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		reqs = append(reqs, raw.(*requestRow).Req)
	}
	return reqs, nil
}

// AppendHistory inserts one entry.
func (d *DB) AppendHistory(_ context.Context, entry *model.HistoryEntry) error {
	txn := d.db.Txn(true)
	defer txn.Abort()

	row := &historyRow{ID: entry.ID, DocumentID: entry.DocumentID, Seq: d.historySeq.Add(1), Entry: *entry}
	if err := txn.Insert(tblHistory, row); err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}
	txn.Commit()
	return nil
}

// ListHistory returns the entries of a document in the order they happened.
func (d *DB) ListHistory(_ context.Context, documentID string) ([]model.HistoryEntry, error) {
	txn := d.db.Txn(false)
	defer txn.Abort()

	iter, err := txn.Get(tblHistory, "document_id", documentID)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	var rows []*historyRow
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		rows = append(rows, raw.(*historyRow))
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].Entry.CreatedAt.Equal(rows[j].Entry.CreatedAt) {
			return rows[i].Entry.CreatedAt.Before(rows[j].Entry.CreatedAt)
		}
		return rows[i].Seq < rows[j].Seq
	})
	entries := make([]model.HistoryEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, r.Entry)
	}
	return entries, nil
}

// CreateShare inserts a share token.
func (d *DB) CreateShare(_ context.Context, share *model.Share) error {
	txn := d.db.Txn(true)
	defer txn.Abort()

	if existing, err := txn.First(tblShares, "id", share.Token); err != nil {
		return fmt.Errorf("insert share: %w", err)
	} else if existing != nil {
		return fmt.Errorf("insert share: %w", repository.ErrDuplicate)
	}
	if err := txn.Insert(tblShares, &shareRow{Token: share.Token, Share: *share}); err != nil {
		return fmt.Errorf("insert share: %w", err)
	}
	txn.Commit()
	return nil
}

// GetShare returns a share by token.
func (d *DB) GetShare(_ context.Context, token string) (*model.Share, error) {
	txn := d.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tblShares, "id", token)
	if err != nil {
		return nil, fmt.Errorf("select share: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("select share: %w", repository.ErrNotFound)
	}
	share := raw.(*shareRow).Share
	return &share, nil
}

// RevokeShare revokes an active share.
func (d *DB) RevokeShare(_ context.Context, token string, at time.Time) (*model.Share, error) {
	txn := d.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tblShares, "id", token)
	if err != nil {
		return nil, fmt.Errorf("revoke share: %w", err)
	}
	if raw == nil || raw.(*shareRow).Share.RevokedAt != nil {
		return nil, fmt.Errorf("revoke share: %w", repository.ErrNotFound)
	}
	share := raw.(*shareRow).Share
	share.RevokedAt = &at
	if err := txn.Insert(tblShares, &shareRow{Token: token, Share: share}); err != nil {
		return nil, fmt.Errorf("revoke share: %w", err)
	}
	txn.Commit()
	return &share, nil
}

// CreateUser inserts a user. Emails are unique regardless of case.
func (d *DB) CreateUser(_ context.Context, user *model.User) error {
	txn := d.db.Txn(true)
	defer txn.Abort()

	if existing, err := txn.First(tblUsers, "id", user.ID); err != nil {
		return fmt.Errorf("insert user: %w", err)
	} else if existing != nil {
		return fmt.Errorf("insert user %s: %w", user.ID, repository.ErrDuplicate)
	}
	existing, err := txn.First(tblUsers, "email", strings.ToLower(user.Email))
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	if existing != nil {
		return fmt.Errorf("insert user %s: %w", user.Email, repository.ErrDuplicate)
	}
	if err := txn.Insert(tblUsers, &userRow{ID: user.ID, Email: user.Email, User: *user}); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	txn.Commit()
	return nil
}

// GetUser returns a user by id.
func (d *DB) GetUser(_ context.Context, id string) (*model.User, error) {
	txn := d.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tblUsers, "id", id)
	if err != nil {
		return nil, fmt.Errorf("select user: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("select user: %w", repository.ErrNotFound)
	}
	user := raw.(*userRow).User
	return &user, nil
}

// ListUsers returns every user ordered by name.
func (d *DB) ListUsers(_ context.Context) ([]model.User, error) {
	txn := d.db.Txn(false)
	defer txn.Abort()

	iter, err := txn.Get(tblUsers, "id")
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	users := []model.User{}
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		users = append(users, raw.(*userRow).User)
	}
	sort.SliceStable(users, func(i, j int) bool {
		if users[i].Name != users[j].Name {
			return users[i].Name < users[j].Name
		}
		return users[i].ID < users[j].ID
	})
	return users, nil
}
