package memstore

import (
	"github.com/hashicorp/go-memdb"

	"github.com/dharsanguruparan/SignDrop/internal/model"
)

var (
	tblUsers     = "users"
	tblDocuments = "documents"
	tblRequests  = "requests"
	tblHistory   = "history"
	tblShares    = "shares"
)

// memdb indexes are lookup structures only: a second Insert with the same
// value on a non-id "unique" index silently replaces the entry. Uniqueness of
// live fingerprints and emails is therefore checked inside the write txn
// before inserting.
var schema = &memdb.DBSchema{
	Tables: map[string]*memdb.TableSchema{
		tblUsers: {
			Name: tblUsers,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "ID"},
				},
				"email": {
					Name:    "email",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "Email", Lowercase: true},
				},
			},
		},
		tblDocuments: {
			Name: tblDocuments,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "ID"},
				},
				"live_fingerprint": {
					Name:         "live_fingerprint",
					Unique:       true,
					AllowMissing: true,
					Indexer:      &memdb.StringFieldIndex{Field: "LiveFingerprint"},
				},
				"uploader_id": {
					Name:    "uploader_id",
					Indexer: &memdb.StringFieldIndex{Field: "UploaderID"},
				},
			},
		},
		tblRequests: {
			Name: tblRequests,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "ID"},
				},
				"document_id": {
					Name:    "document_id",
					Indexer: &memdb.StringFieldIndex{Field: "DocumentID"},
				},
				"signer_id": {
					Name:    "signer_id",
					Indexer: &memdb.StringFieldIndex{Field: "SignerID"},
				},
			},
		},
		tblHistory: {
			Name: tblHistory,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "ID"},
				},
				"document_id": {
					Name:    "document_id",
					Indexer: &memdb.StringFieldIndex{Field: "DocumentID"},
				},
			},
		},
		tblShares: {
			Name: tblShares,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "Token"},
				},
			},
		},
	},
}

type userRow struct {
	ID    string
	Email string
	User  model.User
}

// documentRow mirrors the partial unique index of the Postgres schema:
// LiveFingerprint is empty once the document is soft-deleted, which takes it
// out of the live_fingerprint index.
type documentRow struct {
	ID              string
	LiveFingerprint string
	UploaderID      string
	Doc             model.Document
}

type requestRow struct {
	ID         string
	DocumentID string
	SignerID   string
	Req        model.SignatureRequest
}

type historyRow struct {
	ID         string
	DocumentID string
	Seq        uint64
	Entry      model.HistoryEntry
}

type shareRow struct {
	Token string
	Share model.Share
}

func newDocumentRow(doc model.Document) *documentRow {
	row := &documentRow{ID: doc.ID, UploaderID: doc.UploaderID, Doc: doc}
	if !doc.Deleted() {
		row.LiveFingerprint = doc.Fingerprint
	}
	return row
}
