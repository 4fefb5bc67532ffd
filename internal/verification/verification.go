// Package verification proves a document's authenticity from its bytes and
// HMAC signature alone, independently of signature request state.
package verification

import (
	"context"
	"errors"
	"strings"

	"github.com/dharsanguruparan/SignDrop/internal/apperr"
	"github.com/dharsanguruparan/SignDrop/internal/metrics"
	"github.com/dharsanguruparan/SignDrop/internal/model"
	"github.com/dharsanguruparan/SignDrop/internal/signing"
	"github.com/dharsanguruparan/SignDrop/internal/storage"
)

// Result is the outcome of a verification. Fingerprint is always the one
// recomputed from the supplied bytes, so callers can cross-check a catalog
// entry even when Valid is false.
type Result struct {
	Valid       bool   `json:"valid"`
	Fingerprint string `json:"fingerprint"`
}

// DocumentResult adds what is known about a stored document.
type DocumentResult struct {
	Result
	DocumentID string `json:"documentId"`
	// Recorded is the fingerprint captured at upload.
	Recorded string `json:"recordedFingerprint"`
	// Tampered is set when the stored bytes no longer hash to Recorded.
	Tampered bool `json:"tampered"`
}

// Documents resolves documents visible to a caller.
type Documents interface {
	Get(ctx context.Context, id string, caller model.Identity) (*model.Document, error)
}

// Service verifies content.
type Service struct {
	signer  *signing.Signer
	docs    Documents
	blobs   storage.Blobs
	metrics *metrics.Metrics
}

// NewService constructs a Service. docs and blobs are only needed by
// VerifyDocument; m may be nil.
func NewService(signer *signing.Signer, docs Documents, blobs storage.Blobs, m *metrics.Metrics) *Service {
	return &Service{signer: signer, docs: docs, blobs: blobs, metrics: m}
}

// Verify recomputes the fingerprint of content and checks claimedSignature
// against it.
func (s *Service) Verify(content []byte, claimedSignature string) Result {
	fp := signing.Fingerprint(content)
	valid := s.signer.Verify(fp, strings.ToLower(strings.TrimSpace(claimedSignature)))
	s.metrics.ObserveVerification(valid)
	return Result{Valid: valid, Fingerprint: fp}
}

// VerifyDocument re-reads a stored document's bytes and checks them against
// the signature issued at upload.
func (s *Service) VerifyDocument(ctx context.Context, id string, caller model.Identity) (*DocumentResult, error) {
	doc, err := s.docs.Get(ctx, id, caller)
	if err != nil {
		return nil, err
	}
	if doc.PurgedAt != nil {
		return nil, apperr.NotFound("content of document %s was purged", doc.ID)
	}
	// Missing bytes are reported as not found, while an unreachable backend
	// is a storage failure.
	ok, err := s.blobs.Exists(ctx, doc.Path)
	if err != nil {
		return nil, apperr.Storage("stat content", err)
	}
	if !ok {
		return nil, apperr.NotFound("content of document %s is missing", doc.ID)
	}
	content, err := s.blobs.Read(ctx, doc.Path)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperr.NotFound("content of document %s is missing", doc.ID)
		}
		return nil, apperr.Storage("read content", err)
	}
	res := s.Verify(content, doc.Signature)
	return &DocumentResult{
		Result:     res,
		DocumentID: doc.ID,
		Recorded:   doc.Fingerprint,
		Tampered:   res.Fingerprint != doc.Fingerprint,
	}, nil
}
