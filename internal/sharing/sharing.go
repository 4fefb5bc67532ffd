// Package sharing issues bearer tokens that grant time-limited view or edit
// access to a single document without an account.
package sharing

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dharsanguruparan/SignDrop/internal/apperr"
	"github.com/dharsanguruparan/SignDrop/internal/logging"
	"github.com/dharsanguruparan/SignDrop/internal/model"
	"github.com/dharsanguruparan/SignDrop/internal/repository"
)

// DefaultTTL applies when Create is given no ttl, capped at the maximum.
const DefaultTTL = 7 * 24 * time.Hour

const tokenBytes = 32

// Repository is the persistence sharing needs.
type Repository interface {
	repository.Documents
	repository.Shares
	repository.History
}

// Service manages share tokens.
type Service struct {
	repo   Repository
	maxTTL time.Duration
	logger logging.Logger
	now    func() time.Time
	random func([]byte) (int, error)
}

// NewService constructs a Service. Shares may not outlive maxTTL.
func NewService(repo Repository, maxTTL time.Duration, logger logging.Logger) *Service {
	return &Service{repo: repo, maxTTL: maxTTL, logger: logger, now: time.Now, random: rand.Read}
}

// Create shares a live document. Only its uploader or an elevated role may
// share it.
func (s *Service) Create(ctx context.Context, documentID string, caller model.Identity, permission model.Permission, ttl time.Duration) (*model.Share, error) {
	if permission == "" {
		permission = model.PermissionView
	}
	if !permission.Valid() {
		return nil, apperr.Validation("unknown permission %q", permission)
	}
	if ttl < 0 {
		return nil, apperr.Validation("ttl must be positive")
	}
	if ttl == 0 {
		ttl = DefaultTTL
		if s.maxTTL > 0 && ttl > s.maxTTL {
			ttl = s.maxTTL
		}
	}
	if s.maxTTL > 0 && ttl > s.maxTTL {
		return nil, apperr.Validation("ttl exceeds the maximum of %s", s.maxTTL)
	}

	doc, err := s.liveDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if !doc.VisibleTo(caller) {
		return nil, apperr.Forbidden("only the uploader or an elevated role can share this document")
	}

	token, err := s.newToken()
	if err != nil {
		return nil, fmt.Errorf("generate share token: %w", err)
	}
	now := s.now().UTC()
	share := &model.Share{
		Token:      token,
		DocumentID: doc.ID,
		Permission: permission,
		CreatedBy:  caller.ID,
		ExpiresAt:  now.Add(ttl),
		CreatedAt:  now,
	}
	if err := s.repo.CreateShare(ctx, share); err != nil {
		return nil, apperr.Storage("create share", err)
	}
	s.record(ctx, doc.ID, caller.ID, model.ActionShared, string(permission))
	return share, nil
}

// Resolve checks a presented token for the need tier and returns the share
// with its document.
func (s *Service) Resolve(ctx context.Context, token string, need model.Permission) (*model.Share, *model.Document, error) {
	if token == "" {
		return nil, nil, apperr.NotFound("share")
	}
	share, err := s.repo.GetShare(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, apperr.NotFound("share")
		}
		return nil, nil, apperr.Storage("get share", err)
	}
	if share.RevokedAt != nil {
		return nil, nil, apperr.NotFound("share")
	}
	if share.Expired(s.now()) {
		return nil, nil, apperr.Forbidden("share expired at %s", share.ExpiresAt.Format(time.RFC3339))
	}
	if !share.Permission.Allows(need) {
		return nil, nil, apperr.Forbidden("share grants %s, not %s", share.Permission, need)
	}
	doc, err := s.liveDocument(ctx, share.DocumentID)
	if err != nil {
		return nil, nil, err
	}
	return share, doc, nil
}

// Revoke disables a share. Its creator, the document's uploader and
// elevated roles may revoke.
func (s *Service) Revoke(ctx context.Context, token string, caller model.Identity) (*model.Share, error) {
	share, err := s.repo.GetShare(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("share")
		}
		return nil, apperr.Storage("get share", err)
	}
	if share.CreatedBy != caller.ID && !caller.Role.Elevated() {
		doc, err := s.repo.GetDocument(ctx, share.DocumentID)
		if err != nil || doc.UploaderID != caller.ID {
			return nil, apperr.Forbidden("cannot revoke this share")
		}
	}
	revoked, err := s.repo.RevokeShare(ctx, token, s.now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("share")
		}
		return nil, apperr.Storage("revoke share", err)
	}
	s.record(ctx, revoked.DocumentID, caller.ID, model.ActionShareRevoked, "")
	return revoked, nil
}

func (s *Service) newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := s.random(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func (s *Service) liveDocument(ctx context.Context, id string) (*model.Document, error) {
	doc, err := s.repo.GetDocument(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("document %s", id)
		}
		return nil, apperr.Storage("get document", err)
	}
	if doc.Deleted() {
		return nil, apperr.NotFound("document %s", id)
	}
	return doc, nil
}

func (s *Service) record(ctx context.Context, documentID, actorID string, action model.Action, detail string) {
	entry := &model.HistoryEntry{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		ActorID:    actorID,
		Action:     action,
		Detail:     detail,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.repo.AppendHistory(ctx, entry); err != nil {
		s.logger.Warnw("append history failed", "document", documentID, "action", action, "error", err)
	}
}
