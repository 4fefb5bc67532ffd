package sharing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/SignDrop/internal/apperr"
	"github.com/dharsanguruparan/SignDrop/internal/logging"
	"github.com/dharsanguruparan/SignDrop/internal/memstore"
	"github.com/dharsanguruparan/SignDrop/internal/model"
	"github.com/dharsanguruparan/SignDrop/internal/repository/repositorytest"
)

var (
	owner    = model.Identity{ID: "owner", Role: model.RoleUser}
	stranger = model.Identity{ID: "stranger", Role: model.RoleUser}
	admin    = model.Identity{ID: "root", Role: model.RoleAdmin}
)

type fixture struct {
	svc *Service
	db  *memstore.DB
	doc *model.Document
	now time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := memstore.New()
	require.NoError(t, err)
	f := &fixture{db: db, now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	f.doc = repositorytest.NewDocument(owner.ID, "fp-"+t.Name(), f.now)
	require.NoError(t, db.CreateDocument(context.Background(), f.doc))
	f.svc = NewService(db, 30*24*time.Hour, logging.NewNop())
	f.svc.now = func() time.Time { return f.now }
	return f
}

func TestCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	share, err := f.svc.Create(ctx, f.doc.ID, owner, "", 0)
	require.NoError(t, err)
	assert.Len(t, share.Token, 64)
	assert.Equal(t, model.PermissionView, share.Permission)
	assert.Equal(t, f.now.Add(DefaultTTL), share.ExpiresAt)

	other, err := f.svc.Create(ctx, f.doc.ID, admin, model.PermissionEdit, time.Hour)
	require.NoError(t, err)
	assert.NotEqual(t, share.Token, other.Token)

	history, err := f.db.ListHistory(ctx, f.doc.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, model.ActionShared, history[0].Action)
}

func TestCreateErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		doc        string
		caller     model.Identity
		permission model.Permission
		ttl        time.Duration
		expected   error
	}{
		{"unknown permission", f.doc.ID, owner, "admin", time.Hour, apperr.ErrValidation},
		{"negative ttl", f.doc.ID, owner, model.PermissionView, -time.Second, apperr.ErrValidation},
		{"ttl beyond maximum", f.doc.ID, owner, model.PermissionView, 31 * 24 * time.Hour, apperr.ErrValidation},
		{"missing document", "nope", owner, model.PermissionView, time.Hour, apperr.ErrNotFound},
		{"not the owner", f.doc.ID, stranger, model.PermissionView, time.Hour, apperr.ErrForbidden},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tc.doc, tc.caller, tc.permission, tc.ttl)
			assert.ErrorIs(t, err, tc.expected)
		})
	}
}

func TestCreateRandomFailure(t *testing.T) {
	f := newFixture(t)
	f.svc.random = func([]byte) (int, error) { return 0, errors.New("entropy exhausted") }
	_, err := f.svc.Create(context.Background(), f.doc.ID, owner, model.PermissionView, time.Hour)
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view, err := f.svc.Create(ctx, f.doc.ID, owner, model.PermissionView, time.Hour)
	require.NoError(t, err)
	edit, err := f.svc.Create(ctx, f.doc.ID, owner, model.PermissionEdit, time.Hour)
	require.NoError(t, err)

	_, doc, err := f.svc.Resolve(ctx, view.Token, model.PermissionView)
	require.NoError(t, err)
	assert.Equal(t, f.doc.ID, doc.ID)

	_, _, err = f.svc.Resolve(ctx, view.Token, model.PermissionEdit)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, _, err = f.svc.Resolve(ctx, edit.Token, model.PermissionView)
	assert.NoError(t, err, "edit implies view")

	_, _, err = f.svc.Resolve(ctx, "unknown", model.PermissionView)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, _, err = f.svc.Resolve(ctx, "", model.PermissionView)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	f.now = f.now.Add(time.Hour)
	_, _, err = f.svc.Resolve(ctx, view.Token, model.PermissionView)
	assert.ErrorIs(t, err, apperr.ErrForbidden, "expired at exactly expiresAt")
}

func TestResolveDeletedDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	share, err := f.svc.Create(ctx, f.doc.ID, owner, model.PermissionView, time.Hour)
	require.NoError(t, err)

	_, err = f.db.SoftDeleteDocument(ctx, f.doc.ID, admin.ID, f.now)
	require.NoError(t, err)
	_, _, err = f.svc.Resolve(ctx, share.Token, model.PermissionView)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRevoke(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	share, err := f.svc.Create(ctx, f.doc.ID, admin, model.PermissionView, time.Hour)
	require.NoError(t, err)

	_, err = f.svc.Revoke(ctx, share.Token, stranger)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	revoked, err := f.svc.Revoke(ctx, share.Token, owner)
	require.NoError(t, err, "the uploader may revoke shares others created")
	assert.NotNil(t, revoked.RevokedAt)

	_, _, err = f.svc.Resolve(ctx, share.Token, model.PermissionView)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.svc.Revoke(ctx, share.Token, owner)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = f.svc.Revoke(ctx, "unknown", owner)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
