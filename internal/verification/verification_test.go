package verification

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/SignDrop/internal/apperr"
	"github.com/dharsanguruparan/SignDrop/internal/documents"
	"github.com/dharsanguruparan/SignDrop/internal/logging"
	"github.com/dharsanguruparan/SignDrop/internal/memstore"
	"github.com/dharsanguruparan/SignDrop/internal/model"
	"github.com/dharsanguruparan/SignDrop/internal/signing"
	"github.com/dharsanguruparan/SignDrop/internal/storage"
)

var owner = model.Identity{ID: "owner", Role: model.RoleUser}

func newSigner(t *testing.T) *signing.Signer {
	t.Helper()
	s, err := signing.NewSigner([]byte("verification-secret-value"))
	require.NoError(t, err)
	return s
}

func TestVerify(t *testing.T) {
	signer := newSigner(t)
	svc := NewService(signer, nil, nil, nil)
	content := []byte("the quick brown fox")
	fp := signing.Fingerprint(content)

	tests := []struct {
		name     string
		content  []byte
		claimed  string
		expected bool
	}{
		{"matching", content, signer.Sign(fp), true},
		{"upper case hex", content, strings.ToUpper(signer.Sign(fp)), true},
		{"altered content", []byte("the quick brown fix"), signer.Sign(fp), false},
		{"garbage signature", content, "not-hex", false},
		{"empty signature", content, "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := svc.Verify(tc.content, tc.claimed)
			assert.Equal(t, tc.expected, res.Valid)
			assert.Equal(t, signing.Fingerprint(tc.content), res.Fingerprint, "fingerprint is reported either way")
		})
	}
}

func TestVerifyOtherSecret(t *testing.T) {
	other, err := signing.NewSigner([]byte("a-different-secret-value"))
	require.NoError(t, err)
	content := []byte("payload")

	res := NewService(newSigner(t), nil, nil, nil).Verify(content, other.Sign(signing.Fingerprint(content)))
	assert.False(t, res.Valid)
}

func TestVerifyDocument(t *testing.T) {
	ctx := context.Background()
	db, err := memstore.New()
	require.NoError(t, err)
	blobs := storage.NewMemoryStore()
	signer := newSigner(t)
	docs := documents.NewService(db, blobs, signer, logging.NewNop(), nil, documents.Options{})
	svc := NewService(signer, docs, blobs, nil)

	up, err := docs.Upload(ctx, documents.UploadRequest{Content: []byte("original terms")}, owner)
	require.NoError(t, err)

	res, err := svc.VerifyDocument(ctx, up.Document.ID, owner)
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.False(t, res.Tampered)
	assert.Equal(t, up.Document.Fingerprint, res.Recorded)

	require.NoError(t, blobs.Overwrite(up.Document.Path, []byte("altered terms")))
	res, err = svc.VerifyDocument(ctx, up.Document.ID, owner)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.True(t, res.Tampered)
	assert.Equal(t, signing.Fingerprint([]byte("altered terms")), res.Fingerprint)

	_, err = svc.VerifyDocument(ctx, up.Document.ID, model.Identity{ID: "stranger", Role: model.RoleUser})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	require.NoError(t, blobs.Delete(ctx, up.Document.Path))
	_, err = svc.VerifyDocument(ctx, up.Document.ID, owner)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

// unreachableBlobs fails every call the way a backend behind a broken
// network does.
type unreachableBlobs struct {
	storage.Blobs
	reads int
}

func (u *unreachableBlobs) Exists(context.Context, string) (bool, error) {
	return false, errors.New("dial tcp: connection refused")
}

func (u *unreachableBlobs) Read(context.Context, string) ([]byte, error) {
	u.reads++
	return nil, errors.New("dial tcp: connection refused")
}

func TestVerifyDocumentStorageFailure(t *testing.T) {
	ctx := context.Background()
	db, err := memstore.New()
	require.NoError(t, err)
	blobs := storage.NewMemoryStore()
	signer := newSigner(t)
	docs := documents.NewService(db, blobs, signer, logging.NewNop(), nil, documents.Options{})

	up, err := docs.Upload(ctx, documents.UploadRequest{Content: []byte("remote terms")}, owner)
	require.NoError(t, err)

	broken := &unreachableBlobs{Blobs: blobs}
	_, err = NewService(signer, docs, broken, nil).VerifyDocument(ctx, up.Document.ID, owner)
	assert.ErrorIs(t, err, apperr.ErrStorage)
	assert.NotErrorIs(t, err, apperr.ErrNotFound)
	assert.Zero(t, broken.reads, "content is not read when the backend cannot be reached")

	require.NoError(t, blobs.Delete(ctx, up.Document.Path))
	_, err = NewService(signer, docs, blobs, nil).VerifyDocument(ctx, up.Document.ID, owner)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.ErrorContains(t, err, "missing")
}
