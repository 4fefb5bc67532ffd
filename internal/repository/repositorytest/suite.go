// Package repositorytest holds the behavioural contract every
// repository.Store implementation must satisfy.
package repositorytest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/SignDrop/internal/model"
	"github.com/dharsanguruparan/SignDrop/internal/repository"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) repository.Store

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// Run executes the contract against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("documents", func(t *testing.T) { testDocuments(t, newStore(t)) })
	t.Run("live fingerprint uniqueness", func(t *testing.T) { testFingerprintUniqueness(t, newStore(t)) })
	t.Run("concurrent duplicate insert", func(t *testing.T) { testConcurrentInsert(t, newStore(t)) })
	t.Run("purge", func(t *testing.T) { testPurge(t, newStore(t)) })
	t.Run("requests", func(t *testing.T) { testRequests(t, newStore(t)) })
	t.Run("concurrent resolve", func(t *testing.T) { testConcurrentResolve(t, newStore(t)) })
	t.Run("history", func(t *testing.T) { testHistory(t, newStore(t)) })
	t.Run("shares", func(t *testing.T) { testShares(t, newStore(t)) })
	t.Run("users", func(t *testing.T) { testUsers(t, newStore(t)) })
}

// NewUser returns an unsaved user.
func NewUser(name string, role model.Role) *model.User {
	return &model.User{
		ID:        uuid.NewString(),
		Name:      name,
		Email:     name + "@example.com",
		Role:      role,
		CreatedAt: base,
	}
}

// NewDocument returns an unsaved live document.
func NewDocument(uploaderID, fingerprint string, createdAt time.Time) *model.Document {
	return &model.Document{
		ID:          uuid.NewString(),
		Title:       "contract.pdf",
		Path:        "documents/" + uuid.NewString(),
		Fingerprint: fingerprint,
		Signature:   "sig-" + fingerprint,
		ContentType: "application/pdf",
		Size:        42,
		PageCount:   3,
		UploaderID:  uploaderID,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
}

// NewRequest returns an unsaved pending request.
func NewRequest(documentID, signerID, requestedBy string, createdAt time.Time) *model.SignatureRequest {
	return &model.SignatureRequest{
		ID:          uuid.NewString(),
		DocumentID:  documentID,
		SignerID:    signerID,
		RequestedBy: requestedBy,
		Page:        1,
		X:           10,
		Y:           20,
		Type:        model.PlacementSignature,
		Status:      model.StatusPending,
		CreatedAt:   createdAt,
	}
}

func seedUser(t *testing.T, s repository.Store, name string, role model.Role) *model.User {
	t.Helper()
	u := NewUser(name, role)
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func seedDocument(t *testing.T, s repository.Store, uploaderID, fingerprint string, createdAt time.Time) *model.Document {
	t.Helper()
	d := NewDocument(uploaderID, fingerprint, createdAt)
	require.NoError(t, s.CreateDocument(context.Background(), d))
	return d
}

func testDocuments(t *testing.T, s repository.Store) {
	ctx := context.Background()
	alice := seedUser(t, s, "alice", model.RoleUser)
	bob := seedUser(t, s, "bob", model.RoleUser)

	d1 := seedDocument(t, s, alice.ID, "fp1", base)
	d2 := seedDocument(t, s, alice.ID, "fp2", base.Add(time.Minute))
	d3 := seedDocument(t, s, bob.ID, "fp3", base.Add(2*time.Minute))

	got, err := s.GetDocument(ctx, d1.ID)
	require.NoError(t, err)
	assert.Equal(t, d1.Fingerprint, got.Fingerprint)
	assert.Equal(t, d1.Signature, got.Signature)
	assert.Equal(t, d1.PageCount, got.PageCount)
	assert.Nil(t, got.DeletedAt)

	_, err = s.GetDocument(ctx, uuid.NewString())
	assert.ErrorIs(t, err, repository.ErrNotFound)

	found, err := s.FindLiveDocumentByFingerprint(ctx, "fp2")
	require.NoError(t, err)
	assert.Equal(t, d2.ID, found.ID)
	_, err = s.FindLiveDocumentByFingerprint(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	all, err := s.ListDocuments(ctx, repository.DocumentFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{d3.ID, d2.ID, d1.ID}, documentIDs(all), "newest first")

	own, err := s.ListDocuments(ctx, repository.DocumentFilter{UploaderID: alice.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{d2.ID, d1.ID}, documentIDs(own))

	retitledAt := base.Add(30 * time.Minute)
	retitled, err := s.RetitleDocument(ctx, d2.ID, "Lease v2", retitledAt)
	require.NoError(t, err)
	assert.Equal(t, "Lease v2", retitled.Title)
	assert.True(t, retitled.UpdatedAt.Equal(retitledAt))
	assert.Equal(t, d2.Fingerprint, retitled.Fingerprint, "retitle keeps the content identity")
	got, err = s.GetDocument(ctx, d2.ID)
	require.NoError(t, err)
	assert.Equal(t, "Lease v2", got.Title)
	_, err = s.RetitleDocument(ctx, uuid.NewString(), "x", retitledAt)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	deletedAt := base.Add(time.Hour)
	deleted, err := s.SoftDeleteDocument(ctx, d1.ID, bob.ID, deletedAt)
	require.NoError(t, err)
	require.NotNil(t, deleted.DeletedAt)
	assert.True(t, deleted.DeletedAt.Equal(deletedAt))
	require.NotNil(t, deleted.DeletedBy)
	assert.Equal(t, bob.ID, *deleted.DeletedBy)

	_, err = s.SoftDeleteDocument(ctx, d1.ID, bob.ID, deletedAt)
	assert.ErrorIs(t, err, repository.ErrNotFound, "already deleted")
	_, err = s.SoftDeleteDocument(ctx, uuid.NewString(), bob.ID, deletedAt)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = s.FindLiveDocumentByFingerprint(ctx, "fp1")
	assert.ErrorIs(t, err, repository.ErrNotFound, "deleted documents are not live")
	_, err = s.RetitleDocument(ctx, d1.ID, "too late", deletedAt)
	assert.ErrorIs(t, err, repository.ErrNotFound, "deleted documents cannot be retitled")

	stillThere, err := s.GetDocument(ctx, d1.ID)
	require.NoError(t, err)
	assert.True(t, stillThere.Deleted(), "soft delete keeps the record")

	own, err = s.ListDocuments(ctx, repository.DocumentFilter{UploaderID: alice.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{d2.ID}, documentIDs(own))
	own, err = s.ListDocuments(ctx, repository.DocumentFilter{UploaderID: alice.ID, IncludeDeleted: true})
	require.NoError(t, err)
	assert.Equal(t, []string{d2.ID, d1.ID}, documentIDs(own))
}

func testFingerprintUniqueness(t *testing.T, s repository.Store) {
	ctx := context.Background()
	alice := seedUser(t, s, "alice", model.RoleUser)
	first := seedDocument(t, s, alice.ID, "same", base)

	err := s.CreateDocument(ctx, NewDocument(alice.ID, "same", base))
	assert.ErrorIs(t, err, repository.ErrDuplicate)

	_, err = s.SoftDeleteDocument(ctx, first.ID, alice.ID, base.Add(time.Minute))
	require.NoError(t, err)

	again := NewDocument(alice.ID, "same", base.Add(2*time.Minute))
	require.NoError(t, s.CreateDocument(ctx, again), "a deleted document frees its fingerprint")

	live, err := s.FindLiveDocumentByFingerprint(ctx, "same")
	require.NoError(t, err)
	assert.Equal(t, again.ID, live.ID)
}

func testConcurrentInsert(t *testing.T, s repository.Store) {
	ctx := context.Background()
	alice := seedUser(t, s, "alice", model.RoleUser)

	const n = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		dups    int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.CreateDocument(ctx, NewDocument(alice.ID, "raced", base))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case assert.ErrorIs(t, err, repository.ErrDuplicate):
				dups++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, created)
	assert.Equal(t, n-1, dups)
}

func testPurge(t *testing.T, s repository.Store) {
	ctx := context.Background()
	alice := seedUser(t, s, "alice", model.RoleAdmin)
	old := seedDocument(t, s, alice.ID, "old", base)
	recent := seedDocument(t, s, alice.ID, "recent", base)
	seedDocument(t, s, alice.ID, "live", base)

	_, err := s.SoftDeleteDocument(ctx, old.ID, alice.ID, base.Add(time.Hour))
	require.NoError(t, err)
	_, err = s.SoftDeleteDocument(ctx, recent.ID, alice.ID, base.Add(48*time.Hour))
	require.NoError(t, err)

	cutoff := base.Add(24 * time.Hour)
	docs, err := s.ListPurgeableDocuments(ctx, cutoff, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{old.ID}, documentIDs(docs))

	require.NoError(t, s.MarkDocumentPurged(ctx, old.ID, cutoff))
	assert.ErrorIs(t, s.MarkDocumentPurged(ctx, old.ID, cutoff), repository.ErrNotFound, "purged once")

	docs, err = s.ListPurgeableDocuments(ctx, cutoff, 10)
	require.NoError(t, err)
	assert.Empty(t, docs)

	got, err := s.GetDocument(ctx, old.ID)
	require.NoError(t, err)
	require.NotNil(t, got.PurgedAt)
	assert.True(t, got.PurgedAt.Equal(cutoff))
}

func testRequests(t *testing.T, s repository.Store) {
	ctx := context.Background()
	owner := seedUser(t, s, "owner", model.RoleUser)
	signer := seedUser(t, s, "signer", model.RoleUser)
	other := seedUser(t, s, "other", model.RoleUser)
	doc := seedDocument(t, s, owner.ID, "req-doc", base)
	otherDoc := seedDocument(t, s, other.ID, "other-doc", base)

	r1 := NewRequest(doc.ID, signer.ID, owner.ID, base)
	text := "Approved by"
	r1.Type = model.PlacementText
	r1.Text = &text
	r2 := NewRequest(doc.ID, other.ID, owner.ID, base.Add(time.Minute))
	r3 := NewRequest(otherDoc.ID, signer.ID, other.ID, base.Add(2*time.Minute))
	for _, r := range []*model.SignatureRequest{r1, r2, r3} {
		require.NoError(t, s.CreateRequest(ctx, r))
	}

	got, err := s.GetRequest(ctx, r1.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)
	assert.False(t, got.Signed)
	require.NotNil(t, got.Text)
	assert.Equal(t, text, *got.Text)

	_, err = s.GetRequest(ctx, uuid.NewString())
	assert.ErrorIs(t, err, repository.ErrNotFound)

	agg, err := s.AggregateRequests(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.Aggregate{Total: 2, Pending: 2}, agg)

	signedAt := base.Add(time.Hour)
	signed, err := s.ResolveRequest(ctx, model.Resolution{RequestID: r1.ID, Status: model.StatusSigned, At: signedAt})
	require.NoError(t, err)
	assert.Equal(t, model.StatusSigned, signed.Status)
	assert.True(t, signed.Signed)
	require.NotNil(t, signed.SignedAt)
	assert.True(t, signed.SignedAt.Equal(signedAt))
	assert.Nil(t, signed.RejectedAt)

	_, err = s.ResolveRequest(ctx, model.Resolution{RequestID: r1.ID, Status: model.StatusRejected, At: signedAt})
	assert.ErrorIs(t, err, repository.ErrNotPending, "signed is terminal")
	_, err = s.ResolveRequest(ctx, model.Resolution{RequestID: uuid.NewString(), Status: model.StatusSigned, At: signedAt})
	assert.ErrorIs(t, err, repository.ErrNotFound)

	notes := "wrong party"
	rejected, err := s.ResolveRequest(ctx, model.Resolution{RequestID: r2.ID, Status: model.StatusRejected, Notes: &notes, At: signedAt})
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, rejected.Status)
	assert.False(t, rejected.Signed)
	require.NotNil(t, rejected.Notes)
	assert.Equal(t, notes, *rejected.Notes)
	require.NotNil(t, rejected.RejectedAt)
	assert.Nil(t, rejected.SignedAt)

	agg, err = s.AggregateRequests(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.Aggregate{Total: 2, Signed: 1, Rejected: 1}, agg)

	empty, err := s.AggregateRequests(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Equal(t, model.Aggregate{}, empty)

	byDoc, err := s.ListRequestsForDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{r1.ID, r2.ID}, requestIDs(byDoc))

	forSigner, err := s.ListRequestsForUser(ctx, signer.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{r3.ID, r1.ID}, requestIDs(forSigner), "newest first")

	forOwner, err := s.ListRequestsForUser(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{r2.ID, r1.ID}, requestIDs(forOwner), "owner sees requests on their documents")

	forOther, err := s.ListRequestsForUser(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{r3.ID, r2.ID}, requestIDs(forOther), "signer and owner roles are unioned without duplicates")

	_, err = s.SoftDeleteDocument(ctx, otherDoc.ID, other.ID, signedAt)
	require.NoError(t, err)
	forSigner, err = s.ListRequestsForUser(ctx, signer.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{r1.ID}, requestIDs(forSigner), "deleted documents drop out")
}

func testConcurrentResolve(t *testing.T, s repository.Store) {
	ctx := context.Background()
	owner := seedUser(t, s, "owner", model.RoleUser)
	signer := seedUser(t, s, "signer", model.RoleUser)
	doc := seedDocument(t, s, owner.ID, "race", base)
	req := NewRequest(doc.ID, signer.ID, owner.ID, base)
	require.NoError(t, s.CreateRequest(ctx, req))

	const n = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
		losers  int
	)
	for i := 0; i < n; i++ {
		status := model.StatusSigned
		if i%2 == 1 {
			status = model.StatusRejected
		}
		wg.Add(1)
		go func(status model.RequestStatus) {
			defer wg.Done()
			_, err := s.ResolveRequest(ctx, model.Resolution{RequestID: req.ID, Status: status, At: base})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case assert.ErrorIs(t, err, repository.ErrNotPending):
				losers++
			}
		}(status)
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
	assert.Equal(t, n-1, losers)

	agg, err := s.AggregateRequests(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, agg.Total)
	assert.Equal(t, 0, agg.Pending)
}

func testHistory(t *testing.T, s repository.Store) {
	ctx := context.Background()
	owner := seedUser(t, s, "owner", model.RoleUser)
	doc := seedDocument(t, s, owner.ID, "hist", base)

	reqID := uuid.NewString()
	entries := []*model.HistoryEntry{
		{ID: uuid.NewString(), DocumentID: doc.ID, ActorID: owner.ID, Action: model.ActionUploaded, CreatedAt: base},
		{ID: uuid.NewString(), DocumentID: doc.ID, RequestID: &reqID, ActorID: owner.ID, Action: model.ActionRequestCreated, Detail: "signer", CreatedAt: base.Add(time.Second)},
		{ID: uuid.NewString(), DocumentID: doc.ID, ActorID: owner.ID, Action: model.ActionShared, CreatedAt: base.Add(2 * time.Second)},
	}
	for _, e := range entries {
		require.NoError(t, s.AppendHistory(ctx, e))
	}

	got, err := s.ListHistory(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, model.ActionUploaded, got[0].Action)
	assert.Equal(t, model.ActionRequestCreated, got[1].Action)
	require.NotNil(t, got[1].RequestID)
	assert.Equal(t, reqID, *got[1].RequestID)
	assert.Equal(t, "signer", got[1].Detail)
	assert.Equal(t, model.ActionShared, got[2].Action)

	none, err := s.ListHistory(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testShares(t *testing.T, s repository.Store) {
	ctx := context.Background()
	owner := seedUser(t, s, "owner", model.RoleUser)
	doc := seedDocument(t, s, owner.ID, "shared", base)

	share := &model.Share{
		Token:      uuid.NewString(),
		DocumentID: doc.ID,
		Permission: model.PermissionView,
		CreatedBy:  owner.ID,
		ExpiresAt:  base.Add(time.Hour),
		CreatedAt:  base,
	}
	require.NoError(t, s.CreateShare(ctx, share))
	assert.ErrorIs(t, s.CreateShare(ctx, share), repository.ErrDuplicate)

	got, err := s.GetShare(ctx, share.Token)
	require.NoError(t, err)
	assert.Equal(t, model.PermissionView, got.Permission)
	assert.True(t, got.ExpiresAt.Equal(share.ExpiresAt))
	assert.Nil(t, got.RevokedAt)

	_, err = s.GetShare(ctx, "nope")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	revoked, err := s.RevokeShare(ctx, share.Token, base.Add(time.Minute))
	require.NoError(t, err)
	require.NotNil(t, revoked.RevokedAt)

	_, err = s.RevokeShare(ctx, share.Token, base.Add(time.Minute))
	assert.ErrorIs(t, err, repository.ErrNotFound, "revoked once")
}

func testUsers(t *testing.T, s repository.Store) {
	ctx := context.Background()
	bob := seedUser(t, s, "bob", model.RoleManager)
	alice := seedUser(t, s, "alice", model.RoleUser)

	got, err := s.GetUser(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", got.Email)
	assert.Equal(t, model.RoleManager, got.Role)

	_, err = s.GetUser(ctx, uuid.NewString())
	assert.ErrorIs(t, err, repository.ErrNotFound)

	clash := NewUser("bob", model.RoleUser)
	clash.Email = "BOB@example.com"
	assert.ErrorIs(t, s.CreateUser(ctx, clash), repository.ErrDuplicate, "emails are case-insensitive")

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, alice.ID, users[0].ID)
	assert.Equal(t, bob.ID, users[1].ID)
}

func documentIDs(docs []model.Document) []string {
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids
}

func requestIDs(reqs []model.SignatureRequest) []string {
	ids := make([]string, len(reqs))
	for i, r := range reqs {
		ids[i] = r.ID
	}
	return ids
}
