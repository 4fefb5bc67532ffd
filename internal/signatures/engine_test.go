package signatures

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/SignDrop/internal/apperr"
	"github.com/dharsanguruparan/SignDrop/internal/documents"
	"github.com/dharsanguruparan/SignDrop/internal/logging"
	"github.com/dharsanguruparan/SignDrop/internal/memstore"
	"github.com/dharsanguruparan/SignDrop/internal/model"
	"github.com/dharsanguruparan/SignDrop/internal/notify"
	"github.com/dharsanguruparan/SignDrop/internal/repository/repositorytest"
	"github.com/dharsanguruparan/SignDrop/internal/signing"
	"github.com/dharsanguruparan/SignDrop/internal/storage"
)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, n notify.Notification) error {
	return m.Called(ctx, n).Error(0)
}

func event(e notify.Event, recipient string) any {
	return mock.MatchedBy(func(n notify.Notification) bool {
		return n.Event == e && n.RecipientID == recipient
	})
}

type fixture struct {
	engine   *Engine
	db       *memstore.DB
	notifier *mockNotifier
	owner    *model.User
	signer   *model.User
	other    *model.User
	manager  *model.User
	doc      *model.Document
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := memstore.New()
	require.NoError(t, err)
	ctx := context.Background()

	f := &fixture{
		db:       db,
		notifier: &mockNotifier{},
		owner:    repositorytest.NewUser("owner", model.RoleUser),
		signer:   repositorytest.NewUser("signer", model.RoleUser),
		other:    repositorytest.NewUser("other", model.RoleUser),
		manager:  repositorytest.NewUser("manager", model.RoleManager),
	}
	for _, u := range []*model.User{f.owner, f.signer, f.other, f.manager} {
		require.NoError(t, db.CreateUser(ctx, u))
	}
	f.doc = repositorytest.NewDocument(f.owner.ID, signing.Fingerprint([]byte(t.Name())), time.Now().UTC())
	require.NoError(t, db.CreateDocument(ctx, f.doc))

	f.engine = NewEngine(db, f.notifier, logging.NewNop(), nil)
	return f
}

func placement(page int, x, y float64) model.Placement {
	return model.Placement{Page: &page, X: &x, Y: &y}
}

func (f *fixture) request(t *testing.T) *model.SignatureRequest {
	t.Helper()
	f.notifier.On("Notify", mock.Anything, event(notify.EventRequestCreated, f.signer.ID)).Return(nil)
	req, err := f.engine.CreateRequest(context.Background(), f.doc.ID, f.signer.ID, placement(1, 10, 20), f.owner.Identity())
	require.NoError(t, err)
	return req
}

func TestCreateRequest(t *testing.T) {
	f := newFixture(t)
	req := f.request(t)

	assert.Equal(t, model.StatusPending, req.Status)
	assert.False(t, req.Signed)
	assert.Equal(t, model.PlacementSignature, req.Type)
	assert.Equal(t, f.owner.ID, req.RequestedBy)
	f.notifier.AssertCalled(t, "Notify", mock.Anything, mock.MatchedBy(func(n notify.Notification) bool {
		return n.RecipientEmail == f.signer.Email && n.RequestID == req.ID && n.DocumentTitle == f.doc.Title
	}))

	history, err := f.engine.History(context.Background(), f.doc.ID, f.owner.Identity())
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, model.ActionRequestCreated, history[0].Action)
	require.NotNil(t, history[0].RequestID)
	assert.Equal(t, req.ID, *history[0].RequestID)
}

func TestCreateRequestByManager(t *testing.T) {
	f := newFixture(t)
	f.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)
	_, err := f.engine.CreateRequest(context.Background(), f.doc.ID, f.signer.ID, placement(1, 0, 0), f.manager.Identity())
	assert.NoError(t, err, "zero coordinates are valid")
}

func TestCreateRequestErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	text := "Approved"
	blank := "  "
	neg := -1.0

	tests := []struct {
		name     string
		doc      string
		signer   string
		p        model.Placement
		caller   model.Identity
		expected error
	}{
		{"missing page", f.doc.ID, f.signer.ID, model.Placement{X: new(float64), Y: new(float64)}, f.owner.Identity(), apperr.ErrValidation},
		{"missing coordinates", f.doc.ID, f.signer.ID, model.Placement{Page: new(int)}, f.owner.Identity(), apperr.ErrValidation},
		{"page zero", f.doc.ID, f.signer.ID, placement(0, 1, 1), f.owner.Identity(), apperr.ErrValidation},
		{"page beyond document", f.doc.ID, f.signer.ID, placement(4, 1, 1), f.owner.Identity(), apperr.ErrValidation},
		{"negative x", f.doc.ID, f.signer.ID, placement(1, -5, 1), f.owner.Identity(), apperr.ErrValidation},
		{"negative width", f.doc.ID, f.signer.ID, func() model.Placement { p := placement(1, 1, 1); p.Width = &neg; return p }(), f.owner.Identity(), apperr.ErrValidation},
		{"unknown type", f.doc.ID, f.signer.ID, func() model.Placement { p := placement(1, 1, 1); p.Type = "stamp"; return p }(), f.owner.Identity(), apperr.ErrValidation},
		{"text without text", f.doc.ID, f.signer.ID, func() model.Placement {
			p := placement(1, 1, 1)
			p.Type = model.PlacementText
			p.Text = &blank
			return p
		}(), f.owner.Identity(), apperr.ErrValidation},
		{"missing signer id", f.doc.ID, "", placement(1, 1, 1), f.owner.Identity(), apperr.ErrValidation},
		{"unknown document", "nope", f.signer.ID, placement(1, 1, 1), f.owner.Identity(), apperr.ErrNotFound},
		{"unknown signer", f.doc.ID, "nobody", placement(1, 1, 1), f.owner.Identity(), apperr.ErrNotFound},
		{"stranger", f.doc.ID, f.signer.ID, placement(1, 1, 1), f.other.Identity(), apperr.ErrForbidden},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.engine.CreateRequest(ctx, tc.doc, tc.signer, tc.p, tc.caller)
			assert.ErrorIs(t, err, tc.expected)
		})
	}

	f.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)
	p := placement(3, 1, 1)
	p.Type = model.PlacementText
	p.Text = &text
	req, err := f.engine.CreateRequest(ctx, f.doc.ID, f.signer.ID, p, f.owner.Identity())
	require.NoError(t, err)
	assert.Equal(t, model.PlacementText, req.Type)
}

func TestCreateRequestOnDeletedDocument(t *testing.T) {
	f := newFixture(t)
	_, err := f.db.SoftDeleteDocument(context.Background(), f.doc.ID, f.manager.ID, time.Now())
	require.NoError(t, err)

	_, err = f.engine.CreateRequest(context.Background(), f.doc.ID, f.signer.ID, placement(1, 1, 1), f.owner.Identity())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSign(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.request(t)
	f.notifier.On("Notify", mock.Anything, event(notify.EventRequestSigned, f.owner.ID)).Return(nil).Once()
	f.notifier.On("Notify", mock.Anything, event(notify.EventDocumentCompleted, f.owner.ID)).Return(nil).Once()

	signed, err := f.engine.Sign(ctx, req.ID, f.signer.Identity())
	require.NoError(t, err)
	assert.Equal(t, model.StatusSigned, signed.Status)
	assert.True(t, signed.Signed)
	assert.NotNil(t, signed.SignedAt)

	_, err = f.engine.Sign(ctx, req.ID, f.signer.Identity())
	assert.ErrorIs(t, err, apperr.ErrConflict)
	_, err = f.engine.Reject(ctx, req.ID, f.signer.Identity(), "")
	assert.ErrorIs(t, err, apperr.ErrConflict)

	f.notifier.AssertExpectations(t)

	history, err := f.engine.History(ctx, f.doc.ID, f.owner.Identity())
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, model.ActionSigned, history[1].Action)
	assert.Equal(t, f.signer.ID, history[1].ActorID)
}

func TestOnlySignerResolves(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.request(t)

	for _, caller := range []model.Identity{f.owner.Identity(), f.manager.Identity(), f.other.Identity()} {
		_, err := f.engine.Sign(ctx, req.ID, caller)
		assert.ErrorIs(t, err, apperr.ErrForbidden)
		_, err = f.engine.Reject(ctx, req.ID, caller, "no")
		assert.ErrorIs(t, err, apperr.ErrForbidden)
	}

	f.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)
	_, err := f.engine.Sign(ctx, req.ID, f.signer.Identity())
	require.NoError(t, err)

	_, err = f.engine.Sign(ctx, req.ID, f.other.Identity())
	assert.ErrorIs(t, err, apperr.ErrForbidden, "forbidden regardless of status")

	_, err = f.engine.Sign(ctx, "missing", f.signer.Identity())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestReject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.request(t)
	f.notifier.On("Notify", mock.Anything, mock.MatchedBy(func(n notify.Notification) bool {
		return n.Event == notify.EventRequestRejected && n.Notes == "wrong amount"
	})).Return(nil).Once()

	rejected, err := f.engine.Reject(ctx, req.ID, f.signer.Identity(), "  wrong amount ")
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, rejected.Status)
	assert.False(t, rejected.Signed)
	assert.NotNil(t, rejected.RejectedAt)
	require.NotNil(t, rejected.Notes)
	assert.Equal(t, "wrong amount", *rejected.Notes)
	f.notifier.AssertExpectations(t)

	_, err = f.engine.Sign(ctx, req.ID, f.signer.Identity())
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestResolveOnDeletedDocument(t *testing.T) {
	f := newFixture(t)
	req := f.request(t)
	_, err := f.db.SoftDeleteDocument(context.Background(), f.doc.ID, f.manager.ID, time.Now())
	require.NoError(t, err)

	_, err = f.engine.Sign(context.Background(), req.ID, f.signer.Identity())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestNotificationFailureDoesNotRollBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.notifier.On("Notify", mock.Anything, mock.Anything).Return(errors.New("queue down"))

	req, err := f.engine.CreateRequest(ctx, f.doc.ID, f.signer.ID, placement(1, 1, 1), f.owner.Identity())
	require.NoError(t, err)
	signed, err := f.engine.Sign(ctx, req.ID, f.signer.Identity())
	require.NoError(t, err)
	assert.Equal(t, model.StatusSigned, signed.Status)
}

func TestNotificationOutlivesRequestContext(t *testing.T) {
	f := newFixture(t)
	f.notifier.On("Notify", mock.MatchedBy(func(ctx context.Context) bool { return ctx.Err() == nil }), mock.Anything).Return(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.engine.CreateRequest(ctx, f.doc.ID, f.signer.ID, placement(1, 1, 1), f.owner.Identity())
	require.NoError(t, err)
	f.notifier.AssertNumberOfCalls(t, "Notify", 1)
}

func TestConcurrentSignAndReject(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t)
		req := f.request(t)
		f.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)

		var (
			wg        sync.WaitGroup
			signErr   error
			rejectErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, signErr = f.engine.Sign(context.Background(), req.ID, f.signer.Identity())
		}()
		go func() {
			defer wg.Done()
			_, rejectErr = f.engine.Reject(context.Background(), req.ID, f.signer.Identity(), "")
		}()
		wg.Wait()

		require.True(t, (signErr == nil) != (rejectErr == nil), "exactly one transition wins")
		final, err := f.db.GetRequest(context.Background(), req.ID)
		require.NoError(t, err)
		if signErr == nil {
			assert.ErrorIs(t, rejectErr, apperr.ErrConflict)
			assert.Equal(t, model.StatusSigned, final.Status)
		} else {
			assert.ErrorIs(t, signErr, apperr.ErrConflict)
			assert.Equal(t, model.StatusRejected, final.Status)
		}
	}
}

func TestAggregateStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)

	var reqs []*model.SignatureRequest
	for i := 0; i < 3; i++ {
		req, err := f.engine.CreateRequest(ctx, f.doc.ID, f.signer.ID, placement(i+1, 1, 1), f.owner.Identity())
		require.NoError(t, err)
		reqs = append(reqs, req)
	}
	for _, req := range reqs[:2] {
		_, err := f.engine.Sign(ctx, req.ID, f.signer.Identity())
		require.NoError(t, err)
	}

	status, err := f.engine.AggregateStatus(ctx, f.doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.Aggregate{Total: 3, Signed: 2, Pending: 1}, status.Aggregate)
	assert.False(t, status.FullyExecuted)
	f.notifier.AssertNotCalled(t, "Notify", mock.Anything, event(notify.EventDocumentCompleted, f.owner.ID))

	_, err = f.engine.Sign(ctx, reqs[2].ID, f.signer.Identity())
	require.NoError(t, err)
	status, err = f.engine.AggregateStatus(ctx, f.doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.Aggregate{Total: 3, Signed: 3}, status.Aggregate)
	assert.True(t, status.FullyExecuted)
	f.notifier.AssertCalled(t, "Notify", mock.Anything, event(notify.EventDocumentCompleted, f.owner.ID))

	_, err = f.engine.StatusFor(ctx, f.doc.ID, f.other.Identity())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = f.engine.AggregateStatus(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestListing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.request(t)

	for _, who := range []*model.User{f.signer, f.owner} {
		got, err := f.engine.ListForUser(ctx, "", who.Identity())
		require.NoError(t, err)
		require.Len(t, got, 1, who.Name)
		assert.Equal(t, req.ID, got[0].ID)
	}

	got, err := f.engine.ListForUser(ctx, "", f.other.Identity())
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = f.engine.ListForUser(ctx, f.signer.ID, f.other.Identity())
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	got, err = f.engine.ListForUser(ctx, f.signer.ID, f.manager.Identity())
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = f.engine.ListForDocument(ctx, f.doc.ID, f.owner.Identity())
	require.NoError(t, err)
	assert.Len(t, got, 1)
	_, err = f.engine.ListForDocument(ctx, f.doc.ID, f.other.Identity())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = f.engine.History(ctx, f.doc.ID, f.other.Identity())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestEndToEnd(t *testing.T) {
	ctx := context.Background()
	db, err := memstore.New()
	require.NoError(t, err)
	signer, err := signing.NewSigner([]byte("end-to-end-secret-value"))
	require.NoError(t, err)
	docs := documents.NewService(db, storage.NewMemoryStore(), signer, logging.NewNop(), nil, documents.Options{})
	notifier := &mockNotifier{}
	notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)
	engine := NewEngine(db, notifier, logging.NewNop(), nil)

	uploader := repositorytest.NewUser("uploader", model.RoleUser)
	u := repositorytest.NewUser("u", model.RoleUser)
	require.NoError(t, db.CreateUser(ctx, uploader))
	require.NoError(t, db.CreateUser(ctx, u))

	first, err := docs.Upload(ctx, documents.UploadRequest{Content: []byte("hello"), Filename: "a.txt"}, uploader.Identity())
	require.NoError(t, err)
	assert.True(t, first.IsNew)
	f1 := first.Document.Fingerprint

	second, err := docs.Upload(ctx, documents.UploadRequest{Content: []byte("hello"), Filename: "a.txt"}, uploader.Identity())
	require.NoError(t, err)
	assert.False(t, second.IsNew)
	assert.Equal(t, f1, second.Document.Fingerprint)
	assert.Equal(t, first.Document.ID, second.Document.ID)

	req, err := engine.CreateRequest(ctx, first.Document.ID, u.ID, placement(1, 100, 200), uploader.Identity())
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, req.Status)

	signed, err := engine.Sign(ctx, req.ID, u.Identity())
	require.NoError(t, err)
	assert.Equal(t, model.StatusSigned, signed.Status)

	status, err := engine.AggregateStatus(ctx, first.Document.ID)
	require.NoError(t, err)
	assert.Equal(t, model.Aggregate{Total: 1, Signed: 1}, status.Aggregate)
	assert.True(t, status.FullyExecuted)

	_, err = engine.Sign(ctx, req.ID, u.Identity())
	assert.ErrorIs(t, err, apperr.ErrConflict)
}
