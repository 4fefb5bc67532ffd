// Package signatures runs the per-signer request state machine
// pending -> signed | rejected, and derives the aggregate status of a
// document from its requests.
package signatures

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/dharsanguruparan/SignDrop/internal/apperr"
	"github.com/dharsanguruparan/SignDrop/internal/logging"
	"github.com/dharsanguruparan/SignDrop/internal/metrics"
	"github.com/dharsanguruparan/SignDrop/internal/model"
	"github.com/dharsanguruparan/SignDrop/internal/notify"
	"github.com/dharsanguruparan/SignDrop/internal/repository"
)

const notifyTimeout = 5 * time.Second

// Repository is the persistence the engine needs.
type Repository interface {
	repository.Documents
	repository.Requests
	repository.History
	repository.Users
}

// Status is the derived state of a document's requests.
type Status struct {
	model.Aggregate
	FullyExecuted bool `json:"fullyExecuted"`
}

// Engine implements signature requests.
type Engine struct {
	repo     Repository
	notifier notify.Notifier
	validate *validator.Validate
	logger   logging.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewEngine constructs an Engine. m may be nil.
func NewEngine(repo Repository, notifier notify.Notifier, logger logging.Logger, m *metrics.Metrics) *Engine {
	return &Engine{
		repo:     repo,
		notifier: notifier,
		validate: validator.New(),
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}
}

// CreateRequest attaches a pending placement for signerID to a document.
// Only the uploader or an elevated role may request signatures.
func (e *Engine) CreateRequest(ctx context.Context, documentID, signerID string, p model.Placement, caller model.Identity) (*model.SignatureRequest, error) {
	if err := e.validatePlacement(&p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(signerID) == "" {
		return nil, apperr.Validation("signerId is required")
	}

	doc, err := e.liveDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if !doc.VisibleTo(caller) {
		return nil, apperr.Forbidden("only the uploader or an elevated role can request signatures")
	}
	if doc.PageCount > 0 && *p.Page > doc.PageCount {
		return nil, apperr.Validation("page %d is beyond the document's %d pages", *p.Page, doc.PageCount)
	}

	signer, err := e.repo.GetUser(ctx, signerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("signer %s", signerID)
		}
		return nil, apperr.Storage("get signer", err)
	}

	req := &model.SignatureRequest{
		ID:          uuid.NewString(),
		DocumentID:  doc.ID,
		SignerID:    signer.ID,
		RequestedBy: caller.ID,
		Page:        *p.Page,
		X:           *p.X,
		Y:           *p.Y,
		Width:       p.Width,
		Height:      p.Height,
		FontSize:    p.FontSize,
		Type:        p.Type,
		Text:        p.Text,
		Status:      model.StatusPending,
		CreatedAt:   e.now().UTC(),
	}
	if err := e.repo.CreateRequest(ctx, req); err != nil {
		return nil, apperr.Storage("create signature request", err)
	}

	e.record(ctx, req, caller.ID, model.ActionRequestCreated, "signer "+signer.ID)
	e.notify(ctx, notify.Notification{
		Event:          notify.EventRequestCreated,
		RecipientID:    signer.ID,
		RecipientEmail: signer.Email,
		RecipientName:  signer.Name,
		DocumentID:     doc.ID,
		DocumentTitle:  doc.Title,
		RequestID:      req.ID,
		ActorID:        caller.ID,
	})
	return req, nil
}

// Sign moves a pending request to signed. Only the assigned signer may sign.
func (e *Engine) Sign(ctx context.Context, requestID string, caller model.Identity) (*model.SignatureRequest, error) {
	return e.resolve(ctx, requestID, caller, model.StatusSigned, nil)
}

// Reject moves a pending request to rejected, keeping optional notes.
func (e *Engine) Reject(ctx context.Context, requestID string, caller model.Identity, notes string) (*model.SignatureRequest, error) {
	var n *string
	if notes = strings.TrimSpace(notes); notes != "" {
		n = &notes
	}
	return e.resolve(ctx, requestID, caller, model.StatusRejected, n)
}

func (e *Engine) resolve(ctx context.Context, requestID string, caller model.Identity, status model.RequestStatus, notes *string) (*model.SignatureRequest, error) {
	req, err := e.repo.GetRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("signature request %s", requestID)
		}
		return nil, apperr.Storage("get signature request", err)
	}
	// Checked before status so a stranger learns nothing about progress.
	if req.SignerID != caller.ID {
		e.metrics.ObserveTransition(string(status), "forbidden")
		return nil, apperr.Forbidden("only the assigned signer can %s this request", verb(status))
	}
	doc, err := e.liveDocument(ctx, req.DocumentID)
	if err != nil {
		return nil, err
	}

	resolved, err := e.repo.ResolveRequest(ctx, model.Resolution{
		RequestID: req.ID,
		Status:    status,
		Notes:     notes,
		At:        e.now().UTC(),
	})
	switch {
	case errors.Is(err, repository.ErrNotPending):
		e.metrics.ObserveTransition(string(status), "conflict")
		return nil, apperr.Conflict("signature request %s is already resolved", requestID)
	case errors.Is(err, repository.ErrNotFound):
		return nil, apperr.NotFound("signature request %s", requestID)
	case err != nil:
		e.metrics.ObserveTransition(string(status), "error")
		return nil, apperr.Storage("resolve signature request", err)
	}
	e.metrics.ObserveTransition(string(status), "ok")

	detail := ""
	if notes != nil {
		detail = *notes
	}
	action, event := model.ActionSigned, notify.EventRequestSigned
	if status == model.StatusRejected {
		action, event = model.ActionRejected, notify.EventRequestRejected
	}
	e.record(ctx, resolved, caller.ID, action, detail)
	e.notifyUploader(ctx, doc, resolved, event, caller.ID, detail)

	if status == model.StatusSigned {
		agg, err := e.repo.AggregateRequests(ctx, doc.ID)
		if err != nil {
			e.logger.Warnw("aggregate after sign failed", "document", doc.ID, "error", err)
		} else if agg.FullyExecuted() {
			e.notifyUploader(ctx, doc, resolved, notify.EventDocumentCompleted, caller.ID, "")
		}
	}
	return resolved, nil
}

// ListForUser returns requests userID must sign together with requests on
// documents userID uploaded, newest first. Callers may list their own
// requests; elevated roles may list anyone's.
func (e *Engine) ListForUser(ctx context.Context, userID string, caller model.Identity) ([]model.SignatureRequest, error) {
	if userID == "" {
		userID = caller.ID
	}
	if userID != caller.ID && !caller.Role.Elevated() {
		return nil, apperr.Forbidden("cannot list another user's requests")
	}
	reqs, err := e.repo.ListRequestsForUser(ctx, userID)
	if err != nil {
		return nil, apperr.Storage("list signature requests", err)
	}
	return reqs, nil
}

// ListForDocument returns the requests of a document visible to caller.
func (e *Engine) ListForDocument(ctx context.Context, documentID string, caller model.Identity) ([]model.SignatureRequest, error) {
	if _, err := e.visibleDocument(ctx, documentID, caller); err != nil {
		return nil, err
	}
	reqs, err := e.repo.ListRequestsForDocument(ctx, documentID)
	if err != nil {
		return nil, apperr.Storage("list signature requests", err)
	}
	return reqs, nil
}

// AggregateStatus counts the requests of a live document by status. It
// reads committed rows every time.
func (e *Engine) AggregateStatus(ctx context.Context, documentID string) (Status, error) {
	if _, err := e.liveDocument(ctx, documentID); err != nil {
		return Status{}, err
	}
	agg, err := e.repo.AggregateRequests(ctx, documentID)
	if err != nil {
		return Status{}, apperr.Storage("aggregate signature requests", err)
	}
	return Status{Aggregate: agg, FullyExecuted: agg.FullyExecuted()}, nil
}

// StatusFor is AggregateStatus behind the document visibility check.
func (e *Engine) StatusFor(ctx context.Context, documentID string, caller model.Identity) (Status, error) {
	if _, err := e.visibleDocument(ctx, documentID, caller); err != nil {
		return Status{}, err
	}
	return e.AggregateStatus(ctx, documentID)
}

// History returns the append-only history of a document, oldest first.
func (e *Engine) History(ctx context.Context, documentID string, caller model.Identity) ([]model.HistoryEntry, error) {
	if _, err := e.visibleDocument(ctx, documentID, caller); err != nil {
		return nil, err
	}
	entries, err := e.repo.ListHistory(ctx, documentID)
	if err != nil {
		return nil, apperr.Storage("list history", err)
	}
	return entries, nil
}

func (e *Engine) validatePlacement(p *model.Placement) error {
	if err := e.validate.Struct(p); err != nil {
		return apperr.Validation("invalid placement: %v", err)
	}
	if p.Type == "" {
		p.Type = model.PlacementSignature
	}
	if p.Type == model.PlacementText && (p.Text == nil || strings.TrimSpace(*p.Text) == "") {
		return apperr.Validation("text placements need text")
	}
	return nil
}

func (e *Engine) liveDocument(ctx context.Context, id string) (*model.Document, error) {
	doc, err := e.repo.GetDocument(ctx, id)
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

func (e *Engine) visibleDocument(ctx context.Context, id string, caller model.Identity) (*model.Document, error) {
	doc, err := e.liveDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if !doc.VisibleTo(caller) {
		return nil, apperr.NotFound("document %s", id)
	}
	return doc, nil
}

func (e *Engine) record(ctx context.Context, req *model.SignatureRequest, actorID string, action model.Action, detail string) {
	requestID := req.ID
	entry := &model.HistoryEntry{
		ID:         uuid.NewString(),
		DocumentID: req.DocumentID,
		RequestID:  &requestID,
		ActorID:    actorID,
		Action:     action,
		Detail:     detail,
		CreatedAt:  e.now().UTC(),
	}
	if err := e.repo.AppendHistory(ctx, entry); err != nil {
		e.logger.Warnw("append history failed", "document", req.DocumentID, "request", req.ID, "action", action, "error", err)
	}
}

func (e *Engine) notifyUploader(ctx context.Context, doc *model.Document, req *model.SignatureRequest, event notify.Event, actorID, notes string) {
	n := notify.Notification{
		Event:         event,
		RecipientID:   doc.UploaderID,
		DocumentID:    doc.ID,
		DocumentTitle: doc.Title,
		RequestID:     req.ID,
		ActorID:       actorID,
		Notes:         notes,
	}
	if u, err := e.repo.GetUser(ctx, doc.UploaderID); err == nil {
		n.RecipientEmail, n.RecipientName = u.Email, u.Name
	}
	e.notify(ctx, n)
}

// notify hands n off without letting delivery problems reach the caller.
// The request context may end as soon as the response is written.
func (e *Engine) notify(ctx context.Context, n notify.Notification) {
	if e.notifier == nil {
		return
	}
	n.CreatedAt = e.now().UTC()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := e.notifier.Notify(ctx, n); err != nil {
		e.logger.Warnw("notification not queued", "event", n.Event, "recipient", n.RecipientID, "request", n.RequestID, "error", err)
	}
}

func verb(s model.RequestStatus) string {
	if s == model.StatusRejected {
		return "reject"
	}
	return "sign"
}
