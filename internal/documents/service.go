// Package documents is the content-addressed document store: each distinct
// byte sequence is kept once, identified by its SHA-256 fingerprint.
package documents

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/dharsanguruparan/SignDrop/internal/apperr"
	"github.com/dharsanguruparan/SignDrop/internal/logging"
	"github.com/dharsanguruparan/SignDrop/internal/metrics"
	"github.com/dharsanguruparan/SignDrop/internal/model"
	pdfutil "github.com/dharsanguruparan/SignDrop/internal/pdf"
	"github.com/dharsanguruparan/SignDrop/internal/repository"
	"github.com/dharsanguruparan/SignDrop/internal/signing"
	"github.com/dharsanguruparan/SignDrop/internal/storage"
)

// SystemActor is the actor id recorded for housekeeping history entries.
const SystemActor = "system"

const maxTitleLength = 255

// DownloadPath is the public route that serves signed download links.
const DownloadPath = "/api/v1/download"

// Repository is the persistence the store needs.
type Repository interface {
	repository.Documents
	repository.History
}

// Presigner is implemented by blob backends that can hand out their own
// signed download URLs.
type Presigner interface {
	PresignURL(ctx context.Context, name, filename string, ttl time.Duration) (string, error)
}

// Options tunes upload acceptance and download links.
type Options struct {
	// MaxFileSize rejects larger uploads. Zero disables the check.
	MaxFileSize int64
	// AllowedTypes lists accepted media types. Empty accepts everything.
	AllowedTypes []string
	SignedURLTTL time.Duration
}

// UploadRequest carries one uploaded file.
type UploadRequest struct {
	Content     []byte
	Filename    string
	Title       string
	ContentType string
}

// UploadResult is returned by Upload. IsNew is false when the content was
// already stored.
type UploadResult struct {
	Document *model.Document `json:"document"`
	IsNew    bool            `json:"isNew"`
}

// ListOptions narrows List.
type ListOptions struct {
	// IncludeDeleted is honoured for elevated callers only.
	IncludeDeleted bool
}

// SignedLink is a short-lived download URL.
type SignedLink struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Service implements the document store.
type Service struct {
	repo    Repository
	blobs   storage.Blobs
	signer  *signing.Signer
	logger  logging.Logger
	metrics *metrics.Metrics
	opts    Options
	now     func() time.Time
}

// NewService constructs a Service. m may be nil.
func NewService(repo Repository, blobs storage.Blobs, signer *signing.Signer, logger logging.Logger, m *metrics.Metrics, opts Options) *Service {
	if opts.SignedURLTTL <= 0 {
		opts.SignedURLTTL = 5 * time.Minute
	}
	return &Service{
		repo:    repo,
		blobs:   blobs,
		signer:  signer,
		logger:  logger,
		metrics: m,
		opts:    opts,
		now:     time.Now,
	}
}

// Upload stores req.Content once. Identical content uploaded again, even
// concurrently, resolves to the existing live document with IsNew=false.
func (s *Service) Upload(ctx context.Context, req UploadRequest, caller model.Identity) (*UploadResult, error) {
	if len(req.Content) == 0 {
		return nil, apperr.Validation("no content supplied")
	}
	if s.opts.MaxFileSize > 0 && int64(len(req.Content)) > s.opts.MaxFileSize {
		return nil, apperr.Validation("file exceeds %d bytes", s.opts.MaxFileSize)
	}
	contentType := s.contentType(req)
	if !s.allowed(contentType) {
		return nil, apperr.Validation("content type %s is not allowed", contentType)
	}

	fingerprint := signing.Fingerprint(req.Content)
	existing, err := s.repo.FindLiveDocumentByFingerprint(ctx, fingerprint)
	switch {
	case err == nil:
		s.metrics.ObserveUpload(metrics.UploadDuplicate)
		return &UploadResult{Document: existing, IsNew: false}, nil
	case !errors.Is(err, repository.ErrNotFound):
		s.metrics.ObserveUpload(metrics.UploadFailed)
		return nil, apperr.Storage("lookup fingerprint", err)
	}

	// Bytes are written before the record so a record never points at
	// missing content.
	path, err := s.blobs.Write(ctx, req.Content, contentType)
	if err != nil {
		s.metrics.ObserveUpload(metrics.UploadFailed)
		return nil, apperr.Storage("write content", err)
	}

	now := s.now().UTC()
	doc := &model.Document{
		ID:          uuid.NewString(),
		Path:        path,
		Fingerprint: fingerprint,
		Signature:   s.signer.Sign(fingerprint),
		ContentType: contentType,
		Size:        int64(len(req.Content)),
		PageCount:   s.pageCount(req.Content),
		UploaderID:  caller.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	doc.Title = documentTitle(req, doc.ID)

	if err := s.repo.CreateDocument(ctx, doc); err != nil {
		s.discard(ctx, path)
		if !errors.Is(err, repository.ErrDuplicate) {
			s.metrics.ObserveUpload(metrics.UploadFailed)
			return nil, apperr.Storage("create document", err)
		}
		// Lost the race to a concurrent upload of the same bytes.
		winner, err := s.repo.FindLiveDocumentByFingerprint(ctx, fingerprint)
		if err != nil {
			s.metrics.ObserveUpload(metrics.UploadFailed)
			return nil, apperr.Storage("refetch document", err)
		}
		s.metrics.ObserveUpload(metrics.UploadRaceLost)
		return &UploadResult{Document: winner, IsNew: false}, nil
	}

	s.metrics.ObserveUpload(metrics.UploadNew)
	s.record(ctx, doc.ID, caller.ID, model.ActionUploaded, doc.Title)
	return &UploadResult{Document: doc, IsNew: true}, nil
}

// SoftDelete marks a document deleted. The bytes stay until Purge reclaims
// them.
func (s *Service) SoftDelete(ctx context.Context, id string, caller model.Identity) (*model.Document, error) {
	if !caller.Role.Elevated() {
		return nil, apperr.Forbidden("deleting documents requires an elevated role")
	}
	doc, err := s.repo.SoftDeleteDocument(ctx, id, caller.ID, s.now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("document %s", id)
		}
		return nil, apperr.Storage("delete document", err)
	}
	s.record(ctx, doc.ID, caller.ID, model.ActionDeleted, "")
	return doc, nil
}

// Update retitles a document on behalf of a caller who can see it.
func (s *Service) Update(ctx context.Context, id, title string, caller model.Identity) (*model.Document, error) {
	doc, err := s.Get(ctx, id, caller)
	if err != nil {
		return nil, err
	}
	return s.Retitle(ctx, doc.ID, title, caller.ID)
}

// Retitle changes the title of a live document without an access check.
// Callers authorize first, e.g. through an edit share.
func (s *Service) Retitle(ctx context.Context, id, title, actorID string) (*model.Document, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, apperr.Validation("title is required")
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return nil, apperr.Validation("title exceeds %d characters", maxTitleLength)
	}
	doc, err := s.repo.RetitleDocument(ctx, id, title, s.now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("document %s", id)
		}
		return nil, apperr.Storage("retitle document", err)
	}
	s.record(ctx, doc.ID, actorID, model.ActionRetitled, doc.Title)
	return doc, nil
}

// Get returns a live document visible to caller. Missing, deleted and
// invisible documents are all reported as not found.
func (s *Service) Get(ctx context.Context, id string, caller model.Identity) (*model.Document, error) {
	doc, err := s.Live(ctx, id)
	if err != nil {
		return nil, err
	}
	if !doc.VisibleTo(caller) {
		return nil, apperr.NotFound("document %s", id)
	}
	return doc, nil
}

// Live returns a live document without a visibility check.
func (s *Service) Live(ctx context.Context, id string) (*model.Document, error) {
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

// List returns the caller's documents, or every document for elevated
// roles, newest first.
func (s *Service) List(ctx context.Context, caller model.Identity, opts ListOptions) ([]model.Document, error) {
	filter := repository.DocumentFilter{UploaderID: caller.ID}
	if caller.Role.Elevated() {
		filter = repository.DocumentFilter{IncludeDeleted: opts.IncludeDeleted}
	}
	docs, err := s.repo.ListDocuments(ctx, filter)
	if err != nil {
		return nil, apperr.Storage("list documents", err)
	}
	return docs, nil
}

// Open returns a visible document together with its bytes.
func (s *Service) Open(ctx context.Context, id string, caller model.Identity) (*model.Document, []byte, error) {
	doc, err := s.Get(ctx, id, caller)
	if err != nil {
		return nil, nil, err
	}
	data, err := s.Content(ctx, doc)
	if err != nil {
		return nil, nil, err
	}
	return doc, data, nil
}

// Content reads the stored bytes of doc.
func (s *Service) Content(ctx context.Context, doc *model.Document) ([]byte, error) {
	if doc.PurgedAt != nil {
		return nil, apperr.NotFound("content of document %s was purged", doc.ID)
	}
	data, err := s.blobs.Read(ctx, doc.Path)
	if err != nil {
		return nil, apperr.Storage("read content", err)
	}
	return data, nil
}

// SignedDownloadURL returns a link that serves the document without a bearer
// token until it expires. Backends that presign their own URLs serve the
// bytes directly.
func (s *Service) SignedDownloadURL(ctx context.Context, id string, caller model.Identity) (*SignedLink, error) {
	doc, err := s.Get(ctx, id, caller)
	if err != nil {
		return nil, err
	}
	expiresAt := s.now().UTC().Add(s.opts.SignedURLTTL).Truncate(time.Second)

	if p, ok := s.blobs.(Presigner); ok {
		u, err := p.PresignURL(ctx, doc.Path, doc.Title, s.opts.SignedURLTTL)
		if err != nil {
			return nil, apperr.Storage("presign content", err)
		}
		return &SignedLink{URL: u, ExpiresAt: expiresAt}, nil
	}

	expires := expiresAt.Unix()
	q := url.Values{}
	q.Set("id", doc.ID)
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("signature", s.signer.SignURL(doc.ID, expires))
	return &SignedLink{URL: DownloadPath + "?" + q.Encode(), ExpiresAt: expiresAt}, nil
}

// OpenSigned serves a signed download link.
func (s *Service) OpenSigned(ctx context.Context, id, expires, signature string) (*model.Document, []byte, error) {
	if id == "" || expires == "" || signature == "" {
		return nil, nil, apperr.Validation("id, expires and signature are required")
	}
	if !s.signer.ValidateURL(id, expires, signature) {
		return nil, nil, apperr.Forbidden("invalid download signature")
	}
	exp, _ := strconv.ParseInt(expires, 10, 64)
	if s.now().Unix() > exp {
		return nil, nil, apperr.Forbidden("download link expired")
	}
	doc, err := s.Live(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	data, err := s.Content(ctx, doc)
	if err != nil {
		return nil, nil, err
	}
	return doc, data, nil
}

// Purge reclaims the bytes of up to limit documents soft-deleted before
// deletedBefore. Records are kept and stamped with purgedAt. It returns how
// many documents were purged; per-document failures are collected and the
// rest still proceed.
func (s *Service) Purge(ctx context.Context, deletedBefore time.Time, limit int) (int, error) {
	docs, err := s.repo.ListPurgeableDocuments(ctx, deletedBefore, limit)
	if err != nil {
		return 0, apperr.Storage("list purgeable documents", err)
	}
	var (
		purged int
		errs   []error
	)
	for _, doc := range docs {
		if err := s.blobs.Delete(ctx, doc.Path); err != nil {
			errs = append(errs, fmt.Errorf("purge %s: %w", doc.ID, err))
			continue
		}
		if err := s.repo.MarkDocumentPurged(ctx, doc.ID, s.now().UTC()); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			errs = append(errs, fmt.Errorf("purge %s: %w", doc.ID, err))
			continue
		}
		purged++
		s.record(ctx, doc.ID, SystemActor, model.ActionPurged, "")
	}
	s.metrics.ObservePurged(purged)
	if len(errs) > 0 {
		return purged, apperr.Storage("purge", errors.Join(errs...))
	}
	return purged, nil
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
		logging.From(ctx).Warnw("append history failed", "document", documentID, "action", action, "error", err)
	}
}

func (s *Service) discard(ctx context.Context, path string) {
	if err := s.blobs.Delete(ctx, path); err != nil {
		s.logger.Warnw("discard orphaned content failed", "path", path, "error", err)
	}
}

func (s *Service) contentType(req UploadRequest) string {
	ct := mediaType(req.ContentType)
	if ct == "" || ct == "application/octet-stream" {
		ct = mediaType(http.DetectContentType(req.Content))
	}
	return ct
}

func (s *Service) allowed(contentType string) bool {
	if len(s.opts.AllowedTypes) == 0 {
		return true
	}
	for _, t := range s.opts.AllowedTypes {
		if strings.EqualFold(t, contentType) {
			return true
		}
	}
	return false
}

func (s *Service) pageCount(content []byte) int {
	if !pdfutil.IsPDF(content) {
		return 0
	}
	n, err := pdfutil.PageCount(content)
	if err != nil {
		s.logger.Debugw("page count unavailable", "error", err)
		return 0
	}
	return n
}

// mediaType strips parameters such as charset.
func mediaType(v string) string {
	if v == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(v)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(v))
	}
	return mt
}

func documentTitle(req UploadRequest, id string) string {
	if title := strings.TrimSpace(req.Title); title != "" {
		return title
	}
	if name := strings.TrimSpace(req.Filename); name != "" {
		return name
	}
	return "upload-" + id
}
