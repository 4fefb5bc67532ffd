package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dharsanguruparan/SignDrop/internal/apperr"
	"github.com/dharsanguruparan/SignDrop/internal/model"
	"github.com/dharsanguruparan/SignDrop/internal/signatures"
)

type sharedInfo struct {
	Document   *model.Document   `json:"document"`
	Permission model.Permission  `json:"permission"`
	ExpiresAt  time.Time         `json:"expiresAt"`
	Status     signatures.Status `json:"status"`
}

// handleVerify checks an uploaded file against a claimed signature. It
// needs no account: the signature is the proof.
func (s *Server) handleVerify(c *gin.Context) {
	content, _, _, err := s.readFile(c)
	if err != nil {
		respondError(c, err)
		return
	}
	signature := c.PostForm("signature")
	if signature == "" {
		respondError(c, apperr.Validation("signature is required"))
		return
	}
	c.JSON(http.StatusOK, s.deps.Verification.Verify(content, signature))
}

func (s *Server) handleSharedInfo(c *gin.Context) {
	ctx := c.Request.Context()
	share, doc, err := s.deps.Sharing.Resolve(ctx, c.Param("token"), model.PermissionView)
	if err != nil {
		respondError(c, err)
		return
	}
	status, err := s.deps.Signatures.AggregateStatus(ctx, doc.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sharedInfo{
		Document:   doc,
		Permission: share.Permission,
		ExpiresAt:  share.ExpiresAt,
		Status:     status,
	})
}

func (s *Server) handleSharedFile(c *gin.Context) {
	ctx := c.Request.Context()
	_, doc, err := s.deps.Sharing.Resolve(ctx, c.Param("token"), model.PermissionView)
	if err != nil {
		respondError(c, err)
		return
	}
	data, err := s.deps.Documents.Content(ctx, doc)
	if err != nil {
		respondError(c, err)
		return
	}
	serveDocument(c, doc, data)
}

// handleSharedUpdate lets an edit share retitle its document. View shares
// are refused.
func (s *Server) handleSharedUpdate(c *gin.Context) {
	var body updateDocumentBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, apperr.Validation("invalid request body: %v", err))
		return
	}
	ctx := c.Request.Context()
	share, doc, err := s.deps.Sharing.Resolve(ctx, c.Param("token"), model.PermissionEdit)
	if err != nil {
		respondError(c, err)
		return
	}
	updated, err := s.deps.Documents.Retitle(ctx, doc.ID, body.Title, share.CreatedBy)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}
