package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dharsanguruparan/SignDrop/internal/apperr"
	"github.com/dharsanguruparan/SignDrop/internal/model"
)

type createRequestBody struct {
	SignerID string `json:"signerId"`
	model.Placement
}

type rejectBody struct {
	Notes string `json:"notes"`
}

type createShareBody struct {
	Permission model.Permission `json:"permission"`
	TTLSeconds int64            `json:"ttlSeconds"`
}

func (s *Server) handleCreateRequest(c *gin.Context) {
	var body createRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, apperr.Validation("invalid request body: %v", err))
		return
	}
	req, err := s.deps.Signatures.CreateRequest(c.Request.Context(), c.Param("id"), body.SignerID, body.Placement, caller(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, req)
}

func (s *Server) handleDocumentRequests(c *gin.Context) {
	reqs, err := s.deps.Signatures.ListForDocument(c.Request.Context(), c.Param("id"), caller(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": reqs})
}

func (s *Server) handleListRequests(c *gin.Context) {
	reqs, err := s.deps.Signatures.ListForUser(c.Request.Context(), c.Query("userId"), caller(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": reqs})
}

func (s *Server) handleSign(c *gin.Context) {
	req, err := s.deps.Signatures.Sign(c.Request.Context(), c.Param("id"), caller(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (s *Server) handleReject(c *gin.Context) {
	var body rejectBody
	if err := bindOptionalJSON(c, &body); err != nil {
		respondError(c, err)
		return
	}
	req, err := s.deps.Signatures.Reject(c.Request.Context(), c.Param("id"), caller(c), body.Notes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (s *Server) handleStatus(c *gin.Context) {
	status, err := s.deps.Signatures.StatusFor(c.Request.Context(), c.Param("id"), caller(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleHistory(c *gin.Context) {
	entries, err := s.deps.Signatures.History(c.Request.Context(), c.Param("id"), caller(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": entries})
}

func (s *Server) handleCreateShare(c *gin.Context) {
	var body createShareBody
	if err := bindOptionalJSON(c, &body); err != nil {
		respondError(c, err)
		return
	}
	share, err := s.deps.Sharing.Create(c.Request.Context(), c.Param("id"), caller(c), body.Permission, time.Duration(body.TTLSeconds)*time.Second)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, share)
}

func (s *Server) handleRevokeShare(c *gin.Context) {
	share, err := s.deps.Sharing.Revoke(c.Request.Context(), c.Param("token"), caller(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, share)
}
