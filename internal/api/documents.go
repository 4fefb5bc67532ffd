package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dharsanguruparan/SignDrop/internal/apperr"
	"github.com/dharsanguruparan/SignDrop/internal/documents"
)

// multipartOverhead leaves room for boundaries and form fields on top of the
// file itself.
const multipartOverhead = 1 << 20

func (s *Server) handleUpload(c *gin.Context) {
	content, filename, contentType, err := s.readFile(c)
	if err != nil {
		respondError(c, err)
		return
	}
	res, err := s.deps.Documents.Upload(c.Request.Context(), documents.UploadRequest{
		Content:     content,
		Filename:    filename,
		Title:       c.PostForm("title"),
		ContentType: contentType,
	}, caller(c))
	if err != nil {
		respondError(c, err)
		return
	}
	status := http.StatusOK
	if res.IsNew {
		status = http.StatusCreated
	}
	c.JSON(status, res)
}

// readFile pulls the "file" part of a multipart body into memory.
func (s *Server) readFile(c *gin.Context) ([]byte, string, string, error) {
	if s.deps.MaxFileSize > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.deps.MaxFileSize+multipartOverhead)
	}
	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, "", "", apperr.Validation("file exceeds %d bytes", s.deps.MaxFileSize)
		}
		return nil, "", "", apperr.Validation("expecting multipart form with a file part")
	}
	f, err := header.Open()
	if err != nil {
		return nil, "", "", apperr.Validation("unreadable file part: %v", err)
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, "", "", apperr.Validation("unreadable file part: %v", err)
	}
	return content, header.Filename, header.Header.Get("Content-Type"), nil
}

func (s *Server) handleListDocuments(c *gin.Context) {
	includeDeleted, _ := strconv.ParseBool(c.Query("includeDeleted"))
	docs, err := s.deps.Documents.List(c.Request.Context(), caller(c), documents.ListOptions{IncludeDeleted: includeDeleted})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

func (s *Server) handleGetDocument(c *gin.Context) {
	doc, err := s.deps.Documents.Get(c.Request.Context(), c.Param("id"), caller(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (s *Server) handleDeleteDocument(c *gin.Context) {
	doc, err := s.deps.Documents.SoftDelete(c.Request.Context(), c.Param("id"), caller(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (s *Server) handleDownload(c *gin.Context) {
	doc, data, err := s.deps.Documents.Open(c.Request.Context(), c.Param("id"), caller(c))
	if err != nil {
		respondError(c, err)
		return
	}
	serveDocument(c, doc, data)
}

func (s *Server) handleSignedURL(c *gin.Context) {
	link, err := s.deps.Documents.SignedDownloadURL(c.Request.Context(), c.Param("id"), caller(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, link)
}

func (s *Server) handleSignedDownload(c *gin.Context) {
	doc, data, err := s.deps.Documents.OpenSigned(c.Request.Context(), c.Query("id"), c.Query("expires"), c.Query("signature"))
	if err != nil {
		respondError(c, err)
		return
	}
	serveDocument(c, doc, data)
}

func (s *Server) handleVerifyDocument(c *gin.Context) {
	res, err := s.deps.Verification.VerifyDocument(c.Request.Context(), c.Param("id"), caller(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type updateDocumentBody struct {
	Title string `json:"title"`
}

func (s *Server) handleUpdateDocument(c *gin.Context) {
	var body updateDocumentBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, apperr.Validation("invalid request body: %v", err))
		return
	}
	doc, err := s.deps.Documents.Update(c.Request.Context(), c.Param("id"), body.Title, caller(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}
