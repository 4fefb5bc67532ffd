package api

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dharsanguruparan/SignDrop/internal/apperr"
	"github.com/dharsanguruparan/SignDrop/internal/logging"
	"github.com/dharsanguruparan/SignDrop/internal/model"
)

var statusByKind = map[apperr.Kind]int{
	apperr.KindValidation:      http.StatusBadRequest,
	apperr.KindNotFound:        http.StatusNotFound,
	apperr.KindForbidden:       http.StatusForbidden,
	apperr.KindConflict:        http.StatusConflict,
	apperr.KindUnauthenticated: http.StatusUnauthorized,
	apperr.KindStorage:         http.StatusInternalServerError,
	apperr.KindInternal:        http.StatusInternalServerError,
}

func errorBody(kind, message string) gin.H {
	return gin.H{"error": gin.H{"kind": kind, "message": message}}
}

// respondError writes err with the status of its kind and aborts the chain.
// Server-side failures are logged and their details withheld.
func respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := statusByKind[kind]
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		logging.From(c.Request.Context()).Errorw("request failed", "path", c.Request.URL.Path, "kind", kind, "error", err)
		msg = "internal error"
	}
	c.AbortWithStatusJSON(status, errorBody(string(kind), msg))
}

// bindOptionalJSON decodes a JSON body that may be absent. An empty body,
// including a chunked one without a Content-Length, leaves dst untouched.
func bindOptionalJSON(c *gin.Context, dst any) error {
	if c.Request.Body == nil || c.Request.Body == http.NoBody {
		return nil
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return apperr.Validation("invalid request body: %v", err)
	}
	return nil
}

func serveDocument(c *gin.Context, doc *model.Document, data []byte) {
	contentType := doc.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": doc.Title})
	c.Header("Content-Disposition", disposition)
	c.Header("X-Content-Fingerprint", doc.Fingerprint)
	c.Header("Content-Length", strconv.Itoa(len(data)))
	c.Data(http.StatusOK, contentType, data)
}
