package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dharsanguruparan/SignDrop/internal/apperr"
	"github.com/dharsanguruparan/SignDrop/internal/auth"
	"github.com/dharsanguruparan/SignDrop/internal/logging"
	"github.com/dharsanguruparan/SignDrop/internal/model"
)

const (
	identityKey     = "identity"
	requestIDHeader = "X-Request-ID"
)

// requestContext tags each request with an id and a logger carrying it.
func (s *Server) requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)
		logger := s.deps.Logger.With("request_id", id)
		c.Request = c.Request.WithContext(logging.With(c.Request.Context(), logger))
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger := logging.From(c.Request.Context())
		kv := []interface{}{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"client_ip", c.ClientIP(),
		}
		if id, ok := identityFrom(c); ok {
			kv = append(kv, "user_id", id.ID)
		}
		logger.Infow("http request", kv...)
	}
}

func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		s.deps.Metrics.ObserveHTTP(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

func (s *Server) recoverPanic() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logging.From(c.Request.Context()).Errorw("panic serving request", "path", c.Request.URL.Path, "panic", recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody(string(apperr.KindInternal), "internal error"))
	})
}

// authenticate resolves the bearer token into the caller identity.
func (s *Server) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := auth.BearerToken(c.GetHeader("Authorization"))
		if !ok {
			respondError(c, apperr.Unauthenticated("missing bearer token"))
			return
		}
		identity, err := s.deps.Issuer.Parse(token)
		if err != nil {
			respondError(c, err)
			return
		}
		c.Set(identityKey, identity)
		c.Next()
	}
}

func identityFrom(c *gin.Context) (model.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return model.Identity{}, false
	}
	id, ok := v.(model.Identity)
	return id, ok
}

// caller is only used behind authenticate.
func caller(c *gin.Context) model.Identity {
	id, _ := identityFrom(c)
	return id
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type,Authorization,"+requestIDHeader)
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
