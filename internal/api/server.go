// Package api exposes SignDrop over HTTP with gin.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dharsanguruparan/SignDrop/internal/auth"
	"github.com/dharsanguruparan/SignDrop/internal/documents"
	"github.com/dharsanguruparan/SignDrop/internal/logging"
	"github.com/dharsanguruparan/SignDrop/internal/metrics"
	"github.com/dharsanguruparan/SignDrop/internal/sharing"
	"github.com/dharsanguruparan/SignDrop/internal/signatures"
	"github.com/dharsanguruparan/SignDrop/internal/users"
	"github.com/dharsanguruparan/SignDrop/internal/verification"
)

const shutdownTimeout = 5 * time.Second

// Deps are the services behind the routes.
type Deps struct {
	Documents    *documents.Service
	Signatures   *signatures.Engine
	Verification *verification.Service
	Sharing      *sharing.Service
	Users        *users.Service
	Issuer       *auth.Issuer
	Metrics      *metrics.Metrics
	Logger       logging.Logger
	// MaxFileSize bounds multipart bodies. Zero disables the bound.
	MaxFileSize int64
}

// Server exposes HTTP endpoints for documents, signature requests,
// verification and sharing.
type Server struct {
	addr   string
	deps   Deps
	engine *gin.Engine
	server *http.Server
	once   sync.Once
}

// New constructs a Server listening on addr.
func New(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = logging.DefaultLogger()
	}
	s := &Server{addr: addr, deps: deps}
	s.engine = s.routes()
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.once.Do(func() {
		s.server = &http.Server{
			Addr:              s.addr,
			Handler:           s.engine,
			ReadHeaderTimeout: 10 * time.Second,
		}
	})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	s.deps.Logger.Infow("api listening", "address", s.addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(s.recoverPanic(), s.requestContext(), s.accessLog(), s.observe(), cors())

	r.GET("/healthz", s.handleHealth)
	if s.deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))
	}

	v1 := r.Group("/api/v1")
	v1.POST("/verify", s.handleVerify)
	// Must match documents.DownloadPath.
	v1.GET("/download", s.handleSignedDownload)
	v1.GET("/shared/:token", s.handleSharedInfo)
	v1.GET("/shared/:token/file", s.handleSharedFile)
	v1.PATCH("/shared/:token", s.handleSharedUpdate)

	authed := v1.Group("")
	authed.Use(s.authenticate())
	{
		authed.POST("/documents", s.handleUpload)
		authed.GET("/documents", s.handleListDocuments)
		authed.GET("/documents/:id", s.handleGetDocument)
		authed.PATCH("/documents/:id", s.handleUpdateDocument)
		authed.DELETE("/documents/:id", s.handleDeleteDocument)
		authed.GET("/documents/:id/file", s.handleDownload)
		authed.POST("/documents/:id/signed-url", s.handleSignedURL)
		authed.GET("/documents/:id/status", s.handleStatus)
		authed.GET("/documents/:id/requests", s.handleDocumentRequests)
		authed.POST("/documents/:id/requests", s.handleCreateRequest)
		authed.GET("/documents/:id/history", s.handleHistory)
		authed.GET("/documents/:id/verify", s.handleVerifyDocument)
		authed.POST("/documents/:id/shares", s.handleCreateShare)
		authed.DELETE("/shares/:token", s.handleRevokeShare)

		authed.GET("/requests", s.handleListRequests)
		authed.POST("/requests/:id/sign", s.handleSign)
		authed.POST("/requests/:id/reject", s.handleReject)

		authed.POST("/users", s.handleCreateUser)
		authed.GET("/users", s.handleListUsers)
		authed.GET("/users/me", s.handleMe)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorBody("not_found", "no such route"))
	})
	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
