// Package server wires configuration into the SignDrop services and runs
// them. The API process, the worker and the CLI share Open.
package server

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"

	"github.com/dharsanguruparan/SignDrop/internal/api"
	"github.com/dharsanguruparan/SignDrop/internal/auth"
	"github.com/dharsanguruparan/SignDrop/internal/config"
	"github.com/dharsanguruparan/SignDrop/internal/database"
	"github.com/dharsanguruparan/SignDrop/internal/documents"
	"github.com/dharsanguruparan/SignDrop/internal/logging"
	"github.com/dharsanguruparan/SignDrop/internal/memstore"
	"github.com/dharsanguruparan/SignDrop/internal/metrics"
	"github.com/dharsanguruparan/SignDrop/internal/notify"
	"github.com/dharsanguruparan/SignDrop/internal/processing"
	"github.com/dharsanguruparan/SignDrop/internal/queue"
	"github.com/dharsanguruparan/SignDrop/internal/repository"
	"github.com/dharsanguruparan/SignDrop/internal/s3storage"
	"github.com/dharsanguruparan/SignDrop/internal/sharing"
	"github.com/dharsanguruparan/SignDrop/internal/signatures"
	"github.com/dharsanguruparan/SignDrop/internal/signing"
	"github.com/dharsanguruparan/SignDrop/internal/storage"
	"github.com/dharsanguruparan/SignDrop/internal/users"
	"github.com/dharsanguruparan/SignDrop/internal/verification"
)

// Components are the stores and core services built from a Config.
type Components struct {
	Store     repository.Store
	Blobs     storage.Blobs
	Signer    *signing.Signer
	Metrics   *metrics.Metrics
	Documents *documents.Service
	Users     *users.Service

	closers []func()
}

// Open builds the persistence and core services. Postgres is used when
// DatabaseURL is set and migrated on open; otherwise the in-memory store.
func Open(ctx context.Context, cfg *config.Config, logger logging.Logger) (*Components, error) {
	c := &Components{}

	signer, err := signing.NewSigner(cfg.SigningSecret)
	if err != nil {
		return nil, fmt.Errorf("init signer: %w", err)
	}
	c.Signer = signer

	m, err := metrics.New()
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	c.Metrics = m

	if cfg.DatabaseURL != "" {
		if err := database.Migrate(ctx, cfg.DatabaseURL); err != nil {
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		c.closers = append(c.closers, pool.Close)
		c.Store = repository.NewPostgresStore(pool)
		logger.Infow("using postgres store")
	} else {
		db, err := memstore.New()
		if err != nil {
			return nil, fmt.Errorf("init memory store: %w", err)
		}
		c.Store = db
		logger.Warnw("SIGNDROP_DATABASE_URL not set, records are kept in memory")
	}

	blobs, err := openBlobs(ctx, cfg)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Blobs = blobs
	logger.Infow("using blob storage", "backend", cfg.StorageBackend)

	c.Documents = documents.NewService(c.Store, c.Blobs, signer, logger.Named("documents"), m, documents.Options{
		MaxFileSize:  cfg.MaxFileSize,
		AllowedTypes: cfg.AllowedTypes,
		SignedURLTTL: cfg.SignedURLTTL,
	})
	c.Users = users.NewService(c.Store)
	return c, nil
}

func openBlobs(ctx context.Context, cfg *config.Config) (storage.Blobs, error) {
	switch cfg.StorageBackend {
	case config.StorageS3:
		store, err := s3storage.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("init s3 storage: %w", err)
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("ensure bucket: %w", err)
		}
		return store, nil
	case config.StorageMemory:
		return storage.NewMemoryStore(), nil
	default:
		store, err := storage.NewLocalStore(cfg.StorageDir)
		if err != nil {
			return nil, fmt.Errorf("init local storage: %w", err)
		}
		return store, nil
	}
}

// Close releases connections held by the components.
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

// Server hosts the HTTP API with its notification pipeline. With Redis
// configured, notifications and purges go through asynq and cmd/worker;
// without it they run in this process.
type Server struct {
	cfg        *config.Config
	logger     logging.Logger
	components *Components
	api        *api.Server
	dispatcher *processing.Dispatcher
	client     *asynq.Client
	purges     *cron.Cron
	schedule   cron.Schedule
	once       sync.Once
}

// New creates a configured server.
func New(ctx context.Context, cfg *config.Config, logger logging.Logger) (*Server, error) {
	c, err := Open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	s := &Server{cfg: cfg, logger: logger, components: c}

	var notifier notify.Notifier
	if cfg.RedisAddr != "" {
		s.client = asynq.NewClient(queue.RedisOpt(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB))
		notifier = queue.NewNotifier(s.client, c.Metrics)
		logger.Infow("notifications queued on redis", "addr", cfg.RedisAddr)
	} else {
		schedule, err := ParsePurgeSchedule(cfg.PurgeSchedule)
		if err != nil {
			c.Close()
			return nil, err
		}
		s.schedule = schedule
		s.purges = cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		)
		s.dispatcher = processing.New(notify.LogDelivery(logger.Named("notify")), cfg.ProcessingPool, cfg.ProcessingQueue, logger.Named("dispatcher"), c.Metrics)
		notifier = s.dispatcher
		logger.Infow("notifications delivered in process", "workers", cfg.ProcessingPool)
	}

	s.api = api.New(cfg.Address, api.Deps{
		Documents:    c.Documents,
		Signatures:   signatures.NewEngine(c.Store, notifier, logger.Named("signatures"), c.Metrics),
		Verification: verification.NewService(c.Signer, c.Documents, c.Blobs, c.Metrics),
		Sharing:      sharing.NewService(c.Store, cfg.ShareMaxTTL, logger.Named("sharing")),
		Users:        c.Users,
		Issuer:       auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL),
		Metrics:      c.Metrics,
		Logger:       logger.Named("api"),
		MaxFileSize:  cfg.MaxFileSize,
	})
	return s, nil
}

// Serve runs the API until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	s.once.Do(func() {
		if s.dispatcher != nil {
			s.dispatcher.Start(ctx)
			s.purges.Schedule(s.schedule, cron.FuncJob(func() { s.purge(ctx) }))
			s.purges.Start()
		}
	})
	return s.api.Run(ctx)
}

// Close stops background work and releases connections.
func (s *Server) Close() {
	if s.purges != nil {
		<-s.purges.Stop().Done()
	}
	if s.dispatcher != nil {
		s.dispatcher.Stop()
	}
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			s.logger.Warnw("close asynq client", "error", err)
		}
	}
	s.components.Close()
}

// purge reclaims long soft-deleted documents when no worker process runs
// the scheduled purge task.
func (s *Server) purge(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	cutoff := time.Now().UTC().Add(-s.cfg.PurgeAfter)
	n, err := s.components.Documents.Purge(ctx, cutoff, s.cfg.PurgeBatch)
	if err != nil {
		s.logger.Errorw("purge failed", "purged", n, "error", err)
		return
	}
	if n > 0 {
		s.logger.Infow("purged documents", "count", n)
	}
}

// ParsePurgeSchedule reads SIGNDROP_PURGE_SCHEDULE the way the asynq
// scheduler does: five cron fields or a descriptor such as @daily or
// @every 30m.
func ParsePurgeSchedule(spec string) (cron.Schedule, error) {
	schedule, err := cron.ParseStandard(strings.TrimSpace(spec))
	if err != nil {
		return nil, fmt.Errorf("purge schedule %q: %w", spec, err)
	}
	return schedule, nil
}
