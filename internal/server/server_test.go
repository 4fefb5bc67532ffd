package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/SignDrop/internal/config"
	"github.com/dharsanguruparan/SignDrop/internal/documents"
	"github.com/dharsanguruparan/SignDrop/internal/logging"
	"github.com/dharsanguruparan/SignDrop/internal/model"
	"github.com/dharsanguruparan/SignDrop/internal/storage"
)

func memoryConfig() *config.Config {
	return &config.Config{
		Address:         "127.0.0.1:0",
		SigningSecret:   []byte("server-test-signing-secret"),
		JWTSecret:       []byte("server-test-jwt-secret"),
		TokenTTL:        time.Hour,
		SignedURLTTL:    time.Minute,
		ShareMaxTTL:     time.Hour,
		StorageBackend:  config.StorageMemory,
		ProcessingPool:  1,
		ProcessingQueue: 4,
		PurgeSchedule:   "@every 1h",
		PurgeBatch:      10,
	}
}

func TestParsePurgeSchedule(t *testing.T) {
	from := time.Date(2026, 5, 1, 10, 2, 0, 0, time.UTC)
	tests := []struct {
		schedule string
		next     time.Time
	}{
		{"*/5 * * * *", time.Date(2026, 5, 1, 10, 5, 0, 0, time.UTC)},
		{"0 3 * * *", time.Date(2026, 5, 2, 3, 0, 0, 0, time.UTC)},
		{"@daily", time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)},
		{"@hourly", time.Date(2026, 5, 1, 11, 0, 0, 0, time.UTC)},
		{"@every 10m", time.Date(2026, 5, 1, 10, 12, 0, 0, time.UTC)},
		{" @every 2h30m ", time.Date(2026, 5, 1, 12, 32, 0, 0, time.UTC)},
	}
	for _, tc := range tests {
		t.Run(tc.schedule, func(t *testing.T) {
			schedule, err := ParsePurgeSchedule(tc.schedule)
			require.NoError(t, err)
			assert.True(t, tc.next.Equal(schedule.Next(from)), "next run %s, want %s", schedule.Next(from), tc.next)
		})
	}

	for _, bad := range []string{"", "whenever", "@every soon", "61 * * * *"} {
		_, err := ParsePurgeSchedule(bad)
		assert.Error(t, err, bad)
	}
}

func TestNewRejectsBadPurgeSchedule(t *testing.T) {
	cfg := memoryConfig()
	cfg.PurgeSchedule = "every day at three"
	_, err := New(context.Background(), cfg, logging.NewNop())
	assert.ErrorContains(t, err, "purge schedule")
}

func TestScheduledPurgeInProcess(t *testing.T) {
	cfg := memoryConfig()
	cfg.PurgeSchedule = "@every 1s"
	cfg.PurgeAfter = 0
	s, err := New(context.Background(), cfg, logging.NewNop())
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	docs := s.components.Documents
	res, err := docs.Upload(ctx, documents.UploadRequest{Content: []byte("reclaim me")}, model.Identity{ID: "u", Role: model.RoleUser})
	require.NoError(t, err)
	_, err = docs.SoftDelete(ctx, res.Document.ID, model.Identity{ID: "m", Role: model.RoleManager})
	require.NoError(t, err)

	go func() { _ = s.Serve(ctx) }()

	assert.Eventually(t, func() bool {
		doc, err := s.components.Store.GetDocument(ctx, res.Document.ID)
		return err == nil && doc.PurgedAt != nil
	}, 5*time.Second, 50*time.Millisecond)
}

func TestOpenInMemory(t *testing.T) {
	ctx := context.Background()
	c, err := Open(ctx, memoryConfig(), logging.NewNop())
	require.NoError(t, err)
	defer c.Close()

	assert.IsType(t, &storage.MemoryStore{}, c.Blobs)
	res, err := c.Documents.Upload(ctx, documents.UploadRequest{Content: []byte("wired")}, model.Identity{ID: "u", Role: model.RoleUser})
	require.NoError(t, err)
	assert.True(t, c.Signer.Verify(res.Document.Fingerprint, res.Document.Signature))
}

func TestOpenLocalStorage(t *testing.T) {
	cfg := memoryConfig()
	cfg.StorageBackend = config.StorageLocal
	cfg.StorageDir = t.TempDir()

	c, err := Open(context.Background(), cfg, logging.NewNop())
	require.NoError(t, err)
	defer c.Close()
	assert.IsType(t, &storage.LocalStore{}, c.Blobs)
}

func TestOpenRejectsWeakSecret(t *testing.T) {
	cfg := memoryConfig()
	cfg.SigningSecret = []byte("short")
	_, err := Open(context.Background(), cfg, logging.NewNop())
	assert.Error(t, err)
}

func TestServeStopsOnCancel(t *testing.T) {
	s, err := New(context.Background(), memoryConfig(), logging.NewNop())
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
