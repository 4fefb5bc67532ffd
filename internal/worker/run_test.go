package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dharsanguruparan/SignDrop/internal/config"
	"github.com/dharsanguruparan/SignDrop/internal/logging"
)

func TestRunNeedsRedis(t *testing.T) {
	p := NewProcessor(nil, &mockPurger{}, logging.NewNop())
	err := Run(context.Background(), &config.Config{PurgeSchedule: "@every 1h"}, p, logging.NewNop())
	assert.ErrorContains(t, err, "SIGNDROP_REDIS_ADDR")
}

func TestRunRejectsBadSchedule(t *testing.T) {
	cfg := &config.Config{
		RedisAddr:        "127.0.0.1:1",
		WorkerConcurrent: 1,
		PurgeAfter:       time.Hour,
		PurgeBatch:       10,
		PurgeSchedule:    "whenever",
	}
	p := NewProcessor(nil, &mockPurger{}, logging.NewNop())
	err := Run(context.Background(), cfg, p, logging.NewNop())
	assert.ErrorContains(t, err, "schedule purge")
}
