package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestSetLogLevel(t *testing.T) {
	t.Cleanup(func() { _ = SetLogLevel("info") })

	for _, name := range []string{"debug", "INFO", "warn", "error"} {
		assert.NoError(t, SetLogLevel(name), name)
	}
	assert.Equal(t, zapcore.ErrorLevel, level.Level())
	assert.Error(t, SetLogLevel("chatty"))
}

func TestContextLogger(t *testing.T) {
	assert.Equal(t, DefaultLogger(), From(context.Background()))

	logger := New("request", "id", "r1")
	ctx := With(context.Background(), logger)
	assert.Same(t, logger, From(ctx))
}
