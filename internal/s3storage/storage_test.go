package s3storage

import (
	"errors"
	"net/http"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/SignDrop/internal/config"
	"github.com/dharsanguruparan/SignDrop/internal/storage"
)

func TestMapErr(t *testing.T) {
	missing := minio.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound, Message: "gone"}
	assert.ErrorIs(t, mapErr(missing), storage.ErrNotFound)

	denied := minio.ErrorResponse{Code: "AccessDenied", StatusCode: http.StatusForbidden}
	assert.NotErrorIs(t, mapErr(denied), storage.ErrNotFound)

	plain := errors.New("connection reset")
	assert.Equal(t, plain, mapErr(plain))
}

func TestNew(t *testing.T) {
	st, err := New(&config.Config{
		S3Endpoint:  "localhost:9000",
		S3AccessKey: "minio",
		S3SecretKey: "minio123",
		S3Region:    "us-east-1",
		Bucket:      "docs",
	})
	require.NoError(t, err)
	assert.Equal(t, "docs", st.bucket)
}
