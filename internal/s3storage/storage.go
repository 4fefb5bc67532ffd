// Package s3storage implements storage.Blobs on MinIO or any S3 compatible
// object store.
package s3storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dharsanguruparan/SignDrop/internal/config"
	"github.com/dharsanguruparan/SignDrop/internal/storage"
)

// Storage wraps MinIO/S3 interactions for document bytes.
type Storage struct {
	client *minio.Client
	bucket string
	region string
	now    func() time.Time
}

var _ storage.Blobs = (*Storage)(nil)

// New creates a MinIO client from the Config.
func New(cfg *config.Config) (*Storage, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return &Storage{
		client: client,
		bucket: cfg.Bucket,
		region: cfg.S3Region,
		now:    time.Now,
	}, nil
}

// EnsureBucket makes sure the document bucket exists before use.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return fmt.Errorf("make bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// Write uploads content under a fresh object key.
func (s *Storage) Write(ctx context.Context, content []byte, contentType string) (string, error) {
	key := storage.NewName(s.now())
	opts := minio.PutObjectOptions{ContentType: contentType}
	if _, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(content), int64(len(content)), opts); err != nil {
		return "", fmt.Errorf("upload object: %w", err)
	}
	return key, nil
}

// Read fetches the object bytes.
func (s *Storage) Read(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object: %w", mapErr(err))
	}
	defer obj.Close()
	// GetObject is lazy; a missing key only surfaces on the first read.
	buf, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, mapErr(err))
	}
	return buf, nil
}

// Exists stats the object.
func (s *Storage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if errors.Is(mapErr(err), storage.ErrNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("stat object %s: %w", key, err)
}

// Delete removes the object. S3 treats a missing key as success.
func (s *Storage) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s: %w", key, err)
	}
	return nil
}

// PresignURL returns a signed GET URL served directly by the object store.
func (s *Storage) PresignURL(ctx context.Context, key, filename string, ttl time.Duration) (string, error) {
	params := url.Values{}
	if filename != "" {
		params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", filename))
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, ttl, params)
	if err != nil {
		return "", fmt.Errorf("presign object: %w", err)
	}
	return u.String(), nil
}

func mapErr(err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %w", storage.ErrNotFound, err)
	}
	return err
}
