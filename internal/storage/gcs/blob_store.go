// Package gcs provides a BlobStore backed by Google Cloud Storage.
package gcs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"cloud.google.com/go/storage"
)

// DefaultPublicBaseURL is the host serving publicly readable objects.
const DefaultPublicBaseURL = "https://storage.googleapis.com"

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket        string
	PublicBaseURL string
}

// BlobStore writes publicly readable artifacts to a configured GCS bucket.
type BlobStore struct {
	client  *storage.Client
	bucket  string
	baseURL string
}

// New creates a GCS-backed blob store.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	base := strings.TrimRight(cfg.PublicBaseURL, "/")
	if base == "" {
		base = DefaultPublicBaseURL
	}
	return &BlobStore{
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: base,
	}, nil
}

// PutObject uploads data with a publicRead ACL and returns the object's public URL.
// Client-side retries are disabled; callers own the retry loop.
func (s *BlobStore) PutObject(ctx context.Context, key string, contentType string, data []byte) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("key is required")
	}
	obj := s.client.Bucket(s.bucket).Object(key).Retryer(storage.WithPolicy(storage.RetryNever))
	writer := obj.NewWriter(ctx)
	writer.ChunkSize = 0
	writer.PredefinedACL = "publicRead"
	if contentType != "" {
		writer.ContentType = contentType
	}
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %w)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return s.PublicURL(key), nil
}

// PublicURL returns the anonymous HTTPS URL for key. The key is path-escaped so titles
// carrying '?', '#' or '%' still address the whole object name.
func (s *BlobStore) PublicURL(key string) string {
	return fmt.Sprintf("%s/%s/%s", s.baseURL, s.bucket, url.PathEscape(key))
}
