// Package s3 provides a BlobStore backed by Amazon S3 or an S3-compatible endpoint.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// DefaultPublicBaseURL is the host serving public-read objects.
const DefaultPublicBaseURL = "https://s3.amazonaws.com"

// Environment variables holding the static credentials.
const (
	EnvAccessKeyID     = "AWS_ACCESS_KEY_ID"
	EnvSecretAccessKey = "AWS_SECRET_ACCESS_KEY"
	EnvSessionToken    = "AWS_SESSION_TOKEN"
)

// ErrMissingCredentials is returned when the access key pair is not available.
var ErrMissingCredentials = errors.New("missing AWS credentials")

// Credentials is a static access key pair.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// CredentialsFromEnv reads the key pair through lookup (os.LookupEnv in production).
func CredentialsFromEnv(lookup func(string) (string, bool)) (Credentials, error) {
	id, _ := lookup(EnvAccessKeyID)
	secret, _ := lookup(EnvSecretAccessKey)
	token, _ := lookup(EnvSessionToken)
	if strings.TrimSpace(id) == "" || strings.TrimSpace(secret) == "" {
		return Credentials{}, fmt.Errorf("%w: %s and %s must be set", ErrMissingCredentials, EnvAccessKeyID, EnvSecretAccessKey)
	}
	return Credentials{AccessKeyID: id, SecretAccessKey: secret, SessionToken: token}, nil
}

// Config captures the parameters required to write to a bucket.
type Config struct {
	Bucket string
	Region string
	// Endpoint points at an S3-compatible service. Path-style addressing is used when set.
	Endpoint      string
	PublicBaseURL string
	Credentials   Credentials
}

// PutObjectAPI is the subset of the S3 client used by BlobStore.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// BlobStore writes public-read artifacts to an S3 bucket.
type BlobStore struct {
	client  PutObjectAPI
	bucket  string
	baseURL string
}

// NewClient builds an S3 client from cfg with SDK retries disabled.
func NewClient(ctx context.Context, cfg Config) (*s3.Client, error) {
	if cfg.Credentials.AccessKeyID == "" || cfg.Credentials.SecretAccessKey == "" {
		return nil, ErrMissingCredentials
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.Credentials.AccessKeyID,
			cfg.Credentials.SecretAccessKey,
			cfg.Credentials.SessionToken,
		)),
		awsconfig.WithRetryer(func() aws.Retryer { return aws.NopRetryer{} }),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
		// S3-compatible services do not all accept the newer default checksums.
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	}), nil
}

// New creates an S3-backed blob store.
func New(client PutObjectAPI, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("s3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	base := strings.TrimRight(cfg.PublicBaseURL, "/")
	if base == "" && cfg.Endpoint != "" {
		base = strings.TrimRight(cfg.Endpoint, "/")
	}
	if base == "" {
		base = DefaultPublicBaseURL
	}
	return &BlobStore{
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: base,
	}, nil
}

// PutObject uploads data with a public-read ACL and returns the object's public URL.
func (s *BlobStore) PutObject(ctx context.Context, key string, contentType string, data []byte) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("key is required")
	}
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ACL:           types.ObjectCannedACLPublicRead,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("put object s3://%s/%s: %w", s.bucket, key, err)
	}
	return s.PublicURL(key), nil
}

// PublicURL returns the anonymous HTTPS URL for key. The key is path-escaped so titles
// carrying '?', '#' or '%' still address the whole object name.
func (s *BlobStore) PublicURL(key string) string {
	return fmt.Sprintf("%s/%s/%s", s.baseURL, s.bucket, url.PathEscape(key))
}
