package media

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config locates the bucket media is written to. PublicEndpoint is the
// base URL clients fetch objects from, typically a CDN in front of the
// bucket.
type S3Config struct {
	Endpoint       string
	Bucket         string
	AccessKey      string
	SecretKey      string
	Region         string
	UseSSL         bool
	Prefix         string
	PublicEndpoint string
	RequestTimeout time.Duration
}

// S3Backend writes to any S3-compatible object store.
type S3Backend struct {
	cfg    S3Config
	client *minio.Client
}

// NewS3Backend validates cfg and prepares a minio client. No request is made
// until the first upload.
func NewS3Backend(cfg S3Config) (*S3Backend, error) {
	cfg.Bucket = strings.TrimSpace(cfg.Bucket)
	if cfg.Bucket == "" {
		return nil, errors.New("media: s3 bucket is required")
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("parse s3 endpoint: %w", err)
		}
		endpoint = parsed.Host
		if parsed.Scheme == "https" {
			cfg.UseSSL = true
		}
	}
	if endpoint == "" {
		return nil, errors.New("media: s3 endpoint is required")
	}
	cfg.Endpoint = endpoint
	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = time.Minute
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(strings.TrimSpace(cfg.AccessKey), strings.TrimSpace(cfg.SecretKey), ""),
		Secure:       cfg.UseSSL,
		Region:       cfg.Region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("configure s3 client: %w", err)
	}
	return &S3Backend{cfg: cfg, client: client}, nil
}

func (b *S3Backend) Name() string { return "s3" }

func (b *S3Backend) Put(ctx context.Context, localPath string, object Object) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.RequestTimeout)
	defer cancel()

	key := b.applyPrefix(object.Key)
	_, err := b.client.FPutObject(ctx, b.cfg.Bucket, key, localPath, minio.PutObjectOptions{
		ContentType:  object.ContentType,
		CacheControl: "public, max-age=31536000, immutable",
	})
	if err != nil {
		return "", describeBackend(b.Name(), fmt.Errorf("put %s: %w", key, err))
	}
	return b.publicURL(key), nil
}

func (b *S3Backend) applyPrefix(key string) string {
	trimmed := strings.TrimLeft(strings.TrimSpace(key), "/")
	prefix := strings.Trim(strings.TrimSpace(b.cfg.Prefix), "/")
	if prefix == "" {
		return trimmed
	}
	if trimmed == "" {
		return prefix
	}
	if trimmed == prefix || strings.HasPrefix(trimmed, prefix+"/") {
		return trimmed
	}
	return prefix + "/" + trimmed
}

// publicURL falls back to the path-style bucket URL when no public endpoint
// is configured.
func (b *S3Backend) publicURL(key string) string {
	if base := strings.TrimSpace(b.cfg.PublicEndpoint); base != "" {
		return joinURL(base, key)
	}
	scheme := "http"
	if b.cfg.UseSSL {
		scheme = "https"
	}
	return joinURL(fmt.Sprintf("%s://%s/%s", scheme, b.cfg.Endpoint, b.cfg.Bucket), key)
}
