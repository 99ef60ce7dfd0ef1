package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/mmcdole/kiosk/internal/domain"
)

// ObjectStoreConfig holds connection settings for s3:// media URLs
type ObjectStoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// S3Fetcher downloads s3://bucket/key media from an S3-compatible object store
type S3Fetcher struct {
	client *minio.Client
	logger *slog.Logger
}

// NewS3Fetcher creates a fetcher for the configured endpoint
func NewS3Fetcher(cfg ObjectStoreConfig, logger *slog.Logger) (*S3Fetcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("object store endpoint is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}

	return &S3Fetcher{client: client, logger: logger}, nil
}

// parseObjectURL splits s3://bucket/path/to/key
func parseObjectURL(raw string) (bucket, key string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", err
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("not an s3 url: %s", raw)
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 url needs bucket and key: %s", raw)
	}
	return bucket, key, nil
}

// Fetch downloads the object in one attempt
func (f *S3Fetcher) Fetch(ctx context.Context, rawURL string) (domain.FetchResult, error) {
	bucket, key, err := parseObjectURL(rawURL)
	if err != nil {
		return domain.FetchResult{}, err
	}

	f.logger.Debug("object request", "bucket", bucket, "key", key)

	obj, err := f.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return domain.FetchResult{}, err
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.StatusCode != 0 {
			return domain.FetchResult{StatusCode: resp.StatusCode}, &domain.StatusError{StatusCode: resp.StatusCode, Status: resp.Code}
		}
		return domain.FetchResult{}, err
	}

	body, err := io.ReadAll(obj)
	if err != nil {
		return domain.FetchResult{}, fmt.Errorf("failed to read object: %w", err)
	}

	return domain.FetchResult{Body: body, ContentType: info.ContentType, StatusCode: 200}, nil
}
