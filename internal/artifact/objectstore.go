package artifact

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

// ObjectStoreConfig holds S3-compatible bucket settings
type ObjectStoreConfig struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Prefix    string
}

// ObjectStore publishes local artifacts to an S3-compatible bucket
type ObjectStore struct {
	logger zerolog.Logger
	client *minio.Client
	bucket string
	prefix string
}

// NewObjectStore creates a client for the configured bucket
func NewObjectStore(logger zerolog.Logger, cfg ObjectStoreConfig) (*ObjectStore, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("object store endpoint and bucket are required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	return &ObjectStore{
		logger: logger,
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// ObjectKey returns the bucket key for a file name under the configured prefix
func (o *ObjectStore) ObjectKey(name string) string {
	if o.prefix == "" {
		return name
	}
	return path.Join(o.prefix, name)
}

// EnsureBucket creates the bucket if it does not exist yet
func (o *ObjectStore) EnsureBucket(ctx context.Context) error {
	exists, err := o.client.BucketExists(ctx, o.bucket)
	if err != nil {
		return fmt.Errorf("s3 bucket exists: %w", err)
	}
	if exists {
		return nil
	}
	if err := o.client.MakeBucket(ctx, o.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("s3 make bucket: %w", err)
	}
	return nil
}

// Upload puts a single local file into the bucket under key
func (o *ObjectStore) Upload(ctx context.Context, localPath, key string) error {
	contentType := mime.TypeByExtension(filepath.Ext(localPath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	info, err := o.client.FPutObject(ctx, o.bucket, key, localPath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("s3 put object %s: %w", key, err)
	}

	o.logger.Info().
		Str("bucket", o.bucket).
		Str("key", key).
		Int64("size", info.Size).
		Msg("Artifact uploaded")
	return nil
}

// PublishDir uploads every regular file directly inside dir and returns the keys written
func (o *ObjectStore) PublishDir(ctx context.Context, dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	if err := o.EnsureBucket(ctx); err != nil {
		return nil, err
	}

	var keys []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		key := o.ObjectKey(entry.Name())
		if err := o.Upload(ctx, filepath.Join(dir, entry.Name()), key); err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}
