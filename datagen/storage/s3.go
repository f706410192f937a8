package storage

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"datagen_platform/utils/logging"
)

type S3Config struct {
	Endpoint  string `env:"S3_ENDPOINT"`
	Region    string `env:"S3_REGION" envDefault:"us-east-1"`
	AccessKey string `env:"S3_ACCESS_KEY"`
	SecretKey string `env:"S3_SECRET_KEY"`
	Bucket    string `env:"S3_BUCKET"`
	UseSSL    bool   `env:"S3_USE_SSL" envDefault:"false"`
}

// Enabled reports whether the config carries enough to reach a bucket.
// Export is optional and skipped entirely when unset.
func (c *S3Config) Enabled() bool {
	return c.Endpoint != "" && c.Bucket != ""
}

// S3Exporter mirrors finished run artifacts into an s3 compatible bucket so
// they outlive the shared disk's retention.
type S3Exporter struct {
	client *minio.Client
	bucket string
	region string

	initOnce sync.Once
	initErr  error
}

func NewS3Exporter(cfg S3Config) (*S3Exporter, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("s3 export requires at least an endpoint and a bucket")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("s3 export requires an access key and a secret key")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating s3 client: %w", err)
	}

	return &S3Exporter{client: client, bucket: cfg.Bucket, region: cfg.Region}, nil
}

func (e *S3Exporter) ensureBucket(ctx context.Context) error {
	e.initOnce.Do(func() {
		exists, err := e.client.BucketExists(ctx, e.bucket)
		if err != nil {
			e.initErr = fmt.Errorf("error checking bucket %v: %w", e.bucket, err)
			return
		}
		if exists {
			return
		}
		if err := e.client.MakeBucket(ctx, e.bucket, minio.MakeBucketOptions{Region: e.region}); err != nil {
			e.initErr = fmt.Errorf("error creating bucket %v: %w", e.bucket, err)
		}
	})
	return e.initErr
}

// ExportDir uploads every file under the given store directory, keyed by its
// store relative path so bucket layout matches the shared disk layout.
func (e *S3Exporter) ExportDir(ctx context.Context, store Storage, dir string) error {
	if err := e.ensureBucket(ctx); err != nil {
		return err
	}

	root := filepath.Join(store.Location(), dir)

	uploaded := 0
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(store.Location(), path)
		if err != nil {
			return err
		}
		if err := e.uploadFile(ctx, path, filepath.ToSlash(rel)); err != nil {
			return err
		}
		uploaded++
		return nil
	})
	if err != nil {
		return fmt.Errorf("error exporting %v to bucket %v: %w", dir, e.bucket, err)
	}

	slog.Info("exported artifacts to s3", "dir", dir, "bucket", e.bucket, "files", uploaded, "code", logging.DATA_EXPORT)
	return nil
}

func (e *S3Exporter) uploadFile(ctx context.Context, path, key string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("error opening %v for upload: %w", path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("error getting stats for %v: %w", path, err)
	}

	_, err = e.client.PutObject(ctx, e.bucket, key, file, info.Size(), minio.PutObjectOptions{
		ContentType: contentType(key),
	})
	if err != nil {
		return fmt.Errorf("error uploading %v: %w", key, err)
	}
	return nil
}

func contentType(key string) string {
	switch strings.ToLower(filepath.Ext(key)) {
	case ".csv":
		return "text/csv"
	case ".json":
		return "application/json"
	case ".zip":
		return "application/zip"
	default:
		return "application/octet-stream"
	}
}
