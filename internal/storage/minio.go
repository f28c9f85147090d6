package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"imagejob/internal/infra"
)

const minioConnectAttempts = 3

// MinIOStore keeps artifacts in an S3 compatible bucket.
type MinIOStore struct {
	client   *minio.Client
	bucket   string
	basePath string
}

// NewMinIOStore connects to the bucket, creating it when missing. Connection
// attempts are retried with a doubling pause.
func NewMinIOStore(ctx context.Context, cfg infra.MinIOConfig) (*MinIOStore, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("storage: empty minio endpoint")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("storage: empty minio bucket")
	}

	var lastErr error
	pause := time.Second
	for attempt := range minioConnectAttempts {
		client, err := minio.New(cfg.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
			Secure: cfg.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("storage: minio client: %w", err)
		}
		if lastErr = ensureBucket(ctx, client, cfg.Bucket); lastErr == nil {
			return &MinIOStore{client: client, bucket: cfg.Bucket, basePath: objectPrefix(cfg.BasePath)}, nil
		}
		if attempt == minioConnectAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pause):
			pause *= 2
		}
	}
	return nil, fmt.Errorf("storage: minio unavailable after %d attempts: %w", minioConnectAttempts, lastErr)
}

func ensureBucket(ctx context.Context, client *minio.Client, bucket string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	return nil
}

func (s *MinIOStore) Write(ctx context.Context, key string, data []byte) (string, error) {
	clean, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	_, err = s.client.PutObject(ctx, s.bucket, s.basePath+clean, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: http.DetectContentType(data)})
	if err != nil {
		return "", fmt.Errorf("storage: put object: %w", err)
	}
	return clean, nil
}

func (s *MinIOStore) Read(ctx context.Context, key string) ([]byte, error) {
	clean, err := sanitizeKey(key)
	if err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, s.basePath+clean, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("storage: get object: %w", err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == minio.NoSuchKey {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, clean)
		}
		return nil, fmt.Errorf("storage: read object: %w", err)
	}
	return data, nil
}

func (s *MinIOStore) Location(key string) string {
	clean, err := sanitizeKey(key)
	if err != nil {
		clean = key
	}
	return "s3://" + s.bucket + "/" + s.basePath + clean
}

func objectPrefix(basePath string) string {
	basePath = strings.Trim(strings.ReplaceAll(basePath, "\\", "/"), "/")
	if basePath == "" {
		return ""
	}
	return basePath + "/"
}
