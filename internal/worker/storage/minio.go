package storage

import (
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var (
	fPutObject = func(c *minio.Client, ctx context.Context, bucket, key, path string, opts minio.PutObjectOptions) error {
		_, err := c.FPutObject(ctx, bucket, key, path, opts)
		return err
	}

	removeObject = func(c *minio.Client, ctx context.Context, bucket, key string) error {
		return c.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{})
	}

	ensureBucket = func(c *minio.Client, ctx context.Context, bucket string) error {
		exists, err := c.BucketExists(ctx, bucket)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
		return c.MakeBucket(ctx, bucket, minio.MakeBucketOptions{})
	}
)

type MinIOConfig struct {
	Endpoint   string
	Bucket     string
	AccessKey  string
	SecretKey  string
	UseSSL     bool
	CDNBaseURL string
}

type MinIO struct {
	client *minio.Client
	bucket string
	cdn    string
}

// NewMinIO connects to the server and creates the bucket when missing.
func NewMinIO(ctx context.Context, c MinIOConfig) (*MinIO, error) {
	client, err := minio.New(c.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.AccessKey, c.SecretKey, ""),
		Secure: c.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	if err := ensureBucket(client, ctx, c.Bucket); err != nil {
		return nil, fmt.Errorf("minio bucket %s: %w", c.Bucket, err)
	}

	cdn := c.CDNBaseURL
	if cdn == "" {
		scheme := "http"
		if c.UseSSL {
			scheme = "https"
		}
		cdn = fmt.Sprintf("%s://%s/%s", scheme, c.Endpoint, c.Bucket)
	}
	return &MinIO{client: client, bucket: c.Bucket, cdn: cdn}, nil
}

func (m *MinIO) Put(ctx context.Context, localPath, key string) (string, error) {
	err := fPutObject(m.client, ctx, m.bucket, key, localPath, minio.PutObjectOptions{
		ContentType:  contentType(localPath),
		CacheControl: CacheControl,
		UserMetadata: map[string]string{"x-amz-acl": "public-read"},
	})
	if err != nil {
		return "", fmt.Errorf("minio put %s: %w", key, err)
	}
	return joinURL(m.cdn, key), nil
}

func (m *MinIO) Delete(ctx context.Context, key string) error {
	if err := removeObject(m.client, ctx, m.bucket, key); err != nil {
		return fmt.Errorf("minio delete %s: %w", key, err)
	}
	return nil
}

var _ Backend = (*MinIO)(nil)
