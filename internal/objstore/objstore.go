// Package objstore stores crawl output in an S3-compatible bucket
// using the MinIO client. Every run writes under a date/run prefix so
// output stays browsable without the database.
package objstore

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rotisserie/eris"

	"dredge/internal/config"
)

const defaultPresignExpiry = time.Hour

// Client wraps a MinIO connection scoped to one bucket.
type Client struct {
	mc            *minio.Client
	bucket        string
	presignExpiry time.Duration
}

// New connects to the configured endpoint and creates the bucket if it
// does not exist yet.
func New(ctx context.Context, cfg config.StorageConfig) (*Client, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, eris.Wrap(err, "objstore: connect")
	}

	exists, err := mc.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, eris.Wrapf(err, "objstore: check bucket %s", cfg.Bucket)
	}
	if !exists {
		if err := mc.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, eris.Wrapf(err, "objstore: create bucket %s", cfg.Bucket)
		}
	}

	expiry := defaultPresignExpiry
	if cfg.PresignExpirySeconds > 0 {
		expiry = time.Duration(cfg.PresignExpirySeconds) * time.Second
	}
	return &Client{mc: mc, bucket: cfg.Bucket, presignExpiry: expiry}, nil
}

// Upload stores data at the given object path and returns the path.
func (c *Client) Upload(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	_, err := c.mc.PutObject(ctx, c.bucket, path, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", eris.Wrapf(err, "objstore: put %s", path)
	}
	return path, nil
}

// UploadJSON marshals v with indentation and stores it at path.
func (c *Client) UploadJSON(ctx context.Context, path string, v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", eris.Wrapf(err, "objstore: marshal %s", path)
	}
	return c.Upload(ctx, path, data, "application/json")
}

// PresignGet returns a time-limited download URL for an object.
func (c *Client) PresignGet(ctx context.Context, path string) (string, error) {
	u, err := c.mc.PresignedGetObject(ctx, c.bucket, path, c.presignExpiry, url.Values{})
	if err != nil {
		return "", eris.Wrapf(err, "objstore: presign %s", path)
	}
	return u.String(), nil
}

// Ping verifies the bucket is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.mc.BucketExists(ctx, c.bucket)
	return eris.Wrap(err, "objstore: ping")
}

// Bucket returns the bucket name the client writes to.
func (c *Client) Bucket() string {
	return c.bucket
}
