// Package artifact issues short-lived pre-signed URLs so browsers can store
// exported diagrams without holding storage credentials.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"archgen/internal/config"
)

const (
	keyPrefix          = "diagrams"
	bucketCheckTimeout = 10 * time.Second
)

var (
	ErrDisabled    = errors.New("artifact storage is not configured")
	ErrInvalidName = errors.New("invalid artifact name")
)

var allowedExt = map[string]string{
	".png":  "image/png",
	".svg":  "image/svg+xml",
	".mmd":  "text/plain",
	".md":   "text/markdown",
	".txt":  "text/plain",
	".pdf":  "application/pdf",
	".json": "application/json",
}

// Upload is a pre-signed PUT for one object.
type Upload struct {
	URL         string
	Key         string
	ContentType string
	ExpiresIn   time.Duration
}

type Presigner struct {
	client *minio.Client
	bucket string
	region string
	expiry time.Duration

	mu    sync.Mutex
	ready bool
}

// NewPresigner returns ErrDisabled when cfg.Enabled is false.
func NewPresigner(cfg config.ArtifactConfig) (*Presigner, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("artifact: s3 endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("artifact: s3 access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("artifact: s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}
	expiry := cfg.URLExpiry
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("artifact: init s3 client: %w", err)
	}
	return &Presigner{client: client, bucket: bucket, region: region, expiry: expiry}, nil
}

// ensureBucket remembers only success; a failed or abandoned check is
// retried by the next caller.
func (p *Presigner) ensureBucket(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ready {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bucketCheckTimeout)
	defer cancel()
	exists, err := p.client.BucketExists(ctx, p.bucket)
	if err != nil {
		return err
	}
	if !exists {
		if err := p.client.MakeBucket(ctx, p.bucket, minio.MakeBucketOptions{Region: p.region}); err != nil {
			return err
		}
	}
	p.ready = true
	return nil
}

// UploadURL presigns a PUT for name under a fresh key.
func (p *Presigner) UploadURL(ctx context.Context, name string) (Upload, error) {
	if p == nil {
		return Upload{}, ErrDisabled
	}
	key, ctype, err := ObjectKey(uuid.NewString(), name)
	if err != nil {
		return Upload{}, err
	}
	if err := p.ensureBucket(ctx); err != nil {
		return Upload{}, fmt.Errorf("ensure bucket: %w", err)
	}
	u, err := p.client.PresignedPutObject(ctx, p.bucket, key, p.expiry)
	if err != nil {
		return Upload{}, fmt.Errorf("presign put: %w", err)
	}
	return Upload{URL: u.String(), Key: key, ContentType: ctype, ExpiresIn: p.expiry}, nil
}

// DownloadURL presigns a GET for a key previously handed out by UploadURL.
func (p *Presigner) DownloadURL(ctx context.Context, key string) (string, error) {
	if p == nil {
		return "", ErrDisabled
	}
	if !strings.HasPrefix(key, keyPrefix+"/") || strings.Contains(key, "..") {
		return "", ErrInvalidName
	}
	u, err := p.client.PresignedGetObject(ctx, p.bucket, key, p.expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign get: %w", err)
	}
	return u.String(), nil
}

// ObjectKey builds diagrams/<id>/<name> and returns the content type implied
// by the extension. Only plain file names with a known extension are accepted.
func ObjectKey(id, name string) (string, string, error) {
	name = strings.TrimSpace(name)
	if name == "" || name != path.Base(name) || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	ctype, ok := allowedExt[strings.ToLower(path.Ext(name))]
	if !ok {
		return "", "", fmt.Errorf("%w: unsupported extension in %q", ErrInvalidName, name)
	}
	return keyPrefix + "/" + id + "/" + name, ctype, nil
}
