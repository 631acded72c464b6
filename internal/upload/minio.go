package upload

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const DefaultURLExpiry = time.Hour

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	// Prefix is prepended to every object key.
	Prefix string
	// PublicBaseURL, when set, is joined with the object key instead of
	// presigning a GET URL (for buckets with anonymous read access).
	PublicBaseURL string
	URLExpiry     time.Duration
}

// MinIO uploads images to an S3-compatible bucket.
type MinIO struct {
	client *miniogo.Client
	cfg    MinIOConfig
}

func NewMinIO(cfg MinIOConfig) (*MinIO, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("minio bucket is required")
	}
	if cfg.URLExpiry <= 0 {
		cfg.URLExpiry = DefaultURLExpiry
	}

	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &MinIO{client: client, cfg: cfg}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (m *MinIO) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", m.cfg.Bucket, err)
	}
	if !exists {
		if err := m.client.MakeBucket(ctx, m.cfg.Bucket, miniogo.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", m.cfg.Bucket, err)
		}
	}
	return nil
}

// Upload puts the image under Prefix/<file name> and returns its URL.
func (m *MinIO) Upload(ctx context.Context, imagePath string) (string, error) {
	f, err := os.Open(imagePath)
	if err != nil {
		return "", fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat image: %w", err)
	}

	key := ObjectKey(m.cfg.Prefix, imagePath)
	_, err = m.client.PutObject(ctx, m.cfg.Bucket, key, f, stat.Size(), miniogo.PutObjectOptions{
		ContentType: ContentType(imagePath),
	})
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}

	if m.cfg.PublicBaseURL != "" {
		return PublicURL(m.cfg.PublicBaseURL, key), nil
	}

	u, err := m.client.PresignedGetObject(ctx, m.cfg.Bucket, key, m.cfg.URLExpiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign image url: %w", err)
	}
	return u.String(), nil
}

func ObjectKey(prefix, imagePath string) string {
	name := filepath.Base(imagePath)
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

func PublicURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}

// ContentType guesses the MIME type from the file extension, defaulting to JPEG.
func ContentType(imagePath string) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(imagePath))); t != "" {
		return t
	}
	return "image/jpeg"
}
