package blobstore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/blob/memblob"
	"gocloud.dev/blob/s3blob"
	"gocloud.dev/gcerrors"

	"lexsign/custodian/pkg/records"
)

// Providers.
const (
	ProviderS3   = "s3"
	ProviderFile = "file"
	ProviderMem  = "mem"
)

// Config selects and configures the object storage provider.
type Config struct {
	// Provider is "s3", "file" or "mem".
	Provider string

	// DefaultBucket resolves legacy single-key locators and locators
	// without an explicit bucket.
	DefaultBucket string

	// FileRoot is the directory holding one subdirectory per bucket for
	// the file provider.
	FileRoot string

	S3Endpoint    string
	S3Region      string
	S3AccessKeyID string
	S3Secret      string
	S3Token       string
	S3PathStyle   bool
}

// ObjectStore is the narrow storage contract the retention engine needs.
type ObjectStore interface {
	// Delete removes one object. A missing object is not an error.
	Delete(ctx context.Context, ref records.ObjectRef) error
	// DefaultBucket is the bucket for locators without one.
	DefaultBucket() string
}

// Store opens gocloud buckets lazily and caches them by name.
type Store struct {
	cfg      Config
	s3Client *s3.Client

	mu      sync.Mutex
	buckets map[string]*blob.Bucket
	logger  *slog.Logger
}

// New creates a Store for cfg.
func New(cfg Config) (*Store, error) {
	s := &Store{
		cfg:     cfg,
		buckets: make(map[string]*blob.Bucket),
		logger:  slog.Default().With("component", "blobstore."+cfg.Provider),
	}

	switch cfg.Provider {
	case ProviderS3:
		s3Config := aws.Config{
			Credentials: credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3Secret, cfg.S3Token),
			Region:      cfg.S3Region,
		}
		if cfg.S3Endpoint != "" {
			s3Config.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		s.s3Client = s3.NewFromConfig(s3Config, func(o *s3.Options) {
			o.UsePathStyle = cfg.S3PathStyle
		})
	case ProviderFile:
		if cfg.FileRoot == "" {
			return nil, fmt.Errorf("file provider requires a root directory")
		}
		if err := os.MkdirAll(cfg.FileRoot, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create file root: %w", err)
		}
	case ProviderMem:
	default:
		return nil, fmt.Errorf("unsupported object storage provider %q", cfg.Provider)
	}

	return s, nil
}

// DefaultBucket returns the configured default bucket.
func (s *Store) DefaultBucket() string {
	return s.cfg.DefaultBucket
}

func (s *Store) bucket(ctx context.Context, name string) (*blob.Bucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.buckets[name]; ok {
		return b, nil
	}

	var (
		b   *blob.Bucket
		err error
	)
	switch s.cfg.Provider {
	case ProviderS3:
		b, err = s3blob.OpenBucketV2(ctx, s.s3Client, name, nil)
	case ProviderFile:
		b, err = fileblob.OpenBucket(filepath.Join(s.cfg.FileRoot, name), &fileblob.Options{CreateDir: true})
	default:
		b = memblob.OpenBucket(nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open bucket %q: %w", name, err)
	}

	s.buckets[name] = b
	return b, nil
}

// Delete removes one object, treating "not found" as success.
func (s *Store) Delete(ctx context.Context, ref records.ObjectRef) error {
	b, err := s.bucket(ctx, ref.Bucket)
	if err != nil {
		return err
	}
	if err := b.Delete(ctx, ref.Key); err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			s.logger.Debug("object already absent", "bucket", ref.Bucket, "key", ref.Key)
			return nil
		}
		return err
	}
	s.logger.Debug("object deleted", "bucket", ref.Bucket, "key", ref.Key)
	return nil
}

// Put writes one object. Used by imports and tests.
func (s *Store) Put(ctx context.Context, ref records.ObjectRef, data []byte) error {
	b, err := s.bucket(ctx, ref.Bucket)
	if err != nil {
		return err
	}
	return b.WriteAll(ctx, ref.Key, data, nil)
}

// Exists reports whether an object exists.
func (s *Store) Exists(ctx context.Context, ref records.ObjectRef) (bool, error) {
	b, err := s.bucket(ctx, ref.Bucket)
	if err != nil {
		return false, err
	}
	return b.Exists(ctx, ref.Key)
}

// Close closes every opened bucket.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for name, b := range s.buckets {
		if err := b.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close bucket %q: %w", name, err)
		}
		delete(s.buckets, name)
	}
	return firstErr
}
