package blobstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"lexsign/custodian/pkg/records"
)

// TestStore_DeleteIdempotent tests that deleting a missing object succeeds.
func TestStore_DeleteIdempotent(t *testing.T) {
	s, err := New(Config{Provider: ProviderMem, DefaultBucket: "docs"})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	ref := records.ObjectRef{Bucket: "docs", Key: "signed/a.pdf"}

	if err := s.Put(ctx, ref, []byte("%PDF")); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	if ok, _ := s.Exists(ctx, ref); !ok {
		t.Fatal("object should exist after Put")
	}

	for i := 0; i < 2; i++ {
		if err := s.Delete(ctx, ref); err != nil {
			t.Fatalf("Delete() attempt %d failed: %v", i+1, err)
		}
	}
	if ok, _ := s.Exists(ctx, ref); ok {
		t.Error("object should be gone after Delete")
	}
}

// TestStore_FileProvider tests the directory-backed provider.
func TestStore_FileProvider(t *testing.T) {
	root := t.TempDir()
	s, err := New(Config{Provider: ProviderFile, FileRoot: root, DefaultBucket: "docs"})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	ref := records.ObjectRef{Bucket: "docs", Key: "original/a.pdf"}
	if err := s.Put(ctx, ref, []byte("data")); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "docs", "original", "a.pdf")); err != nil {
		t.Fatalf("expected file on disk: %v", err)
	}

	if err := s.Delete(ctx, ref); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if err := s.Delete(ctx, records.ObjectRef{Bucket: "docs", Key: "never/existed.pdf"}); err != nil {
		t.Errorf("Delete() of missing object failed: %v", err)
	}
}

// TestNew_InvalidProvider tests provider validation.
func TestNew_InvalidProvider(t *testing.T) {
	if _, err := New(Config{Provider: "ftp"}); err == nil {
		t.Error("expected error for unsupported provider")
	}
	if _, err := New(Config{Provider: ProviderFile}); err == nil {
		t.Error("expected error for file provider without root")
	}
}

// TestNew_S3 tests that the S3 client is built without network access.
func TestNew_S3(t *testing.T) {
	s, err := New(Config{
		Provider:      ProviderS3,
		DefaultBucket: "docs",
		S3Endpoint:    "http://localhost:9000",
		S3Region:      "us-east-1",
		S3AccessKeyID: "minio",
		S3Secret:      "minio123",
		S3PathStyle:   true,
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if s.s3Client == nil {
		t.Error("expected S3 client to be configured")
	}
	if s.DefaultBucket() != "docs" {
		t.Errorf("DefaultBucket() = %s", s.DefaultBucket())
	}
}
