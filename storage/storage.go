package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a storage path does not exist
var ErrNotFound = errors.New("file not found")

// Storage keeps uploaded documents until their analysis job is deleted
type Storage interface {
	// Upload stores a file and returns the storage path
	Upload(ctx context.Context, fileID uuid.UUID, filename string, data io.Reader, size int64) (string, error)

	// Download retrieves a file by storage path
	Download(ctx context.Context, storagePath string) (io.ReadCloser, error)

	// Delete removes a file by storage path. Missing files are not an error.
	Delete(ctx context.Context, storagePath string) error
}

// StorageType represents the storage backend type
type StorageType string

const (
	StorageTypeLocal StorageType = "local"
	StorageTypeS3    StorageType = "s3"
	StorageTypeMinio StorageType = "minio"
)

// StorageConfig holds configuration for storage
type StorageConfig struct {
	Type      StorageType
	LocalPath string

	Bucket    string
	Region    string
	Endpoint  string // S3-compatible endpoint, empty for AWS
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// NewStorage creates a new storage instance based on configuration
func NewStorage(ctx context.Context, cfg StorageConfig) (Storage, error) {
	switch cfg.Type {
	case StorageTypeLocal, "":
		path := cfg.LocalPath
		if path == "" {
			path = "./storage/files"
		}
		return NewLocalStorage(path)
	case StorageTypeS3:
		if cfg.Bucket == "" {
			return nil, errors.New("bucket is required for S3 storage")
		}
		return NewS3Storage(ctx, cfg)
	case StorageTypeMinio:
		if cfg.Bucket == "" || cfg.Endpoint == "" {
			return nil, errors.New("endpoint and bucket are required for MinIO storage")
		}
		return NewMinioStorage(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

// generateStoragePath builds a unique, shard-prefixed key for a file
func generateStoragePath(fileID uuid.UUID, filename string) string {
	filename = filepath.Base(filename)
	ext := filepath.Ext(filename)
	baseName := strings.TrimSuffix(filename, ext)
	baseName = strings.NewReplacer(" ", "_", "/", "_", "\\", "_", "..", "_").Replace(baseName)

	id := fileID.String()
	return fmt.Sprintf("%s/%s_%s%s", id[:2], id, baseName, strings.ToLower(ext))
}

// ContentType determines content type from filename
func ContentType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "application/pdf"
	case ".txt":
		return "text/plain"
	case ".md":
		return "text/markdown"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
