package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStorage keeps files in a MinIO bucket, created on first use
type MinioStorage struct {
	client *minio.Client
	bucket string
}

// NewMinioStorage connects to MinIO and makes sure the bucket exists
func NewMinioStorage(ctx context.Context, cfg StorageConfig) (*MinioStorage, error) {
	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	exists, err := cli.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &MinioStorage{client: cli, bucket: cfg.Bucket}, nil
}

// Upload implements Storage. An unknown size (-1) streams the object.
func (s *MinioStorage) Upload(ctx context.Context, fileID uuid.UUID, filename string, data io.Reader, size int64) (string, error) {
	storagePath := generateStoragePath(fileID, filename)
	if size <= 0 {
		size = -1
	}

	_, err := s.client.PutObject(ctx, s.bucket, storagePath, data, size, minio.PutObjectOptions{
		ContentType: ContentType(filename),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to MinIO: %w", err)
	}
	return storagePath, nil
}

// Download implements Storage
func (s *MinioStorage) Download(ctx context.Context, storagePath string) (io.ReadCloser, error) {
	// GetObject is lazy; Stat surfaces a missing key up front
	if _, err := s.client.StatObject(ctx, s.bucket, storagePath, minio.StatObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, storagePath)
		}
		return nil, fmt.Errorf("failed to stat object: %w", err)
	}

	obj, err := s.client.GetObject(ctx, s.bucket, storagePath, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to download from MinIO: %w", err)
	}
	return obj, nil
}

// Delete implements Storage
func (s *MinioStorage) Delete(ctx context.Context, storagePath string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, storagePath, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete from MinIO: %w", err)
	}
	return nil
}
