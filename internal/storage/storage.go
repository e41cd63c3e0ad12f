package storage

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/therealutkarshpriyadarshi/vidtube/internal/config"
	"github.com/therealutkarshpriyadarshi/vidtube/internal/logging"
	"github.com/therealutkarshpriyadarshi/vidtube/pkg/models"
)

// Storage is the media host: it stores uploaded images in an object
// storage bucket and hands back their public URL and object key.
type Storage struct {
	client     *minio.Client
	bucketName string
	baseURL    string
	logger     *logging.Logger
}

// New creates a new storage client
func New(cfg config.StorageConfig, logger *logging.Logger) (*Storage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	// Ensure bucket exists
	ctx := context.Background()
	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		err = client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{
			Region: cfg.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	baseURL := cfg.PublicURL
	if baseURL == "" {
		baseURL = client.EndpointURL().String()
	}

	return &Storage{
		client:     client,
		bucketName: cfg.BucketName,
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger,
	}, nil
}

// UploadFile uploads a local file under folder and returns where it can be
// fetched from. The object key doubles as the asset's public id.
func (s *Storage) UploadFile(ctx context.Context, localPath, folder string) (*models.MediaAsset, error) {
	objectName := objectKey(folder, localPath)
	start := time.Now()

	info, err := s.client.FPutObject(ctx, s.bucketName, objectName, localPath, minio.PutObjectOptions{
		ContentType: getContentType(localPath),
	})
	s.logger.LogStorageOperation("upload", s.bucketName, objectName, info.Size, time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to upload file: %w", err)
	}

	return &models.MediaAsset{
		URL:      s.ObjectURL(objectName),
		PublicID: objectName,
	}, nil
}

// Delete deletes an object from storage
func (s *Storage) Delete(ctx context.Context, publicID string) error {
	start := time.Now()
	err := s.client.RemoveObject(ctx, s.bucketName, publicID, minio.RemoveObjectOptions{})
	s.logger.LogStorageOperation("delete", s.bucketName, publicID, 0, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}

	return nil
}

// ObjectURL returns the public URL of an object
func (s *Storage) ObjectURL(objectName string) string {
	return fmt.Sprintf("%s/%s/%s", s.baseURL, s.bucketName, objectName)
}

// Health checks the bucket is reachable
func (s *Storage) Health(ctx context.Context) error {
	if _, err := s.client.BucketExists(ctx, s.bucketName); err != nil {
		return fmt.Errorf("storage health check failed: %w", err)
	}
	return nil
}

func objectKey(folder, localPath string) string {
	name := uuid.New().String() + strings.ToLower(filepath.Ext(localPath))
	if folder == "" {
		return name
	}
	return path.Join(folder, name)
}

// getContentType returns the content type based on file extension
func getContentType(filePath string) string {
	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".svg":
		return "image/svg+xml"
	case ".avif":
		return "image/avif"
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	default:
		return "application/octet-stream"
	}
}
