// Package upload stages multipart files on local disk and forwards them to
// the media host. Staged copies never outlive the request.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/therealutkarshpriyadarshi/vidtube/internal/logging"
	"github.com/therealutkarshpriyadarshi/vidtube/internal/metrics"
	"github.com/therealutkarshpriyadarshi/vidtube/pkg/models"
)

// MediaHost stores files remotely
type MediaHost interface {
	UploadFile(ctx context.Context, localPath, folder string) (*models.MediaAsset, error)
	Delete(ctx context.Context, publicID string) error
}

// Stager writes incoming multipart files into a temp directory
type Stager struct {
	tempDir string
}

// NewStager creates a stager, creating tempDir when missing
func NewStager(tempDir string) (*Stager, error) {
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	return &Stager{tempDir: tempDir}, nil
}

// Stage copies the uploaded file to a collision-free local path
func (s *Stager) Stage(fh *multipart.FileHeader) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer src.Close()

	name := uuid.New().String() + strings.ToLower(filepath.Ext(fh.Filename))
	dstPath := filepath.Join(s.tempDir, name)

	dst, err := os.Create(dstPath)
	if err != nil {
		return "", fmt.Errorf("failed to create staged file: %w", err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dstPath)
		return "", fmt.Errorf("failed to write staged file: %w", err)
	}

	if err := dst.Close(); err != nil {
		os.Remove(dstPath)
		return "", fmt.Errorf("failed to close staged file: %w", err)
	}

	return dstPath, nil
}

// Uploader forwards staged files to the media host
type Uploader struct {
	host   MediaHost
	logger *logging.Logger
}

// NewUploader creates an uploader backed by host
func NewUploader(host MediaHost, logger *logging.Logger) *Uploader {
	return &Uploader{host: host, logger: logger}
}

// Upload sends the staged file to the media host under folder. The local
// copy is removed whether or not the upload succeeds.
func (u *Uploader) Upload(ctx context.Context, localPath, folder string) (*models.MediaAsset, error) {
	defer u.Discard(localPath)

	if localPath == "" {
		return nil, errors.New("no file to upload")
	}

	start := time.Now()
	asset, err := u.host.UploadFile(ctx, localPath, folder)
	duration := time.Since(start).Seconds()
	if err != nil {
		metrics.RecordMediaUpload(folder, "failure", duration)
		return nil, err
	}

	metrics.RecordMediaUpload(folder, "success", duration)
	return asset, nil
}

// Delete removes an asset from the media host
func (u *Uploader) Delete(ctx context.Context, publicID string) error {
	return u.host.Delete(ctx, publicID)
}

// Discard removes staged files. Empty and already-removed paths are ignored.
func (u *Uploader) Discard(paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			u.logger.WithField("path", p).WarnWithErr("Failed to remove staged file", err)
		}
	}
}
