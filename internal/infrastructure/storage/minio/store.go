package minio

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/contabil/fiscore/internal/infrastructure/monitoring/logging"
	"github.com/contabil/fiscore/pkg/errors"
)

// ErrObjectNotFound is returned when a path has no backing object.
var ErrObjectNotFound = errors.New(errors.ErrCodeNotFound, "object not found")

// ErrDestinationExists is returned by Move when the destination path is
// already occupied.  The promoter treats it as a retryable duplicate-name
// condition, not a fatal error.
var ErrDestinationExists = errors.New(errors.ErrCodeConflict, "destination object already exists")

// FileStore is the storage capability the intake pipeline depends on.
type FileStore interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) error
	Get(ctx context.Context, path string) ([]byte, error)
	Exists(ctx context.Context, path string) (bool, error)

	// Move relocates an object.  It re-checks the destination immediately
	// before copying and returns ErrDestinationExists when occupied, so
	// concurrent promotions of same-named files never overwrite each
	// other.
	Move(ctx context.Context, srcPath, dstPath string) error

	// Delete removes an object; a missing object is not an error, so
	// upload deletion tolerates the file already being gone.
	Delete(ctx context.Context, path string) error

	PresignedGetURL(ctx context.Context, path string, expiry time.Duration) (string, error)
}

type fileStore struct {
	client *Client
	logger logging.Logger
}

// NewFileStore builds the MinIO-backed file store.
func NewFileStore(client *Client, log logging.Logger) FileStore {
	return &fileStore{client: client, logger: log}
}

func (s *fileStore) bucket() string {
	return s.client.cfg.Bucket
}

func (s *fileStore) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	if path == "" {
		return errors.New(errors.ErrCodeValidation, "object path must not be empty")
	}
	if contentType == "" && len(data) > 0 {
		n := len(data)
		if n > 512 {
			n = 512
		}
		contentType = http.DetectContentType(data[:n])
	}

	_, err := s.client.api.PutObject(ctx, s.bucket(), path,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "failed to upload object")
	}
	return nil
}

func (s *fileStore) Get(ctx context.Context, path string) ([]byte, error) {
	obj, err := s.client.api.GetObject(ctx, s.bucket(), path, minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "failed to get object")
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrObjectNotFound
		}
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "failed to read object")
	}
	return data, nil
}

func (s *fileStore) Exists(ctx context.Context, path string) (bool, error) {
	_, err := s.client.api.StatObject(ctx, s.bucket(), path, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, errors.Wrap(err, errors.ErrCodeStorageError, "failed to stat object")
	}
	return true, nil
}

func (s *fileStore) Move(ctx context.Context, srcPath, dstPath string) error {
	// Re-verify right before the copy; a concurrent promotion may have
	// claimed the destination since the caller's existence check.
	occupied, err := s.Exists(ctx, dstPath)
	if err != nil {
		return err
	}
	if occupied {
		return ErrDestinationExists
	}

	src := minio.CopySrcOptions{Bucket: s.bucket(), Object: srcPath}
	dst := minio.CopyDestOptions{Bucket: s.bucket(), Object: dstPath}
	if _, err := s.client.api.CopyObject(ctx, dst, src); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return ErrObjectNotFound
		}
		return errors.Wrap(err, errors.ErrCodeStorageError, "failed to copy object")
	}

	if err := s.client.api.RemoveObject(ctx, s.bucket(), srcPath, minio.RemoveObjectOptions{}); err != nil {
		// The copy already succeeded; losing the staged source is the
		// preferred failure direction.
		s.logger.Warn("Failed to remove source object after move",
			logging.String("src", srcPath),
			logging.String("dst", dstPath),
			logging.Err(err),
		)
	}
	return nil
}

func (s *fileStore) Delete(ctx context.Context, path string) error {
	err := s.client.api.RemoveObject(ctx, s.bucket(), path, minio.RemoveObjectOptions{})
	if err != nil && minio.ToErrorResponse(err).Code != "NoSuchKey" {
		return errors.Wrap(err, errors.ErrCodeStorageError, "failed to delete object")
	}
	return nil
}

func (s *fileStore) PresignedGetURL(ctx context.Context, path string, expiry time.Duration) (string, error) {
	u, err := s.client.api.PresignedGetObject(ctx, s.bucket(), path, expiry, url.Values{})
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeStorageError, "failed to presign object URL")
	}
	return u.String(), nil
}
