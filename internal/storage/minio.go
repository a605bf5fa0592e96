package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/your-org/lastseen/internal/config"
)

// ErrBlobNotFound is returned when a blob id does not resolve to an object.
var ErrBlobNotFound = errors.New("blob not found")

// Blob is an open object stream. Callers must Close it.
type Blob struct {
	io.ReadCloser
	Size        int64
	ContentType string
}

// MinIOStore keeps image bytes under <prefix><blobID> in a single bucket.
type MinIOStore struct {
	client *minio.Client
	bucket string
	prefix string
}

func NewMinIOStore(cfg config.MinIOConfig) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &MinIOStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (s *MinIOStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
	}
	return nil
}

// Put streams r into a new object and returns its blob id.
// A negative size makes minio use a multipart upload of unknown length.
func (s *MinIOStore) Put(ctx context.Context, r io.Reader, size int64, contentType string) (string, error) {
	id := uuid.NewString()
	key := s.key(id)
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return id, nil
}

// Open returns a stream over the blob. A missing object maps to ErrBlobNotFound.
func (s *MinIOStore) Open(ctx context.Context, blobID string) (*Blob, error) {
	key := s.key(blobID)
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, mapObjectErr("get object", key, err)
	}

	// GetObject is lazy; Stat issues the request and surfaces NoSuchKey.
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, mapObjectErr("stat object", key, err)
	}

	return &Blob{ReadCloser: obj, Size: info.Size, ContentType: info.ContentType}, nil
}

// Exists reports whether the blob is present.
func (s *MinIOStore) Exists(ctx context.Context, blobID string) (bool, error) {
	key := s.key(blobID)
	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat object %s: %w", key, err)
	}
	return true, nil
}

// Delete removes the blob. S3 deletes are idempotent, so presence is checked
// first to report ErrBlobNotFound.
func (s *MinIOStore) Delete(ctx context.Context, blobID string) error {
	ok, err := s.Exists(ctx, blobID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrBlobNotFound
	}
	key := s.key(blobID)
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s: %w", key, err)
	}
	return nil
}

// BlobInfo is a listed blob.
type BlobInfo struct {
	ID           string
	Size         int64
	LastModified time.Time
}

// ListBlobs returns every blob under the store prefix.
func (s *MinIOStore) ListBlobs(ctx context.Context) ([]BlobInfo, error) {
	var blobs []BlobInfo
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    s.prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects %s: %w", s.prefix, obj.Err)
		}
		blobs = append(blobs, BlobInfo{
			ID:           strings.TrimPrefix(obj.Key, s.prefix),
			Size:         obj.Size,
			LastModified: obj.LastModified,
		})
	}
	return blobs, nil
}

// DeleteBlobs removes multiple blobs in a single batch request.
func (s *MinIOStore) DeleteBlobs(ctx context.Context, blobIDs []string) error {
	objectsCh := make(chan minio.ObjectInfo, len(blobIDs))
	for _, id := range blobIDs {
		objectsCh <- minio.ObjectInfo{Key: s.key(id)}
	}
	close(objectsCh)
	for result := range s.client.RemoveObjects(ctx, s.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		if result.Err != nil {
			return fmt.Errorf("delete object %s: %w", result.ObjectName, result.Err)
		}
	}
	return nil
}

// Ping checks MinIO connectivity.
func (s *MinIOStore) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}

func (s *MinIOStore) key(blobID string) string {
	return s.prefix + blobID
}

func mapObjectErr(op, key string, err error) error {
	if isNotFound(err) {
		return ErrBlobNotFound
	}
	return fmt.Errorf("%s %s: %w", op, key, err)
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}
