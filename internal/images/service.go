// Package images ingests, serves and deletes uploaded photos. Metadata goes
// to the repository and bytes go to the blob store.
package images

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/lastseen/internal/exif"
	"github.com/your-org/lastseen/internal/geo"
	"github.com/your-org/lastseen/internal/models"
	"github.com/your-org/lastseen/internal/observability"
	"github.com/your-org/lastseen/internal/storage"
)

// CacheControl is sent with every image body; stored bytes never change.
const CacheControl = "public, max-age=31536000"

const dispatchTimeout = 3 * time.Second

type BlobStore interface {
	Put(ctx context.Context, r io.Reader, size int64, contentType string) (string, error)
	Open(ctx context.Context, blobID string) (*storage.Blob, error)
	Delete(ctx context.Context, blobID string) error
}

type Repository interface {
	CreateImage(ctx context.Context, img *models.Image) error
	GetImage(ctx context.Context, id uuid.UUID) (*models.Image, error)
	ListImagesByUploader(ctx context.Context, uploaderID uuid.UUID, locatedOnly bool) ([]models.Image, error)
	DeleteImage(ctx context.Context, id uuid.UUID) error
}

// FaceDispatcher hands a committed upload to face recognition.
type FaceDispatcher interface {
	Dispatch(ctx context.Context, task models.FaceTask) error
}

type Options struct {
	// PublicURL prefixes retrieval URLs, e.g. "https://api.example.com".
	PublicURL      string
	MaxUploadBytes int64
}

type Service struct {
	blobs BlobStore
	repo  Repository
	faces FaceDispatcher
	opts  Options
}

// NewService wires the pipeline. A nil dispatcher disables face recognition.
func NewService(blobs BlobStore, repo Repository, faces FaceDispatcher, opts Options) *Service {
	opts.PublicURL = strings.TrimRight(opts.PublicURL, "/")
	return &Service{blobs: blobs, repo: repo, faces: faces, opts: opts}
}

// Upload is one incoming file plus the optional device position.
type Upload struct {
	Data        []byte
	Filename    string
	ContentType string
	Size        int64
	UploaderID  uuid.UUID
	Device      *geo.Device
}

// Ingest stores the upload and returns the created record.
//
// The blob is written before the record. If the record insert fails the
// blob is left behind for the janitor to sweep.
func (s *Service) Ingest(ctx context.Context, up Upload) (*models.Image, error) {
	if len(up.Data) == 0 {
		return nil, fmt.Errorf("%w: no file uploaded", ErrInvalidInput)
	}
	if s.opts.MaxUploadBytes > 0 && int64(len(up.Data)) > s.opts.MaxUploadBytes {
		return nil, fmt.Errorf("%w: file exceeds %d bytes", ErrInvalidInput, s.opts.MaxUploadBytes)
	}
	if up.UploaderID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing uploader", ErrInvalidInput)
	}

	size := int64(len(up.Data))
	if up.Size != 0 && up.Size != size {
		slog.Debug("declared size differs from body", "declared", up.Size, "actual", size)
	}
	contentType := cleanText(up.ContentType)
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(up.Data)
	}

	tags := exif.Extract(up.Data)
	loc, src := geo.ResolveWithSource(tags.GPS(), up.Device)

	blobID, err := s.blobs.Put(ctx, bytes.NewReader(up.Data), size, contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: store image bytes: %w", ErrUpstreamUnavailable, err)
	}

	img := &models.Image{
		Filename:    cleanText(up.Filename),
		UploaderID:  up.UploaderID,
		Exif:        tags,
		Location:    loc,
		BlobID:      blobID,
		ContentType: contentType,
		Size:        size,
	}
	if err := s.repo.CreateImage(ctx, img); err != nil {
		slog.Error("image record not saved, blob orphaned", "blob_id", blobID, "error", err)
		return nil, fmt.Errorf("%w: save image record: %w", ErrUpstreamUnavailable, err)
	}

	observability.UploadsTotal.WithLabelValues(string(src)).Inc()
	observability.UploadBytes.Add(float64(size))
	slog.Info("image ingested",
		"image_id", img.ID,
		"uploader", img.UploaderID,
		"size", size,
		"location_source", src,
	)

	s.dispatchFaces(ctx, img)
	return img, nil
}

// dispatchFaces never fails the upload. It runs on a context detached from
// the request so a client hanging up does not cancel the publish.
func (s *Service) dispatchFaces(ctx context.Context, img *models.Image) {
	if s.faces == nil {
		return
	}
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dispatchTimeout)
	defer cancel()

	task := models.FaceTask{
		ImageID:    img.ID,
		BlobID:     img.BlobID,
		UploaderID: img.UploaderID,
		Location:   img.Location,
		UploadedAt: img.UploadDate,
	}
	if err := s.faces.Dispatch(dctx, task); err != nil {
		observability.FaceTasksTotal.WithLabelValues("dispatch_failed").Inc()
		slog.Warn("dispatch face recognition", "image_id", img.ID, "error", err)
		return
	}
	observability.FaceTasksTotal.WithLabelValues("dispatched").Inc()
}

// Object is an open image body. Callers must Close it.
type Object struct {
	io.ReadCloser
	ContentType string
	Size        int64
	Image       *models.Image
}

// Open locates the record and its blob. A record whose blob is gone yields
// ErrCorrupted so it can be told apart from a missing record.
func (s *Service) Open(ctx context.Context, rawID string) (*Object, error) {
	id, err := ParseID(rawID)
	if err != nil {
		observability.RetrievalsTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	img, err := s.repo.GetImage(ctx, id)
	if err != nil {
		observability.RetrievalsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: load image record: %w", ErrUpstreamUnavailable, err)
	}
	if img == nil {
		observability.RetrievalsTotal.WithLabelValues("not_found").Inc()
		return nil, ErrNotFound
	}

	blob, err := s.blobs.Open(ctx, img.BlobID)
	if err != nil {
		if errors.Is(err, storage.ErrBlobNotFound) {
			observability.RetrievalsTotal.WithLabelValues("corrupted").Inc()
			slog.Error("image record references missing blob", "image_id", img.ID, "blob_id", img.BlobID)
			return nil, fmt.Errorf("%w: blob %s for image %s", ErrCorrupted, img.BlobID, img.ID)
		}
		observability.RetrievalsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: open blob: %w", ErrUpstreamUnavailable, err)
	}

	contentType := img.ContentType
	if contentType == "" {
		contentType = blob.ContentType
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	observability.RetrievalsTotal.WithLabelValues("ok").Inc()
	return &Object{ReadCloser: blob, ContentType: contentType, Size: blob.Size, Image: img}, nil
}

// Delete removes an image owned by requester: blob first, then record.
//
// The two stores are not updated atomically. If the record delete fails
// after the blob is gone, the record is left pointing at nothing; Open
// reports it as ErrCorrupted and the janitor removes it.
func (s *Service) Delete(ctx context.Context, rawID string, requester uuid.UUID) error {
	id, err := ParseID(rawID)
	if err != nil {
		return err
	}

	img, err := s.repo.GetImage(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: load image record: %w", ErrUpstreamUnavailable, err)
	}
	if img == nil {
		observability.DeletionsTotal.WithLabelValues("not_found").Inc()
		return ErrNotFound
	}
	if img.UploaderID != requester {
		observability.DeletionsTotal.WithLabelValues("forbidden").Inc()
		return fmt.Errorf("%w: image belongs to another user", ErrForbidden)
	}

	if err := s.blobs.Delete(ctx, img.BlobID); err != nil {
		if !errors.Is(err, storage.ErrBlobNotFound) {
			observability.DeletionsTotal.WithLabelValues("error").Inc()
			return fmt.Errorf("%w: delete blob: %w", ErrUpstreamUnavailable, err)
		}
		slog.Warn("blob already missing on delete", "image_id", id, "blob_id", img.BlobID)
	}

	if err := s.repo.DeleteImage(ctx, id); err != nil {
		if !errors.Is(err, storage.ErrImageNotFound) {
			observability.DeletionsTotal.WithLabelValues("error").Inc()
			slog.Error("blob deleted but record kept", "image_id", id, "blob_id", img.BlobID, "error", err)
			return fmt.Errorf("%w: delete image record: %w", ErrUpstreamUnavailable, err)
		}
		// A concurrent delete removed the record first.
		slog.Warn("image record already removed on delete", "image_id", id)
	}

	observability.DeletionsTotal.WithLabelValues("ok").Inc()
	slog.Info("image deleted", "image_id", id, "uploader", requester)
	return nil
}

// ListMine returns every image the user uploaded, newest first.
func (s *Service) ListMine(ctx context.Context, uploader uuid.UUID) ([]models.Image, error) {
	imgs, err := s.repo.ListImagesByUploader(ctx, uploader, false)
	if err != nil {
		return nil, fmt.Errorf("%w: list images: %w", ErrUpstreamUnavailable, err)
	}
	return imgs, nil
}

// ListLocations returns only the user's images that have a position.
func (s *Service) ListLocations(ctx context.Context, uploader uuid.UUID) ([]models.Image, error) {
	imgs, err := s.repo.ListImagesByUploader(ctx, uploader, true)
	if err != nil {
		return nil, fmt.Errorf("%w: list located images: %w", ErrUpstreamUnavailable, err)
	}
	return imgs, nil
}

// ParseID validates an image id from a URL.
func ParseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: malformed image id %q", ErrInvalidInput, raw)
	}
	return id, nil
}

// cleanText makes client-supplied header text storable as Postgres TEXT,
// which rejects NUL bytes and invalid UTF-8.
func cleanText(s string) string {
	return strings.ReplaceAll(strings.ToValidUTF8(s, "\uFFFD"), "\x00", "")
}
