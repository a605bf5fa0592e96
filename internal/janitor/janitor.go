// Package janitor reconciles the blob store with image records after
// partial failures: blobs no record points at, and records whose blob is
// gone.
package janitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/lastseen/internal/observability"
	"github.com/your-org/lastseen/internal/storage"
)

// deleteBatch bounds a single batch remove request.
const deleteBatch = 500

type Blobs interface {
	ListBlobs(ctx context.Context) ([]storage.BlobInfo, error)
	Exists(ctx context.Context, blobID string) (bool, error)
	DeleteBlobs(ctx context.Context, blobIDs []string) error
}

type Records interface {
	ListBlobRefs(ctx context.Context) ([]storage.BlobRef, error)
	DeleteImage(ctx context.Context, id uuid.UUID) error
}

type Options struct {
	// MinAge skips anything younger, so in-flight uploads and deletes are
	// not mistaken for leftovers.
	MinAge time.Duration
	DryRun bool
}

type Report struct {
	Scanned int
	Found   []string
	Removed int
}

type Janitor struct {
	blobs   Blobs
	records Records
	opts    Options
	now     func() time.Time
}

func New(blobs Blobs, records Records, opts Options) *Janitor {
	return &Janitor{blobs: blobs, records: records, opts: opts, now: time.Now}
}

// SweepOrphans deletes blobs that no image record references.
func (j *Janitor) SweepOrphans(ctx context.Context) (*Report, error) {
	refs, err := j.records.ListBlobRefs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	referenced := make(map[string]struct{}, len(refs))
	for _, r := range refs {
		referenced[r.BlobID] = struct{}{}
	}

	blobs, err := j.blobs.ListBlobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list blobs: %w", err)
	}

	cutoff := j.now().Add(-j.opts.MinAge)
	report := &Report{Scanned: len(blobs)}
	for _, b := range blobs {
		if _, ok := referenced[b.ID]; ok {
			continue
		}
		if b.LastModified.After(cutoff) {
			continue
		}
		report.Found = append(report.Found, b.ID)
	}

	slog.Info("orphaned blobs found", "scanned", report.Scanned, "orphans", len(report.Found), "dry_run", j.opts.DryRun)
	if j.opts.DryRun || len(report.Found) == 0 {
		return report, nil
	}

	for start := 0; start < len(report.Found); start += deleteBatch {
		end := min(start+deleteBatch, len(report.Found))
		if err := j.blobs.DeleteBlobs(ctx, report.Found[start:end]); err != nil {
			return report, fmt.Errorf("delete orphaned blobs: %w", err)
		}
		report.Removed += end - start
		observability.JanitorRemoved.WithLabelValues("orphan_blob").Add(float64(end - start))
	}
	return report, nil
}

// SweepDangling deletes image records whose blob no longer exists.
func (j *Janitor) SweepDangling(ctx context.Context) (*Report, error) {
	refs, err := j.records.ListBlobRefs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	cutoff := j.now().Add(-j.opts.MinAge)
	report := &Report{Scanned: len(refs)}
	var dangling []uuid.UUID
	for _, r := range refs {
		if r.UploadDate.After(cutoff) {
			continue
		}
		ok, err := j.blobs.Exists(ctx, r.BlobID)
		if err != nil {
			return report, fmt.Errorf("check blob %s: %w", r.BlobID, err)
		}
		if ok {
			continue
		}
		dangling = append(dangling, r.ImageID)
		report.Found = append(report.Found, r.ImageID.String())
	}

	slog.Info("dangling records found", "scanned", report.Scanned, "dangling", len(dangling), "dry_run", j.opts.DryRun)
	if j.opts.DryRun {
		return report, nil
	}

	for _, id := range dangling {
		if err := j.records.DeleteImage(ctx, id); err != nil {
			if errors.Is(err, storage.ErrImageNotFound) {
				continue
			}
			return report, fmt.Errorf("delete record %s: %w", id, err)
		}
		report.Removed++
		observability.JanitorRemoved.WithLabelValues("dangling_record").Inc()
	}
	return report, nil
}
