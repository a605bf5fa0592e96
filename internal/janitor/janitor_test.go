package janitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/lastseen/internal/storage"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeBlobs struct {
	blobs   map[string]time.Time
	deleted []string
	listErr error
}

func (f *fakeBlobs) ListBlobs(context.Context) ([]storage.BlobInfo, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []storage.BlobInfo
	for id, mod := range f.blobs {
		out = append(out, storage.BlobInfo{ID: id, LastModified: mod})
	}
	return out, nil
}

func (f *fakeBlobs) Exists(_ context.Context, id string) (bool, error) {
	_, ok := f.blobs[id]
	return ok, nil
}

func (f *fakeBlobs) DeleteBlobs(_ context.Context, ids []string) error {
	for _, id := range ids {
		delete(f.blobs, id)
		f.deleted = append(f.deleted, id)
	}
	return nil
}

type fakeRecords struct {
	refs    []storage.BlobRef
	deleted []uuid.UUID
}

func (f *fakeRecords) ListBlobRefs(context.Context) ([]storage.BlobRef, error) {
	return f.refs, nil
}

func (f *fakeRecords) DeleteImage(_ context.Context, id uuid.UUID) error {
	for i, r := range f.refs {
		if r.ImageID == id {
			f.refs = append(f.refs[:i], f.refs[i+1:]...)
			f.deleted = append(f.deleted, id)
			return nil
		}
	}
	return storage.ErrImageNotFound
}

func newJanitor(blobs *fakeBlobs, records *fakeRecords, opts Options) *Janitor {
	j := New(blobs, records, opts)
	j.now = func() time.Time { return now }
	return j
}

func TestSweepOrphans(t *testing.T) {
	old := now.Add(-2 * time.Hour)
	blobs := &fakeBlobs{blobs: map[string]time.Time{
		"kept":   old,
		"orphan": old,
		"fresh":  now.Add(-time.Minute),
	}}
	records := &fakeRecords{refs: []storage.BlobRef{{ImageID: uuid.New(), BlobID: "kept", UploadDate: old}}}

	t.Run("dry run reports only", func(t *testing.T) {
		j := newJanitor(blobs, records, Options{MinAge: time.Hour, DryRun: true})
		report, err := j.SweepOrphans(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 3, report.Scanned)
		assert.Equal(t, []string{"orphan"}, report.Found)
		assert.Zero(t, report.Removed)
		assert.Empty(t, blobs.deleted)
	})

	t.Run("deletes orphans older than min age", func(t *testing.T) {
		j := newJanitor(blobs, records, Options{MinAge: time.Hour})
		report, err := j.SweepOrphans(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, report.Removed)
		assert.Equal(t, []string{"orphan"}, blobs.deleted)
		assert.Contains(t, blobs.blobs, "kept")
		assert.Contains(t, blobs.blobs, "fresh")
	})
}

func TestSweepOrphansListFailure(t *testing.T) {
	j := newJanitor(&fakeBlobs{listErr: errors.New("timeout")}, &fakeRecords{}, Options{})
	_, err := j.SweepOrphans(context.Background())
	assert.ErrorContains(t, err, "list blobs")
}

func TestSweepDangling(t *testing.T) {
	old := now.Add(-2 * time.Hour)
	good, dangling, recent := uuid.New(), uuid.New(), uuid.New()
	blobs := &fakeBlobs{blobs: map[string]time.Time{"b-good": old}}
	records := &fakeRecords{refs: []storage.BlobRef{
		{ImageID: good, BlobID: "b-good", UploadDate: old},
		{ImageID: dangling, BlobID: "b-gone", UploadDate: old},
		{ImageID: recent, BlobID: "b-inflight", UploadDate: now},
	}}

	j := newJanitor(blobs, records, Options{MinAge: time.Hour, DryRun: true})
	report, err := j.SweepDangling(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{dangling.String()}, report.Found)
	assert.Empty(t, records.deleted)

	j = newJanitor(blobs, records, Options{MinAge: time.Hour})
	report, err = j.SweepDangling(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Removed)
	assert.Equal(t, []uuid.UUID{dangling}, records.deleted)
	assert.Len(t, records.refs, 2)
}
