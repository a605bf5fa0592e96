package faces

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/lastseen/internal/models"
	"github.com/your-org/lastseen/internal/observability"
	"github.com/your-org/lastseen/pkg/dto"
)

// EventFaceRecognized is the websocket event type sent after matches are stored.
const EventFaceRecognized = "face_recognized"

type Matcher interface {
	Recognize(ctx context.Context, blobID string) ([]models.DetectedFace, error)
}

type Store interface {
	AttachFaces(ctx context.Context, imageID uuid.UUID, faces []models.DetectedFace) (bool, error)
	UpdateLastSeen(ctx context.Context, userID uuid.UUID, seen models.LastSeen) error
}

type EventPublisher interface {
	PublishEvent(ctx context.Context, userID string, data interface{}) error
}

// Recognizer processes one FaceTask: match, attach, move last-seen, notify.
type Recognizer struct {
	matcher Matcher
	store   Store
	events  EventPublisher
	now     func() time.Time
}

func NewRecognizer(matcher Matcher, store Store, events EventPublisher) *Recognizer {
	return &Recognizer{matcher: matcher, store: store, events: events, now: time.Now}
}

// Process is safe to redeliver: matches are attached only once per image
// and only the first attach moves last-seen and emits events.
func (r *Recognizer) Process(ctx context.Context, task models.FaceTask) error {
	start := r.now()

	matches, err := r.matcher.Recognize(ctx, task.BlobID)
	if err != nil {
		slog.Warn("face recognition failed, recording no matches",
			"image_id", task.ImageID,
			"error", err,
		)
		observability.FaceTasksTotal.WithLabelValues("recognize_failed").Inc()
		matches = nil
	}

	attached, err := r.store.AttachFaces(ctx, task.ImageID, matches)
	if err != nil {
		return fmt.Errorf("attach faces to %s: %w", task.ImageID, err)
	}
	if !attached {
		slog.Debug("faces already attached or image gone", "image_id", task.ImageID)
		observability.FaceTasksTotal.WithLabelValues("skipped").Inc()
		return nil
	}

	seenAt := task.UploadedAt
	if seenAt.IsZero() {
		seenAt = start
	}
	for _, m := range matches {
		if m.UserID == task.UploaderID {
			continue
		}
		err := r.store.UpdateLastSeen(ctx, m.UserID, models.LastSeen{
			At:       seenAt,
			Location: task.Location,
			ImageID:  task.ImageID,
		})
		if err != nil {
			slog.Error("update last seen", "user_id", m.UserID, "image_id", task.ImageID, "error", err)
			continue
		}
		r.notify(ctx, m.UserID, task, matches)
	}
	r.notify(ctx, task.UploaderID, task, matches)

	observability.FaceMatches.Add(float64(len(matches)))
	observability.FaceTasksTotal.WithLabelValues("processed").Inc()
	slog.Info("faces processed",
		"image_id", task.ImageID,
		"matches", len(matches),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (r *Recognizer) notify(ctx context.Context, userID uuid.UUID, task models.FaceTask, matches []models.DetectedFace) {
	if r.events == nil {
		return
	}
	ev := dto.WSEvent{
		Type:    EventFaceRecognized,
		UserID:  userID,
		ImageID: task.ImageID,
		Faces:   make([]dto.FaceMatch, 0, len(matches)),
	}
	for _, m := range matches {
		ev.Faces = append(ev.Faces, dto.FaceMatch{UserID: m.UserID, Confidence: m.Confidence})
	}
	if err := r.events.PublishEvent(ctx, userID.String(), ev); err != nil {
		slog.Warn("publish face event", "user_id", userID, "error", err)
	}
}
