package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/your-org/lastseen/internal/geo"
)

// FaceTask is the message published to NATS after an upload commits.
type FaceTask struct {
	ImageID    uuid.UUID  `json:"image_id"`
	BlobID     string     `json:"blob_id"`
	UploaderID uuid.UUID  `json:"uploader_id"`
	Location   *geo.Point `json:"location,omitempty"`
	UploadedAt time.Time  `json:"uploaded_at"`
}
