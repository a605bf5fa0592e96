package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/your-org/lastseen/internal/exif"
	"github.com/your-org/lastseen/internal/geo"
)

// Image is the metadata record for one uploaded photo. The bytes live in
// the blob store under BlobID.
type Image struct {
	ID               uuid.UUID      `json:"id" db:"id"`
	Filename         string         `json:"filename" db:"filename"`
	UploaderID       uuid.UUID      `json:"uploader_id" db:"uploader_id"`
	UploadDate       time.Time      `json:"upload_date" db:"upload_date"`
	Exif             exif.TagMap    `json:"exif" db:"exif"`
	Location         *geo.Point     `json:"location,omitempty" db:"-"`
	BlobID           string         `json:"blob_id" db:"blob_id"`
	ContentType      string         `json:"content_type" db:"content_type"`
	Size             int64          `json:"size" db:"size"`
	DetectedFaces    []DetectedFace `json:"detected_faces" db:"detected_faces"`
	FacesProcessedAt *time.Time     `json:"faces_processed_at,omitempty" db:"faces_processed_at"`
}

// DetectedFace attributes a face in an image to a known user.
type DetectedFace struct {
	UserID     uuid.UUID `json:"user_id"`
	Confidence float64   `json:"confidence"`
}
