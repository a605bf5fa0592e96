package dto

import "github.com/google/uuid"

// Location is a GeoJSON point: Coordinates is [longitude, latitude].
type Location struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

type FaceMatch struct {
	UserID     uuid.UUID `json:"user_id"`
	Confidence float64   `json:"confidence"`
}

// ImageResponse describes one stored image. Location is omitted, not zeroed,
// when the image has no position.
type ImageResponse struct {
	ID            uuid.UUID   `json:"id"`
	Filename      string      `json:"filename"`
	Uploader      uuid.UUID   `json:"uploader"`
	UploadDate    string      `json:"upload_date"`
	ContentType   string      `json:"content_type"`
	Size          int64       `json:"size"`
	URL           string      `json:"url"`
	Location      *Location   `json:"location,omitempty"`
	DetectedFaces []FaceMatch `json:"detected_faces,omitempty"`
}

type ImageListResponse struct {
	Images []ImageResponse `json:"images"`
	Total  int             `json:"total"`
}

// MapPoint is one marker on a user's upload map.
type MapPoint struct {
	ImageID    uuid.UUID `json:"image_id"`
	Filename   string    `json:"filename"`
	UploadDate string    `json:"upload_date"`
	URL        string    `json:"url"`
	Location   Location  `json:"location"`
}

type MapPointListResponse struct {
	Points []MapPoint `json:"points"`
	Total  int        `json:"total"`
}
