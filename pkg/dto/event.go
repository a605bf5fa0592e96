package dto

import "github.com/google/uuid"

// WSEvent is a WebSocket message for real-time delivery to one user.
type WSEvent struct {
	Type    string         `json:"type"` // image_uploaded, face_recognized
	UserID  uuid.UUID      `json:"user_id"`
	ImageID uuid.UUID      `json:"image_id"`
	Image   *ImageResponse `json:"image,omitempty"`
	Faces   []FaceMatch    `json:"faces,omitempty"`
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
