package dto

import "github.com/google/uuid"

type LastSeenResponse struct {
	At       string    `json:"at"`
	Location *Location `json:"location,omitempty"`
	ImageID  uuid.UUID `json:"image_id"`
	ImageURL string    `json:"image_url"`
}

type UserLastSeenResponse struct {
	UserID   uuid.UUID         `json:"user_id"`
	Name     string            `json:"name"`
	LastSeen *LastSeenResponse `json:"last_seen,omitempty"`
}
