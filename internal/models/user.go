package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/your-org/lastseen/internal/geo"
)

// User is owned by the identity service; this service only reads it and
// moves LastSeen forward when a face match places the user in a photo.
type User struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email" db:"email"`
	Role      string    `json:"role" db:"role"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	LastSeen  *LastSeen `json:"last_seen,omitempty" db:"-"`
}

type LastSeen struct {
	At       time.Time  `json:"at"`
	Location *geo.Point `json:"location,omitempty"`
	ImageID  uuid.UUID  `json:"image_id"`
}
