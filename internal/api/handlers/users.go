package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/lastseen/internal/auth"
	"github.com/your-org/lastseen/internal/images"
	"github.com/your-org/lastseen/internal/models"
	"github.com/your-org/lastseen/pkg/dto"
)

type UserReader interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type UserHandler struct {
	users   UserReader
	urlFor  func(uuid.UUID) string
	devMode bool
}

func NewUserHandler(users UserReader, urlFor func(uuid.UUID) string, devMode bool) *UserHandler {
	return &UserHandler{users: users, urlFor: urlFor, devMode: devMode}
}

// LastSeen handles GET /v1/users/:id/last-seen. The id "me" resolves to
// the caller; other users' records are visible to admins only.
func (h *UserHandler) LastSeen(c *gin.Context) {
	caller, ok := auth.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "not authenticated", Code: "unauthorized"})
		return
	}

	id := caller
	if raw := c.Param("id"); raw != "me" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid user id", Code: "invalid_input"})
			return
		}
		if parsed != caller && !auth.IsAdmin(c) {
			c.JSON(http.StatusForbidden, dto.ErrorResponse{Error: "not allowed to view this user", Code: "forbidden"})
			return
		}
		id = parsed
	}

	u, err := h.users.GetUser(c.Request.Context(), id)
	if err != nil {
		writeError(c, err, h.devMode)
		return
	}
	if u == nil {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "user not found", Code: "not_found"})
		return
	}

	resp := dto.UserLastSeenResponse{UserID: u.ID, Name: u.Name}
	if u.LastSeen != nil {
		resp.LastSeen = &dto.LastSeenResponse{
			At:       u.LastSeen.At.UTC().Format(time.RFC3339),
			Location: images.Location(u.LastSeen.Location),
			ImageID:  u.LastSeen.ImageID,
			ImageURL: h.urlFor(u.LastSeen.ImageID),
		}
	}
	c.JSON(http.StatusOK, resp)
}
