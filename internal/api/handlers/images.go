package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/lastseen/internal/auth"
	"github.com/your-org/lastseen/internal/geo"
	"github.com/your-org/lastseen/internal/images"
	"github.com/your-org/lastseen/internal/models"
	"github.com/your-org/lastseen/pkg/dto"
)

// multipartOverhead is allowed on top of the file limit for form fields
// and boundaries.
const multipartOverhead = 1 << 20

// EventImageUploaded is sent to the uploader's sockets after an upload.
const EventImageUploaded = "image_uploaded"

type ImageService interface {
	Ingest(ctx context.Context, up images.Upload) (*models.Image, error)
	Open(ctx context.Context, rawID string) (*images.Object, error)
	Delete(ctx context.Context, rawID string, requester uuid.UUID) error
	ListMine(ctx context.Context, uploader uuid.UUID) ([]models.Image, error)
	ListLocations(ctx context.Context, uploader uuid.UUID) ([]models.Image, error)
	Describe(img *models.Image) dto.ImageResponse
	MapPoint(img *models.Image) dto.MapPoint
}

// Notifier delivers live events to a user's open websockets.
type Notifier interface {
	Send(event *dto.WSEvent)
}

type ImageHandler struct {
	svc      ImageService
	notifier Notifier
	maxBytes int64
	devMode  bool
}

func NewImageHandler(svc ImageService, notifier Notifier, maxBytes int64, devMode bool) *ImageHandler {
	return &ImageHandler{svc: svc, notifier: notifier, maxBytes: maxBytes, devMode: devMode}
}

// Upload handles POST /v1/images (multipart: image, lat, lng).
func (h *ImageHandler) Upload(c *gin.Context) {
	userID, ok := auth.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "not authenticated", Code: "unauthorized"})
		return
	}

	if h.maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+multipartOverhead)
	}

	fh, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(c, fmt.Errorf("%w: request body too large", images.ErrInvalidInput), h.devMode)
			return
		}
		writeError(c, fmt.Errorf("%w: no file uploaded under field \"image\"", images.ErrInvalidInput), h.devMode)
		return
	}
	if h.maxBytes > 0 && fh.Size > h.maxBytes {
		writeError(c, fmt.Errorf("%w: file exceeds %d bytes", images.ErrInvalidInput, h.maxBytes), h.devMode)
		return
	}

	f, err := fh.Open()
	if err != nil {
		writeError(c, fmt.Errorf("%w: open uploaded file: %v", images.ErrInvalidInput, err), h.devMode)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		writeError(c, fmt.Errorf("%w: read uploaded file: %v", images.ErrInvalidInput, err), h.devMode)
		return
	}

	img, err := h.svc.Ingest(c.Request.Context(), images.Upload{
		Data:        data,
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		UploaderID:  userID,
		Device:      deviceFromForm(c),
	})
	if err != nil {
		writeError(c, err, h.devMode)
		return
	}

	resp := h.svc.Describe(img)
	if h.notifier != nil {
		h.notifier.Send(&dto.WSEvent{Type: EventImageUploaded, UserID: userID, ImageID: img.ID, Image: &resp})
	}
	c.JSON(http.StatusCreated, resp)
}

// deviceFromForm reads lat/lng, falling back to deviceLat/deviceLng. It
// returns nil when neither pair is present.
func deviceFromForm(c *gin.Context) *geo.Device {
	lat, lng := c.PostForm("lat"), c.PostForm("lng")
	if lat == "" && lng == "" {
		lat, lng = c.PostForm("deviceLat"), c.PostForm("deviceLng")
	}
	if lat == "" && lng == "" {
		return nil
	}
	return &geo.Device{Lat: lat, Lng: lng}
}

// Get streams the image bytes. It is public: ids are unguessable.
func (h *ImageHandler) Get(c *gin.Context) {
	obj, err := h.svc.Open(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err, h.devMode)
		return
	}
	defer obj.Close()

	c.Header("Content-Type", obj.ContentType)
	if obj.Size > 0 {
		c.Header("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	c.Header("Cache-Control", images.CacheControl)
	c.Status(http.StatusOK)

	if c.Request.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(c.Writer, obj); err != nil {
		slog.Debug("image stream interrupted", "image_id", obj.Image.ID, "error", err)
	}
}

func (h *ImageHandler) ListMine(c *gin.Context) {
	userID, ok := auth.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "not authenticated", Code: "unauthorized"})
		return
	}

	imgs, err := h.svc.ListMine(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err, h.devMode)
		return
	}

	resp := dto.ImageListResponse{Images: make([]dto.ImageResponse, 0, len(imgs)), Total: len(imgs)}
	for i := range imgs {
		resp.Images = append(resp.Images, h.svc.Describe(&imgs[i]))
	}
	c.JSON(http.StatusOK, resp)
}

// ListLocations returns map markers for the caller's located images.
func (h *ImageHandler) ListLocations(c *gin.Context) {
	userID, ok := auth.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "not authenticated", Code: "unauthorized"})
		return
	}

	imgs, err := h.svc.ListLocations(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err, h.devMode)
		return
	}

	resp := dto.MapPointListResponse{Points: make([]dto.MapPoint, 0, len(imgs))}
	for i := range imgs {
		if imgs[i].Location == nil {
			continue
		}
		resp.Points = append(resp.Points, h.svc.MapPoint(&imgs[i]))
	}
	resp.Total = len(resp.Points)
	c.JSON(http.StatusOK, resp)
}

func (h *ImageHandler) Delete(c *gin.Context) {
	userID, ok := auth.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "not authenticated", Code: "unauthorized"})
		return
	}

	if err := h.svc.Delete(c.Request.Context(), c.Param("id"), userID); err != nil {
		writeError(c, err, h.devMode)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
