package images

import (
	"time"

	"github.com/google/uuid"

	"github.com/your-org/lastseen/internal/geo"
	"github.com/your-org/lastseen/internal/models"
	"github.com/your-org/lastseen/pkg/dto"
)

// URL is the retrieval URL for an image id.
func (s *Service) URL(id uuid.UUID) string {
	return s.opts.PublicURL + "/v1/images/" + id.String()
}

// Describe builds the client-facing descriptor for img.
func (s *Service) Describe(img *models.Image) dto.ImageResponse {
	resp := dto.ImageResponse{
		ID:          img.ID,
		Filename:    img.Filename,
		Uploader:    img.UploaderID,
		UploadDate:  img.UploadDate.Format(time.RFC3339),
		ContentType: img.ContentType,
		Size:        img.Size,
		URL:         s.URL(img.ID),
		Location:    Location(img.Location),
	}
	for _, f := range img.DetectedFaces {
		resp.DetectedFaces = append(resp.DetectedFaces, dto.FaceMatch{UserID: f.UserID, Confidence: f.Confidence})
	}
	return resp
}

// MapPoint builds a map marker. img must have a location.
func (s *Service) MapPoint(img *models.Image) dto.MapPoint {
	return dto.MapPoint{
		ImageID:    img.ID,
		Filename:   img.Filename,
		UploadDate: img.UploadDate.Format(time.RFC3339),
		URL:        s.URL(img.ID),
		Location:   *Location(img.Location),
	}
}

// Location converts a point to GeoJSON, keeping nil as nil.
func Location(p *geo.Point) *dto.Location {
	if p == nil {
		return nil
	}
	return &dto.Location{Type: "Point", Coordinates: [2]float64{p.Longitude, p.Latitude}}
}
