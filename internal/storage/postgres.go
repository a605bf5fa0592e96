package storage

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/your-org/lastseen/internal/config"
	"github.com/your-org/lastseen/internal/exif"
	"github.com/your-org/lastseen/internal/geo"
	"github.com/your-org/lastseen/internal/models"
)

//go:embed schema.sql
var schemaSQL string

// ErrImageNotFound is returned by DeleteImage when no row matched.
var ErrImageNotFound = errors.New("image not found")

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// EnsureSchema creates the tables and indexes if they are missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// --- Images ---

const imageColumns = `id, filename, uploader_id, upload_date, exif, lon, lat, blob_id,
	content_type, size, detected_faces, faces_processed_at`

// CreateImage inserts img, assigning ID and UploadDate. The location columns
// stay NULL when img.Location is nil.
func (s *PostgresStore) CreateImage(ctx context.Context, img *models.Image) error {
	if img.ID == uuid.Nil {
		img.ID = uuid.New()
	}
	if img.Exif == nil {
		img.Exif = exif.TagMap{}
	}
	exifJSON, err := json.Marshal(img.Exif)
	if err != nil {
		return fmt.Errorf("marshal exif: %w", err)
	}
	if img.DetectedFaces == nil {
		img.DetectedFaces = []models.DetectedFace{}
	}
	facesJSON, err := json.Marshal(img.DetectedFaces)
	if err != nil {
		return fmt.Errorf("marshal detected faces: %w", err)
	}
	lon, lat := pointArgs(img.Location)

	err = s.pool.QueryRow(ctx,
		`INSERT INTO images (id, filename, uploader_id, exif, lon, lat, blob_id, content_type, size, detected_faces)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING upload_date`,
		img.ID, img.Filename, img.UploaderID, exifJSON, lon, lat, img.BlobID, img.ContentType, img.Size, facesJSON,
	).Scan(&img.UploadDate)
	if err != nil {
		return fmt.Errorf("create image: %w", err)
	}
	return nil
}

// GetImage returns nil, nil when no record exists.
func (s *PostgresStore) GetImage(ctx context.Context, id uuid.UUID) (*models.Image, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+imageColumns+` FROM images WHERE id = $1`, id)
	img, err := scanImage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get image: %w", err)
	}
	return img, nil
}

// ListImagesByUploader returns the uploader's images, newest first.
// With locatedOnly set, images without a location are skipped.
func (s *PostgresStore) ListImagesByUploader(ctx context.Context, uploaderID uuid.UUID, locatedOnly bool) ([]models.Image, error) {
	query := `SELECT ` + imageColumns + ` FROM images WHERE uploader_id = $1`
	if locatedOnly {
		query += ` AND lon IS NOT NULL`
	}
	query += ` ORDER BY upload_date DESC`

	rows, err := s.pool.Query(ctx, query, uploaderID)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	defer rows.Close()

	var images []models.Image
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		images = append(images, *img)
	}
	return images, rows.Err()
}

// AttachFaces records face matches once per image. It reports false when
// matches were already attached.
func (s *PostgresStore) AttachFaces(ctx context.Context, id uuid.UUID, faces []models.DetectedFace) (bool, error) {
	if faces == nil {
		faces = []models.DetectedFace{}
	}
	facesJSON, err := json.Marshal(faces)
	if err != nil {
		return false, fmt.Errorf("marshal detected faces: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE images SET detected_faces = $2, faces_processed_at = now()
		 WHERE id = $1 AND faces_processed_at IS NULL`, id, facesJSON)
	if err != nil {
		return false, fmt.Errorf("attach faces: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) DeleteImage(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM images WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrImageNotFound
	}
	return nil
}

// BlobRef pairs an image with the blob it points at.
type BlobRef struct {
	ImageID    uuid.UUID
	BlobID     string
	UploadDate time.Time
}

// ListBlobRefs returns every image id with its blob id.
func (s *PostgresStore) ListBlobRefs(ctx context.Context) ([]BlobRef, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, blob_id, upload_date FROM images`)
	if err != nil {
		return nil, fmt.Errorf("list blob refs: %w", err)
	}
	defer rows.Close()

	var refs []BlobRef
	for rows.Next() {
		var r BlobRef
		if err := rows.Scan(&r.ImageID, &r.BlobID, &r.UploadDate); err != nil {
			return nil, fmt.Errorf("scan blob ref: %w", err)
		}
		refs = append(refs, r)
	}
	return refs, rows.Err()
}

func scanImage(row pgx.Row) (*models.Image, error) {
	var (
		img       models.Image
		exifJSON  []byte
		facesJSON []byte
		lon, lat  *float64
	)
	err := row.Scan(&img.ID, &img.Filename, &img.UploaderID, &img.UploadDate, &exifJSON,
		&lon, &lat, &img.BlobID, &img.ContentType, &img.Size, &facesJSON, &img.FacesProcessedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(exifJSON, &img.Exif); err != nil {
		return nil, fmt.Errorf("decode exif: %w", err)
	}
	if err := json.Unmarshal(facesJSON, &img.DetectedFaces); err != nil {
		return nil, fmt.Errorf("decode detected faces: %w", err)
	}
	img.Location = scanPoint(lon, lat)
	return &img, nil
}

// --- Users ---

// GetUser returns nil, nil when the user is unknown.
func (s *PostgresStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var (
		u       models.User
		at      *time.Time
		lon     *float64
		lat     *float64
		imageID *uuid.UUID
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, email, role, created_at, last_seen_at, last_seen_lon, last_seen_lat, last_seen_image_id
		 FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.CreatedAt, &at, &lon, &lat, &imageID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	if at != nil && imageID != nil {
		u.LastSeen = &models.LastSeen{At: *at, Location: scanPoint(lon, lat), ImageID: *imageID}
	}
	return &u, nil
}

// UpdateLastSeen moves a user's last sighting forward. Older sightings
// delivered out of order are ignored.
func (s *PostgresStore) UpdateLastSeen(ctx context.Context, userID uuid.UUID, ls models.LastSeen) error {
	lon, lat := pointArgs(ls.Location)
	_, err := s.pool.Exec(ctx,
		`UPDATE users SET last_seen_at = $2, last_seen_lon = $3, last_seen_lat = $4, last_seen_image_id = $5
		 WHERE id = $1 AND (last_seen_at IS NULL OR last_seen_at <= $2)`,
		userID, ls.At, lon, lat, ls.ImageID)
	if err != nil {
		return fmt.Errorf("update last seen: %w", err)
	}
	return nil
}

func pointArgs(p *geo.Point) (lon, lat *float64) {
	if p == nil {
		return nil, nil
	}
	return &p.Longitude, &p.Latitude
}

func scanPoint(lon, lat *float64) *geo.Point {
	if lon == nil || lat == nil {
		return nil
	}
	return &geo.Point{Longitude: *lon, Latitude: *lat}
}
