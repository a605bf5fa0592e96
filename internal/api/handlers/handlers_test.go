package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/iotest"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/your-org/lastseen/internal/auth"
	"github.com/your-org/lastseen/internal/geo"
	"github.com/your-org/lastseen/internal/images"
	"github.com/your-org/lastseen/internal/models"
	"github.com/your-org/lastseen/pkg/dto"
)

type MockImageService struct {
	mock.Mock
}

func (m *MockImageService) Ingest(ctx context.Context, up images.Upload) (*models.Image, error) {
	args := m.Called(ctx, up)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Image), args.Error(1)
}

func (m *MockImageService) Open(ctx context.Context, rawID string) (*images.Object, error) {
	args := m.Called(ctx, rawID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*images.Object), args.Error(1)
}

func (m *MockImageService) Delete(ctx context.Context, rawID string, requester uuid.UUID) error {
	return m.Called(ctx, rawID, requester).Error(0)
}

func (m *MockImageService) ListMine(ctx context.Context, uploader uuid.UUID) ([]models.Image, error) {
	args := m.Called(ctx, uploader)
	return args.Get(0).([]models.Image), args.Error(1)
}

func (m *MockImageService) ListLocations(ctx context.Context, uploader uuid.UUID) ([]models.Image, error) {
	args := m.Called(ctx, uploader)
	return args.Get(0).([]models.Image), args.Error(1)
}

func (m *MockImageService) Describe(img *models.Image) dto.ImageResponse {
	return dto.ImageResponse{ID: img.ID, Filename: img.Filename, Uploader: img.UploaderID, URL: "/v1/images/" + img.ID.String()}
}

func (m *MockImageService) MapPoint(img *models.Image) dto.MapPoint {
	return dto.MapPoint{ImageID: img.ID, Location: *images.Location(img.Location)}
}

type recordingNotifier struct{ events []*dto.WSEvent }

func (n *recordingNotifier) Send(ev *dto.WSEvent) { n.events = append(n.events, ev) }

type trackingBody struct {
	io.Reader
	closed bool
}

func (b *trackingBody) Close() error {
	b.closed = true
	return nil
}

func newImageRouter(svc ImageService, notifier Notifier, user uuid.UUID, devMode bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewImageHandler(svc, notifier, 1<<20, devMode)

	r := gin.New()
	r.GET("/v1/images/:id", h.Get)
	authed := r.Group("/v1", func(c *gin.Context) {
		auth.SetUserID(c, user)
		c.Next()
	})
	authed.POST("/images", h.Upload)
	authed.GET("/images/my", h.ListMine)
	authed.GET("/images/locations", h.ListLocations)
	authed.DELETE("/images/:id", h.Delete)
	return r
}

func multipartBody(t *testing.T, file []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if file != nil {
		fw, err := w.CreateFormFile("image", "beach.jpg")
		require.NoError(t, err)
		_, err = fw.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) dto.ErrorResponse {
	t.Helper()
	var body dto.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestUpload(t *testing.T) {
	user := uuid.New()
	svc := new(MockImageService)
	notifier := &recordingNotifier{}
	r := newImageRouter(svc, notifier, user, false)

	created := &models.Image{ID: uuid.New(), Filename: "beach.jpg", UploaderID: user}
	svc.On("Ingest", mock.Anything, mock.MatchedBy(func(up images.Upload) bool {
		return up.UploaderID == user &&
			up.Filename == "beach.jpg" &&
			string(up.Data) == "jpeg-bytes" &&
			up.Device != nil && *up.Device == geo.Device{Lat: "9.0765", Lng: "7.3986"}
	})).Return(created, nil)

	body, ct := multipartBody(t, []byte("jpeg-bytes"), map[string]string{"lat": "9.0765", "lng": "7.3986"})
	req := httptest.NewRequest(http.MethodPost, "/v1/images", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp dto.ImageResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, created.ID, resp.ID)

	require.Len(t, notifier.events, 1)
	assert.Equal(t, EventImageUploaded, notifier.events[0].Type)
	assert.Equal(t, user, notifier.events[0].UserID)
	svc.AssertExpectations(t)
}

func TestUploadDeviceFieldFallback(t *testing.T) {
	user := uuid.New()
	svc := new(MockImageService)
	r := newImageRouter(svc, nil, user, false)

	svc.On("Ingest", mock.Anything, mock.MatchedBy(func(up images.Upload) bool {
		return up.Device != nil && up.Device.Lat == "1.5" && up.Device.Lng == "2.5"
	})).Return(&models.Image{ID: uuid.New()}, nil)

	body, ct := multipartBody(t, []byte("x"), map[string]string{"deviceLat": "1.5", "deviceLng": "2.5"})
	req := httptest.NewRequest(http.MethodPost, "/v1/images", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	svc.AssertExpectations(t)
}

func TestUploadWithoutFile(t *testing.T) {
	svc := new(MockImageService)
	r := newImageRouter(svc, nil, uuid.New(), false)

	body, ct := multipartBody(t, nil, map[string]string{"lat": "1"})
	req := httptest.NewRequest(http.MethodPost, "/v1/images", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_input", decodeError(t, w).Code)
	svc.AssertNotCalled(t, "Ingest", mock.Anything, mock.Anything)
}

func TestGetStreamsImage(t *testing.T) {
	svc := new(MockImageService)
	r := newImageRouter(svc, nil, uuid.New(), false)

	id := uuid.New()
	payload := []byte("\xff\xd8\xff image bytes")
	rc := &trackingBody{Reader: bytes.NewReader(payload)}
	svc.On("Open", mock.Anything, id.String()).Return(&images.Object{
		ReadCloser:  rc,
		ContentType: "image/jpeg",
		Size:        int64(len(payload)),
		Image:       &models.Image{ID: id},
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/images/"+id.String(), nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, payload, w.Body.Bytes())
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
	assert.Equal(t, fmt.Sprint(len(payload)), w.Header().Get("Content-Length"))
	assert.Equal(t, "public, max-age=31536000", w.Header().Get("Cache-Control"))
	assert.True(t, rc.closed)
}

// brokenConn accepts limit bytes and then fails every write.
type brokenConn struct {
	*httptest.ResponseRecorder
	limit int
}

func (w *brokenConn) Write(p []byte) (int, error) {
	if w.Body.Len()+len(p) > w.limit {
		return 0, errors.New("write: broken pipe")
	}
	return w.ResponseRecorder.Write(p)
}

func TestGetStreamInterrupted(t *testing.T) {
	id := uuid.New()
	part := []byte("\xff\xd8\xff partial")

	t.Run("blob read fails midway", func(t *testing.T) {
		svc := new(MockImageService)
		r := newImageRouter(svc, nil, uuid.New(), false)
		rc := &trackingBody{Reader: io.MultiReader(bytes.NewReader(part), iotest.ErrReader(errors.New("connection reset by peer")))}
		svc.On("Open", mock.Anything, id.String()).Return(&images.Object{
			ReadCloser:  rc,
			ContentType: "image/jpeg",
			Size:        int64(len(part)) * 4,
			Image:       &models.Image{ID: id},
		}, nil)

		w := httptest.NewRecorder()
		require.NotPanics(t, func() {
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/images/"+id.String(), nil))
		})
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, part, w.Body.Bytes())
		assert.True(t, rc.closed)
	})

	t.Run("client goes away", func(t *testing.T) {
		svc := new(MockImageService)
		r := newImageRouter(svc, nil, uuid.New(), false)
		rc := &trackingBody{Reader: bytes.NewReader(bytes.Repeat(part, 1000))}
		svc.On("Open", mock.Anything, id.String()).Return(&images.Object{
			ReadCloser:  rc,
			ContentType: "image/jpeg",
			Size:        int64(len(part)) * 1000,
			Image:       &models.Image{ID: id},
		}, nil)

		w := &brokenConn{ResponseRecorder: httptest.NewRecorder(), limit: 64}
		require.NotPanics(t, func() {
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/images/"+id.String(), nil))
		})
		assert.Equal(t, http.StatusOK, w.Code)
		assert.LessOrEqual(t, w.Body.Len(), 64)
		assert.True(t, rc.closed)
	})
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		devMode bool
		status  int
		code    string
		message string
	}{
		{"invalid", fmt.Errorf("%w: malformed image id", images.ErrInvalidInput), false, http.StatusBadRequest, "invalid_input", "invalid input: malformed image id"},
		{"not found", images.ErrNotFound, false, http.StatusNotFound, "not_found", "image not found"},
		{"corrupted", fmt.Errorf("%w: blob b1", images.ErrCorrupted), false, http.StatusGone, "corrupted", "image data is missing"},
		{"upstream hidden", fmt.Errorf("%w: dial tcp 10.0.0.3:9000", images.ErrUpstreamUnavailable), false, http.StatusServiceUnavailable, "upstream_unavailable", "storage temporarily unavailable"},
		{"upstream dev mode", fmt.Errorf("%w: dial tcp 10.0.0.3:9000", images.ErrUpstreamUnavailable), true, http.StatusServiceUnavailable, "upstream_unavailable", "upstream unavailable: dial tcp 10.0.0.3:9000"},
		{"unknown", errors.New("boom"), false, http.StatusInternalServerError, "internal", "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockImageService)
			r := newImageRouter(svc, nil, uuid.New(), tt.devMode)
			svc.On("Open", mock.Anything, "x").Return(nil, tt.err)

			req := httptest.NewRequest(http.MethodGet, "/v1/images/x", nil)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			body := decodeError(t, w)
			assert.Equal(t, tt.code, body.Code)
			assert.Equal(t, tt.message, body.Error)
		})
	}
}

func TestDelete(t *testing.T) {
	user := uuid.New()
	id := uuid.New().String()

	svc := new(MockImageService)
	r := newImageRouter(svc, nil, user, false)
	svc.On("Delete", mock.Anything, id, user).Return(nil).Once()
	svc.On("Delete", mock.Anything, id, user).Return(fmt.Errorf("%w: image belongs to another user", images.ErrForbidden)).Once()

	req := httptest.NewRequest(http.MethodDelete, "/v1/images/"+id, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/v1/images/"+id, nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "forbidden", decodeError(t, w).Code)
	svc.AssertExpectations(t)
}

func TestListMineAndLocations(t *testing.T) {
	user := uuid.New()
	svc := new(MockImageService)
	r := newImageRouter(svc, nil, user, false)

	located := models.Image{ID: uuid.New(), UploaderID: user, Location: &geo.Point{Longitude: 7, Latitude: 10.5}}
	plain := models.Image{ID: uuid.New(), UploaderID: user}
	svc.On("ListMine", mock.Anything, user).Return([]models.Image{located, plain}, nil)
	svc.On("ListLocations", mock.Anything, user).Return([]models.Image{located}, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/images/my", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var list dto.ImageListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 2, list.Total)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/images/locations", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var points dto.MapPointListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &points))
	require.Equal(t, 1, points.Total)
	assert.Equal(t, [2]float64{7, 10.5}, points.Points[0].Location.Coordinates)
}

type fakeUsers map[uuid.UUID]*models.User

func (f fakeUsers) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	return f[id], nil
}

func TestUserLastSeen(t *testing.T) {
	gin.SetMode(gin.TestMode)
	caller, friend := uuid.New(), uuid.New()
	imageID := uuid.New()
	seenAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	users := fakeUsers{
		caller: {ID: caller, Name: "Ada"},
		friend: {ID: friend, Name: "Bo", LastSeen: &models.LastSeen{
			At:       seenAt,
			Location: &geo.Point{Longitude: 7.3986, Latitude: 9.0765},
			ImageID:  imageID,
		}},
	}
	h := NewUserHandler(users, func(id uuid.UUID) string { return "http://x/v1/images/" + id.String() }, false)

	router := func(role string) *gin.Engine {
		r := gin.New()
		r.GET("/v1/users/:id/last-seen", func(c *gin.Context) {
			auth.SetUserID(c, caller)
			auth.SetRole(c, role)
			c.Next()
		}, h.LastSeen)
		return r
	}
	r, admin := router(""), router(auth.RoleAdmin)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/users/"+friend.String()+"/last-seen", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "forbidden", decodeError(t, w).Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/users/"+caller.String()+"/last-seen", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	admin.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/users/"+friend.String()+"/last-seen", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var resp dto.UserLastSeenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.LastSeen)
	assert.Equal(t, "2024-05-01T12:00:00Z", resp.LastSeen.At)
	assert.Equal(t, [2]float64{7.3986, 9.0765}, resp.LastSeen.Location.Coordinates)
	assert.Equal(t, "http://x/v1/images/"+imageID.String(), resp.LastSeen.ImageURL)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/users/me/last-seen", nil))
	require.Equal(t, http.StatusOK, w.Code)
	resp = dto.UserLastSeenResponse{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, caller, resp.UserID)
	assert.Nil(t, resp.LastSeen)

	w = httptest.NewRecorder()
	admin.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/users/"+uuid.NewString()+"/last-seen", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/users/42/last-seen", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReadyz(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewSystemHandler(map[string]Check{
		"postgres": func(context.Context) error { return nil },
		"minio":    func(context.Context) error { return errors.New("connection refused") },
	})
	r := gin.New()
	r.GET("/readyz", h.Readyz)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body.Status)
	assert.Equal(t, "ok", body.Checks["postgres"])
	assert.Equal(t, "connection refused", body.Checks["minio"])
}
