package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"testing"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"fotacos/internal/app"
	"fotacos/internal/config"
	"fotacos/internal/handlers"
	"fotacos/internal/models"
	"fotacos/internal/testimage"
)

type testServer struct {
	app *fiber.App
	svc *app.Services
	cfg config.Config
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.DatabaseURL = "sqlite://" + filepath.Join(dir, "photos.db")
	cfg.UploadDir = filepath.Join(dir, "picts")
	cfg.WebDistDir = filepath.Join(dir, "missing-dist")
	cfg.CORSOrigins = []string{"http://localhost:5173"}
	require.NoError(t, cfg.Validate())

	log := zaptest.NewLogger(t)
	svc, err := app.OpenServices(context.Background(), cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	hub := handlers.NewEventHub(log)
	svc.Photos.Subscribe(hub.Publish)

	return &testServer{app: app.NewServer(cfg, log, svc.Photos, hub), svc: svc, cfg: cfg}
}

func (s *testServer) do(t *testing.T, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func uploadRequest(t *testing.T, filename, contentType string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/photos", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func errorMessage(t *testing.T, body []byte) string {
	t.Helper()
	var payload map[string]string
	require.NoError(t, json.Unmarshal(body, &payload), string(body))
	return payload["error"]
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestPhotoLifecycle(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, uploadRequest(t, "beach.jpg", "image/jpeg", testimage.JPEG(t, testimage.Quadrants(120, 80))))
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var photo models.Photo
	require.NoError(t, json.Unmarshal(body, &photo))
	assert.NotZero(t, photo.ID)
	assert.Equal(t, "/public/picts/"+photo.Filename, photo.OriginalURL)

	// stored files are served under the public prefix
	resp, body = s.do(t, httptest.NewRequest(http.MethodGet, photo.OriginalURL, nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, photo.FileSize, len(body))

	resp, _ = s.do(t, httptest.NewRequest(http.MethodGet, photo.ThumbnailURL, nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = s.do(t, httptest.NewRequest(http.MethodGet, "/api/photos", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list models.PhotoListResponse
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Equal(t, 1, list.Total)
	require.Len(t, list.Photos, 1)
	assert.Equal(t, photo.ID, list.Photos[0].ID)

	resp, body = s.do(t, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/photos/%d", photo.ID), nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got models.Photo
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, photo.Filename, got.Filename)

	resp, body = s.do(t, httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/api/photos/%d", photo.ID), nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var deleted models.DeleteResponse
	require.NoError(t, json.Unmarshal(body, &deleted))
	assert.Equal(t, "Photo "+photo.Filename+" deleted successfully", deleted.Message)

	resp, _ = s.do(t, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/photos/%d", photo.ID), nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = s.do(t, httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/api/photos/%d", photo.ID), nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	assert.False(t, s.svc.Files.Exists(photo.Filename))
}

func TestUpload_Rejected(t *testing.T) {
	s := newTestServer(t)
	jpegData := testimage.JPEG(t, testimage.Quadrants(16, 16))

	tests := []struct {
		name        string
		filename    string
		contentType string
		data        []byte
		message     string
	}{
		{"extension", "notes.txt", "image/jpeg", jpegData, "unsupported extension"},
		{"content type", "beach.jpg", "application/octet-stream", jpegData, "not an image"},
		{"not an image", "evil.jpg", "image/jpeg", []byte("MZ\x90\x00 definitely not a jpeg"), "decode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := s.do(t, uploadRequest(t, tt.filename, tt.contentType, tt.data))
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Contains(t, errorMessage(t, body), tt.message)
		})
	}

	// no file field at all
	req := httptest.NewRequest(http.MethodPost, "/api/photos", nil)
	resp, body := s.do(t, req)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "file is required", errorMessage(t, body))

	photos, err := s.svc.Photos.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, photos)
}

func TestInvalidID(t *testing.T) {
	s := newTestServer(t)

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		for _, id := range []string{"abc", "0", "-3"} {
			resp, body := s.do(t, httptest.NewRequest(method, "/api/photos/"+id, nil))
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "%s %s", method, id)
			assert.Equal(t, "invalid photo id", errorMessage(t, body))
		}
	}
}

func TestCORS(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/photos", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	resp, _ := s.do(t, req)
	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
}

func TestWebSocket_RequiresUpgrade(t *testing.T) {
	s := newTestServer(t)

	resp, _ := s.do(t, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}

func TestWebSocket_Events(t *testing.T) {
	s := newTestServer(t)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = s.app.Listener(listener) }()
	defer func() { _ = s.app.Shutdown() }()

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+listener.Addr().String()+"/ws", nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))

	var hello map[string]string
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "connected", hello["event"])

	photo, err := s.svc.Photos.Ingest(context.Background(), models.Upload{
		Body:        bytes.NewReader(testimage.PNG(t, testimage.Quadrants(16, 16))),
		Filename:    "live.png",
		ContentType: "image/png",
	})
	require.NoError(t, err)

	var event models.PhotoEvent
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, models.EventPhotoCreated, event.Event)
	assert.Equal(t, photo.ID, event.Photo.ID)

	_, err = s.svc.Photos.Remove(context.Background(), photo.ID)
	require.NoError(t, err)

	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, models.EventPhotoDeleted, event.Event)
	assert.Equal(t, photo.Filename, event.Photo.Filename)
}
