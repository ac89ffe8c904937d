package services_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"fotacos/internal/db"
	"fotacos/internal/imageproc"
	"fotacos/internal/models"
	"fotacos/internal/services"
	"fotacos/internal/storage/filestore"
	"fotacos/internal/testimage"
)

type env struct {
	service *services.PhotoService
	store   db.DB
	files   *filestore.Store
}

func newEnv(t *testing.T, wrap func(db.PhotoStore) db.PhotoStore, normalizer services.Normalizer) *env {
	t.Helper()
	ctx := context.Background()

	store, err := db.OpenSQLite(filepath.Join(t.TempDir(), "photos.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(ctx))

	files, err := filestore.NewAt(filepath.Join(t.TempDir(), "picts"))
	require.NoError(t, err)

	if normalizer == nil {
		normalizer = imageproc.New(imageproc.DefaultOptions())
	}
	var photos db.PhotoStore = store
	if wrap != nil {
		photos = wrap(store)
	}

	return &env{
		service: services.NewPhotoService(zaptest.NewLogger(t), photos, files, normalizer, "/public/picts"),
		store:   store,
		files:   files,
	}
}

// storedFiles lists every regular file below the upload dir.
func (e *env) storedFiles(t *testing.T) []string {
	t.Helper()
	var found []string
	err := filepath.WalkDir(e.files.Dir(), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			rel, _ := filepath.Rel(e.files.Dir(), path)
			found = append(found, filepath.ToSlash(rel))
		}
		return nil
	})
	require.NoError(t, err)
	return found
}

func (e *env) records(t *testing.T) []models.Photo {
	t.Helper()
	photos, err := e.store.List(context.Background())
	require.NoError(t, err)
	return photos
}

func jpegUpload(t *testing.T, name string, w, h int) models.Upload {
	return models.Upload{
		Body:        bytes.NewReader(testimage.JPEG(t, testimage.Quadrants(w, h))),
		Filename:    name,
		ContentType: "image/jpeg",
	}
}

func readFile(t *testing.T, files *filestore.Store, name string) []byte {
	t.Helper()
	path, err := files.Path(name)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func TestIngest(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil, nil)

	var events []models.PhotoEvent
	e.service.Subscribe(func(event models.PhotoEvent) { events = append(events, event) })

	photo, err := e.service.Ingest(ctx, jpegUpload(t, "Holiday.JPG", 64, 32))
	require.NoError(t, err)

	assert.Regexp(t, `^photo_[0-9a-f-]{36}\.webp$`, photo.Filename)
	assert.Equal(t, "/public/picts/"+photo.Filename, photo.OriginalURL)
	assert.Equal(t, "/public/picts/thumbnails/"+photo.Filename, photo.ThumbnailURL)
	assert.False(t, photo.CreatedAt.IsZero())

	original := readFile(t, e.files, services.OriginalName(photo.Filename))
	assert.EqualValues(t, len(original), photo.FileSize)
	assert.Equal(t, image.Pt(64, 32), testimage.DecodeWebP(t, original).Bounds().Size())

	thumbnail := readFile(t, e.files, services.ThumbnailName(photo.Filename))
	assert.Equal(t, image.Pt(64, 32), testimage.DecodeWebP(t, thumbnail).Bounds().Size())

	got, err := e.service.Get(ctx, photo.ID)
	require.NoError(t, err)
	assert.Equal(t, photo.Filename, got.Filename)

	require.Len(t, events, 1)
	assert.Equal(t, models.EventPhotoCreated, events[0].Event)
	assert.Equal(t, photo.ID, events[0].Photo.ID)
}

func TestIngest_Validation(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil, nil)

	tests := []struct {
		name        string
		filename    string
		contentType string
		message     string
	}{
		{"empty filename", "", "image/jpeg", "missing filename"},
		{"bad extension", "notes.txt", "image/jpeg", "unsupported extension"},
		{"no extension", "photo", "image/jpeg", "unsupported extension"},
		{"dot file", ".jpg", "image/jpeg", "unsupported extension"},
		{"bad content type", "photo.png", "text/plain", "not an image"},
		{"missing content type", "photo.png", "", "not an image"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upload := jpegUpload(t, tt.filename, 16, 16)
			upload.ContentType = tt.contentType

			_, err := e.service.Ingest(ctx, upload)
			require.Error(t, err)
			assert.True(t, services.ValidationError.Has(err))
			assert.Contains(t, err.Error(), tt.message)
		})
	}

	assert.Empty(t, e.storedFiles(t))
	assert.Empty(t, e.records(t))
}

func TestIsAllowedExtension(t *testing.T) {
	for _, name := range []string{"a.jpg", "a.JPEG", "a.png", "a.Gif", "a.webp", "a.bmp", "dir.x/a.jpg"} {
		assert.True(t, services.IsAllowedExtension(name), name)
	}
	for _, name := range []string{"a.tiff", "a.jpg.exe", "jpg", ".", "a.svg", ".jpg", ".PNG", "dir/.webp"} {
		assert.False(t, services.IsAllowedExtension(name), name)
	}
}

func TestIngest_DecodeFailure(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil, nil)

	_, err := e.service.Ingest(ctx, models.Upload{
		Body:        strings.NewReader("MZ\x90\x00 this is an executable, not a photo"),
		Filename:    "evil.jpg",
		ContentType: "image/jpeg",
	})
	require.Error(t, err)
	assert.True(t, services.ProcessingError.Has(err))
	assert.True(t, imageproc.DecodeError.Has(err))
	assert.False(t, services.ValidationError.Has(err))

	assert.Empty(t, e.storedFiles(t))
	assert.Empty(t, e.records(t))
}

type failingThumbnails struct {
	services.Normalizer
}

func (failingThumbnails) Thumbnail([]byte) ([]byte, error) {
	return nil, imageproc.EncodeError.New("thumbnail exploded")
}

func TestIngest_ThumbnailFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil, failingThumbnails{imageproc.New(imageproc.DefaultOptions())})

	var events []models.PhotoEvent
	e.service.Subscribe(func(event models.PhotoEvent) { events = append(events, event) })

	_, err := e.service.Ingest(ctx, jpegUpload(t, "photo.jpg", 32, 32))
	require.Error(t, err)
	assert.True(t, services.ProcessingError.Has(err))
	assert.True(t, imageproc.EncodeError.Has(err))

	assert.Empty(t, e.storedFiles(t))
	assert.Empty(t, e.records(t))
	assert.Empty(t, events)
}

type failingCreate struct {
	db.PhotoStore
}

func (failingCreate) Create(context.Context, models.NewPhoto) (*models.Photo, error) {
	return nil, db.Error.New("disk full")
}

func TestIngest_RecordFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, func(store db.PhotoStore) db.PhotoStore { return failingCreate{store} }, nil)

	_, err := e.service.Ingest(ctx, jpegUpload(t, "photo.jpg", 32, 32))
	require.Error(t, err)
	assert.True(t, services.ProcessingError.Has(err))
	assert.True(t, db.Error.Has(err))

	assert.Empty(t, e.storedFiles(t))
	assert.Empty(t, e.records(t))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestIngest_BodyFailure(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil, nil)

	for _, body := range []models.Upload{
		{Body: failingReader{}, Filename: "a.png", ContentType: "image/png"},
		{Body: nil, Filename: "a.png", ContentType: "image/png"},
	} {
		_, err := e.service.Ingest(ctx, body)
		require.Error(t, err)
		assert.True(t, services.ProcessingError.Has(err))
	}

	assert.Empty(t, e.storedFiles(t))
	assert.Empty(t, e.records(t))
}

func TestIngest_Canceled(t *testing.T) {
	e := newEnv(t, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.service.Ingest(ctx, jpegUpload(t, "photo.jpg", 32, 32))
	require.Error(t, err)
	assert.True(t, services.ProcessingError.Has(err))
	assert.ErrorIs(t, err, context.Canceled)

	assert.Empty(t, e.storedFiles(t))
	assert.Empty(t, e.records(t))
}

func TestIngest_RotatedPhoto(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil, nil)

	upload := models.Upload{
		Body:        bytes.NewReader(testimage.TaggedJPEG(t, testimage.Quadrants(4000, 3000), 6)),
		Filename:    "camera.jpg",
		ContentType: "image/jpeg",
	}

	photo, err := e.service.Ingest(ctx, upload)
	require.NoError(t, err)

	original := testimage.DecodeWebP(t, readFile(t, e.files, services.OriginalName(photo.Filename)))
	assert.Equal(t, image.Pt(3000, 4000), original.Bounds().Size())

	thumbnail := testimage.DecodeWebP(t, readFile(t, e.files, services.ThumbnailName(photo.Filename)))
	assert.Equal(t, image.Pt(225, 300), thumbnail.Bounds().Size())
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil, nil)

	var mu sync.Mutex
	var events []string
	e.service.Subscribe(func(event models.PhotoEvent) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, event.Event)
	})

	photo, err := e.service.Ingest(ctx, jpegUpload(t, "photo.png", 24, 24))
	require.NoError(t, err)
	require.Len(t, e.storedFiles(t), 2)

	message, err := e.service.Remove(ctx, photo.ID)
	require.NoError(t, err)
	assert.Equal(t, "Photo "+photo.Filename+" deleted successfully", message)

	assert.Empty(t, e.storedFiles(t))

	_, err = e.service.Get(ctx, photo.ID)
	assert.True(t, services.NotFoundError.Has(err))

	photos, err := e.service.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, photos)

	assert.Equal(t, []string{models.EventPhotoCreated, models.EventPhotoDeleted}, events)
}

func TestRemove_MissingFiles(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil, nil)

	photo, err := e.service.Ingest(ctx, jpegUpload(t, "photo.jpg", 24, 24))
	require.NoError(t, err)
	require.NoError(t, e.files.Delete(ctx, services.ThumbnailName(photo.Filename)))

	_, err = e.service.Remove(ctx, photo.ID)
	require.NoError(t, err)
	assert.Empty(t, e.records(t))
}

func TestRemove_NotFound(t *testing.T) {
	e := newEnv(t, nil, nil)

	_, err := e.service.Remove(context.Background(), 42)
	require.Error(t, err)
	assert.True(t, services.NotFoundError.Has(err))
}

func TestList_NewestFirst(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil, nil)

	var ids []int64
	for i := 0; i < 3; i++ {
		photo, err := e.service.Ingest(ctx, jpegUpload(t, "photo.jpg", 16, 16))
		require.NoError(t, err)
		ids = append([]int64{photo.ID}, ids...)
	}

	photos, err := e.service.List(ctx)
	require.NoError(t, err)
	require.Len(t, photos, 3)
	for i, photo := range photos {
		assert.Equal(t, ids[i], photo.ID)
	}
}
