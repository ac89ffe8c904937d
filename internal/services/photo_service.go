package services

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"fotacos/internal/db"
	"fotacos/internal/imageproc"
	"fotacos/internal/models"
)

var (
	// ValidationError is returned for uploads rejected before any processing.
	ValidationError = errs.Class("validation")
	// ProcessingError is returned when normalizing or persisting an upload fails.
	ProcessingError = errs.Class("processing")
	// NotFoundError is returned for unknown photo ids.
	NotFoundError = errs.Class("not found")

	mon = monkit.Package()
)

// ThumbnailDir is the sub directory of the upload dir holding thumbnails.
const ThumbnailDir = "thumbnails"

// AllowedExtensions lists the accepted upload extensions, lower-cased.
var AllowedExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp"}

// Normalizer produces the stored image variants.
type Normalizer interface {
	Original(data []byte) ([]byte, error)
	Thumbnail(data []byte) ([]byte, error)
}

// Blobs stores named files.
type Blobs interface {
	Write(ctx context.Context, name string, data []byte) (int64, error)
	Delete(ctx context.Context, name string) error
}

// PhotoService ingests uploads and removes photos, keeping files and records
// in step.
type PhotoService struct {
	log          *zap.Logger
	store        db.PhotoStore
	blobs        Blobs
	normalizer   Normalizer
	publicPrefix string

	mu        sync.RWMutex
	observers []func(models.PhotoEvent)
}

func NewPhotoService(log *zap.Logger, store db.PhotoStore, blobs Blobs, normalizer Normalizer, publicPrefix string) *PhotoService {
	return &PhotoService{
		log:          log,
		store:        store,
		blobs:        blobs,
		normalizer:   normalizer,
		publicPrefix: strings.TrimRight(publicPrefix, "/"),
	}
}

// Subscribe registers fn to be called after every successful ingest or removal.
func (service *PhotoService) Subscribe(fn func(models.PhotoEvent)) {
	service.mu.Lock()
	defer service.mu.Unlock()
	service.observers = append(service.observers, fn)
}

func (service *PhotoService) notify(event string, photo models.Photo) {
	service.mu.RLock()
	observers := append([]func(models.PhotoEvent){}, service.observers...)
	service.mu.RUnlock()

	for _, fn := range observers {
		fn(models.PhotoEvent{Event: event, Photo: photo})
	}
}

// ValidateUpload checks the declared filename and content type. Nothing is
// sniffed; the decoder has the final word.
func ValidateUpload(filename, contentType string) error {
	if filename == "" {
		return ValidationError.New("missing filename")
	}
	if !IsAllowedExtension(filename) {
		return ValidationError.New("unsupported extension")
	}
	if !strings.HasPrefix(contentType, "image/") {
		return ValidationError.New("not an image")
	}
	return nil
}

// IsAllowedExtension reports whether filename has an accepted image extension.
// A bare dot-file such as ".jpg" has no extension.
func IsAllowedExtension(filename string) bool {
	base := filepath.Base(filename)
	ext := filepath.Ext(base)
	if ext == base {
		return false
	}
	ext = strings.ToLower(ext)
	for _, allowed := range AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// OriginalName returns the blob name of the original for a stored filename.
func OriginalName(filename string) string { return filename }

// ThumbnailName returns the blob name of the thumbnail for a stored filename.
func ThumbnailName(filename string) string { return path.Join(ThumbnailDir, filename) }

func (service *PhotoService) originalURL(filename string) string {
	return service.publicPrefix + "/" + filename
}

func (service *PhotoService) thumbnailURL(filename string) string {
	return service.publicPrefix + "/" + ThumbnailDir + "/" + filename
}

// Ingest validates, normalizes and stores an upload, then records it.
// On any failure after validation no files and no record remain.
func (service *PhotoService) Ingest(ctx context.Context, upload models.Upload) (_ *models.Photo, err error) {
	defer mon.Task()(&ctx)(&err)

	if err := ValidateUpload(upload.Filename, upload.ContentType); err != nil {
		return nil, err
	}

	filename := "photo_" + uuid.NewString() + imageproc.Extension
	originalName, thumbnailName := OriginalName(filename), ThumbnailName(filename)

	size, err := service.writeVariants(ctx, upload.Body, originalName, thumbnailName)
	if err != nil {
		service.removeFiles(ctx, originalName, thumbnailName)
		service.log.Warn("upload rejected", zap.String("upload", upload.Filename), zap.Error(err))
		return nil, ProcessingError.Wrap(err)
	}

	photo, err := service.store.Create(ctx, models.NewPhoto{
		Filename:     filename,
		OriginalURL:  service.originalURL(filename),
		ThumbnailURL: service.thumbnailURL(filename),
		FileSize:     size,
	})
	if err != nil {
		service.removeFiles(ctx, originalName, thumbnailName)
		service.log.Error("failed to record photo", zap.String("filename", filename), zap.Error(err))
		return nil, ProcessingError.Wrap(err)
	}

	service.log.Info("photo stored",
		zap.Int64("id", photo.ID),
		zap.String("filename", photo.Filename),
		zap.String("upload", upload.Filename),
		zap.Int64("size", photo.FileSize))

	service.notify(models.EventPhotoCreated, *photo)
	return photo, nil
}

// writeVariants normalizes body and writes the original and thumbnail.
// It returns the size of the written original.
func (service *PhotoService) writeVariants(ctx context.Context, body io.Reader, originalName, thumbnailName string) (int64, error) {
	if body == nil {
		return 0, errs.New("missing upload body")
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	original, err := service.normalizer.Original(data)
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	size, err := service.blobs.Write(ctx, originalName, original)
	if err != nil {
		return 0, err
	}

	thumbnail, err := service.normalizer.Thumbnail(data)
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if _, err := service.blobs.Write(ctx, thumbnailName, thumbnail); err != nil {
		return 0, err
	}
	return size, nil
}

// removeFiles deletes the named blobs, logging failures.
func (service *PhotoService) removeFiles(ctx context.Context, names ...string) {
	ctx = context.WithoutCancel(ctx)

	var group errs.Group
	for _, name := range names {
		group.Add(service.blobs.Delete(ctx, name))
	}
	if err := group.Err(); err != nil {
		service.log.Warn("failed to remove photo files", zap.Strings("files", names), zap.Error(err))
	}
}

// Remove deletes the files of a photo and then its record.
func (service *PhotoService) Remove(ctx context.Context, id int64) (_ string, err error) {
	defer mon.Task()(&ctx)(&err)

	photo, err := service.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if photo == nil {
		return "", NotFoundError.New("photo %d not found", id)
	}

	service.removeFiles(ctx, OriginalName(photo.Filename), ThumbnailName(photo.Filename))

	if err := service.store.Delete(ctx, id); err != nil {
		return "", err
	}

	service.log.Info("photo deleted", zap.Int64("id", id), zap.String("filename", photo.Filename))
	service.notify(models.EventPhotoDeleted, *photo)

	return fmt.Sprintf("Photo %s deleted successfully", photo.Filename), nil
}

// List returns every photo, newest first.
func (service *PhotoService) List(ctx context.Context) ([]models.Photo, error) {
	return service.store.List(ctx)
}

// Get returns a single photo.
func (service *PhotoService) Get(ctx context.Context, id int64) (*models.Photo, error) {
	photo, err := service.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if photo == nil {
		return nil, NotFoundError.New("photo %d not found", id)
	}
	return photo, nil
}
