// Package inbox imports photos dropped into a watched folder.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"fotacos/internal/models"
)

const (
	// ProcessedDir receives files that were imported.
	ProcessedDir = "processed"
	// FailedDir receives files that could not be imported.
	FailedDir = "failed"

	// DefaultSettleDelay is how long a file must stay unchanged before import.
	DefaultSettleDelay = 500 * time.Millisecond
)

// Ingester stores an upload.
type Ingester interface {
	Ingest(ctx context.Context, upload models.Upload) (*models.Photo, error)
}

// Watcher monitors a folder and imports every file that appears in it.
type Watcher struct {
	log    *zap.Logger
	photos Ingester
	dir    string

	SettleDelay time.Duration
}

// NewWatcher creates a watcher for dir.
func NewWatcher(log *zap.Logger, photos Ingester, dir string) *Watcher {
	return &Watcher{
		log:         log,
		photos:      photos,
		dir:         dir,
		SettleDelay: DefaultSettleDelay,
	}
}

// Run imports the files already present and then watches for new ones until
// ctx is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	for _, sub := range []string{ProcessedDir, FailedDir} {
		if err := os.MkdirAll(filepath.Join(w.dir, sub), 0755); err != nil {
			return fmt.Errorf("failed to create inbox folder: %w", err)
		}
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer func() { _ = fsWatcher.Close() }()

	if err := fsWatcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch folder %s: %w", w.dir, err)
	}
	w.log.Info("watching inbox", zap.String("dir", w.dir))

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("failed to list inbox: %w", err)
	}
	for _, entry := range entries {
		if entry.Type().IsRegular() && !skip(entry.Name()) {
			_ = w.Process(ctx, filepath.Join(w.dir, entry.Name()))
		}
	}

	// Debounce: a file is imported once no event touched it for SettleDelay.
	pending := make(map[string]*time.Timer)
	settled := make(chan string)
	defer func() {
		for _, timer := range pending {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsWatcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if skip(filepath.Base(event.Name)) {
				continue
			}

			name := event.Name
			if timer, exists := pending[name]; exists {
				timer.Stop()
			}
			pending[name] = time.AfterFunc(w.SettleDelay, func() {
				select {
				case settled <- name:
				case <-ctx.Done():
				}
			})

		case name := <-settled:
			delete(pending, name)
			if info, err := os.Stat(name); err == nil && info.Mode().IsRegular() {
				_ = w.Process(ctx, name)
			}

		case err, ok := <-fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watcher error", zap.Error(err))
		}
	}
}

// skip ignores hidden and temporary files.
func skip(name string) bool {
	return name == "" || strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~")
}

// Process imports the file at path and moves it into the processed or
// failed folder.
func (w *Watcher) Process(ctx context.Context, path string) error {
	log := w.log.With(zap.String("file", filepath.Base(path)))

	err := w.ingest(ctx, path)
	target := ProcessedDir
	if err != nil {
		target = FailedDir
		log.Warn("import failed", zap.Error(err))
	}

	if moveErr := move(path, filepath.Join(w.dir, target)); moveErr != nil {
		log.Error("failed to move imported file", zap.Error(moveErr))
		if err == nil {
			err = moveErr
		}
	}
	return err
}

func (w *Watcher) ingest(ctx context.Context, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	contentType, err := DetectContentType(file)
	if err != nil {
		return err
	}

	photo, err := w.photos.Ingest(ctx, models.Upload{
		Body:        file,
		Filename:    filepath.Base(path),
		ContentType: contentType,
	})
	if err != nil {
		return err
	}

	w.log.Info("imported", zap.String("file", filepath.Base(path)), zap.Int64("id", photo.ID))
	return nil
}

// DetectContentType uses the file extension and falls back to sniffing the
// first bytes. The file is rewound afterwards.
func DetectContentType(file *os.File) (string, error) {
	if contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(file.Name()))); contentType != "" {
		return contentType, nil
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return http.DetectContentType(head[:n]), nil
}

// move renames path into dir, adding a timestamp when the name is taken.
func move(path, dir string) error {
	target := filepath.Join(dir, filepath.Base(path))
	if _, err := os.Stat(target); err == nil {
		ext := filepath.Ext(target)
		target = fmt.Sprintf("%s_%d%s", strings.TrimSuffix(target, ext), time.Now().UnixNano(), ext)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.Rename(path, target)
}
