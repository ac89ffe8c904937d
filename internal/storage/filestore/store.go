// Package filestore keeps the stored photo files on local disk.
package filestore

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
)

var (
	// Error is the default filestore errs class.
	Error = errs.Class("filestore")

	mon = monkit.Package()
)

const (
	filePermission = 0644
	dirPermission  = 0755
)

// Store writes named files below a root directory.
type Store struct {
	dir string
}

// NewAt creates a store rooted at dir, creating the directory when missing.
func NewAt(dir string) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if err := os.MkdirAll(abs, dirPermission); err != nil {
		return nil, Error.Wrap(err)
	}
	return &Store{dir: abs}, nil
}

// Dir returns the absolute root directory.
func (store *Store) Dir() string { return store.dir }

// Path returns the absolute path of name.
func (store *Store) Path(name string) (string, error) {
	if !filepath.IsLocal(name) {
		return "", Error.New("invalid name %q", name)
	}
	return filepath.Join(store.dir, filepath.FromSlash(name)), nil
}

// Write stores data under name and returns the size of the written file.
// The data goes to a temporary file next to the destination first, so
// readers see either the previous content or the complete new one.
func (store *Store) Write(ctx context.Context, name string, data []byte) (_ int64, err error) {
	defer mon.Task()(&ctx)(&err)

	if err := ctx.Err(); err != nil {
		return 0, Error.Wrap(err)
	}

	path, err := store.Path(name)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(path), dirPermission); err != nil {
		return 0, Error.Wrap(err)
	}

	file, err := os.CreateTemp(filepath.Dir(path), ".upload-*.partial")
	if err != nil {
		return 0, Error.Wrap(err)
	}

	_, writeErr := file.Write(data)
	syncErr := file.Sync()
	var chmodErr error
	if runtime.GOOS != "windows" {
		chmodErr = file.Chmod(filePermission)
	}
	closeErr := file.Close()

	if writeErr != nil || syncErr != nil || chmodErr != nil || closeErr != nil {
		removeErr := os.Remove(file.Name())
		return 0, Error.Wrap(errs.Combine(writeErr, syncErr, chmodErr, closeErr, removeErr))
	}

	if err := os.Rename(file.Name(), path); err != nil {
		removeErr := os.Remove(file.Name())
		return 0, Error.Wrap(errs.Combine(err, removeErr))
	}

	info, err := os.Stat(path)
	if err != nil {
		return 0, Error.Wrap(err)
	}
	return info.Size(), nil
}

// Delete removes name. A missing file is not an error.
func (store *Store) Delete(ctx context.Context, name string) (err error) {
	defer mon.Task()(&ctx)(&err)

	path, err := store.Path(name)
	if err != nil {
		return err
	}

	err = os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return Error.Wrap(err)
}

// Exists reports whether name is a regular file in the store.
func (store *Store) Exists(name string) bool {
	path, err := store.Path(name)
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
