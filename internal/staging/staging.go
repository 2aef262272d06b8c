// Package staging stores untrusted upload streams as uniquely named scratch
// files and removes them again.
package staging

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/genrenet-go/internal/errors"
	"github.com/tphakala/genrenet-go/internal/logger"
)

const (
	componentStaging = "staging"

	// DefaultExtension is used when an upload name carries no extension
	DefaultExtension = ".wav"

	defaultDirName = "genrenet-staging"
	uuidLength     = 36
	dirPermissions = 0o700
)

// Extensions lists the upload extensions the service stages. Sweep only
// touches files carrying one of them.
var Extensions = []string{".wav", ".mp3", ".mp4", ".m4a"}

// Area is a scratch directory for staged uploads
type Area struct {
	dir string
}

// NewArea creates the scratch directory. An empty dir selects a
// genrenet-staging directory under the OS temp dir.
func NewArea(dir string) (*Area, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), defaultDirName)
	}
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, errors.New(fmt.Errorf("failed to create staging directory: %w", err)).
			Component(componentStaging).
			Category(errors.CategoryFileIO).
			Context("operation", "create_staging_dir").
			Build()
	}
	return &Area{dir: dir}, nil
}

// Dir returns the scratch directory path
func (a *Area) Dir() string {
	return a.dir
}

// Stage copies r into a new file named by a random UUID plus ext.
// The stream is consumed and not retained. On failure nothing is left behind.
func (a *Area) Stage(ctx context.Context, ext string, r io.Reader) (*File, error) {
	ext = strings.ToLower(ext)
	if ext == "" {
		ext = DefaultExtension
	}

	path := filepath.Join(a.dir, uuid.New().String()+ext)

	dst, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600) //nolint:gosec // name is generated
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to create staged file: %w", err)).
			Component(componentStaging).
			Category(errors.CategoryFileIO).
			Context("operation", "create_staged_file").
			Build()
	}

	written, copyErr := io.Copy(dst, &contextReader{ctx: ctx, r: r})
	closeErr := dst.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = os.Remove(path)
		category := errors.CategoryFileIO
		if ctx.Err() != nil {
			category = errors.CategoryCancellation
		}
		return nil, errors.New(fmt.Errorf("failed to stage upload: %w", copyErr)).
			Component(componentStaging).
			Category(category).
			Context("operation", "write_staged_file").
			Build()
	}

	GetLogger().Debug("upload staged",
		logger.String("file", filepath.Base(path)),
		logger.Int64("bytes", written))

	return &File{Path: path, Size: written}, nil
}

// Sweep removes staged files in the area last modified before cutoff and
// returns how many were removed. It clears leftovers from an unclean shutdown.
// Files not named the way Stage names them are left alone, so a directory
// shared with other data is safe to sweep.
func (a *Area) Sweep(cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return 0, errors.New(err).
			Component(componentStaging).
			Category(errors.CategoryDiskCleanup).
			Context("operation", "sweep_staging_dir").
			Build()
	}

	removed := 0
	var errs []error
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !isStagedName(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(a.dir, entry.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}

	if len(errs) > 0 {
		return removed, errors.New(errors.Join(errs...)).
			Component(componentStaging).
			Category(errors.CategoryDiskCleanup).
			Context("operation", "sweep_staging_dir").
			Build()
	}
	return removed, nil
}

// isStagedName reports whether name is a UUID followed by a known extension.
func isStagedName(name string) bool {
	ext := filepath.Ext(name)
	if !slices.Contains(Extensions, ext) {
		return false
	}
	stem := strings.TrimSuffix(name, ext)
	if len(stem) != uuidLength {
		return false
	}
	_, err := uuid.Parse(stem)
	return err == nil
}

// File is a staged upload. Release it exactly once when done; extra calls are no-ops.
type File struct {
	Path string
	Size int64

	once       sync.Once
	releaseErr error
}

// Release deletes the staged file. A file that is already gone counts as released.
func (f *File) Release() error {
	f.once.Do(func() {
		if _, err := os.Stat(f.Path); errors.Is(err, fs.ErrNotExist) {
			return
		}
		if err := os.Remove(f.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			f.releaseErr = errors.New(fmt.Errorf("failed to remove staged file: %w", err)).
				Component(componentStaging).
				Category(errors.CategoryDiskCleanup).
				Context("operation", "release_staged_file").
				Build()
		}
	})
	return f.releaseErr
}

// contextReader stops a copy once ctx is done
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *contextReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}

// GetLogger returns the staging package logger
func GetLogger() logger.Logger {
	return logger.Global().Module("staging")
}
