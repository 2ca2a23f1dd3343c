package index

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const (
	filePermission = 0o644
	dirPermission  = 0o755
)

// TempSuffix is appended to the final path while a file is being written.
const TempSuffix = ".tmp"

// File is a seekable temporary file that becomes visible at its final path
// only on Commit.
type File struct {
	path     string
	tempPath string
	file     *os.File
}

var _ io.WriteSeeker = (*File)(nil)

// Create opens path+".tmp" for writing, truncating leftovers of an earlier
// failed run.
func Create(path string) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), dirPermission); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}
	tempPath := path + TempSuffix
	f, err := os.OpenFile(tempPath, os.O_CREATE|os.O_RDWR|os.O_TRUNC, filePermission)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	return &File{path: path, tempPath: tempPath, file: f}, nil
}

// Path returns the final path.
func (f *File) Path() string { return f.path }

// TempPath returns the path written to before Commit.
func (f *File) TempPath() string { return f.tempPath }

func (f *File) Write(p []byte) (int, error) {
	if f.file == nil {
		return 0, os.ErrClosed
	}
	return f.file.Write(p)
}

func (f *File) Seek(offset int64, whence int) (int64, error) {
	if f.file == nil {
		return 0, os.ErrClosed
	}
	return f.file.Seek(offset, whence)
}

// Commit syncs the temp file and renames it over the final path.
func (f *File) Commit() error {
	if f.file == nil {
		return os.ErrClosed
	}
	if err := f.file.Sync(); err != nil {
		return fmt.Errorf("sync file: %w", err)
	}
	if err := f.file.Close(); err != nil {
		f.file = nil
		return fmt.Errorf("close file: %w", err)
	}
	f.file = nil

	if err := os.Rename(f.tempPath, f.path); err != nil {
		return fmt.Errorf("rename file: %w", err)
	}
	if err := syncDir(filepath.Dir(f.path)); err != nil {
		return fmt.Errorf("sync directory: %w", err)
	}
	return nil
}

// Abort closes and removes the temp file. The final path is left untouched.
// It is a no-op after a successful Commit.
func (f *File) Abort() error {
	if f.file != nil {
		_ = f.file.Close()
		f.file = nil
	}
	if err := os.Remove(f.tempPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
