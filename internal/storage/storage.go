package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/killallgit/podcast-downloader/pkg/download"
	apperrors "github.com/killallgit/podcast-downloader/pkg/errors"
)

// OutputDir is the episode output folder. File presence is the only record
// of a completed episode, so files only ever appear under their final name
// through Commit.
type OutputDir struct {
	basePath string
}

// Open validates that basePath exists and is a directory. It is never created.
func Open(basePath string) (*OutputDir, error) {
	info, err := os.Stat(basePath)
	if err != nil {
		return nil, apperrors.FilesystemError("open output folder", basePath, err)
	}
	if !info.IsDir() {
		return nil, apperrors.FilesystemError("open output folder", basePath, fmt.Errorf("not a directory"))
	}
	return &OutputDir{basePath: basePath}, nil
}

// Path returns the location of name inside the output folder
func (o *OutputDir) Path(name string) string {
	return filepath.Join(o.basePath, name)
}

// Dir returns the output folder itself; temp files are created there so
// Commit is a same-filesystem rename
func (o *OutputDir) Dir() string {
	return o.basePath
}

// Exists checks if name is already present
func (o *OutputDir) Exists(name string) (bool, error) {
	_, err := os.Stat(o.Path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, apperrors.FilesystemError("stat", o.Path(name), err)
	}
	return true, nil
}

// Commit moves a finished temp file onto name inside the output folder. It
// refuses to replace an existing file and removes tempPath on every failure.
func (o *OutputDir) Commit(tempPath, name string) (string, error) {
	dest := o.Path(name)
	return dest, commit(tempPath, dest)
}

// commit moves a finished temp file onto dest. It refuses to replace an
// existing file and removes tempPath on every failure.
func commit(tempPath, dest string) error {
	if _, err := os.Lstat(dest); err == nil {
		_ = download.CleanupTempFile(tempPath)
		return apperrors.FilesystemError("commit", dest, os.ErrExist)
	} else if !os.IsNotExist(err) {
		_ = download.CleanupTempFile(tempPath)
		return apperrors.FilesystemError("stat", dest, err)
	}

	if err := os.Chmod(tempPath, 0644); err != nil {
		_ = download.CleanupTempFile(tempPath)
		return apperrors.FilesystemError("chmod", tempPath, err)
	}

	if err := os.Rename(tempPath, dest); err != nil {
		_ = download.CleanupTempFile(tempPath)
		return apperrors.FilesystemError("rename", dest, err)
	}

	return nil
}

// CreateTemp creates an in-flight file in the output folder
func (o *OutputDir) CreateTemp() (*os.File, error) {
	return download.CreateTempFile(o.basePath)
}
