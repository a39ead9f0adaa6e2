package probe

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"xprobe/internal/paths"
)

// FileStager writes staged configurations into a directory as
// probe-*.json files readable only by the owner.
type FileStager struct {
	dir string
}

// NewFileStager creates a stager writing into dir. An empty dir selects the
// xprobe cache directory.
func NewFileStager(dir string) (*FileStager, error) {
	if dir == "" {
		cacheDir, err := paths.CacheDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve cache directory: %w", err)
		}
		dir = cacheDir
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	return &FileStager{dir: dir}, nil
}

// Stage writes content to a fresh file and returns its path.
func (s *FileStager) Stage(content string) (string, error) {
	f, err := os.CreateTemp(s.dir, "probe-*.json")
	if err != nil {
		return "", err
	}
	path := f.Name()

	if _, err := f.WriteString(content); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	if err := os.Chmod(path, 0600); err != nil {
		os.Remove(path)
		return "", err
	}
	paths.ChownToRealUser(path)
	return path, nil
}

// Remove deletes a staged file. Removing a missing file is not an error.
func (s *FileStager) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
