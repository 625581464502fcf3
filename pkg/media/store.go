package media

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Store keeps media files under a root directory, addressed by slash
// separated relative paths
type Store struct {
	root string
}

// NewStore creates the root directory if needed
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}
	return &Store{root: root}, nil
}

// Root returns the media directory
func (s *Store) Root() string {
	return s.root
}

// Path returns the absolute location of rel
func (s *Store) Path(rel string) string {
	return filepath.Join(s.root, filepath.FromSlash(rel))
}

// Exists reports whether a non-empty file is stored at rel
func (s *Store) Exists(rel string) bool {
	info, err := os.Stat(s.Path(rel))
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

// Save writes r to rel through a temporary file, so a failed copy never
// leaves a partial file behind
func (s *Store) Save(r io.Reader, rel string) (int64, error) {
	filename := s.Path(rel)
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}

	out, err := os.CreateTemp(filepath.Dir(filename), filepath.Base(filename)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("failed to create temporary file: %w", err)
	}
	tempFile := out.Name()

	n, err := io.Copy(out, r)
	closeErr := out.Close()

	if err != nil {
		os.Remove(tempFile)
		return 0, fmt.Errorf("failed to save media data: %w", err)
	}
	if closeErr != nil {
		os.Remove(tempFile)
		return 0, fmt.Errorf("failed to close file: %w", closeErr)
	}

	if err := os.Rename(tempFile, filename); err != nil {
		os.Remove(tempFile)
		return 0, fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return n, nil
}
