package store

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	dirPerm     = 0o755
	filePerm    = 0o644
	DefaultRoot = ".crateclone"

	// ReadyMarker is written into a cache directory once its contents are
	// complete. It belongs to the cache, never to a package's sources.
	ReadyMarker = ".cargo-ok"
)

// Store is the on-disk package cache shared by every crateclone process of a
// user. Downloaded crates, git checkouts and the cache lock live under its
// root.
type Store interface {
	// Path returns the absolute filesystem path for the given segments
	// joined under the store root. Does not create or verify the path.
	// Use this to get a path for external tools (e.g., git clone target).
	Path(segments ...string) string
	// Exists reports whether the path at the given segments exists.
	Exists(segments ...string) (bool, error)
	// EnsureDir creates the directory at segments (starting at store root),
	// including parents.
	EnsureDir(segments ...string) error
	// Remove deletes the entire tree at segments.
	Remove(segments ...string)
	// WriteFile writes data to the file at segments, creating parent
	// directories as needed.
	WriteFile(data []byte, segments ...string) error
	// ReadFile reads the file at segments.
	ReadFile(segments ...string) ([]byte, error)
	// Lock blocks until this process holds the exclusive package cache lock.
	// The returned Lock must be released on every exit path.
	Lock() (*Lock, error)
}

func New(root string) Store {
	return &store{root: root}
}

// Default returns the store rooted at ~/.crateclone.
func Default() (Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("determining home directory: %w", err)
	}
	return &store{root: filepath.Join(home, DefaultRoot)}, nil
}

type store struct {
	root string
}

var _ Store = &store{}

func (s *store) Path(segments ...string) string {
	return filepath.Join(append([]string{s.root}, segments...)...)
}

func (s *store) Exists(segments ...string) (bool, error) {
	_, err := os.Stat(s.Path(segments...))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (s *store) EnsureDir(segments ...string) error {
	return os.MkdirAll(s.Path(segments...), dirPerm)
}

func (s *store) Remove(segments ...string) {
	os.RemoveAll(s.Path(segments...))
}

func (s *store) WriteFile(data []byte, segments ...string) error {
	path := s.Path(segments...)
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return err
	}
	return os.WriteFile(path, data, filePerm)
}

func (s *store) ReadFile(segments ...string) ([]byte, error) {
	return os.ReadFile(s.Path(segments...))
}

func (s *store) Lock() (*Lock, error) {
	if err := os.MkdirAll(s.root, dirPerm); err != nil {
		return nil, fmt.Errorf("creating cache directory %s: %w", s.root, err)
	}
	return acquire(s.Path(lockFileName))
}
