package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// LocalSource serves the single package whose Cargo.toml sits at Path.
type LocalSource struct {
	Path string

	packages packageList
}

var _ Source = &LocalSource{}

func (l *LocalSource) ID() string { return "path " + l.Path }

// Update re-reads the manifest, so edits made since the last call are seen.
func (l *LocalSource) Update(ctx context.Context) error {
	absPath, err := filepath.Abs(l.Path)
	if err != nil {
		return fmt.Errorf("resolving absolute path for %q: %w", l.Path, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("local source path does not exist: %s", absPath)
		}
		return fmt.Errorf("checking local source path %s: %w", absPath, err)
	}

	if !info.IsDir() {
		return fmt.Errorf("local source path is not a directory: %s", absPath)
	}

	// Package roots are real directories so walkers see their contents.
	absPath, err = filepath.EvalSymlinks(absPath)
	if err != nil {
		return fmt.Errorf("resolving symlinks in %s: %w", l.Path, err)
	}

	pkg, err := readPackage(absPath, "")
	if err != nil {
		return fmt.Errorf("reading package at %s: %w", absPath, err)
	}

	l.packages = packageList{pkg}
	return nil
}

func (l *LocalSource) Query(ctx context.Context, q Query) ([]Summary, error) {
	return l.packages.query(q), nil
}

func (l *LocalSource) EnumerateAll(ctx context.Context) ([]*Package, error) {
	return l.packages, nil
}

func (l *LocalSource) Download(ctx context.Context, id PackageID) (*Package, error) {
	return l.packages.find(id)
}
