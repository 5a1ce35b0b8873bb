// Package copier copies a package's source tree out of the cache.
package copier

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/crateclone/crateclone/pkg/store"
)

const dirPerm = 0o755

// CopyTree copies the contents of from into to, which must already be a
// directory. Entries are visited in lexical order with each directory ahead
// of its contents. The cache's ready marker is never copied, and symlinks
// and other non-regular files below from are skipped; from itself may be a
// symlink to a directory. The first error aborts the copy and leaves
// whatever was already written in place.
func CopyTree(from, to string) error {
	info, err := os.Stat(to)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("not a directory: %s", to)
	}

	// WalkDir does not descend into a symlinked root.
	root, err := filepath.EvalSymlinks(from)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", from, err)
	}
	from = root

	return filepath.WalkDir(from, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		if path == from {
			return nil
		}

		rel, err := filepath.Rel(from, path)
		if err != nil {
			return err
		}
		dest := filepath.Join(to, rel)

		switch {
		case d.IsDir():
			if err := os.Mkdir(dest, dirPerm); err != nil {
				return fmt.Errorf("creating directory %s: %w", dest, err)
			}
		case d.Type().IsRegular():
			if d.Name() == store.ReadyMarker {
				return nil
			}
			if err := copyFile(path, dest); err != nil {
				return fmt.Errorf("copying %s: %w", path, err)
			}
		}
		return nil
	})
}

// copyFile creates or truncates dst with src's contents and permission bits.
func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	_, err = io.Copy(out, in)
	return err
}
