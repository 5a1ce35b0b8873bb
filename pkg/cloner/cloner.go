// Package cloner copies a resolved package's sources into a working
// directory.
package cloner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/crateclone/crateclone/pkg/copier"
	"github.com/crateclone/crateclone/pkg/logging"
	"github.com/crateclone/crateclone/pkg/resolver"
	"github.com/crateclone/crateclone/pkg/source"
)

// ErrDestinationNotEmpty is returned when the destination already holds
// files. Nothing is copied in that case.
var ErrDestinationNotEmpty = errors.New("already exists and is not an empty directory")

// Resolver is what Cloner needs from resolver.Resolver.
type Resolver interface {
	Resolve(ctx context.Context, loc source.Location, q resolver.Query) (*source.Package, error)
}

// Cloner resolves packages and copies them into destination directories.
type Cloner struct {
	Resolver Resolver
	// WorkDir is where packages go when no prefix is given. Empty means
	// the process working directory.
	WorkDir string
}

// Result describes a finished clone.
type Result struct {
	Package     *source.Package
	Destination string
}

// Clone resolves q at loc and copies the package into prefix, or into
// <WorkDir>/<package name> when prefix is empty. The destination is created
// if missing and must be empty if it exists. A copy that fails midway is
// not rolled back.
func (c *Cloner) Clone(ctx context.Context, q resolver.Query, loc source.Location, prefix string) (*Result, error) {
	pkg, err := c.Resolver.Resolve(ctx, loc, q)
	if err != nil {
		return nil, err
	}

	dest, err := c.destination(pkg, prefix)
	if err != nil {
		return nil, err
	}
	if err := prepareDestination(dest); err != nil {
		return nil, err
	}

	logging.FromContext(ctx).Debug("copying", "from", pkg.Root, "to", dest)
	if err := copier.CopyTree(pkg.Root, dest); err != nil {
		return nil, fmt.Errorf("cloning %s into %s: %w", pkg.ID(), dest, err)
	}

	return &Result{Package: pkg, Destination: dest}, nil
}

func (c *Cloner) destination(pkg *source.Package, prefix string) (string, error) {
	if prefix != "" {
		return prefix, nil
	}
	dir := c.WorkDir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("determining working directory: %w", err)
		}
		dir = wd
	}
	return filepath.Join(dir, pkg.Name), nil
}

// prepareDestination creates dest with its parents, or checks that an
// existing dest is an empty directory.
func prepareDestination(dest string) error {
	info, err := os.Stat(dest)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(dest, 0o755); err != nil {
			return fmt.Errorf("creating destination %s: %w", dest, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("checking destination %s: %w", dest, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("destination path '%s' already exists and is not a directory", dest)
	}

	empty, err := isEmptyDir(dest)
	if err != nil {
		return fmt.Errorf("reading destination %s: %w", dest, err)
	}
	if !empty {
		return fmt.Errorf("destination path '%s' %w", dest, ErrDestinationNotEmpty)
	}
	return nil
}

func isEmptyDir(dir string) (bool, error) {
	f, err := os.Open(dir)
	if err != nil {
		return false, err
	}
	defer f.Close()

	_, err = f.Readdirnames(1)
	if err == io.EOF {
		return true, nil
	}
	return false, err
}
