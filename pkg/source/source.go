package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/crateclone/crateclone/pkg/version"
)

// ErrEnumerationUnsupported is returned by EnumerateAll for sources that can
// only be queried by name.
var ErrEnumerationUnsupported = errors.New("source cannot list its packages")

// Source is one place crates come from. Implementations are not safe for
// concurrent use; callers hold the package cache lock while using them.
type Source interface {
	// ID describes the source for messages, e.g. "registry `crates-io`".
	ID() string
	// Update refreshes the source's metadata: re-reads manifests, fetches
	// git refs, or loads the registry index configuration.
	Update(ctx context.Context) error
	// Query returns every summary whose name equals q.Name and whose
	// version satisfies q.Requirement.
	Query(ctx context.Context, q Query) ([]Summary, error)
	// EnumerateAll lists every package discoverable at this source.
	EnumerateAll(ctx context.Context) ([]*Package, error)
	// Download makes the package's source tree available on disk and
	// returns it. It blocks until the tree is complete.
	Download(ctx context.Context, id PackageID) (*Package, error)
}

// Query selects packages by exact name and version requirement.
type Query struct {
	Name        string
	Requirement version.Requirement
}

// PackageID names one published version of a package.
type PackageID struct {
	Name    string
	Version version.Version
}

func (id PackageID) String() string {
	return fmt.Sprintf("%s %s", id.Name, id.Version)
}

// Summary is what a query yields before anything is downloaded.
type Summary struct {
	ID       PackageID
	Checksum string // sha256 hex of the .crate file (registry only)
}

// Version implements version.Versioned.
func (s Summary) Version() version.Version { return s.ID.Version }

// Package is a package whose source tree is on disk at Root.
type Package struct {
	Name    string
	Version version.Version
	Root    string
}

func (p *Package) ID() PackageID {
	return PackageID{Name: p.Name, Version: p.Version}
}

// summaryOf is the summary of an already-local package.
func summaryOf(p *Package) Summary {
	return Summary{ID: p.ID()}
}
