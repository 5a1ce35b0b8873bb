// Package resolver turns a crate name and optional version into a package
// whose source tree is on disk.
package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/crateclone/crateclone/pkg/logging"
	"github.com/crateclone/crateclone/pkg/source"
	"github.com/crateclone/crateclone/pkg/store"
	"github.com/crateclone/crateclone/pkg/version"
)

var (
	// ErrNotFound means no package matched the query, or a source that can
	// list its packages had none.
	ErrNotFound = errors.New("not found")
	// ErrNameRequired means a registry was asked for a package without a
	// crate name.
	ErrNameRequired = errors.New("crate name required")
)

// Query names the package to resolve. An empty Name takes the first package
// a path or git source contains. An empty Version means any version.
type Query struct {
	Name    string
	Version string
}

func (q Query) String() string {
	switch {
	case q.Name == "":
		return "<any package>"
	case q.Version == "":
		return q.Name
	default:
		return q.Name + "@" + q.Version
	}
}

// Resolver resolves queries against the package cache in Store. Registry
// locations are opened through Sources.
type Resolver struct {
	Store   store.Store
	Sources *source.ConfigMap

	// open replaces sourceFor in tests.
	open func(source.Location) (source.Source, error)
}

// Resolve holds the package cache lock while it selects and downloads the
// package matching q at loc.
func (r *Resolver) Resolve(ctx context.Context, loc source.Location, q Query) (*source.Package, error) {
	lock, err := r.Store.Lock()
	if err != nil {
		return nil, fmt.Errorf("acquiring package cache lock: %w", err)
	}
	defer lock.Release()

	src, err := r.sourceFor(loc)
	if err != nil {
		return nil, err
	}

	if q.Name == "" && loc.Kind == source.KindRegistry {
		return nil, fmt.Errorf("%w: must specify a crate to clone from %s, or use --path or --git to specify an alternate source",
			ErrNameRequired, src.ID())
	}

	logger := logging.FromContext(ctx)
	logger.Debug("resolving", "query", q, "source", src.ID())
	progress := logging.NewProgress(logger)

	pkg, err := selectPackage(ctx, src, q)
	if err != nil {
		return nil, err
	}

	progress.Done(fmt.Sprintf("resolved %s from %s", pkg.ID(), src.ID()))
	return pkg, nil
}

func (r *Resolver) sourceFor(loc source.Location) (source.Source, error) {
	if r.open != nil {
		return r.open(loc)
	}

	switch loc.Kind {
	case source.KindPath:
		return &source.LocalSource{Path: loc.Path}, nil
	case source.KindGit:
		return &source.GitSource{URL: loc.URL, Ref: loc.Ref, Store: r.Store}, nil
	case source.KindRegistry:
		if r.Sources == nil {
			return nil, errors.New("no registry configuration")
		}
		return r.Sources.Load(loc)
	default:
		return nil, fmt.Errorf("unsupported source kind %s", loc.Kind)
	}
}

// selectPackage refreshes src and picks the package q asks for: the highest
// matching version when a name is given, otherwise the first package src
// lists.
func selectPackage(ctx context.Context, src source.Source, q Query) (*source.Package, error) {
	req := version.Any
	if q.Version != "" {
		v, err := version.Parse(q.Version)
		if err != nil {
			return nil, err
		}
		req = version.Caret(v)
	}

	if err := src.Update(ctx); err != nil {
		return nil, fmt.Errorf("updating %s: %w", src.ID(), err)
	}

	if q.Name == "" {
		pkgs, err := src.EnumerateAll(ctx)
		if err != nil {
			return nil, err
		}
		if len(pkgs) == 0 {
			return nil, fmt.Errorf("no packages in %s: %w", src.ID(), ErrNotFound)
		}
		return pkgs[0], nil
	}

	summaries, err := src.Query(ctx, source.Query{Name: q.Name, Requirement: req})
	if err != nil {
		return nil, err
	}

	latest, ok := version.SelectMax(summaries)
	if !ok {
		return nil, fmt.Errorf("package '%s' %w", q.Name, ErrNotFound)
	}

	pkg, err := src.Download(ctx, latest.ID)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", latest.ID, err)
	}
	return pkg, nil
}
