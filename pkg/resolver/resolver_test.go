package resolver

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/crateclone/crateclone/pkg/source"
	"github.com/crateclone/crateclone/pkg/store"
	"github.com/crateclone/crateclone/pkg/version"
)

// fakeSource serves fixed summaries and records what the resolver asked.
type fakeSource struct {
	summaries []source.Summary
	packages  []*source.Package
	updateErr error

	updated    bool
	queried    *source.Query
	downloaded []source.PackageID
}

func (f *fakeSource) ID() string { return "fake" }

func (f *fakeSource) Update(ctx context.Context) error {
	f.updated = true
	return f.updateErr
}

func (f *fakeSource) Query(ctx context.Context, q source.Query) ([]source.Summary, error) {
	f.queried = &q
	var out []source.Summary
	for _, s := range f.summaries {
		if s.ID.Name == q.Name && q.Requirement.Matches(s.ID.Version) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSource) EnumerateAll(ctx context.Context) ([]*source.Package, error) {
	return f.packages, nil
}

func (f *fakeSource) Download(ctx context.Context, id source.PackageID) (*source.Package, error) {
	f.downloaded = append(f.downloaded, id)
	return &source.Package{Name: id.Name, Version: id.Version, Root: "/cache/" + id.String()}, nil
}

func summary(name, vers, checksum string) source.Summary {
	return source.Summary{
		ID:       source.PackageID{Name: name, Version: version.MustParse(vers)},
		Checksum: checksum,
	}
}

func newResolver(t *testing.T, src source.Source) *Resolver {
	t.Helper()
	return &Resolver{
		Store: store.New(t.TempDir()),
		open:  func(source.Location) (source.Source, error) { return src, nil },
	}
}

// assertUnlocked fails if the package cache lock is still held.
func assertUnlocked(t *testing.T, s store.Store) {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		l, err := s.Lock()
		if err == nil {
			err = l.Release()
		}
		done <- err
	}()
	if err := <-done; err != nil {
		t.Fatalf("re-acquiring lock: %v", err)
	}
}

func TestResolveSelectsHighestMatchingVersion(t *testing.T) {
	tests := map[string]struct {
		version     string
		wantVersion string
	}{
		"no version takes the highest": {
			wantVersion: "2.0.0",
		},
		"caret requirement": {
			version:     "1.0.0",
			wantVersion: "1.2.0",
		},
		"zero major caret": {
			version:     "0.3.0",
			wantVersion: "0.3.1",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			src := &fakeSource{summaries: []source.Summary{
				summary("serde", "0.3.0", ""),
				summary("serde", "0.3.1", ""),
				summary("serde", "1.0.0", ""),
				summary("serde", "1.2.0", ""),
				summary("serde", "2.0.0", ""),
				summary("other", "9.0.0", ""),
			}}
			r := newResolver(t, src)

			pkg, err := r.Resolve(context.Background(), source.Registry(""), Query{Name: "serde", Version: tc.version})
			if err != nil {
				t.Fatalf("Resolve() error: %v", err)
			}
			if pkg.Name != "serde" || pkg.Version.String() != tc.wantVersion {
				t.Errorf("Resolve() = %s %s, want serde %s", pkg.Name, pkg.Version, tc.wantVersion)
			}
			if !src.updated {
				t.Error("source was not updated before querying")
			}
			if len(src.downloaded) != 1 {
				t.Errorf("downloaded %d packages, want 1", len(src.downloaded))
			}
			assertUnlocked(t, r.Store)
		})
	}
}

func TestResolveNotFound(t *testing.T) {
	src := &fakeSource{summaries: []source.Summary{summary("serde", "1.0.0", "")}}
	r := newResolver(t, src)

	_, err := r.Resolve(context.Background(), source.Registry(""), Query{Name: "serde", Version: "2.0.0"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Resolve() error = %v, want ErrNotFound", err)
	}
	if want := "package 'serde' not found"; err.Error() != want {
		t.Errorf("error = %q, want %q", err, want)
	}
	if len(src.downloaded) != 0 {
		t.Error("nothing should be downloaded when no version matches")
	}
	assertUnlocked(t, r.Store)
}

func TestResolveInvalidVersion(t *testing.T) {
	src := &fakeSource{}
	r := newResolver(t, src)

	_, err := r.Resolve(context.Background(), source.Registry(""), Query{Name: "serde", Version: "1.x"})
	if !errors.Is(err, version.ErrInvalidVersion) {
		t.Fatalf("Resolve() error = %v, want ErrInvalidVersion", err)
	}
	if src.updated {
		t.Error("source was updated although the version did not parse")
	}
	assertUnlocked(t, r.Store)
}

func TestResolveRegistryRequiresName(t *testing.T) {
	src := &fakeSource{}
	r := newResolver(t, src)

	_, err := r.Resolve(context.Background(), source.Registry(""), Query{})
	if !errors.Is(err, ErrNameRequired) {
		t.Fatalf("Resolve() error = %v, want ErrNameRequired", err)
	}
	if src.updated {
		t.Error("source was updated although no name was given")
	}
	assertUnlocked(t, r.Store)
}

func TestResolveWithoutNameTakesFirstPackage(t *testing.T) {
	first := &source.Package{Name: "first", Version: version.MustParse("0.1.0"), Root: "/a"}
	second := &source.Package{Name: "second", Version: version.MustParse("9.0.0"), Root: "/b"}

	tests := map[string]struct {
		packages []*source.Package
		want     *source.Package
		wantErr  error
	}{
		"first of many": {
			packages: []*source.Package{first, second},
			want:     first,
		},
		"empty source": {
			wantErr: ErrNotFound,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			r := newResolver(t, &fakeSource{packages: tc.packages})

			got, err := r.Resolve(context.Background(), source.Git("https://example.com/r", ""), Query{})
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("Resolve() error = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() error: %v", err)
			}
			if got != tc.want {
				t.Errorf("Resolve() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestResolveUpdateError(t *testing.T) {
	r := newResolver(t, &fakeSource{updateErr: errors.New("boom")})

	if _, err := r.Resolve(context.Background(), source.Registry(""), Query{Name: "serde"}); err == nil {
		t.Fatal("expected error, got nil")
	}
	assertUnlocked(t, r.Store)
}

func TestResolveLocalPath(t *testing.T) {
	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	manifest := "[package]\nname = \"demo\"\nversion = \"0.4.2\"\n"
	if err := os.WriteFile(filepath.Join(dir, "Cargo.toml"), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}
	r := &Resolver{Store: store.New(t.TempDir())}

	tests := map[string]struct {
		query   Query
		wantErr error
	}{
		"no name":         {query: Query{}},
		"matching name":   {query: Query{Name: "demo"}},
		"matching caret":  {query: Query{Name: "demo", Version: "0.4.0"}},
		"other name":      {query: Query{Name: "nope"}, wantErr: ErrNotFound},
		"version too new": {query: Query{Name: "demo", Version: "0.5.0"}, wantErr: ErrNotFound},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			pkg, err := r.Resolve(context.Background(), source.Path(dir), tc.query)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("Resolve() error = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() error: %v", err)
			}
			if pkg.Root != dir || pkg.Name != "demo" {
				t.Errorf("Resolve() = %+v, want demo at %s", pkg, dir)
			}
		})
	}
}

func TestSourceFor(t *testing.T) {
	s := store.New(t.TempDir())
	r := &Resolver{Store: s, Sources: source.NewConfigMap(nil, s, nil)}

	tests := map[string]struct {
		loc    source.Location
		wantID string
	}{
		"path":     {loc: source.Path("/src/demo"), wantID: "path /src/demo"},
		"registry": {loc: source.Registry(""), wantID: "registry `crates-io`"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			src, err := r.sourceFor(tc.loc)
			if err != nil {
				t.Fatalf("sourceFor() error: %v", err)
			}
			if src.ID() != tc.wantID {
				t.Errorf("ID() = %q, want %q", src.ID(), tc.wantID)
			}
		})
	}

	git, err := r.sourceFor(source.Git("https://github.com/serde-rs/serde", "v1.0.0"))
	if err != nil {
		t.Fatalf("sourceFor(git) error: %v", err)
	}
	if g, ok := git.(*source.GitSource); !ok || g.Ref != "v1.0.0" || g.Store != s {
		t.Errorf("sourceFor(git) = %#v", git)
	}
}

func TestQueryString(t *testing.T) {
	tests := map[string]struct {
		q    Query
		want string
	}{
		"empty":        {q: Query{}, want: "<any package>"},
		"name":         {q: Query{Name: "serde"}, want: "serde"},
		"name version": {q: Query{Name: "serde", Version: "1.0.0"}, want: "serde@1.0.0"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			if got := tc.q.String(); got != tc.want {
				t.Errorf("String() = %q, want %q", got, tc.want)
			}
		})
	}
}
