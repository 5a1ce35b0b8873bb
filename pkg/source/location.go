package source

import (
	"errors"
	"fmt"
	"path/filepath"
)

// Kind discriminates the Location union.
type Kind int

const (
	KindRegistry Kind = iota
	KindGit
	KindPath
)

func (k Kind) String() string {
	switch k {
	case KindRegistry:
		return "registry"
	case KindGit:
		return "git"
	case KindPath:
		return "path"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Location identifies where a package's source comes from. Only the fields
// belonging to Kind are meaningful.
type Location struct {
	Kind Kind

	// Registry: a configured registry name, or an index URL. Both empty
	// means the default registry.
	Registry string
	Index    string

	// Git: repository URL and an optional branch, tag or commit.
	URL string
	Ref string

	// Path: a directory containing Cargo.toml.
	Path string
}

// Registry returns the location of a named registry. An empty name means the
// default registry.
func Registry(name string) Location {
	return Location{Kind: KindRegistry, Registry: name}
}

// RegistryIndex returns the location of a registry given by index URL.
func RegistryIndex(url string) Location {
	return Location{Kind: KindRegistry, Index: url}
}

// Git returns the location of a git repository at ref ("" for HEAD).
func Git(url, ref string) Location {
	return Location{Kind: KindGit, URL: url, Ref: ref}
}

// Path returns the location of a local directory.
func Path(path string) Location {
	return Location{Kind: KindPath, Path: path}
}

func (l Location) String() string {
	switch l.Kind {
	case KindGit:
		if l.Ref != "" {
			return fmt.Sprintf("git %s@%s", l.URL, l.Ref)
		}
		return "git " + l.URL
	case KindPath:
		return "path " + l.Path
	default:
		switch {
		case l.Index != "":
			return "registry " + l.Index
		case l.Registry != "":
			return "registry " + l.Registry
		default:
			return "default registry"
		}
	}
}

// LocationFlags are the user-facing source selectors. At most one of Path,
// Git, Registry and Index may be set; Ref needs Git.
type LocationFlags struct {
	Path     string
	Git      string
	Ref      string
	Registry string
	Index    string
}

// ParseLocation turns command-line source selectors into a Location.
func ParseLocation(f LocationFlags) (Location, error) {
	set := 0
	for _, v := range []string{f.Path, f.Git, f.Registry, f.Index} {
		if v != "" {
			set++
		}
	}
	if set > 1 {
		return Location{}, errors.New("only one of --path, --git, --registry and --index may be given")
	}
	if f.Ref != "" && f.Git == "" {
		return Location{}, errors.New("--branch, --tag and --rev require --git")
	}

	switch {
	case f.Path != "":
		abs, err := filepath.Abs(f.Path)
		if err != nil {
			return Location{}, fmt.Errorf("resolving absolute path for %q: %w", f.Path, err)
		}
		return Path(abs), nil
	case f.Git != "":
		return Git(f.Git, f.Ref), nil
	case f.Index != "":
		return RegistryIndex(f.Index), nil
	default:
		return Registry(f.Registry), nil
	}
}
