package source

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/crateclone/crateclone/pkg/version"
	"github.com/pelletier/go-toml/v2"
)

const manifestFileName = "Cargo.toml"

// defaultPackageVersion is what a manifest without a version field means.
const defaultPackageVersion = "0.0.0"

// errVirtualManifest marks a Cargo.toml with a [workspace] but no [package].
var errVirtualManifest = errors.New("manifest has no [package] table")

type cargoManifest struct {
	Package   *manifestPackage   `toml:"package"`
	Workspace *manifestWorkspace `toml:"workspace"`
}

type manifestPackage struct {
	Name string `toml:"name"`
	// Version is either a string or {workspace = true}.
	Version any `toml:"version"`
}

type manifestWorkspace struct {
	Package struct {
		Version string `toml:"version"`
	} `toml:"package"`
}

func decodeManifest(path string) (*cargoManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m := &cargoManifest{}
	if err := toml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return m, nil
}

// readPackage loads the package whose Cargo.toml is in dir. Versions
// inherited with `version.workspace = true` are looked up in the nearest
// ancestor manifest with a [workspace] table, not above stop.
func readPackage(dir, stop string) (*Package, error) {
	path := filepath.Join(dir, manifestFileName)
	m, err := decodeManifest(path)
	if err != nil {
		return nil, err
	}
	if m.Package == nil {
		return nil, fmt.Errorf("%s: %w", path, errVirtualManifest)
	}
	if m.Package.Name == "" {
		return nil, fmt.Errorf("%s: package name is missing", path)
	}

	raw, err := manifestVersion(m.Package.Version, m, dir, stop)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	v, err := version.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &Package{Name: m.Package.Name, Version: v, Root: dir}, nil
}

func manifestVersion(field any, m *cargoManifest, dir, stop string) (string, error) {
	switch v := field.(type) {
	case nil:
		return defaultPackageVersion, nil
	case string:
		return v, nil
	case map[string]any:
		if inherit, _ := v["workspace"].(bool); !inherit {
			return "", errors.New("version table must be {workspace = true}")
		}
		if m.Workspace != nil && m.Workspace.Package.Version != "" {
			return m.Workspace.Package.Version, nil
		}
		return workspaceVersion(dir, stop)
	default:
		return "", fmt.Errorf("unsupported version value %v", field)
	}
}

func workspaceVersion(dir, stop string) (string, error) {
	for cur := filepath.Dir(dir); within(stop, cur); cur = filepath.Dir(cur) {
		m, err := decodeManifest(filepath.Join(cur, manifestFileName))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		if err == nil && m.Workspace != nil {
			if m.Workspace.Package.Version == "" {
				return "", fmt.Errorf("workspace at %s has no package.version", cur)
			}
			return m.Workspace.Package.Version, nil
		}
		if cur == stop || cur == filepath.Dir(cur) {
			break
		}
	}
	return "", errors.New("version.workspace = true but no enclosing workspace")
}

// within reports whether path is root or below it. An empty root contains
// everything.
func within(root, path string) bool {
	if root == "" {
		return true
	}
	rel, err := filepath.Rel(root, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// discoverPackages walks root for every Cargo.toml with a [package] table,
// in lexical order. Build output and VCS metadata are skipped.
func discoverPackages(root string) ([]*Package, error) {
	var pkgs []*Package
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && (d.Name() == ".git" || d.Name() == "target") {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() != manifestFileName {
			return nil
		}
		pkg, err := readPackage(filepath.Dir(path), root)
		if errors.Is(err, errVirtualManifest) {
			return nil
		}
		if err != nil {
			return err
		}
		pkgs = append(pkgs, pkg)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pkgs, nil
}

// packageList answers queries against packages that are already on disk.
type packageList []*Package

func (l packageList) query(q Query) []Summary {
	var out []Summary
	for _, p := range l {
		if p.Name == q.Name && q.Requirement.Matches(p.Version) {
			out = append(out, summaryOf(p))
		}
	}
	return out
}

func (l packageList) find(id PackageID) (*Package, error) {
	for _, p := range l {
		if p.ID() == id {
			return p, nil
		}
	}
	return nil, fmt.Errorf("package %s is not in this source", id)
}
