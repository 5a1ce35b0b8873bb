package source

import (
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/crateclone/crateclone/pkg/httputil"
	"github.com/crateclone/crateclone/pkg/store"
	"github.com/crateclone/crateclone/pkg/version"
	"github.com/klauspost/compress/gzip"
)

const (
	// CratesIO is the name of the default registry.
	CratesIO = "crates-io"
	// CratesIOIndex is the sparse index of crates.io.
	CratesIOIndex = "sparse+https://index.crates.io/"

	sparsePrefix = "sparse+"
	maxIndexLine = 16 << 20
)

var (
	validCrateName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

	// readyMarkerContent is what cargo writes into .cargo-ok.
	readyMarkerContent = []byte(`{"v":1}`)

	dlMarkers = []string{"{crate}", "{version}", "{prefix}", "{lowerprefix}", "{sha256-checksum}"}
)

// RegistrySource serves crates from a sparse registry index. Crates are
// unpacked under registry/src/<index host>/<name>-<version> in Store.
type RegistrySource struct {
	Name     string
	IndexURL string
	Store    store.Store
	Client   *httputil.Client

	config    indexConfig
	checksums map[PackageID]string
}

var _ Source = &RegistrySource{}

// indexConfig is the config.json at the root of a sparse index.
type indexConfig struct {
	DL  string `json:"dl"`
	API string `json:"api"`
}

// indexEntry is one line of a crate's index file.
type indexEntry struct {
	Name   string `json:"name"`
	Vers   string `json:"vers"`
	Cksum  string `json:"cksum"`
	Yanked bool   `json:"yanked"`
}

func (r *RegistrySource) ID() string {
	return fmt.Sprintf("registry `%s`", r.Name)
}

// Update loads config.json, which names the download and API endpoints.
func (r *RegistrySource) Update(ctx context.Context) error {
	var cfg indexConfig
	if err := r.Client.GetJSON(ctx, r.baseURL()+"config.json", &cfg); err != nil {
		return fmt.Errorf("loading index config for %s: %w", r.ID(), err)
	}
	if cfg.DL == "" {
		return fmt.Errorf("index config for %s has no dl endpoint", r.ID())
	}
	r.config = cfg
	return nil
}

// APIURL returns the registry's web API root from config.json. It is empty
// until Update has run.
func (r *RegistrySource) APIURL() string { return r.config.API }

// Query reads the crate's index file. Yanked versions never match. A crate
// the index does not know yields no summaries.
func (r *RegistrySource) Query(ctx context.Context, q Query) ([]Summary, error) {
	if !validCrateName.MatchString(q.Name) {
		return nil, fmt.Errorf("invalid crate name %q", q.Name)
	}

	data, err := r.Client.GetBytes(ctx, r.baseURL()+indexPath(q.Name))
	if errors.Is(err, httputil.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying %s for %s: %w", r.ID(), q.Name, err)
	}

	if r.checksums == nil {
		r.checksums = make(map[PackageID]string)
	}

	var out []Summary
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), maxIndexLine)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var e indexEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("parsing index entry for %s: %w", q.Name, err)
		}
		if e.Yanked || !strings.EqualFold(e.Name, q.Name) {
			continue
		}
		v, err := version.Parse(e.Vers)
		if err != nil {
			continue
		}
		if !q.Requirement.Matches(v) {
			continue
		}
		id := PackageID{Name: e.Name, Version: v}
		r.checksums[id] = e.Cksum
		out = append(out, Summary{ID: id, Checksum: e.Cksum})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading index for %s: %w", q.Name, err)
	}
	return out, nil
}

func (r *RegistrySource) EnumerateAll(ctx context.Context) ([]*Package, error) {
	return nil, fmt.Errorf("%w: must specify a crate to clone from %s, or use --path or --git to specify an alternate source",
		ErrEnumerationUnsupported, r.ID())
}

// Download unpacks the crate into the store unless a completed unpack is
// already there. The .crate file is kept next to it and reused on the next
// download after its checksum is verified.
func (r *RegistrySource) Download(ctx context.Context, id PackageID) (*Package, error) {
	host := r.host()
	dirName := id.Name + "-" + id.Version.String()
	srcSegs := []string{"registry", "src", host, dirName}
	pkg := &Package{Name: id.Name, Version: id.Version, Root: r.Store.Path(srcSegs...)}

	ready, err := r.Store.Exists(append(srcSegs, store.ReadyMarker)...)
	if err != nil {
		return nil, fmt.Errorf("checking cache: %w", err)
	}
	if ready {
		return pkg, nil
	}

	checksum, ok := r.checksums[id]
	if !ok {
		return nil, fmt.Errorf("package %s was not returned by a query of %s", id, r.ID())
	}

	crateSegs := []string{"registry", "cache", host, dirName + ".crate"}
	data, err := r.Store.ReadFile(crateSegs...)
	if err != nil || verifyChecksum(data, checksum) != nil {
		data, err = r.Client.GetBytes(ctx, r.downloadURL(id, checksum))
		if err != nil {
			return nil, fmt.Errorf("downloading %s: %w", id, err)
		}
		if err := verifyChecksum(data, checksum); err != nil {
			return nil, fmt.Errorf("downloading %s: %w", id, err)
		}
		if err := r.Store.WriteFile(data, crateSegs...); err != nil {
			return nil, fmt.Errorf("caching %s: %w", id, err)
		}
	}

	r.Store.Remove(srcSegs...)
	if err := r.Store.EnsureDir(srcSegs[:len(srcSegs)-1]...); err != nil {
		return nil, fmt.Errorf("creating %s: %w", r.Store.Path(srcSegs[:len(srcSegs)-1]...), err)
	}
	if err := unpackCrate(data, r.Store.Path(srcSegs[:len(srcSegs)-1]...), dirName); err != nil {
		r.Store.Remove(srcSegs...)
		return nil, fmt.Errorf("unpacking %s: %w", id, err)
	}
	if err := r.Store.WriteFile(readyMarkerContent, append(srcSegs, store.ReadyMarker)...); err != nil {
		return nil, fmt.Errorf("marking %s complete: %w", id, err)
	}

	return pkg, nil
}

// baseURL is the index URL without the sparse+ prefix, ending in '/'.
func (r *RegistrySource) baseURL() string {
	u := strings.TrimPrefix(r.IndexURL, sparsePrefix)
	if !strings.HasSuffix(u, "/") {
		u += "/"
	}
	return u
}

func (r *RegistrySource) host() string {
	u, err := url.Parse(r.baseURL())
	if err != nil || u.Host == "" {
		return r.Name
	}
	return u.Host
}

// downloadURL expands the dl template from config.json. Without any marker
// the template is a prefix for /{crate}/{version}/download.
func (r *RegistrySource) downloadURL(id PackageID, checksum string) string {
	dl := r.config.DL
	hasMarker := false
	for _, m := range dlMarkers {
		if strings.Contains(dl, m) {
			hasMarker = true
			break
		}
	}
	if !hasMarker {
		dl = strings.TrimSuffix(dl, "/") + "/{crate}/{version}/download"
	}

	prefix := indexDir(id.Name)
	return strings.NewReplacer(
		"{crate}", id.Name,
		"{version}", id.Version.String(),
		"{prefix}", prefix,
		"{lowerprefix}", strings.ToLower(prefix),
		"{sha256-checksum}", checksum,
	).Replace(dl)
}

// indexDir is the directory of a crate's index file:
// "1", "2", "3/s" or "se/rd" for names of length 1, 2, 3 and more.
func indexDir(name string) string {
	switch len(name) {
	case 1:
		return "1"
	case 2:
		return "2"
	case 3:
		return "3/" + name[:1]
	default:
		return name[:2] + "/" + name[2:4]
	}
}

// indexPath is the path of a crate's index file relative to the index root.
func indexPath(name string) string {
	lower := strings.ToLower(name)
	return indexDir(lower) + "/" + lower
}

func verifyChecksum(data []byte, want string) error {
	sum := sha256.Sum256(data)
	if got := hex.EncodeToString(sum[:]); !strings.EqualFold(got, want) {
		return fmt.Errorf("checksum mismatch: got %s, want %s", got, want)
	}
	return nil
}

// unpackCrate extracts a .crate (gzipped tar) into parent. Every entry must
// live under dirName/. Entries other than regular files and directories are
// skipped.
func unpackCrate(data []byte, parent, dirName string) error {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		name := path.Clean(hdr.Name)
		if name != dirName && !strings.HasPrefix(name, dirName+"/") {
			return fmt.Errorf("archive entry %q is outside %s", hdr.Name, dirName)
		}
		target := filepath.Join(parent, filepath.FromSlash(name))

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := writeEntry(tr, target, os.FileMode(hdr.Mode).Perm()|0o600); err != nil {
				return err
			}
		}
	}
}

func writeEntry(r io.Reader, target string, perm os.FileMode) error {
	f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
