package source

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/crateclone/crateclone/pkg/config"
	"github.com/crateclone/crateclone/pkg/httputil"
	"github.com/crateclone/crateclone/pkg/store"
)

// ConfigMap builds registry sources from configuration, following
// [source.<name>] replace-with chains and [registries.<name>] indexes.
type ConfigMap struct {
	cfg    *config.Config
	store  store.Store
	client *httputil.Client
}

func NewConfigMap(cfg *config.Config, s store.Store, c *httputil.Client) *ConfigMap {
	if cfg == nil {
		cfg = &config.Config{}
	}
	return &ConfigMap{cfg: cfg, store: s, client: c}
}

// Load returns the source a registry Location resolves to after
// replacement.
func (m *ConfigMap) Load(loc Location) (*RegistrySource, error) {
	if loc.Kind != KindRegistry {
		return nil, fmt.Errorf("%s is not a registry", loc)
	}

	name := m.nameOf(loc)
	if name == "" {
		// An index URL no configured source mentions is used as is.
		return m.newSource(hostOf(loc.Index), loc.Index), nil
	}

	seen := map[string]bool{}
	for {
		if seen[name] {
			return nil, fmt.Errorf("source replacement cycle involving `%s`", name)
		}
		seen[name] = true

		sc, ok := m.cfg.Sources[name]
		if !ok || sc.ReplaceWith == "" {
			break
		}
		name = sc.ReplaceWith
	}

	index, err := m.indexOf(name)
	if err != nil {
		return nil, err
	}
	return m.newSource(name, index), nil
}

// nameOf returns the configured name for loc, or "" for an unknown index URL.
func (m *ConfigMap) nameOf(loc Location) string {
	switch {
	case loc.Index != "":
		want := normalizeIndex(loc.Index)
		if want == normalizeIndex(CratesIOIndex) {
			return CratesIO
		}
		for name, sc := range m.cfg.Sources {
			if sc.Registry != "" && normalizeIndex(sc.Registry) == want {
				return name
			}
		}
		for name, rc := range m.cfg.Registries {
			if normalizeIndex(rc.Index) == want {
				return name
			}
		}
		return ""
	case loc.Registry != "":
		return loc.Registry
	case m.cfg.DefaultRegistry != "":
		return m.cfg.DefaultRegistry
	default:
		return CratesIO
	}
}

func (m *ConfigMap) indexOf(name string) (string, error) {
	if sc, ok := m.cfg.Sources[name]; ok && sc.Registry != "" {
		return sc.Registry, nil
	}
	if rc, ok := m.cfg.Registries[name]; ok && rc.Index != "" {
		return rc.Index, nil
	}
	if name == CratesIO {
		return CratesIOIndex, nil
	}
	return "", fmt.Errorf("no index configured for registry `%s`", name)
}

func (m *ConfigMap) newSource(name, index string) *RegistrySource {
	return &RegistrySource{
		Name:     name,
		IndexURL: index,
		Store:    m.store,
		Client:   m.client,
	}
}

// normalizeIndex makes index URLs comparable regardless of the sparse+
// prefix and a trailing slash.
func normalizeIndex(u string) string {
	return strings.TrimSuffix(strings.TrimPrefix(u, sparsePrefix), "/")
}

func hostOf(index string) string {
	u, err := url.Parse(normalizeIndex(index))
	if err != nil || u.Host == "" {
		return index
	}
	return u.Host
}
