package source

import (
	"testing"

	"github.com/crateclone/crateclone/pkg/config"
	"github.com/crateclone/crateclone/pkg/store"
)

func TestConfigMapLoad(t *testing.T) {
	cfg := &config.Config{
		Registries: map[string]config.RegistryConfig{
			"company": {Index: "sparse+https://index.company.example/"},
		},
		Sources: map[string]config.SourceConfig{
			"crates-io": {ReplaceWith: "mirror"},
			"mirror":    {Registry: "sparse+https://mirror.example/index/"},
			"loop-a":    {ReplaceWith: "loop-b"},
			"loop-b":    {ReplaceWith: "loop-a"},
		},
	}

	tests := map[string]struct {
		cfg       *config.Config
		loc       Location
		wantName  string
		wantIndex string
		wantErr   bool
	}{
		"default registry without config": {
			loc:       Registry(""),
			wantName:  CratesIO,
			wantIndex: CratesIOIndex,
		},
		"crates-io replaced by mirror": {
			cfg:       cfg,
			loc:       Registry(""),
			wantName:  "mirror",
			wantIndex: "sparse+https://mirror.example/index/",
		},
		"crates-io index url is replaced too": {
			cfg:       cfg,
			loc:       RegistryIndex("https://index.crates.io"),
			wantName:  "mirror",
			wantIndex: "sparse+https://mirror.example/index/",
		},
		"named registry": {
			cfg:       cfg,
			loc:       Registry("company"),
			wantName:  "company",
			wantIndex: "sparse+https://index.company.example/",
		},
		"index url of named registry": {
			cfg:       cfg,
			loc:       RegistryIndex("https://index.company.example"),
			wantName:  "company",
			wantIndex: "sparse+https://index.company.example/",
		},
		"unknown index url is used as is": {
			cfg:       cfg,
			loc:       RegistryIndex("sparse+https://other.example/"),
			wantName:  "other.example",
			wantIndex: "sparse+https://other.example/",
		},
		"default registry from config": {
			cfg:       &config.Config{DefaultRegistry: "company", Registries: cfg.Registries},
			loc:       Registry(""),
			wantName:  "company",
			wantIndex: "sparse+https://index.company.example/",
		},
		"unknown registry name": {
			cfg:     cfg,
			loc:     Registry("nope"),
			wantErr: true,
		},
		"replacement cycle": {
			cfg:     cfg,
			loc:     Registry("loop-a"),
			wantErr: true,
		},
		"not a registry": {
			loc:     Path("/tmp"),
			wantErr: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			m := NewConfigMap(tc.cfg, store.New(t.TempDir()), nil)
			src, err := m.Load(tc.loc)
			if (err != nil) != tc.wantErr {
				t.Fatalf("Load() error = %v, wantErr = %v", err, tc.wantErr)
			}
			if err != nil {
				return
			}
			if src.Name != tc.wantName {
				t.Errorf("Name = %q, want %q", src.Name, tc.wantName)
			}
			if src.IndexURL != tc.wantIndex {
				t.Errorf("IndexURL = %q, want %q", src.IndexURL, tc.wantIndex)
			}
		})
	}
}
