package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Marshal encodes c in the TOML layout Load reads.
func (c *Config) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}

// Mirror returns a config that replaces crates-io with the sparse index at
// index, under the source name name.
func Mirror(name, index string) *Config {
	return &Config{
		Sources: map[string]SourceConfig{
			"crates-io": {ReplaceWith: name},
			name:        {Registry: index},
		},
	}
}

// Init writes cfg to dir/.crateclone.toml and returns the path. It fails if
// the file already exists.
func Init(dir string, cfg *Config) (string, error) {
	path := filepath.Join(dir, LocalConfigFile)

	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("%s already exists", LocalConfigFile)
	}

	data, err := cfg.Marshal()
	if err != nil {
		return "", fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}

	return path, nil
}
