package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// LocalConfigFile is the project-local config filename, read from the
	// working directory.
	LocalConfigFile = ".crateclone.toml"
	// GlobalDirName is the per-user directory under $HOME holding the
	// global config and, by default, the package cache.
	GlobalDirName = ".crateclone"

	globalConfigFile = "config.toml"
	envPrefix        = "CRATECLONE"
)

// Config is resolved with Viper precedence:
// CLI flags > CRATECLONE_* environment > .crateclone.toml (or --config) >
// ~/.crateclone/config.toml.
type Config struct {
	// CacheDir is the root of the package cache. Empty means ~/.crateclone.
	CacheDir string `mapstructure:"cache-dir" toml:"cache-dir,omitempty"`
	// UserAgent is sent on every registry request.
	UserAgent string `mapstructure:"user-agent" toml:"user-agent,omitempty"`
	// DefaultRegistry is the registry name used when none is given.
	DefaultRegistry string `mapstructure:"default-registry" toml:"default-registry,omitempty"`
	// Registries maps registry names to their index.
	Registries map[string]RegistryConfig `mapstructure:"registries" toml:"registries,omitempty"`
	// Sources configures source replacement, keyed by source name.
	Sources map[string]SourceConfig `mapstructure:"source" toml:"source,omitempty"`
}

// RegistryConfig is a [registries.<name>] table.
type RegistryConfig struct {
	Index string `mapstructure:"index" toml:"index"`
}

// SourceConfig is a [source.<name>] table. A source either defines a
// registry index or redirects to another source with ReplaceWith.
type SourceConfig struct {
	Registry    string `mapstructure:"registry" toml:"registry,omitempty"`
	ReplaceWith string `mapstructure:"replace-with" toml:"replace-with,omitempty"`
}

// Overrides are values given on the command line. Empty fields do not
// override anything.
type Overrides struct {
	ConfigFile string
	CacheDir   string
	UserAgent  string
}

// Load resolves configuration from the global file, the project-local file
// (or o.ConfigFile when set), the environment and o.
func Load(o Overrides) (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("determining home directory: %w", err)
	}
	globalPath := filepath.Join(home, GlobalDirName, globalConfigFile)
	return load(o, globalPath, LocalConfigFile)
}

// load is the internal implementation that accepts explicit paths,
// making it testable without touching the real home directory.
func load(o Overrides, globalPath, localPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")

	v.SetDefault("cache-dir", "")
	v.SetDefault("user-agent", "")
	v.SetDefault("default-registry", "")

	// Lowest priority: global config
	v.SetConfigFile(globalPath)
	// Read global config; ignore if missing.
	_ = v.ReadInConfig()

	// Higher priority: an explicit --config file, which must exist, or the
	// project-local config when present.
	if o.ConfigFile != "" {
		v.SetConfigFile(o.ConfigFile)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("reading %s: %w", o.ConfigFile, err)
		}
	} else if _, err := os.Stat(localPath); err == nil {
		v.SetConfigFile(localPath)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("reading %s: %w", localPath, err)
		}
	}

	// Environment: CRATECLONE_CACHE_DIR, CRATECLONE_USER_AGENT, ...
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	// Highest priority: CLI flags
	if o.CacheDir != "" {
		v.Set("cache-dir", o.CacheDir)
	}
	if o.UserAgent != "" {
		v.Set("user-agent", o.UserAgent)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}
