// Package config loads the project-level treeline.yml and applies defaults.
// Include and exclude patterns are doublestar globs matched against
// slash-separated paths relative to the project root.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// FileName is looked up in the project root when no explicit path is given.
const FileName = "treeline.yml"

type Config struct {
	// DBPath is where the index database lives, relative to the root unless
	// absolute.
	DBPath string `yaml:"db_path"`

	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`

	// MaxFileSize caps indexable file size in bytes.
	MaxFileSize int64 `yaml:"max_file_size"`

	Update UpdateConfig `yaml:"update"`
	Search SearchConfig `yaml:"search"`
}

type UpdateConfig struct {
	// FallbackThreshold is the changed-file ratio that trips a full reindex.
	FallbackThreshold float64 `yaml:"fallback_threshold"`
	// DebounceWindow is how long watcher events settle before a cycle runs.
	DebounceWindow time.Duration `yaml:"debounce_window"`
}

type SearchConfig struct {
	Fusion      string        `yaml:"fusion"` // rrf | weighted
	Alpha       float64       `yaml:"alpha"`
	PathTimeout time.Duration `yaml:"path_timeout"`

	Embeddings EmbeddingConfig `yaml:"embeddings"`
}

type EmbeddingConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
}

// Default is the configuration used when no file exists.
func Default() *Config {
	return &Config{
		DBPath:      ".treeline/index.db",
		Include:     []string{"**/*.go", "**/*.py", "**/*.pyi"},
		MaxFileSize: 2 * 1024 * 1024,
		Exclude: []string{
			"**/.git/**",
			"**/node_modules/**",
			"**/vendor/**",
			"**/__pycache__/**",
			"**/.venv/**",
			"**/dist/**",
			"**/build/**",
		},
		Update: UpdateConfig{
			FallbackThreshold: 0.30,
			DebounceWindow:    500 * time.Millisecond,
		},
		Search: SearchConfig{
			Fusion:      "weighted",
			Alpha:       0.5,
			PathTimeout: 2 * time.Second,
		},
	}
}

// Load reads the config at path, or the root's treeline.yml when path is
// empty. A missing file is not an error; defaults apply. Unknown keys are
// rejected so typos surface instead of silently doing nothing.
func Load(root, path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if path == "" {
		path = filepath.Join(root, FileName)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	for _, pattern := range append(append([]string{}, c.Include...), c.Exclude...) {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid glob pattern %q", pattern)
		}
	}
	if c.Update.FallbackThreshold <= 0 || c.Update.FallbackThreshold > 1 {
		return fmt.Errorf("fallback_threshold must be in (0, 1], got %v", c.Update.FallbackThreshold)
	}
	switch c.Search.Fusion {
	case "", "rrf", "weighted":
	default:
		return fmt.Errorf("unknown fusion strategy %q", c.Search.Fusion)
	}
	if c.Search.Alpha < 0 || c.Search.Alpha > 1 {
		return fmt.Errorf("alpha must be in [0, 1], got %v", c.Search.Alpha)
	}
	return nil
}

// Match reports whether a root-relative slash path should be indexed.
func (c *Config) Match(relPath string) bool {
	for _, pattern := range c.Exclude {
		if ok, _ := doublestar.Match(pattern, relPath); ok {
			return false
		}
	}
	if len(c.Include) == 0 {
		return true
	}
	for _, pattern := range c.Include {
		if ok, _ := doublestar.Match(pattern, relPath); ok {
			return true
		}
	}
	return false
}
