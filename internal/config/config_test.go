package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir(), "")
	require.NoError(t, err)
	assert.Equal(t, ".treeline/index.db", cfg.DBPath)
	assert.Equal(t, 0.30, cfg.Update.FallbackThreshold)
	assert.Equal(t, 500*time.Millisecond, cfg.Update.DebounceWindow)
	assert.Equal(t, "weighted", cfg.Search.Fusion)
}

func TestLoadExplicitMissingFileErrors(t *testing.T) {
	_, err := Load(t.TempDir(), "/nonexistent/treeline.yml")
	assert.Error(t, err)
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
db_path: custom.db
include:
  - "src/**/*.py"
update:
  fallback_threshold: 0.5
search:
  fusion: rrf
  alpha: 0.8
`)
	cfg, err := Load(dir, "")
	require.NoError(t, err)
	assert.Equal(t, "custom.db", cfg.DBPath)
	assert.Equal(t, []string{"src/**/*.py"}, cfg.Include)
	assert.Equal(t, 0.5, cfg.Update.FallbackThreshold)
	assert.Equal(t, "rrf", cfg.Search.Fusion)
	assert.Equal(t, 0.8, cfg.Search.Alpha)
	// untouched sections keep their defaults
	assert.NotEmpty(t, cfg.Exclude)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "db_pat: oops.db\n")
	_, err := Load(dir, "")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"bad threshold", "update:\n  fallback_threshold: 1.5\n"},
		{"bad fusion", "search:\n  fusion: mixed\n"},
		{"bad alpha", "search:\n  alpha: 2\n"},
		{"bad glob", "include:\n  - \"[\"\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, tc.yaml)
			_, err := Load(dir, "")
			assert.Error(t, err)
		})
	}
}

func TestMatch(t *testing.T) {
	cfg := Default()
	assert.True(t, cfg.Match("cmd/main.go"))
	assert.True(t, cfg.Match("pkg/models/user.py"))
	assert.False(t, cfg.Match("README.md"))
	assert.False(t, cfg.Match("vendor/lib/x.go"), "exclude wins over include")
	assert.False(t, cfg.Match("app/__pycache__/x.py"))

	// empty include means everything not excluded
	open := &Config{Exclude: []string{"**/tmp/**"}}
	assert.True(t, open.Match("anything.txt"))
	assert.False(t, open.Match("a/tmp/b.txt"))
}
