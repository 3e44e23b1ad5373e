package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/symslash/internal/codec"
	"github.com/roach88/symslash/internal/ident"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, DefaultFile)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DefaultStore, cfg.Store)
	assert.Equal(t, codec.FormatAuto, cfg.Format)
	assert.Equal(t, ident.DefaultPrefix, cfg.Prefix)
	assert.False(t, cfg.KeepStatic)
	assert.Empty(t, cfg.Path)
}

func TestLoad_AllKeys(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
store: build/names.json
format: json
prefix: zz_
keep_static: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "build/names.json", cfg.Store)
	assert.Equal(t, codec.FormatStructured, cfg.Format)
	assert.Equal(t, ident.Prefix("zz_"), cfg.Prefix)
	assert.True(t, cfg.KeepStatic)
	assert.Equal(t, path, cfg.Path)
}

func TestLoad_PartialKeepsDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "format: legacy\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultStore, cfg.Store)
	assert.Equal(t, codec.FormatLegacy, cfg.Format)
	assert.Equal(t, ident.DefaultPrefix, cfg.Prefix)
}

func TestLoad_EmptyFile(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultStore, cfg.Store)
	assert.Equal(t, path, cfg.Path)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"unknown key", "stroe: x\n", "field stroe not found"},
		{"bad format", "format: xml\n", "unsupported store format"},
		{"bad prefix", "prefix: \"a b\"\n", "invalid prefix"},
		{"empty store", "store: \"\"\n", "store must not be empty"},
		{"not a mapping", "- a\n- b\n", "failed to parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), tt.content)
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestLoadDefault(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		cfg, err := LoadDefault(t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("present file", func(t *testing.T) {
		dir := t.TempDir()
		writeConfig(t, dir, "keep_static: true\n")
		cfg, err := LoadDefault(dir)
		require.NoError(t, err)
		assert.True(t, cfg.KeepStatic)
		assert.Equal(t, filepath.Join(dir, DefaultFile), cfg.Path)
	})

	t.Run("invalid file", func(t *testing.T) {
		dir := t.TempDir()
		writeConfig(t, dir, "bogus: 1\n")
		_, err := LoadDefault(dir)
		require.Error(t, err)
	})
}
