package fileutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAtomic_CreatesAndReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out")

	require.NoError(t, WriteAtomic(path, []byte("first"), 0600))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))

	require.NoError(t, WriteAtomic(path, []byte("second"), 0640))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0640), info.Mode().Perm())
}

func TestWriteAtomic_LeavesNoTemporaryFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteAtomic(filepath.Join(dir, "out"), []byte("x"), DefaultPerm))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "out", entries[0].Name())
}

func TestWriteAtomic_MissingDirectory(t *testing.T) {
	err := WriteAtomic(filepath.Join(t.TempDir(), "missing", "out"), []byte("x"), DefaultPerm)
	assert.Error(t, err)
}

func TestExistingPerm(t *testing.T) {
	dir := t.TempDir()
	perm, err := ExistingPerm(filepath.Join(dir, "nope"), 0600)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), perm)

	path := filepath.Join(dir, "exe")
	require.NoError(t, os.WriteFile(path, nil, 0755))
	require.NoError(t, os.Chmod(path, 0755))
	perm, err = ExistingPerm(path, 0600)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0755), perm)
}
