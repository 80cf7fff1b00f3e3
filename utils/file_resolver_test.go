package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileResolver(t *testing.T) {
	first, second := t.TempDir(), t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(second, "h.yaml"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(first, "g.json"), []byte("{}"), 0644))

	r := NewFileResolver(second+": ", first)
	assert.Equal(t, first, r.DataDirs[0])
	assert.Equal(t, second, r.DataDirs[1])

	path, err := r.Resolve("h.yaml")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(second, "h.yaml"), path)

	path, err = r.Resolve("g.json")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(first, "g.json"), path)

	abs := filepath.Join(second, "h.yaml")
	path, err = r.Resolve(abs)
	require.NoError(t, err)
	assert.Equal(t, abs, path)

	_, err = r.Resolve("missing.yaml")
	assert.Error(t, err)
	_, err = r.Resolve(filepath.Join(first, "missing.yaml"))
	assert.Error(t, err)
}
