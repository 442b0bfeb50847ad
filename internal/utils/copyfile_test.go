package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFirstN(t *testing.T) {
	src := filepath.Join(t.TempDir(), "corpus")
	dst := filepath.Join(t.TempDir(), "controlled")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "nested"), 0755))
	for i := 4; i >= 0; i-- {
		require.NoError(t, os.WriteFile(filepath.Join(src, fmt.Sprintf("id_%02d", i)), []byte{byte(i)}, 0644))
	}

	n, err := CopyFirstN(src, dst, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	names, err := ListFiles(dst)
	require.NoError(t, err)
	assert.Equal(t, []string{"id_00", "id_01", "id_02"}, names)

	data, err := os.ReadFile(filepath.Join(dst, "id_02"))
	require.NoError(t, err)
	assert.Equal(t, []byte{2}, data)

	n, err = CopyFirstN(src, dst, 100)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	_, err = CopyFirstN(filepath.Join(t.TempDir(), "missing"), dst, 1)
	assert.Error(t, err)
}

func TestResetDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "old"), 0755))
	require.NoError(t, ResetDir(dir))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
