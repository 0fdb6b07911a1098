package atomicwrite

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFile_ReplacesContent(t *testing.T) {
	p := filepath.Join(t.TempDir(), "nested", "clients.yaml")
	require.NoError(t, WriteFile(p, []byte("v1"), 0o600))
	require.NoError(t, WriteFile(p, []byte("v2"), 0o600))

	b, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(b))

	entries, err := os.ReadDir(filepath.Dir(p))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestWriteFile_WithBackupKeepsPrevious(t *testing.T) {
	p := filepath.Join(t.TempDir(), "clients.yaml")

	// sin versión previa no hay backup ni error
	require.NoError(t, WriteFile(p, []byte("v1"), 0o600, WithBackup()))
	_, err := os.Stat(p + ".bak")
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, WriteFile(p, []byte("v2"), 0o600, WithBackup()))
	bak, err := os.ReadFile(p + ".bak")
	require.NoError(t, err)
	assert.Equal(t, "v1", string(bak))

	cur, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(cur))
}
