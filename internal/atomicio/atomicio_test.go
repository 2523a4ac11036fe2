package atomicio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrite_CreatesFileWithContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "artifact.md")

	require.NoError(t, Write(path, []byte("hello"), 0o644, DefaultOptions()))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "hello", string(got))
}

func TestWrite_OverwritesExistingAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "receipt.json")

	require.NoError(t, Write(path, []byte("v1"), 0o644, DefaultOptions()))
	require.NoError(t, Write(path, []byte("v2"), 0o644, DefaultOptions()))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "v2", string(got))
}

func TestWrite_NoTempFilesLeftBehindOnSuccess(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "status.json")
	require.NoError(t, Write(path, []byte("{}"), 0o644, DefaultOptions()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "status.json", entries[0].Name())
}
