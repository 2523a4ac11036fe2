package sandbox

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJoin_RejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	root, err := New(dir, false)
	require.NoError(t, err)

	_, err = root.Join("../escape.txt")
	require.Error(t, err)
}

func TestJoin_RejectsAbsolute(t *testing.T) {
	dir := t.TempDir()
	root, err := New(dir, false)
	require.NoError(t, err)

	_, err = root.Join("/etc/passwd")
	require.Error(t, err)
}

func TestJoin_AllowsNestedNewPath(t *testing.T) {
	dir := t.TempDir()
	root, err := New(dir, false)
	require.NoError(t, err)

	p, err := root.Join(filepath.Join("a", "b", "c.txt"))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root.Base(), "a", "b", "c.txt"), p)
}

func TestJoin_RejectsSymlinkEscapeByDefault(t *testing.T) {
	dir := t.TempDir()
	outside := t.TempDir()

	link := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink(outside, link))

	root, err := New(dir, false)
	require.NoError(t, err)

	_, err = root.Join(filepath.Join("link", "f.txt"))
	require.Error(t, err)
}

func TestJoin_AllowsSymlinkWhenEnabledAndContained(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "real")
	require.NoError(t, os.Mkdir(target, 0o755))
	link := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink(target, link))

	root, err := New(dir, true)
	require.NoError(t, err)

	_, err = root.Join(filepath.Join("link", "f.txt"))
	require.NoError(t, err)
}

func TestJoin_StillRejectsSymlinkEscapeEvenWhenAllowed(t *testing.T) {
	dir := t.TempDir()
	outside := t.TempDir()
	link := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink(outside, link))

	root, err := New(dir, true)
	require.NoError(t, err)

	_, err = root.Join(filepath.Join("link", "f.txt"))
	require.Error(t, err)
}
