package selector

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/specpipe/core/internal/sandbox"
)

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	p := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func TestWalk_FiltersByIncludeExclude(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "README.md", "readme")
	writeFile(t, dir, "notes.txt", "notes")
	writeFile(t, dir, "vendor/pkg.md", "vendored")

	root, err := sandbox.New(dir, false)
	require.NoError(t, err)

	files, err := Walk(root, Options{Include: []string{"**/*.md"}, Exclude: []string{"vendor/**"}})
	require.NoError(t, err)

	var paths []string
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	require.Contains(t, paths, "README.md")
	require.NotContains(t, paths, "notes.txt")
	require.NotContains(t, paths, "vendor/pkg.md")
}

func TestWalk_ClassifiesPriority(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "spec.core.yaml", "upstream")
	writeFile(t, dir, "SPEC.md", "high")
	writeFile(t, dir, "README.md", "medium")
	writeFile(t, dir, "other.md", "low")

	root, err := sandbox.New(dir, false)
	require.NoError(t, err)

	files, err := Walk(root, Options{Include: []string{"**/*"}})
	require.NoError(t, err)

	byPath := map[string]Priority{}
	for _, f := range files {
		byPath[f.Path] = f.Priority
	}
	require.Equal(t, PriorityUpstream, byPath["spec.core.yaml"])
	require.Equal(t, PriorityHigh, byPath["SPEC.md"])
	require.Equal(t, PriorityMedium, byPath["README.md"])
	require.Equal(t, PriorityLow, byPath["other.md"])
}

func TestWalk_SkipsSymlinkedDirectories(t *testing.T) {
	dir := t.TempDir()
	outside := t.TempDir()
	writeFile(t, outside, "secret.md", "secret")
	require.NoError(t, os.Symlink(outside, filepath.Join(dir, "link")))

	root, err := sandbox.New(dir, false)
	require.NoError(t, err)

	files, err := Walk(root, Options{Include: []string{"**/*.md"}})
	require.NoError(t, err)
	require.Empty(t, files)
}
