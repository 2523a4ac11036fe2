package fixup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/specpipe/core/internal/sandbox"
)

func setupSandbox(t *testing.T, files map[string]string) *sandbox.Root {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	root, err := sandbox.New(dir, false)
	require.NoError(t, err)
	return root
}

const simpleDiff = "```diff\n--- a/notes.md\n+++ b/notes.md\n@@ -1,3 +1,3 @@\n line one\n-line two\n+line two edited\n line three\n```\n"

func TestFixup_PreviewMakesNoChanges(t *testing.T) {
	root := setupSandbox(t, map[string]string{"notes.md": "line one\nline two\nline three\n"})
	e := NewEngine(root)

	result, err := e.Preview(simpleDiff)
	require.NoError(t, err)
	require.Len(t, result.Files, 1)
	require.Equal(t, ModePreview, result.Mode)

	content, err := os.ReadFile(filepath.Join(root.Base(), "notes.md"))
	require.NoError(t, err)
	require.Equal(t, "line one\nline two\nline three\n", string(content))

	require.NotEmpty(t, result.Files[0].Rendered)
	require.Contains(t, result.Files[0].Rendered, "@@ -")
}

func TestFixup_ApplyCommitsCleanDiff(t *testing.T) {
	root := setupSandbox(t, map[string]string{"notes.md": "line one\nline two\nline three\n"})
	e := NewEngine(root)

	result, err := e.Apply(simpleDiff)
	require.NoError(t, err)
	require.True(t, result.Applied)

	content, err := os.ReadFile(filepath.Join(root.Base(), "notes.md"))
	require.NoError(t, err)
	require.Contains(t, string(content), "line two edited")
}

func TestFixup_ApplyAbortsWholeSetOnAnyFailure(t *testing.T) {
	root := setupSandbox(t, map[string]string{
		"notes.md":   "line one\nline two\nline three\n",
		"other.md":   "alpha\nbeta\ngamma\n",
	})
	e := NewEngine(root)

	// other.md's diff does not match its actual content, so the whole
	// batch must be rejected without writing notes.md either.
	badBatch := simpleDiff + "```diff\n--- a/other.md\n+++ b/other.md\n@@ -1,3 +1,3 @@\n zzz\n-yyy\n+xxx\n zzz\n```\n"

	_, err := e.Apply(badBatch)
	require.Error(t, err)

	content, err := os.ReadFile(filepath.Join(root.Base(), "notes.md"))
	require.NoError(t, err)
	require.Equal(t, "line one\nline two\nline three\n", string(content), "no file in the batch should be written when any diff fails")
}

func TestFixup_RejectsTargetOutsideSandbox(t *testing.T) {
	root := setupSandbox(t, map[string]string{"notes.md": "hello\n"})
	e := NewEngine(root)

	escaping := "```diff\n--- a/../escape.md\n+++ b/../escape.md\n@@ -1,1 +1,1 @@\n-hello\n+bye\n```\n"
	_, err := e.Apply(escaping)
	require.Error(t, err)
}

func TestFixup_NewFileCreation(t *testing.T) {
	root := setupSandbox(t, map[string]string{})
	e := NewEngine(root)

	newFileDiff := "```diff\n--- /dev/null\n+++ b/created.md\n@@ -0,0 +1,2 @@\n+hello\n+world\n```\n"
	result, err := e.Apply(newFileDiff)
	require.NoError(t, err)
	require.True(t, result.Applied)

	content, err := os.ReadFile(filepath.Join(root.Base(), "created.md"))
	require.NoError(t, err)
	require.Equal(t, "hello\nworld\n", string(content))
}

func TestExtractDiffs_FindsFencedBlocksOnly(t *testing.T) {
	raw := "Some prose.\n\n" + simpleDiff + "\nMore prose with --- in it but no diff fence."
	blocks := ExtractDiffs(raw)
	require.Len(t, blocks, 1)
}

func TestExtractDiffs_FallsBackToWholeInputWhenUnfenced(t *testing.T) {
	raw := "--- a/x.md\n+++ b/x.md\n@@ -1,1 +1,1 @@\n-a\n+b\n"
	blocks := ExtractDiffs(raw)
	require.Len(t, blocks, 1)
}
