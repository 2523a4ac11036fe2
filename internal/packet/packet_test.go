package packet

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/specpipe/core/internal/redact"
	"github.com/specpipe/core/internal/sandbox"
	"github.com/specpipe/core/internal/selector"
	"github.com/specpipe/core/internal/specerr"
)

func setupRepo(t *testing.T) *sandbox.Root {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "spec.core.yaml"), []byte("name: demo\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte(strings.Repeat("line\n", 50)), 0o644))
	root, err := sandbox.New(dir, false)
	require.NoError(t, err)
	return root
}

func mustCatalogue(t *testing.T) *redact.Catalogue {
	t.Helper()
	cat, err := redact.New(nil, nil)
	require.NoError(t, err)
	return cat
}

func TestBuild_RespectsBudget(t *testing.T) {
	root := setupRepo(t)
	files, err := selector.Walk(root, selector.Options{Include: []string{"**/*"}})
	require.NoError(t, err)

	p, err := Build(root, files, Budget{MaxBytes: 100, MaxLines: 5}, mustCatalogue(t))
	require.NoError(t, err)
	require.LessOrEqual(t, p.BytesUsed, 100)
	require.LessOrEqual(t, p.LinesUsed, 5)
}

func TestBuild_UpstreamAlwaysIncludedWhenItFits(t *testing.T) {
	root := setupRepo(t)
	files, err := selector.Walk(root, selector.Options{Include: []string{"**/*"}})
	require.NoError(t, err)

	p, err := Build(root, files, Budget{MaxBytes: 64, MaxLines: 5}, mustCatalogue(t))
	require.NoError(t, err)

	var sawUpstream bool
	for _, e := range p.Evidence {
		if e.Path == "spec.core.yaml" {
			sawUpstream = true
		}
	}
	require.True(t, sawUpstream)
}

func TestBuild_UpstreamOverflowFails(t *testing.T) {
	root := setupRepo(t)
	files, err := selector.Walk(root, selector.Options{Include: []string{"**/*"}})
	require.NoError(t, err)

	_, err = Build(root, files, Budget{MaxBytes: 4, MaxLines: 1}, mustCatalogue(t))
	require.Error(t, err)
}

func TestBuild_MultiLineUpstreamOverflowFailsRatherThanTruncates(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "spec.core.yaml"), []byte(strings.Repeat("name: demo\n", 400)), 0o644))
	root, err := sandbox.New(dir, false)
	require.NoError(t, err)

	files, err := selector.Walk(root, selector.Options{Include: []string{"**/*"}})
	require.NoError(t, err)

	_, err = Build(root, files, Budget{MaxBytes: 1024, MaxLines: 1000}, mustCatalogue(t))
	require.Error(t, err)
	kind, ok := specerr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, specerr.KindPacketOverflow, kind)
}

func TestBuild_SecretAborts(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "leak.md"), []byte("key=AKIA0123456789ABCDEF\n"), 0o644))
	root, err := sandbox.New(dir, false)
	require.NoError(t, err)

	files, err := selector.Walk(root, selector.Options{Include: []string{"**/*"}})
	require.NoError(t, err)

	_, err = Build(root, files, Budget{MaxBytes: 10000, MaxLines: 1000}, mustCatalogue(t))
	require.Error(t, err)
}

func TestBuild_FingerprintDeterministic(t *testing.T) {
	root := setupRepo(t)
	files, err := selector.Walk(root, selector.Options{Include: []string{"**/*"}})
	require.NoError(t, err)

	p1, err := Build(root, files, Budget{MaxBytes: 10000, MaxLines: 1000}, mustCatalogue(t))
	require.NoError(t, err)
	p2, err := Build(root, files, Budget{MaxBytes: 10000, MaxLines: 1000}, mustCatalogue(t))
	require.NoError(t, err)

	require.Equal(t, p1.Fingerprint, p2.Fingerprint)
}
