package specstate

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpen_CreatesDirectorySkeleton(t *testing.T) {
	root := t.TempDir()
	d, err := Open(root, "demo")
	require.NoError(t, err)

	require.DirExists(t, d.ArtifactsDir())
	require.DirExists(t, d.ReceiptsDir())
}

func TestArtifactRoundTrip(t *testing.T) {
	d, err := Open(t.TempDir(), "demo")
	require.NoError(t, err)

	require.NoError(t, d.WriteArtifact("00-requirements.md", []byte("hello")))
	content, ok, err := d.ReadArtifact("00-requirements.md")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "hello", string(content))

	_, ok, err = d.ReadArtifact("missing.md")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestReceiptOrdinalsMonotonicallyIncrease(t *testing.T) {
	d, err := Open(t.TempDir(), "demo")
	require.NoError(t, err)

	ord, err := d.NextOrdinal("requirements")
	require.NoError(t, err)
	require.Equal(t, 0, ord)

	require.NoError(t, d.WriteReceipt("requirements", ord, []byte(`{"ordinal":0}`)))

	ord2, err := d.NextOrdinal("requirements")
	require.NoError(t, err)
	require.Equal(t, 1, ord2)

	body, latest, ok, err := d.LatestReceipt("requirements")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 0, latest)
	require.Contains(t, string(body), "ordinal")
}

func TestRemoveReceiptsFromOnlyAffectsNamedPhases(t *testing.T) {
	d, err := Open(t.TempDir(), "demo")
	require.NoError(t, err)

	require.NoError(t, d.WriteReceipt("requirements", 0, []byte(`{}`)))
	require.NoError(t, d.WriteReceipt("design", 0, []byte(`{}`)))

	require.NoError(t, d.RemoveReceiptsFrom([]string{"design"}))

	_, _, ok, err := d.LatestReceipt("design")
	require.NoError(t, err)
	require.False(t, ok)

	_, _, ok, err = d.LatestReceipt("requirements")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestStatusRoundTrip(t *testing.T) {
	d, err := Open(t.TempDir(), "demo")
	require.NoError(t, err)

	_, ok, err := d.ReadStatus()
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, d.WriteStatus(&Status{SpecID: "demo", Phase: "final", ExitCode: 0}))
	s, ok, err := d.ReadStatus()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "final", s.Phase)
}

func TestClean_RemovesStateDirectory(t *testing.T) {
	root := t.TempDir()
	d, err := Open(root, "demo")
	require.NoError(t, err)
	require.NoError(t, d.WriteArtifact("x.md", []byte("x")))

	require.NoError(t, d.Clean())
	require.NoDirExists(t, d.Root())
}
