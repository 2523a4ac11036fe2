package lock

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/specpipe/core/internal/specerr"
)

func TestAcquire_SucceedsThenReleases(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".lock")

	h, err := Acquire(path, false)
	require.NoError(t, err)
	require.NoError(t, h.Release())
}

func TestAcquire_SecondAttemptFailsWithConcurrentExecution(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".lock")

	h1, err := Acquire(path, false)
	require.NoError(t, err)
	defer h1.Release()

	_, err = Acquire(path, false)
	require.Error(t, err)
	kind, ok := specerr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, specerr.KindLock, kind)
}

func TestAcquire_ReacquiresAfterRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".lock")

	h1, err := Acquire(path, false)
	require.NoError(t, err)
	require.NoError(t, h1.Release())

	h2, err := Acquire(path, false)
	require.NoError(t, err)
	require.NoError(t, h2.Release())
}
