// Package atomicio provides the single write path for every artifact,
// receipt, status and lock payload under a spec's state directory. It
// wraps github.com/google/renameio/v2 so a crash between the staged write
// and the rename never leaves a reader observing partial content, with a
// bounded retry around the rename step for platforms where a rename over
// an existing file can transiently fail due to lock interference.
package atomicio

import (
	"os"
	"time"

	"github.com/google/renameio/v2"

	"github.com/specpipe/core/internal/specerr"
)

// Options tunes the retry behaviour around the rename step.
type Options struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultOptions returns the retry policy used when callers don't need a
// custom one.
func DefaultOptions() Options {
	return Options{MaxAttempts: 5, BaseDelay: 20 * time.Millisecond}
}

// Write stages content in a sibling temp file in the same directory as
// path, fsyncs it, and renames it into place, retrying the rename with
// exponential backoff on transient failure. path must already have been
// validated by sandbox.Root.Join by the caller; this package performs no
// sandboxing of its own.
func Write(path string, content []byte, perm os.FileMode, opts Options) error {
	var lastErr error
	delay := opts.BaseDelay
	for attempt := 0; attempt < opts.MaxAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(delay)
			delay *= 2
		}
		t, err := renameio.TempFile("", path)
		if err != nil {
			lastErr = err
			continue
		}
		if err := writeAndCommit(t, content, perm); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return specerr.Wrap(specerr.KindIO, "atomic write to "+path, "check disk space and directory permissions", lastErr)
}

func writeAndCommit(t *renameio.PendingFile, content []byte, perm os.FileMode) error {
	defer t.Cleanup()
	if perm != 0 {
		if err := t.Chmod(perm); err != nil {
			return err
		}
	}
	if _, err := t.Write(content); err != nil {
		return err
	}
	return t.CloseAtomicallyReplace()
}
