// Package lock implements the exclusive per-spec lock described in
// spec.md §4.6. It layers a JSON payload (pid, start time) on top of an OS
// advisory lock from github.com/gofrs/flock: the OS lock enforces
// exclusivity between live processes, and the payload lets a second
// process tell a stale lock (owning pid no longer alive) apart from a
// live one, which flock alone cannot express.
package lock

import (
	"encoding/json"
	"os"
	"time"

	"github.com/gofrs/flock"

	"github.com/specpipe/core/internal/specerr"
)

// Payload is the content written into the .lock file.
type Payload struct {
	PID     int       `json:"pid"`
	Started time.Time `json:"started"`
}

// Handle represents an acquired lock; call Release when the invocation
// completes, on every exit path including panics.
type Handle struct {
	flock *flock.Flock
	path  string
}

// StaleAfter is the minimum age of a dead-owner lock before it may be
// broken with an explicit override.
const StaleAfter = 10 * time.Minute

// Acquire attempts to take the exclusive lock at path. If the lock is
// currently held by a live process, it returns a *specerr.Error with
// Kind=KindLock (mapped to exit code 9 by the CLI). If the existing lock
// payload names a pid that is no longer alive and allowStaleOverride is
// true and the payload is older than StaleAfter, the stale lock is broken
// and re-acquired.
func Acquire(path string, allowStaleOverride bool) (*Handle, error) {
	fl := flock.New(path)

	locked, err := fl.TryLock()
	if err != nil {
		return nil, specerr.Wrap(specerr.KindLock, "acquiring lock at "+path, "", err)
	}
	if !locked {
		existing, readErr := readPayload(path)
		if readErr == nil && allowStaleOverride && isStale(existing) {
			_ = fl.Unlock()
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return nil, specerr.Wrap(specerr.KindLock, "breaking stale lock at "+path, "", err)
			}
			locked, err = fl.TryLock()
			if err != nil || !locked {
				return nil, specerr.New(specerr.KindLock, "concurrent execution: lock still held after stale-break attempt", "retry once the other process has exited")
			}
		} else {
			pid := 0
			if existing != nil {
				pid = existing.PID
			}
			return nil, concurrentExecutionError(pid)
		}
	}

	payload := Payload{PID: os.Getpid(), Started: time.Now().UTC()}
	body, err := json.Marshal(payload)
	if err != nil {
		_ = fl.Unlock()
		return nil, specerr.Wrap(specerr.KindLock, "serializing lock payload", "", err)
	}
	// Deliberately not internal/atomicio here: its rename-replace commit
	// would swap in a fresh, unlocked inode at path, letting a second
	// Acquire lock that new inode while this process still thinks it
	// holds the original one. The payload is written in place, through
	// the same inode flock.TryLock already locked, so exclusivity holds.
	if err := writePayloadInPlace(path, body); err != nil {
		_ = fl.Unlock()
		return nil, err
	}

	return &Handle{flock: fl, path: path}, nil
}

// Release unlocks and removes the lock file. It is safe to call more than
// once.
func (h *Handle) Release() error {
	if h == nil || h.flock == nil {
		return nil
	}
	err := h.flock.Unlock()
	_ = os.Remove(h.path)
	return err
}

func concurrentExecutionError(pid int) error {
	return specerr.New(specerr.KindLock, "concurrent execution: lock already held", "wait for the other invocation to finish or pass the stale-lock override once it is confirmed dead")
}

// writePayloadInPlace truncates and rewrites path's existing inode. path
// must already exist (flock.TryLock creates it if needed before this is
// called); no rename is involved, so the inode flock holds stays locked.
func writePayloadInPlace(path string, body []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return specerr.Wrap(specerr.KindLock, "writing lock payload at "+path, "", err)
	}
	defer f.Close()
	if _, err := f.Write(body); err != nil {
		return specerr.Wrap(specerr.KindLock, "writing lock payload at "+path, "", err)
	}
	if err := f.Sync(); err != nil {
		return specerr.Wrap(specerr.KindLock, "syncing lock payload at "+path, "", err)
	}
	return nil
}

func readPayload(path string) (*Payload, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p Payload
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func isStale(p *Payload) bool {
	if p == nil {
		return false
	}
	if processAlive(p.PID) {
		return false
	}
	return time.Since(p.Started) > StaleAfter
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Unix, FindProcess always succeeds; signal 0 probes liveness
	// without affecting the process.
	return proc.Signal(syscallSig0()) == nil
}
