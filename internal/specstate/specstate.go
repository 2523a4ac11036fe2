// Package specstate lays out and manages one spec's on-disk state
// directory, per spec.md §6: `.lock`, `artifacts/`, `receipts/`, and a
// `status.json` snapshot, all rooted at `<state_root>/specs/<spec_id>/`.
package specstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/specpipe/core/internal/atomicio"
	"github.com/specpipe/core/internal/specerr"
)

// Status is the last-known phase status snapshot, emitted as JCS-style
// canonical JSON by the `status` CLI verb.
type Status struct {
	SpecID    string    `json:"spec_id"`
	Phase     string    `json:"phase"`
	UpdatedAt time.Time `json:"updated_at"`
	ExitCode  int       `json:"exit_code"`
}

// Dir is one spec's state directory and its well-known subpaths.
type Dir struct {
	root string
}

// Open returns a Dir rooted at <stateRoot>/specs/<specID>, creating the
// directory skeleton (artifacts/, receipts/) if it doesn't exist yet.
// stateRoot is the resolved value of the XCHECKER_HOME-style override
// (or its default), already validated by the caller.
func Open(stateRoot, specID string) (*Dir, error) {
	root := filepath.Join(stateRoot, "specs", specID)
	d := &Dir{root: root}
	for _, sub := range []string{d.root, d.ArtifactsDir(), d.ReceiptsDir()} {
		if err := os.MkdirAll(sub, 0o755); err != nil {
			return nil, specerr.Wrap(specerr.KindIO, "creating spec state directory "+sub, "", err)
		}
	}
	return d, nil
}

// Root returns the spec's state directory.
func (d *Dir) Root() string { return d.root }

// LockPath returns the path to the spec's exclusive lock file.
func (d *Dir) LockPath() string { return filepath.Join(d.root, ".lock") }

// ArtifactsDir returns the committed-artifacts directory.
func (d *Dir) ArtifactsDir() string { return filepath.Join(d.root, "artifacts") }

// ReceiptsDir returns the per-phase receipts directory.
func (d *Dir) ReceiptsDir() string { return filepath.Join(d.root, "receipts") }

// StatusPath returns the path to the status snapshot.
func (d *Dir) StatusPath() string { return filepath.Join(d.root, "status.json") }

// WriteArtifact commits name (e.g. "00-requirements.md") under
// artifacts/, atomically.
func (d *Dir) WriteArtifact(name string, content []byte) error {
	return atomicio.Write(filepath.Join(d.ArtifactsDir(), name), content, 0o644, atomicio.DefaultOptions())
}

// ReadArtifact reads a previously committed artifact, if any.
func (d *Dir) ReadArtifact(name string) ([]byte, bool, error) {
	body, err := os.ReadFile(filepath.Join(d.ArtifactsDir(), name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, specerr.Wrap(specerr.KindIO, "reading artifact "+name, "", err)
	}
	return body, true, nil
}

// RemoveArtifact deletes a committed artifact; used when a Rewind
// invalidates artifacts strictly downstream of the rewind target.
func (d *Dir) RemoveArtifact(name string) error {
	err := os.Remove(filepath.Join(d.ArtifactsDir(), name))
	if err != nil && !os.IsNotExist(err) {
		return specerr.Wrap(specerr.KindIO, "removing artifact "+name, "", err)
	}
	return nil
}

var receiptNameRe = regexp.MustCompile(`^(.+)\.(\d+)\.json$`)

// NextOrdinal returns the next monotonic ordinal for phase's receipt,
// i.e. one past the highest ordinal already present under receipts/.
func (d *Dir) NextOrdinal(phase string) (int, error) {
	entries, err := os.ReadDir(d.ReceiptsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, specerr.Wrap(specerr.KindIO, "listing receipts", "", err)
	}
	max := -1
	for _, e := range entries {
		m := receiptNameRe.FindStringSubmatch(e.Name())
		if m == nil || m[1] != phase {
			continue
		}
		n, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return max + 1, nil
}

// WriteReceipt commits a canonicalized receipt body under
// receipts/<phase>.<ordinal>.json, atomically. Receipts are never
// overwritten: a rerun of a phase always gets the next ordinal.
func (d *Dir) WriteReceipt(phase string, ordinal int, body []byte) error {
	name := fmt.Sprintf("%s.%d.json", phase, ordinal)
	return atomicio.Write(filepath.Join(d.ReceiptsDir(), name), body, 0o644, atomicio.DefaultOptions())
}

// LatestReceipt returns the raw bytes of the highest-ordinal receipt for
// phase, or ok=false if none exist.
func (d *Dir) LatestReceipt(phase string) (body []byte, ordinal int, ok bool, err error) {
	ord, nextErr := d.NextOrdinal(phase)
	if nextErr != nil {
		return nil, 0, false, nextErr
	}
	if ord == 0 {
		return nil, 0, false, nil
	}
	latest := ord - 1
	body, readErr := os.ReadFile(filepath.Join(d.ReceiptsDir(), fmt.Sprintf("%s.%d.json", phase, latest)))
	if readErr != nil {
		return nil, 0, false, specerr.Wrap(specerr.KindIO, "reading latest receipt for "+phase, "", readErr)
	}
	return body, latest, true, nil
}

// RemoveReceiptsFrom deletes every receipt for the given phases, used
// when a Rewind invalidates downstream phase history. Prior receipts for
// phases not in the list are left untouched, per spec.md's "prior
// receipts are retained as history, never mutated" invariant.
func (d *Dir) RemoveReceiptsFrom(phases []string) error {
	set := make(map[string]bool, len(phases))
	for _, p := range phases {
		set[p] = true
	}
	entries, err := os.ReadDir(d.ReceiptsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return specerr.Wrap(specerr.KindIO, "listing receipts for rewind", "", err)
	}
	for _, e := range entries {
		m := receiptNameRe.FindStringSubmatch(e.Name())
		if m == nil || !set[m[1]] {
			continue
		}
		if err := os.Remove(filepath.Join(d.ReceiptsDir(), e.Name())); err != nil && !os.IsNotExist(err) {
			return specerr.Wrap(specerr.KindIO, "removing receipt "+e.Name(), "", err)
		}
	}
	return nil
}

// WriteStatus commits the status snapshot atomically.
func (d *Dir) WriteStatus(s *Status) error {
	body, err := json.Marshal(s)
	if err != nil {
		return specerr.Wrap(specerr.KindIO, "encoding status", "", err)
	}
	return atomicio.Write(d.StatusPath(), body, 0o644, atomicio.DefaultOptions())
}

// ReadStatus reads the status snapshot, if one has been written yet.
func (d *Dir) ReadStatus() (*Status, bool, error) {
	body, err := os.ReadFile(d.StatusPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, specerr.Wrap(specerr.KindIO, "reading status", "", err)
	}
	var s Status
	if err := json.Unmarshal(body, &s); err != nil {
		return nil, false, specerr.Wrap(specerr.KindIO, "parsing status", "", err)
	}
	return &s, true, nil
}

// Clean removes the entire spec state directory; used by the `clean`
// verb. Callers must hold the lock (or know no other process does)
// before calling this.
func (d *Dir) Clean() error {
	if err := os.RemoveAll(d.root); err != nil {
		return specerr.Wrap(specerr.KindIO, "removing spec state directory "+d.root, "", err)
	}
	return nil
}

// ListPhaseOrdinals returns, for diagnostic/status use, every phase name
// with receipts present and its highest ordinal, sorted by phase name.
func (d *Dir) ListPhaseOrdinals() (map[string]int, error) {
	entries, err := os.ReadDir(d.ReceiptsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]int{}, nil
		}
		return nil, specerr.Wrap(specerr.KindIO, "listing receipts", "", err)
	}
	out := map[string]int{}
	for _, e := range entries {
		m := receiptNameRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		if cur, ok := out[m[1]]; !ok || n > cur {
			out[m[1]] = n
		}
	}
	return out, nil
}

// SortedPhaseNames returns keys of a phase-ordinal map sorted
// alphabetically, a small helper for deterministic status/doctor output.
func SortedPhaseNames(m map[string]int) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
