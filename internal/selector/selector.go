// Package selector walks a sandboxed repository root, filters files by
// include/exclude globs, and classifies survivors into priority classes
// per spec.md §4.5.
package selector

import (
	"io/fs"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/specpipe/core/internal/sandbox"
	"github.com/specpipe/core/internal/specerr"
)

// Priority orders files for packet inclusion/eviction.
type Priority int

const (
	// PriorityUpstream files (e.g. *.core.yaml) are never evicted.
	PriorityUpstream Priority = iota
	// PriorityHigh files (SPEC*, ADR*, REPORT*) are evicted last.
	PriorityHigh
	// PriorityMedium files (README*, schema files).
	PriorityMedium
	// PriorityLow is everything else kept; evicted first.
	PriorityLow
)

func (p Priority) String() string {
	switch p {
	case PriorityUpstream:
		return "upstream"
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	default:
		return "low"
	}
}

// File describes one selected repository file, in the order the walk
// surfaced it.
type File struct {
	// Path is relative to the sandbox root, slash-separated.
	Path     string
	Priority Priority
}

var (
	upstreamGlobs = []string{"**/*.core.yaml"}
	highGlobs     = []string{"**/SPEC*", "**/ADR*", "**/REPORT*"}
	mediumGlobs   = []string{"**/README*", "**/*.schema.json", "**/*.schema.yaml"}
)

// Options configures a walk.
type Options struct {
	Include []string
	Exclude []string
}

// Walk enumerates files under root, keeping those matching any Include
// glob and no Exclude glob, and classifies each by Priority. Symlinked
// entries are skipped during traversal by default, matching the Selector
// never resolving into untrusted targets; callers that need symlink
// traversal should configure the sandbox.Root with allow_symlinks and
// pre-resolve the tree before calling Walk.
func Walk(root *sandbox.Root, opts Options) ([]File, error) {
	var out []File

	err := filepath.WalkDir(root.Base(), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root.Base() {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		rel, relErr := filepath.Rel(root.Base(), path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if !matchesAny(rel, opts.Include) || matchesAny(rel, opts.Exclude) {
			return nil
		}

		out = append(out, File{Path: rel, Priority: classify(rel)})
		return nil
	})
	if err != nil {
		return nil, specerr.Wrap(specerr.KindIO, "walking repository for packet selection", "", err)
	}

	return out, nil
}

func matchesAny(rel string, globs []string) bool {
	for _, g := range globs {
		if ok, _ := doublestar.Match(g, rel); ok {
			return true
		}
	}
	return false
}

func classify(rel string) Priority {
	base := filepath.Base(rel)
	if matchesAny(rel, upstreamGlobs) {
		return PriorityUpstream
	}
	if matchesAny(rel, highGlobs) || matchesAny("**/"+base, highGlobs) {
		return PriorityHigh
	}
	if matchesAny(rel, mediumGlobs) || matchesAny("**/"+base, mediumGlobs) {
		return PriorityMedium
	}
	return PriorityLow
}

// GroupByPriority partitions files into the four priority buckets,
// preserving the relative (enumeration) order within each bucket. This
// resolves spec.md §9's open question: "surfacing order" is taken to be
// Selector's directory-enumeration order, not configuration order.
func GroupByPriority(files []File) map[Priority][]File {
	groups := map[Priority][]File{
		PriorityUpstream: {},
		PriorityHigh:     {},
		PriorityMedium:   {},
		PriorityLow:      {},
	}
	for _, f := range files {
		groups[f.Priority] = append(groups[f.Priority], f)
	}
	return groups
}

// SortedPriorities returns the four priority classes in packet assembly
// order: Upstream, High, Medium, Low.
func SortedPriorities() []Priority {
	return []Priority{PriorityUpstream, PriorityHigh, PriorityMedium, PriorityLow}
}
