// Package sandbox canonicalizes paths against a fixed root directory and
// rejects traversal or unsafe symlinks, matching spec.md §4.3. Every file
// operation the core performs is addressed through a Root.
package sandbox

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/specpipe/core/internal/specerr"
)

// Root is a canonicalized absolute base directory.
type Root struct {
	base          string
	allowSymlinks bool
}

// New canonicalizes base (resolving symlinks on the base itself) and
// returns a Root. allowSymlinks controls whether Join tolerates symlinks
// encountered while resolving a relative path.
func New(base string, allowSymlinks bool) (*Root, error) {
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, specerr.Wrap(specerr.KindSandbox, "resolving sandbox root", "pass an accessible absolute directory", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if os.IsNotExist(err) {
			resolved = abs
		} else {
			return nil, specerr.Wrap(specerr.KindSandbox, "canonicalizing sandbox root", "", err)
		}
	}
	return &Root{base: filepath.Clean(resolved), allowSymlinks: allowSymlinks}, nil
}

// Base returns the canonicalized root directory.
func (r *Root) Base() string { return r.base }

// Join validates rel against the root and returns the resulting absolute
// path. It rejects any ".." segment or absolute component (Traversal),
// any symlink encountered while allow_symlinks is false (UnsafeSymlink),
// and any resolved path landing outside the root (PathEscape).
func (r *Root) Join(rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", specerr.New(specerr.KindSandbox, "path escape: absolute component in "+rel, "pass a path relative to the sandbox root")
	}
	for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
		if seg == ".." {
			return "", specerr.New(specerr.KindSandbox, "traversal: \"..\" segment in "+rel, "remove parent-directory references")
		}
	}

	candidate := filepath.Join(r.base, rel)

	if err := r.checkSymlinks(candidate); err != nil {
		return "", err
	}

	if info, err := os.Lstat(candidate); err == nil {
		resolved := candidate
		if info.Mode()&os.ModeSymlink != 0 {
			if !r.allowSymlinks {
				return "", specerr.New(specerr.KindSandbox, "unsafe symlink at "+candidate, "set allow_symlinks if this is intentional")
			}
			target, err := filepath.EvalSymlinks(candidate)
			if err != nil {
				return "", specerr.Wrap(specerr.KindSandbox, "resolving symlink target", "", err)
			}
			resolved = target
		} else {
			real, err := filepath.EvalSymlinks(candidate)
			if err == nil {
				resolved = real
			}
		}
		if err := r.assertContained(resolved); err != nil {
			return "", err
		}
		return candidate, nil
	}

	// Path does not exist yet: walk up to the longest existing ancestor
	// and verify containment there.
	ancestor := filepath.Dir(candidate)
	for {
		info, err := os.Lstat(ancestor)
		if err == nil {
			resolved := ancestor
			if info.Mode()&os.ModeSymlink != 0 && !r.allowSymlinks {
				return "", specerr.New(specerr.KindSandbox, "unsafe symlink ancestor at "+ancestor, "set allow_symlinks if this is intentional")
			}
			if real, err := filepath.EvalSymlinks(ancestor); err == nil {
				resolved = real
			}
			if err := r.assertContained(resolved); err != nil {
				return "", err
			}
			return candidate, nil
		}
		parent := filepath.Dir(ancestor)
		if parent == ancestor {
			// Reached filesystem root without finding an existing ancestor.
			return candidate, nil
		}
		ancestor = parent
	}
}

// checkSymlinks rejects any symlink among candidate's ancestors (between
// the root and candidate) when allow_symlinks is false.
func (r *Root) checkSymlinks(candidate string) error {
	if r.allowSymlinks {
		return nil
	}
	rel, err := filepath.Rel(r.base, candidate)
	if err != nil || strings.HasPrefix(rel, "..") {
		return specerr.New(specerr.KindSandbox, "path escape: "+candidate+" is outside sandbox root", "")
	}
	cur := r.base
	for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
		if seg == "" || seg == "." {
			continue
		}
		cur = filepath.Join(cur, seg)
		info, err := os.Lstat(cur)
		if err != nil {
			break
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return specerr.New(specerr.KindSandbox, "unsafe symlink at "+cur, "set allow_symlinks if this is intentional")
		}
	}
	return nil
}

// assertContained verifies resolved is the root or a descendant of it.
func (r *Root) assertContained(resolved string) error {
	resolved = filepath.Clean(resolved)
	if resolved == r.base {
		return nil
	}
	rel, err := filepath.Rel(r.base, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return specerr.New(specerr.KindSandbox, "path escape: "+resolved+" is outside sandbox root", "")
	}
	return nil
}
