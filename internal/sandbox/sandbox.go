// Package sandbox enforces the path-authorization and execution-containment
// boundary for openwork agents. Every filesystem or process action a tool
// performs must pass through a Sandbox; a tool has no ambient authority.
package sandbox

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// DeniedError is returned when a candidate path falls outside the
// sandbox's authorized roots.
type DeniedError struct {
	// Path is the candidate path as given by the caller.
	Path string
	// Reason describes why authorization failed.
	Reason string
}

// Error implements the error interface.
func (e *DeniedError) Error() string {
	return fmt.Sprintf("sandbox denied %q: %s", e.Path, e.Reason)
}

// IsDenied reports whether err is a sandbox denial.
func IsDenied(err error) bool {
	var de *DeniedError
	return errors.As(err, &de)
}

// DenyHook is invoked for every denied authorization attempt. Denials are
// security-relevant and must be auditable, never silently swallowed.
type DenyHook func(candidate, reason string)

// Sandbox holds an immutable set of authorized root directories. A path is
// authorized iff its canonical form is a descendant of (or equal to) one of
// the roots, closing symlink and ".." escape routes.
type Sandbox struct {
	roots  []string
	onDeny DenyHook
}

// New creates a sandbox from the given absolute directory paths. Each root
// is canonicalized up front so later comparisons are purely lexical.
func New(paths []string) (*Sandbox, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("sandbox requires at least one authorized path")
	}

	roots := make([]string, 0, len(paths))
	for _, p := range paths {
		if !filepath.IsAbs(p) {
			return nil, fmt.Errorf("authorized path must be absolute: %q", p)
		}
		canonical, err := canonicalize(p)
		if err != nil {
			return nil, fmt.Errorf("canonicalize root %q: %w", p, err)
		}
		roots = append(roots, canonical)
	}

	return &Sandbox{roots: roots}, nil
}

// SetDenyHook registers a hook called on every denial, in addition to the
// default audit log line.
func (s *Sandbox) SetDenyHook(fn DenyHook) {
	s.onDeny = fn
}

// Roots returns the canonical authorized roots in their original order.
func (s *Sandbox) Roots() []string {
	return append([]string(nil), s.roots...)
}

// Resolve canonicalizes the candidate path and returns it if it is inside
// the authorized set. A path outside the set yields a *DeniedError and the
// denial is audited.
func (s *Sandbox) Resolve(candidate string) (string, error) {
	abs := candidate
	if !filepath.IsAbs(abs) {
		var err error
		abs, err = filepath.Abs(abs)
		if err != nil {
			return "", s.deny(candidate, fmt.Sprintf("resolve relative path: %v", err))
		}
	}

	canonical, err := canonicalize(abs)
	if err != nil {
		return "", s.deny(candidate, fmt.Sprintf("canonicalize: %v", err))
	}

	for _, root := range s.roots {
		if isDescendant(root, canonical) {
			return canonical, nil
		}
	}

	return "", s.deny(candidate, "outside authorized roots")
}

// Authorize reports whether the candidate path resolves inside the
// authorized set.
func (s *Sandbox) Authorize(candidate string) bool {
	_, err := s.Resolve(candidate)
	return err == nil
}

// Narrow returns a new sandbox restricted to the given paths. Every path
// must already be authorized by the parent; narrowing is monotonic and a
// sub-agent can never gain authority its parent lacks.
func (s *Sandbox) Narrow(paths []string) (*Sandbox, error) {
	if len(paths) == 0 {
		// Empty narrowing inherits the parent's full scope.
		return &Sandbox{roots: s.Roots(), onDeny: s.onDeny}, nil
	}

	roots := make([]string, 0, len(paths))
	for _, p := range paths {
		canonical, err := s.Resolve(p)
		if err != nil {
			return nil, fmt.Errorf("narrow to %q: %w", p, err)
		}
		roots = append(roots, canonical)
	}

	return &Sandbox{roots: roots, onDeny: s.onDeny}, nil
}

// deny audits the failed attempt and returns the denial error.
func (s *Sandbox) deny(candidate, reason string) error {
	log.Printf("[sandbox] denied path %q: %s", candidate, reason)
	if s.onDeny != nil {
		s.onDeny(candidate, reason)
	}
	return &DeniedError{Path: candidate, Reason: reason}
}

// canonicalize resolves symlinks and relative segments. The path itself may
// not exist yet (e.g. a file about to be written), so symlinks are resolved
// on the longest existing ancestor and the remaining segments re-joined.
func canonicalize(path string) (string, error) {
	cleaned := filepath.Clean(path)

	existing := cleaned
	var rest []string
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		} else if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			break
		}
		rest = append([]string{filepath.Base(existing)}, rest...)
		existing = parent
	}

	resolved, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return "", err
	}

	return filepath.Join(append([]string{resolved}, rest...)...), nil
}

// isDescendant reports whether path equals root or lives beneath it. The
// comparison is separator-aware so /tmp/demo2 is not a child of /tmp/demo.
func isDescendant(root, path string) bool {
	if path == root {
		return true
	}
	if root == string(filepath.Separator) {
		// Appending another separator would build "//", which no
		// canonical path starts with. Every canonical absolute path is
		// beneath the filesystem root.
		return true
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}
