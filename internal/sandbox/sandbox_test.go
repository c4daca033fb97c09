package sandbox

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewRequiresAbsolutePaths(t *testing.T) {
	if _, err := New([]string{"relative/path"}); err == nil {
		t.Fatal("expected error for relative authorized path")
	}
	if _, err := New(nil); err == nil {
		t.Fatal("expected error for empty authorized path set")
	}
}

func TestResolveInsideRoot(t *testing.T) {
	root := t.TempDir()
	sb, err := New([]string{root})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	target := filepath.Join(root, "sub", "file.txt")
	resolved, err := sb.Resolve(target)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !sb.Authorize(resolved) {
		t.Errorf("resolved path %q not authorized", resolved)
	}
}

func TestResolveRejectsOutsidePaths(t *testing.T) {
	root := t.TempDir()
	sb, err := New([]string{root})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	cases := []string{
		"/etc/passwd",
		filepath.Join(root, "..", "escape"),
		filepath.Dir(root),
	}
	for _, candidate := range cases {
		if _, err := sb.Resolve(candidate); err == nil {
			t.Errorf("Resolve(%q) succeeded, want denial", candidate)
		} else if !IsDenied(err) {
			t.Errorf("Resolve(%q) returned %v, want DeniedError", candidate, err)
		}
	}
}

func TestResolveUnderFilesystemRoot(t *testing.T) {
	sb, err := New([]string{"/"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	target := filepath.Join(t.TempDir(), "file.txt")
	resolved, err := sb.Resolve(target)
	if err != nil {
		t.Fatalf("Resolve(%q) with root /: %v", target, err)
	}
	if !filepath.IsAbs(resolved) {
		t.Errorf("resolved path %q is not absolute", resolved)
	}
	if !sb.Authorize("/") {
		t.Error("root / not authorized by itself")
	}
}

func TestResolveRejectsSiblingPrefix(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "demo")
	sibling := filepath.Join(parent, "demo2")
	for _, dir := range []string{root, sibling} {
		if err := os.Mkdir(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}

	sb, err := New([]string{root})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := sb.Resolve(sibling); err == nil {
		t.Errorf("sibling %q authorized via string prefix", sibling)
	}
	if _, err := sb.Resolve(filepath.Join(sibling, "file")); err == nil {
		t.Error("file under sibling directory authorized via string prefix")
	}
}

func TestResolveRejectsSymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()

	link := filepath.Join(root, "link")
	if err := os.Symlink(outside, link); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	sb, err := New([]string{root})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := sb.Resolve(link); err == nil {
		t.Error("symlink to outside directory was authorized")
	}
	if _, err := sb.Resolve(filepath.Join(link, "file.txt")); err == nil {
		t.Error("path through escaping symlink was authorized")
	}
}

func TestResolveFollowsSymlinkWithinRoot(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "real")
	if err := os.Mkdir(target, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	link := filepath.Join(root, "alias")
	if err := os.Symlink(target, link); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	sb, err := New([]string{root})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	resolved, err := sb.Resolve(filepath.Join(link, "file.txt"))
	if err != nil {
		t.Fatalf("Resolve through in-root symlink: %v", err)
	}
	if resolved == filepath.Join(link, "file.txt") {
		t.Errorf("symlink not canonicalized: %q", resolved)
	}
}

func TestDenyHookFires(t *testing.T) {
	root := t.TempDir()
	sb, err := New([]string{root})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var gotPath, gotReason string
	sb.SetDenyHook(func(candidate, reason string) {
		gotPath = candidate
		gotReason = reason
	})

	if _, err := sb.Resolve("/etc/shadow"); err == nil {
		t.Fatal("expected denial")
	}
	if gotPath != "/etc/shadow" {
		t.Errorf("deny hook path = %q, want /etc/shadow", gotPath)
	}
	if gotReason == "" {
		t.Error("deny hook reason is empty")
	}
}

func TestNarrowSubset(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "sub")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	parent, err := New([]string{root})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	child, err := parent.Narrow([]string{sub})
	if err != nil {
		t.Fatalf("Narrow: %v", err)
	}

	if !child.Authorize(filepath.Join(sub, "file")) {
		t.Error("narrowed sandbox rejects path inside its root")
	}
	if child.Authorize(filepath.Join(root, "other")) {
		t.Error("narrowed sandbox still authorizes parent-only path")
	}
}

func TestNarrowRejectsOutsideParent(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()

	parent, err := New([]string{root})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := parent.Narrow([]string{outside}); err == nil {
		t.Error("Narrow accepted a path outside the parent's scope")
	}
}

func TestNarrowEmptyInheritsScope(t *testing.T) {
	root := t.TempDir()
	parent, err := New([]string{root})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	child, err := parent.Narrow(nil)
	if err != nil {
		t.Fatalf("Narrow(nil): %v", err)
	}
	if !child.Authorize(filepath.Join(root, "anything")) {
		t.Error("empty narrowing lost the parent's scope")
	}
}
