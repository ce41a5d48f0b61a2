package tool

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newSandbox(t *testing.T, cfg SandboxConfig) (*Sandbox, string) {
	t.Helper()
	root := t.TempDir()
	cfg.AllowedRoots = append(cfg.AllowedRoots, root)
	sb, err := NewSandbox(cfg)
	if err != nil {
		t.Fatal(err)
	}
	real, err := filepath.EvalSymlinks(root)
	if err != nil {
		t.Fatal(err)
	}
	return sb, real
}

func sandboxCode(t *testing.T, err error) string {
	t.Helper()
	var sbErr *SandboxError
	if !errors.As(err, &sbErr) {
		t.Fatalf("err = %v, want *SandboxError", err)
	}
	return sbErr.Code
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestNewSandbox(t *testing.T) {
	if _, err := NewSandbox(SandboxConfig{}); err == nil {
		t.Error("no roots accepted")
	}
	if _, err := NewSandbox(SandboxConfig{AllowedRoots: []string{filepath.Join(t.TempDir(), "missing")}}); err == nil {
		t.Error("missing root accepted")
	}
}

func TestSandboxResolve(t *testing.T) {
	sb, root := newSandbox(t, SandboxConfig{})
	outside := t.TempDir()
	writeFile(t, filepath.Join(root, "in.txt"), "x")
	writeFile(t, filepath.Join(outside, "secret.txt"), "s")

	if got, err := sb.Resolve("in.txt"); err != nil || got != filepath.Join(root, "in.txt") {
		t.Errorf("relative = %q, %v", got, err)
	}
	if got, err := sb.Resolve(filepath.Join(root, "new.txt")); err != nil || got != filepath.Join(root, "new.txt") {
		t.Errorf("new file = %q, %v", got, err)
	}

	cases := []struct {
		path string
		want string
	}{
		{"", CodeInvalidPath},
		{"../escape.txt", CodePathOutsideAllowedRoot},
		{filepath.Join(outside, "secret.txt"), CodePathOutsideAllowedRoot},
		{"missing/dir/file.txt", CodeNotFound},
	}
	for _, c := range cases {
		_, err := sb.Resolve(c.path)
		if got := sandboxCode(t, err); got != c.want {
			t.Errorf("Resolve(%q) code = %s, want %s", c.path, got, c.want)
		}
	}

	if err := os.Symlink(filepath.Join(outside, "secret.txt"), filepath.Join(root, "link.txt")); err == nil {
		_, err := sb.Resolve("link.txt")
		if got := sandboxCode(t, err); got != CodePathOutsideAllowedRoot {
			t.Errorf("symlink escape code = %s", got)
		}
	}
}

func TestSandboxReadText(t *testing.T) {
	sb, root := newSandbox(t, SandboxConfig{MaxReadBytes: 8})
	writeFile(t, filepath.Join(root, "small.txt"), "hi")
	writeFile(t, filepath.Join(root, "big.txt"), strings.Repeat("x", 9))

	out, err := sb.ReadText("small.txt")
	if err != nil {
		t.Fatalf("ReadText: %v", err)
	}
	if out["content"] != "hi" || out["size"] != int64(2) || out["code"] != CodeOK {
		t.Errorf("out = %v", out)
	}

	_, err = sb.ReadText("big.txt")
	if sandboxCode(t, err) != CodeReadTooLarge {
		t.Errorf("big file: %v", err)
	}
	_, err = sb.ReadText("absent.txt")
	if sandboxCode(t, err) != CodeNotFound {
		t.Errorf("absent: %v", err)
	}
	_, err = sb.ReadText(".")
	if sandboxCode(t, err) != CodeNotAFile {
		t.Errorf("dir: %v", err)
	}
}

func TestSandboxListDir(t *testing.T) {
	sb, root := newSandbox(t, SandboxConfig{MaxListEntries: 2})
	writeFile(t, filepath.Join(root, "b.txt"), "")
	writeFile(t, filepath.Join(root, "a.txt"), "")

	out, err := sb.ListDir(".")
	if err != nil {
		t.Fatalf("ListDir: %v", err)
	}
	entries := out["entries"].([]string)
	if strings.Join(entries, ",") != "a.txt,b.txt" {
		t.Errorf("entries = %v", entries)
	}

	writeFile(t, filepath.Join(root, "c.txt"), "")
	_, err = sb.ListDir(".")
	if sandboxCode(t, err) != CodeListLimitExceeded {
		t.Errorf("limit: %v", err)
	}
	_, err = sb.ListDir("a.txt")
	if sandboxCode(t, err) != CodeNotADirectory {
		t.Errorf("file: %v", err)
	}
}

func TestSandboxFileInfo(t *testing.T) {
	sb, root := newSandbox(t, SandboxConfig{})
	writeFile(t, filepath.Join(root, "f.txt"), "abc")

	out, err := sb.FileInfo("f.txt")
	if err != nil || out["type"] != "file" || out["size"] != int64(3) {
		t.Errorf("file = %v, %v", out, err)
	}
	out, err = sb.FileInfo(".")
	if err != nil || out["type"] != "directory" {
		t.Errorf("dir = %v, %v", out, err)
	}
}

func TestSandboxWriteAndDelete(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		sb, _ := newSandbox(t, SandboxConfig{})
		_, err := sb.WriteText("x.txt", "x")
		if sandboxCode(t, err) != CodeWriteNotAllowed {
			t.Errorf("write: %v", err)
		}
		_, err = sb.Delete("x.txt")
		if sandboxCode(t, err) != CodeDeleteNotAllowed {
			t.Errorf("delete: %v", err)
		}
	})

	t.Run("enabled", func(t *testing.T) {
		sb, root := newSandbox(t, SandboxConfig{AllowWrite: true, AllowDelete: true, MaxWriteBytes: 4})
		out, err := sb.WriteText("x.txt", "data")
		if err != nil || out["size"] != int64(4) {
			t.Fatalf("write = %v, %v", out, err)
		}
		if b, _ := os.ReadFile(filepath.Join(root, "x.txt")); string(b) != "data" {
			t.Errorf("content = %q", b)
		}

		_, err = sb.WriteText("y.txt", "toolong")
		if sandboxCode(t, err) != CodeWriteTooLarge {
			t.Errorf("too large: %v", err)
		}

		if _, err := sb.Delete("x.txt"); err != nil {
			t.Fatalf("delete: %v", err)
		}
		_, err = sb.Delete("x.txt")
		if sandboxCode(t, err) != CodeNotFound {
			t.Errorf("delete twice: %v", err)
		}
		_, err = sb.Delete(".")
		if sandboxCode(t, err) != CodeNotAFile {
			t.Errorf("delete dir: %v", err)
		}
	})
}

func TestSandboxGlob(t *testing.T) {
	sb, root := newSandbox(t, SandboxConfig{})
	for _, p := range []string{"main.go", "pkg/a.go", "pkg/b.go", "pkg/readme.md", "pkg/deep/c.go"} {
		writeFile(t, filepath.Join(root, p), "")
	}

	out, err := sb.Glob(".", "**/*.go", 100)
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	got := strings.Join(out["matches"].([]string), ",")
	if got != "main.go,pkg/a.go,pkg/b.go,pkg/deep/c.go" {
		t.Errorf("matches = %s", got)
	}
	if out["truncated"] != false || out["count"] != 4 {
		t.Errorf("out = %v", out)
	}

	out, err = sb.Glob("pkg", "*.go", 1)
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	if strings.Join(out["matches"].([]string), ",") != "a.go" || out["truncated"] != true {
		t.Errorf("limited = %v", out)
	}

	_, err = sb.Glob(".", "[", 10)
	if sandboxCode(t, err) != CodeInvalidPattern {
		t.Errorf("bad pattern: %v", err)
	}
	_, err = sb.Glob("main.go", "*", 10)
	if sandboxCode(t, err) != CodeNotADirectory {
		t.Errorf("file root: %v", err)
	}

	small, smallRoot := newSandbox(t, SandboxConfig{MaxVisited: 2})
	for _, p := range []string{"a", "b", "c"} {
		writeFile(t, filepath.Join(smallRoot, p), "")
	}
	_, err = small.Glob(".", "*", 10)
	if sandboxCode(t, err) != CodeSearchLimitExceeded {
		t.Errorf("visit limit: %v", err)
	}
}
