package tool

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Sandbox limits.
const (
	DefaultMaxReadBytes   = 1_000_000
	DefaultMaxWriteBytes  = 1_000_000
	DefaultMaxListEntries = 1_000
	DefaultMaxVisited     = 20_000
)

// SandboxConfig configures a Sandbox. Zero limits take the defaults.
type SandboxConfig struct {
	AllowedRoots   []string
	MaxReadBytes   int64
	MaxWriteBytes  int64
	MaxListEntries int
	MaxVisited     int
	AllowWrite     bool
	AllowDelete    bool
}

// Sandbox confines file operations to a set of allowed roots.
//
// Symlinks are resolved before the containment check, so a link inside a
// root that points outside it is refused. Relative paths resolve against
// the first allowed root in sorted order.
type Sandbox struct {
	cfg   SandboxConfig
	roots []string
}

// NewSandbox resolves the allowed roots. Every root must exist.
func NewSandbox(cfg SandboxConfig) (*Sandbox, error) {
	if len(cfg.AllowedRoots) == 0 {
		return nil, errors.New("sandbox: at least one allowed root is required")
	}
	roots := make([]string, 0, len(cfg.AllowedRoots))
	for _, r := range cfg.AllowedRoots {
		abs, err := filepath.Abs(r)
		if err != nil {
			return nil, fmt.Errorf("sandbox root %q: %w", r, err)
		}
		real, err := filepath.EvalSymlinks(abs)
		if err != nil {
			return nil, fmt.Errorf("sandbox root %q: %w", r, err)
		}
		roots = append(roots, real)
	}
	sort.Strings(roots)

	if cfg.MaxReadBytes <= 0 {
		cfg.MaxReadBytes = DefaultMaxReadBytes
	}
	if cfg.MaxWriteBytes <= 0 {
		cfg.MaxWriteBytes = DefaultMaxWriteBytes
	}
	if cfg.MaxListEntries <= 0 {
		cfg.MaxListEntries = DefaultMaxListEntries
	}
	if cfg.MaxVisited <= 0 {
		cfg.MaxVisited = DefaultMaxVisited
	}
	cfg.AllowedRoots = roots
	return &Sandbox{cfg: cfg, roots: roots}, nil
}

// Roots returns the resolved allowed roots.
func (s *Sandbox) Roots() []string {
	return append([]string(nil), s.roots...)
}

func (s *Sandbox) contains(path string) bool {
	for _, root := range s.roots {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			continue
		}
		if rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))) {
			return true
		}
	}
	return false
}

// Resolve maps path to an absolute, symlink-free path inside an allowed
// root. A path that does not exist yet is accepted when its parent exists
// inside a root.
func (s *Sandbox) Resolve(path string) (string, error) {
	if strings.TrimSpace(path) == "" || strings.ContainsRune(path, 0) {
		return "", sandboxErr(CodeInvalidPath, "Invalid path", "path", path)
	}
	candidate := path
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(s.roots[0], candidate)
	}
	candidate = filepath.Clean(candidate)

	if _, err := os.Lstat(candidate); err == nil {
		real, err := filepath.EvalSymlinks(candidate)
		if err != nil {
			return "", sandboxErr(CodeIOError, fmt.Sprintf("Failed to resolve path: %v", err), "path", path)
		}
		if !s.contains(real) {
			return "", sandboxErr(CodePathOutsideAllowedRoot, "Resolved path is outside allowed roots", "path", path)
		}
		return real, nil
	}

	parent, err := filepath.EvalSymlinks(filepath.Dir(candidate))
	if errors.Is(err, fs.ErrNotExist) {
		return "", sandboxErr(CodeNotFound, "Parent directory not found", "path", path)
	}
	if err != nil {
		return "", sandboxErr(CodeIOError, fmt.Sprintf("Failed to resolve parent: %v", err), "path", path)
	}
	if !s.contains(parent) {
		return "", sandboxErr(CodePathOutsideAllowedRoot, "Resolved parent path is outside allowed roots", "path", path)
	}
	return filepath.Join(parent, filepath.Base(candidate)), nil
}

// ReadText returns the contents of a file no larger than MaxReadBytes.
func (s *Sandbox) ReadText(path string) (map[string]any, error) {
	resolved, err := s.Resolve(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(resolved)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, sandboxErr(CodeNotFound, "Path does not exist", "path", path)
	}
	if err != nil {
		return nil, sandboxErr(CodeIOError, fmt.Sprintf("Read failed: %v", err), "path", path)
	}
	if !info.Mode().IsRegular() {
		return nil, sandboxErr(CodeNotAFile, "Path is not a file", "path", path)
	}
	if info.Size() > s.cfg.MaxReadBytes {
		return nil, sandboxErr(CodeReadTooLarge, "File exceeds max_read_bytes",
			"size", info.Size(), "max_read_bytes", s.cfg.MaxReadBytes)
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, sandboxErr(CodeIOError, fmt.Sprintf("Read failed: %v", err), "path", path)
	}
	return map[string]any{
		"code":    CodeOK,
		"path":    resolved,
		"content": string(data),
		"size":    info.Size(),
	}, nil
}

// ListDir returns the sorted entry names of a directory.
func (s *Sandbox) ListDir(path string) (map[string]any, error) {
	resolved, err := s.Resolve(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(resolved)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, sandboxErr(CodeNotFound, "Path does not exist", "path", path)
	}
	if err != nil {
		return nil, sandboxErr(CodeIOError, fmt.Sprintf("List failed: %v", err), "path", path)
	}
	if !info.IsDir() {
		return nil, sandboxErr(CodeNotADirectory, "Path is not a directory", "path", path)
	}
	entries, err := os.ReadDir(resolved)
	if err != nil {
		return nil, sandboxErr(CodeIOError, fmt.Sprintf("List failed: %v", err), "path", path)
	}
	if len(entries) > s.cfg.MaxListEntries {
		return nil, sandboxErr(CodeListLimitExceeded, "Directory exceeds max_list_entries",
			"count", len(entries), "max_list_entries", s.cfg.MaxListEntries)
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	sort.Strings(names)
	return map[string]any{"code": CodeOK, "path": resolved, "entries": names}, nil
}

// FileInfo returns type, size and modification time of a path.
func (s *Sandbox) FileInfo(path string) (map[string]any, error) {
	resolved, err := s.Resolve(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(resolved)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, sandboxErr(CodeNotFound, "Path does not exist", "path", path)
	}
	if err != nil {
		return nil, sandboxErr(CodeIOError, fmt.Sprintf("File info failed: %v", err), "path", path)
	}
	kind := "other"
	switch {
	case info.Mode().IsRegular():
		kind = "file"
	case info.IsDir():
		kind = "directory"
	}
	return map[string]any{
		"code":           CodeOK,
		"path":           resolved,
		"type":           kind,
		"size":           info.Size(),
		"modified_epoch": float64(info.ModTime().UnixNano()) / 1e9,
	}, nil
}

// WriteText writes content to path. The parent directory must already exist
// inside a root. Requires AllowWrite.
func (s *Sandbox) WriteText(path, content string) (map[string]any, error) {
	if !s.cfg.AllowWrite {
		return nil, sandboxErr(CodeWriteNotAllowed, "Write operation is disabled")
	}
	size := int64(len(content))
	if size > s.cfg.MaxWriteBytes {
		return nil, sandboxErr(CodeWriteTooLarge, "Content exceeds max_write_bytes",
			"size", size, "max_write_bytes", s.cfg.MaxWriteBytes)
	}
	resolved, err := s.Resolve(path)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return nil, sandboxErr(CodeIOError, fmt.Sprintf("Write failed: %v", err), "path", path)
	}
	return map[string]any{"code": CodeOK, "path": resolved, "size": size}, nil
}

// Delete removes a regular file. Requires AllowDelete.
func (s *Sandbox) Delete(path string) (map[string]any, error) {
	if !s.cfg.AllowDelete {
		return nil, sandboxErr(CodeDeleteNotAllowed, "Delete operation is disabled")
	}
	resolved, err := s.Resolve(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Lstat(resolved)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, sandboxErr(CodeNotFound, "Path does not exist", "path", path)
	}
	if err != nil {
		return nil, sandboxErr(CodeIOError, fmt.Sprintf("Delete failed: %v", err), "path", path)
	}
	if !info.Mode().IsRegular() {
		return nil, sandboxErr(CodeNotAFile, "Delete supports files only", "path", path)
	}
	if err := os.Remove(resolved); err != nil {
		return nil, sandboxErr(CodeIOError, fmt.Sprintf("Delete failed: %v", err), "path", path)
	}
	return map[string]any{"code": CodeOK, "path": resolved}, nil
}

// errVisitLimit stops the glob walk.
var errVisitLimit = errors.New("visit limit")

// Glob walks root in lexical order and returns slash-separated relative
// paths matching a doublestar pattern (e.g. "**/*.go"). At most maxResults
// matches are returned; truncated reports whether more existed. Walking more
// than MaxVisited entries fails with search_limit_exceeded.
func (s *Sandbox) Glob(root, pattern string, maxResults int) (map[string]any, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, sandboxErr(CodeInvalidPattern, "Invalid glob pattern", "pattern", pattern)
	}
	resolved, err := s.Resolve(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(resolved)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, sandboxErr(CodeNotFound, "Path does not exist", "path", root)
	}
	if err != nil {
		return nil, sandboxErr(CodeIOError, fmt.Sprintf("Search failed: %v", err), "path", root)
	}
	if !info.IsDir() {
		return nil, sandboxErr(CodeNotADirectory, "Path is not a directory", "path", root)
	}

	matches := []string{}
	truncated := false
	visited := 0
	walkErr := filepath.WalkDir(resolved, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == resolved {
			return nil
		}
		visited++
		if visited > s.cfg.MaxVisited {
			return errVisitLimit
		}
		rel, err := filepath.Rel(resolved, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if ok, _ := doublestar.Match(pattern, rel); ok {
			if len(matches) < maxResults {
				matches = append(matches, rel)
			} else {
				truncated = true
			}
		}
		return nil
	})
	if errors.Is(walkErr, errVisitLimit) {
		return nil, sandboxErr(CodeSearchLimitExceeded, "Search exceeded max_visited entries",
			"max_visited", s.cfg.MaxVisited)
	}
	if walkErr != nil {
		return nil, sandboxErr(CodeIOError, fmt.Sprintf("Search failed: %v", walkErr), "path", root)
	}
	return map[string]any{
		"code":      CodeOK,
		"root":      resolved,
		"pattern":   pattern,
		"matches":   matches,
		"count":     len(matches),
		"truncated": truncated,
	}, nil
}
