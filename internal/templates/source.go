package templates

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Source constrains template lookups to a configured pages directory so
// request paths cannot reach arbitrary files.
type Source struct {
	root string
}

// NewSource initializes a source rooted at the provided directory. The root
// must exist and be a directory so path validation can reliably guard against
// escape attempts via ".." or symlinks.
func NewSource(root string) (*Source, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("templates: pages root required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("templates: resolve root: %w", err)
	}
	abs, err = filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("templates: eval root symlinks: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("templates: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("templates: root %q is not a directory", abs)
	}
	return &Source{root: abs}, nil
}

// Root returns the canonical pages directory.
func (s *Source) Root() string { return s.root }

// Resolve normalizes the provided template path ensuring it is contained
// within the pages root. Both relative and absolute paths are supported as
// long as the resulting location does not escape the root.
func (s *Source) Resolve(path string) (string, error) {
	if s == nil {
		return "", errors.New("templates: source is nil")
	}
	cleaned := filepath.Clean(path)
	if cleaned == "." || cleaned == "" {
		return s.root, nil
	}
	if !filepath.IsAbs(cleaned) {
		cleaned = filepath.Join(s.root, cleaned)
	}
	cleaned = filepath.Clean(cleaned)
	evaluated, err := filepath.EvalSymlinks(cleaned)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Even when the target does not exist we still want to guard
			// against traversal. Use the cleaned path for the containment
			// check and surface the original error to callers.
			if !s.contains(cleaned) {
				return "", fmt.Errorf("templates: path %q escapes pages root", path)
			}
			return "", fmt.Errorf("templates: resolve %q: %w", path, err)
		}
		return "", fmt.Errorf("templates: resolve %q: %w", path, err)
	}
	if !s.contains(evaluated) {
		return "", fmt.Errorf("templates: path %q escapes pages root", path)
	}
	return evaluated, nil
}

// Read loads the template file at the given path after resolution.
func (s *Source) Read(path string) ([]byte, error) {
	resolved, err := s.Resolve(path)
	if err != nil {
		return nil, err
	}
	contents, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("templates: read %q: %w", path, err)
	}
	return contents, nil
}

// List enumerates the template files under the root as root-relative paths.
// Warmers use this to pre-render every known page.
func (s *Source) List() ([]string, error) {
	if s == nil {
		return nil, errors.New("templates: source is nil")
	}
	var paths []string
	err := filepath.WalkDir(s.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("templates: list pages: %w", err)
	}
	return paths, nil
}

// contains reports whether the provided absolute path is inside the root.
func (s *Source) contains(candidate string) bool {
	root := s.root
	if runtime.GOOS == "windows" {
		root = strings.ToLower(root)
		candidate = strings.ToLower(candidate)
	}
	if root == candidate {
		return true
	}
	if !strings.HasSuffix(root, string(os.PathSeparator)) {
		root += string(os.PathSeparator)
	}
	return strings.HasPrefix(candidate, root)
}
