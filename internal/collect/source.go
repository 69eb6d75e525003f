package collect

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// Source reads documents from the vault. Paths are vault-relative and slash separated.
type Source interface {
	Stat(p string) (isDir bool, err error)
	Read(p string) (string, error)
	// Markdown lists every .md file under dir, recursively, sorted by path.
	Markdown(dir string) ([]string, error)
}

// FSSource is a Source over a vault directory on disk.
type FSSource struct {
	root string
	fsys fs.FS
}

// NewFSSource returns a source rooted at the vault directory.
func NewFSSource(root string) *FSSource {
	return &FSSource{root: root, fsys: os.DirFS(root)}
}

// Rel converts an absolute or working-directory path into a vault-relative one.
func (s *FSSource) Rel(p string) (string, error) {
	if !filepath.IsAbs(p) {
		abs, err := filepath.Abs(p)
		if err != nil {
			return "", err
		}
		p = abs
	}
	root, err := filepath.Abs(s.root)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside the vault %s", p, s.root)
	}
	return filepath.ToSlash(rel), nil
}

func clean(p string) string {
	p = path.Clean("/" + filepath.ToSlash(p))
	if p == "/" {
		return "."
	}
	return strings.TrimPrefix(p, "/")
}

// Stat implements Source.
func (s *FSSource) Stat(p string) (bool, error) {
	info, err := fs.Stat(s.fsys, clean(p))
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

// Read implements Source.
func (s *FSSource) Read(p string) (string, error) {
	data, err := fs.ReadFile(s.fsys, clean(p))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Markdown implements Source. Hidden directories are skipped.
func (s *FSSource) Markdown(dir string) ([]string, error) {
	var files []string
	err := fs.WalkDir(s.fsys, clean(dir), func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrPermission) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			if p != clean(dir) && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		if strings.EqualFold(path.Ext(p), ".md") {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
