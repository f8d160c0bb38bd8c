package fs

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"

	"txtvec/internal/domain"
	"txtvec/internal/port"
)

// Walker lists the documents of a corpus directory. Patterns are
// doublestar globs matched against slash-separated paths relative to the
// root.
type Walker struct {
	includes []string
	excludes []string
}

func NewWalker(includes, excludes []string) *Walker {
	if len(includes) == 0 {
		includes = []string{"**/*.txt"}
	}
	return &Walker{
		includes: includes,
		excludes: excludes,
	}
}

// Walk returns the matching file paths under root in lexical order of
// their relative path.
func (w *Walker) Walk(root string) ([]string, error) {
	var rels []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if relPath != "." && w.shouldExclude(relPath+"/") {
				return filepath.SkipDir
			}
			return nil
		}

		if w.shouldInclude(relPath) && !w.shouldExclude(relPath) {
			rels = append(rels, relPath)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(rels)
	paths := make([]string, len(rels))
	for i, rel := range rels {
		paths[i] = filepath.Join(root, filepath.FromSlash(rel))
	}
	return paths, nil
}

// Documents reads every matching file under root. A document's ID is its
// path joined onto root.
func (w *Walker) Documents(root string) ([]domain.Document, error) {
	paths, err := w.Walk(root)
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	docs := make([]domain.Document, 0, len(paths))
	for _, path := range paths {
		text, err := ReadFile(path)
		if err != nil {
			return nil, &domain.DocumentError{Source: path, Err: err}
		}
		docs = append(docs, domain.Document{ID: path, Text: text})
	}
	return docs, nil
}

func (w *Walker) shouldInclude(path string) bool {
	for _, pattern := range w.includes {
		matched, err := doublestar.Match(pattern, path)
		if err == nil && matched {
			return true
		}
	}
	return false
}

func (w *Walker) shouldExclude(path string) bool {
	for _, pattern := range w.excludes {
		matched, err := doublestar.Match(pattern, path)
		if err == nil && matched {
			return true
		}
	}
	return false
}

// ReadFile reads a UTF-8 text file, dropping a leading byte order mark.
func ReadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%s is not valid UTF-8", path)
	}
	return strings.TrimPrefix(string(data), "\uFEFF"), nil
}

var _ port.DocumentSource = (*Walker)(nil)
