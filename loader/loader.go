// Package loader reads documents from a directory tree, extracting plain text
// from PDF, HTML and text files.
package loader

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/viant/sqlite-rag/internal/logging"
	"github.com/viant/sqlite-rag/vector"
)

// DefaultPattern matches PDF files directly under the directory.
const DefaultPattern = "*.pdf"

// Loader loads every file under Dir matching any of Patterns. Patterns are
// doublestar globs relative to Dir, so "**/*.md" descends into
// subdirectories.
type Loader struct {
	Dir      string
	Patterns []string
	Logger   *slog.Logger
}

// New returns a Loader for dir; without patterns it loads DefaultPattern.
func New(dir string, patterns ...string) *Loader {
	if len(patterns) == 0 {
		patterns = []string{DefaultPattern}
	}
	return &Loader{Dir: dir, Patterns: patterns}
}

// Load returns one document per matching file, sorted by source. A file
// matched by several patterns is loaded once.
func (l *Loader) Load(ctx context.Context) ([]vector.Document, error) {
	logger := logging.OrDiscard(l.Logger)
	started := time.Now()
	info, err := os.Stat(l.Dir)
	if err != nil {
		return nil, fmt.Errorf("loader: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("loader: %s is not a directory: %w", l.Dir, vector.ErrInvalidConfiguration)
	}
	patterns := l.Patterns
	if len(patterns) == 0 {
		patterns = []string{DefaultPattern}
	}

	fsys := os.DirFS(l.Dir)
	seen := map[string]bool{}
	var names []string
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("loader: invalid pattern %q: %w", pattern, vector.ErrInvalidConfiguration)
		}
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return nil, fmt.Errorf("loader: glob %q: %w", pattern, err)
		}
		for _, name := range matches {
			if seen[name] {
				continue
			}
			if st, err := fs.Stat(fsys, name); err != nil || st.IsDir() {
				continue
			}
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)

	docs := make([]vector.Document, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := Extract(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("loader: %s: %w", name, err)
		}
		source := filepath.Join(l.Dir, filepath.FromSlash(name))
		docs = append(docs, vector.Document{Source: source, Text: text})
		logger.Debug("document loaded", "source", source, "chars", len(text))
	}
	logger.Info("documents loaded", "dir", l.Dir, "documents", len(docs), "elapsed", time.Since(started))
	return docs, nil
}
