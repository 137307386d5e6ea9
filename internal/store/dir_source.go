package store

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Aman-CERP/mixsearch/internal/chunk"
	"github.com/Aman-CERP/mixsearch/internal/gitignore"
)

// DirSource serves the .md, .markdown and .txt files under a directory.
// Document IDs are slash-separated paths relative to the root. Markdown is
// reduced to plain text and titled by its first heading. Paths excluded by
// the root's .gitignore or .mixsearchignore are skipped.
type DirSource struct {
	root     string
	label    string
	markdown *chunk.MarkdownExtractor

	mu     sync.RWMutex
	ignore *gitignore.Matcher
}

var (
	_ DocumentSource = (*DirSource)(nil)
	_ DocumentLookup = (*DirSource)(nil)
)

// NewDirSource creates a source rooted at root. label becomes every
// document's Source; empty means "local".
func NewDirSource(root, label string) (*DirSource, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve source path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("source path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source path %s is not a directory", abs)
	}
	if label == "" {
		label = "local"
	}
	s := &DirSource{root: abs, label: label, markdown: chunk.NewMarkdownExtractor()}
	s.reloadIgnore()
	return s, nil
}

// reloadIgnore rereads the ignore files. An unreadable file is logged and
// the patterns read so far are used.
func (s *DirSource) reloadIgnore() *gitignore.Matcher {
	m, err := gitignore.Load(s.root)
	if err != nil {
		slog.Warn("ignore_file_unreadable",
			slog.String("root", s.root),
			slog.String("error", err.Error()))
	}
	s.mu.Lock()
	s.ignore = m
	s.mu.Unlock()
	return m
}

// Ignored reports whether a root-relative path is excluded by the ignore
// files as of the last FindAll.
func (s *DirSource) Ignored(rel string, isDir bool) bool {
	s.mu.RLock()
	m := s.ignore
	s.mu.RUnlock()
	return m.Match(rel, isDir)
}

// Root returns the absolute source directory.
func (s *DirSource) Root() string { return s.root }

// FindAll walks the directory in lexical order. Hidden files and
// directories are skipped; unreadable files are logged and skipped.
func (s *DirSource) FindAll(ctx context.Context) ([]*Document, error) {
	ignore := s.reloadIgnore()
	var docs []*Document
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		name := d.Name()
		if path != s.root && strings.HasPrefix(name, ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path == s.root {
			return nil
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if ignore.Match(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !Supported(name) {
			return nil
		}

		doc, err := s.load(rel, path)
		if err != nil {
			slog.Warn("source_file_unreadable",
				slog.String("path", path),
				slog.String("error", err.Error()))
			return nil
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", s.root, err)
	}
	return docs, nil
}

// Get loads one document by ID.
func (s *DirSource) Get(_ context.Context, id string) (*Document, error) {
	path := filepath.Join(s.root, filepath.FromSlash(id))
	rel, err := filepath.Rel(s.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, ErrNotFound
	}
	if !Supported(path) || s.Ignored(filepath.ToSlash(rel), false) {
		return nil, ErrNotFound
	}
	doc, err := s.load(id, path)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	return doc, err
}

func (s *DirSource) load(id, path string) (*Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	doc := &Document{ID: id, Source: s.label}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		doc.Title, doc.Content = s.markdown.Extract(content, filepath.Base(path))
	default:
		doc.Content = string(content)
		doc.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return doc, nil
}

// Supported reports whether name has an extension DirSource reads.
func Supported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".markdown", ".txt":
		return true
	}
	return false
}
