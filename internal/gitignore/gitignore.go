// Package gitignore matches corpus paths against gitignore-style patterns.
//
// Supported syntax: blank lines and # comments, ! negation, trailing /
// for directories, leading / or an inner / for root-anchored patterns,
// and the *, ?, [...] and ** wildcards. The last matching pattern wins,
// and nothing below an ignored directory can be re-included.
package gitignore

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// IgnoreFiles are read from the corpus root in this order, so the second
// can re-include what the first excludes.
var IgnoreFiles = []string{".gitignore", ".mixsearchignore"}

type pattern struct {
	segments []string
	negate   bool
	dirOnly  bool
	anchored bool
}

// Matcher holds compiled patterns. It is immutable after construction and
// safe for concurrent use.
type Matcher struct {
	patterns []pattern
}

// New compiles lines into a Matcher.
func New(lines ...string) *Matcher {
	m := &Matcher{}
	for _, line := range lines {
		m.add(line)
	}
	return m
}

// Load reads IgnoreFiles from root. Missing files are skipped.
func Load(root string) (*Matcher, error) {
	m := &Matcher{}
	for _, name := range IgnoreFiles {
		if err := m.addFile(filepath.Join(root, name)); err != nil {
			return m, err
		}
	}
	return m, nil
}

func (m *Matcher) addFile(p string) error {
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open ignore file: %w", err)
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		m.add(sc.Text())
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(p), err)
	}
	return nil
}

// Len returns the number of compiled patterns.
func (m *Matcher) Len() int {
	if m == nil {
		return 0
	}
	return len(m.patterns)
}

func (m *Matcher) add(line string) {
	line = strings.TrimSuffix(line, "\r")
	// "\ " keeps one trailing space.
	keepSpace := strings.HasSuffix(line, `\ `)
	line = strings.TrimRight(line, " \t")
	if keepSpace {
		line = strings.TrimSuffix(line, `\`) + " "
	}
	if line == "" || strings.HasPrefix(line, "#") {
		return
	}

	var p pattern
	switch {
	case strings.HasPrefix(line, `\#`), strings.HasPrefix(line, `\!`):
		line = line[1:]
	case strings.HasPrefix(line, "!"):
		p.negate = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		p.dirOnly = true
		line = strings.TrimRight(line, "/")
	}
	if strings.HasPrefix(line, "/") {
		p.anchored = true
		line = strings.TrimLeft(line, "/")
	}
	if strings.Contains(line, "/") {
		p.anchored = true
	}
	if line == "" {
		return
	}
	p.segments = strings.Split(line, "/")
	m.patterns = append(m.patterns, p)
}

// Match reports whether rel, a slash-separated path relative to the root,
// is ignored.
func (m *Matcher) Match(rel string, isDir bool) bool {
	if m.Len() == 0 {
		return false
	}
	rel = strings.Trim(filepath.ToSlash(rel), "/")
	if rel == "" || rel == "." {
		return false
	}
	parts := strings.Split(rel, "/")
	for i := 1; i < len(parts); i++ {
		if m.ignored(parts[:i], true) {
			return true
		}
	}
	return m.ignored(parts, isDir)
}

func (m *Matcher) ignored(parts []string, isDir bool) bool {
	ignored := false
	for _, p := range m.patterns {
		if p.matches(parts, isDir) {
			ignored = !p.negate
		}
	}
	return ignored
}

func (p pattern) matches(parts []string, isDir bool) bool {
	if p.dirOnly && !isDir {
		return false
	}
	if !p.anchored {
		return globMatch(p.segments[0], parts[len(parts)-1])
	}
	return matchSegments(p.segments, parts)
}

func matchSegments(pat, parts []string) bool {
	if len(pat) == 0 {
		return len(parts) == 0
	}
	if pat[0] == "**" {
		// A trailing ** matches everything inside, not the directory itself.
		if len(pat) == 1 {
			return len(parts) > 0
		}
		for i := 0; i <= len(parts); i++ {
			if matchSegments(pat[1:], parts[i:]) {
				return true
			}
		}
		return false
	}
	return len(parts) > 0 && globMatch(pat[0], parts[0]) && matchSegments(pat[1:], parts[1:])
}

// globMatch matches one path segment. Malformed patterns match nothing.
func globMatch(pat, name string) bool {
	if pat == "**" {
		return true
	}
	ok, err := path.Match(pat, name)
	return err == nil && ok
}
