package gitignore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcher_Match(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		path     string
		isDir    bool
		want     bool
	}{
		{"extension anywhere", []string{"*.log"}, "deep/dir/debug.log", false, true},
		{"extension no match", []string{"*.log"}, "notes.md", false, false},
		{"question mark", []string{"draft?.md"}, "draft1.md", false, true},
		{"character class", []string{"v[0-9].md"}, "v3.md", false, true},
		{"dir only matches dir", []string{"build/"}, "build", true, true},
		{"dir only skips file", []string{"build/"}, "build", false, false},
		{"dir only covers contents", []string{"build/"}, "build/out.md", false, true},
		{"nested dir only", []string{"tmp/"}, "a/tmp/x.md", false, true},
		{"anchored at root", []string{"/todo.md"}, "todo.md", false, true},
		{"anchored not nested", []string{"/todo.md"}, "sub/todo.md", false, false},
		{"inner slash anchors", []string{"docs/draft.md"}, "docs/draft.md", false, true},
		{"inner slash not nested", []string{"docs/draft.md"}, "x/docs/draft.md", false, false},
		{"leading double star", []string{"**/cache"}, "a/b/cache", true, true},
		{"leading double star at root", []string{"**/cache"}, "cache", true, true},
		{"middle double star", []string{"a/**/z.md"}, "a/b/c/z.md", false, true},
		{"middle double star zero dirs", []string{"a/**/z.md"}, "a/z.md", false, true},
		{"trailing double star contents", []string{"private/**"}, "private/x.md", false, true},
		{"trailing double star not dir", []string{"private/**"}, "private", true, false},
		{"negation re-includes", []string{"*.md", "!keep.md"}, "keep.md", false, false},
		{"last match wins", []string{"!keep.md", "*.md"}, "keep.md", false, true},
		{"parent exclusion is final", []string{"out/", "!out/keep.md"}, "out/keep.md", false, true},
		{"comment ignored", []string{"# *.md"}, "a.md", false, false},
		{"escaped hash", []string{`\#notes.md`}, "#notes.md", false, true},
		{"escaped bang", []string{`\!important.md`}, "!important.md", false, true},
		{"escaped trailing space", []string{`spaced\ `}, "spaced ", false, true},
		{"unescaped trailing space trimmed", []string{"trim.md   "}, "trim.md", false, true},
		{"cjk names", []string{"草稿*"}, "草稿-北京.md", false, true},
		{"bad pattern matches nothing", []string{"[z-a"}, "b", false, false},
		{"root never ignored", []string{"*"}, ".", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(tt.patterns...)

			assert.Equal(t, tt.want, m.Match(tt.path, tt.isDir))
		})
	}
}

func TestMatcher_Empty(t *testing.T) {
	var nilMatcher *Matcher
	assert.Zero(t, nilMatcher.Len())
	assert.False(t, nilMatcher.Match("a.md", false))
	assert.Zero(t, New("", "   ", "# comment").Len())
}

func TestLoad(t *testing.T) {
	// Given: .gitignore excludes drafts and .mixsearchignore re-includes one
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"), []byte("drafts/*\r\n*.tmp\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".mixsearchignore"), []byte("!drafts/publish.md\n"), 0o644))

	// When: loading both files
	m, err := Load(root)

	// Then: later files override earlier ones
	require.NoError(t, err)
	assert.Equal(t, 3, m.Len())
	assert.True(t, m.Match("drafts/wip.md", false))
	assert.False(t, m.Match("drafts/publish.md", false))
	assert.True(t, m.Match("x.tmp", false))
}

func TestLoad_NoFiles(t *testing.T) {
	m, err := Load(t.TempDir())

	require.NoError(t, err)
	assert.Zero(t, m.Len())
}
