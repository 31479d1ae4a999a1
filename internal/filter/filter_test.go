package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyChainMatchesAll(t *testing.T) {
	c := NewChain()
	assert.True(t, c.Empty())
	assert.True(t, c.Match("anything/at/all.txt", false))
	assert.True(t, c.Match("dir", true))
}

func TestIncludesRestrict(t *testing.T) {
	c := NewChain()
	require.NoError(t, c.AddInclude("*.txt"))

	assert.True(t, c.Match("a.txt", false))
	assert.True(t, c.Match("deep/nested/b.txt", false))
	assert.False(t, c.Match("c.log", false))
}

func TestExcludesWin(t *testing.T) {
	c := NewChain()
	require.NoError(t, c.AddInclude("*.txt"))
	require.NoError(t, c.AddExclude("secret*"))

	assert.True(t, c.Match("ok.txt", false))
	assert.False(t, c.Match("secret.txt", false))
	assert.False(t, c.Match("dir/secret1.txt", false))
}

func TestDirectoryIncludeSelectsSubtree(t *testing.T) {
	c := NewChain()
	require.NoError(t, c.AddInclude("docs"))

	assert.True(t, c.Match("docs", true))
	assert.True(t, c.Match("docs/guide.md", false))
	assert.True(t, c.Match("project/docs/a/b.txt", false))
	assert.False(t, c.Match("src/main.go", false))
}

func TestAnchoredPattern(t *testing.T) {
	c := NewChain()
	require.NoError(t, c.AddInclude("sub/dir/*.txt"))

	assert.True(t, c.Match("sub/dir/file.txt", false))
	assert.False(t, c.Match("other/sub/dir/file.txt", false))
}

func TestPatternStar(t *testing.T) {
	p, err := compilePattern("*.log")
	require.NoError(t, err)

	assert.True(t, p.match("app.log", false))
	assert.True(t, p.match("dir/app.log", false))
	assert.False(t, p.match("app.log.bak", false))
	assert.False(t, p.match("app.txt", false))
}

func TestPatternDoubleStar(t *testing.T) {
	p, err := compilePattern("**/*.go")
	require.NoError(t, err)

	assert.True(t, p.match("main.go", false))
	assert.True(t, p.match("cmd/ectar/main.go", false))
	assert.False(t, p.match("main.txt", false))
}

func TestPatternDirOnly(t *testing.T) {
	p, err := compilePattern("build/")
	require.NoError(t, err)

	assert.True(t, p.match("build", true))
	assert.False(t, p.match("build", false))
}

func TestPatternQuestion(t *testing.T) {
	p, err := compilePattern("file?.txt")
	require.NoError(t, err)

	assert.True(t, p.match("file1.txt", false))
	assert.False(t, p.match("file12.txt", false))
	assert.False(t, p.match("file/.txt", false))
}

func TestPatternCharClass(t *testing.T) {
	p, err := compilePattern("file[0-9].dat")
	require.NoError(t, err)

	assert.True(t, p.match("file7.dat", false))
	assert.False(t, p.match("fileA.dat", false))
}
