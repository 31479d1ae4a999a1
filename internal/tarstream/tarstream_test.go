package tarstream

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ectar/ectar/internal/filter"
	"github.com/ectar/ectar/internal/index"
)

// makeTree builds a small test tree with a nested dir, a symlink, and
// known modes and times.
func makeTree(t *testing.T) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "tree")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "b"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("Hello World!\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b", "c.txt"), []byte("x\n"), 0o600))
	require.NoError(t, os.Symlink("a.txt", filepath.Join(root, "link")))

	mtime := time.Date(2023, 4, 5, 6, 7, 8, 0, time.UTC)
	require.NoError(t, os.Chtimes(filepath.Join(root, "a.txt"), mtime, mtime))
	return root
}

func buildStream(t *testing.T, root string, opts BuilderOptions) ([]byte, []index.FileRecord) {
	t.Helper()
	var buf bytes.Buffer
	b, err := NewBuilder(&buf, opts)
	require.NoError(t, err)
	require.NoError(t, b.AddPath(root))
	require.NoError(t, b.Close())
	return buf.Bytes(), b.Records()
}

func TestBuildRecords(t *testing.T) {
	root := makeTree(t)
	_, recs := buildStream(t, root, BuilderOptions{})

	byPath := map[string]index.FileRecord{}
	for _, r := range recs {
		byPath[r.Path] = r
	}

	require.Contains(t, byPath, "tree")
	assert.Equal(t, index.TypeDirectory, byPath["tree"].EntryType)

	a := byPath["tree/a.txt"]
	assert.Equal(t, index.TypeFile, a.EntryType)
	assert.Equal(t, int64(13), a.Size)
	assert.Equal(t, uint32(0o644), a.Mode)

	sum := sha256.Sum256([]byte("Hello World!\n"))
	assert.Equal(t, "sha256:"+hex.EncodeToString(sum[:]), a.Checksum)
	assert.Equal(t, time.Date(2023, 4, 5, 6, 7, 8, 0, time.UTC), a.Mtime)

	link := byPath["tree/link"]
	assert.Equal(t, index.TypeSymlink, link.EntryType)
	assert.Equal(t, "a.txt", link.Target)
}

func TestRoundTrip(t *testing.T) {
	root := makeTree(t)
	stream, _ := buildStream(t, root, BuilderOptions{})

	out := t.TempDir()
	ex := &Extractor{OutDir: out}
	res, err := ex.Run(bytes.NewReader(stream))
	require.NoError(t, err)
	assert.Empty(t, res.Failed)
	assert.Equal(t, 2, res.Files)
	assert.Equal(t, 1, res.Symlinks)

	data, err := os.ReadFile(filepath.Join(out, "tree", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Hello World!\n", string(data))

	info, err := os.Lstat(filepath.Join(out, "tree", "b", "c.txt"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	ainfo, err := os.Stat(filepath.Join(out, "tree", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 4, 5, 6, 7, 8, 0, time.UTC), ainfo.ModTime().UTC())

	target, err := os.Readlink(filepath.Join(out, "tree", "link"))
	require.NoError(t, err)
	assert.Equal(t, "a.txt", target)
}

func TestHardlinks(t *testing.T) {
	root := filepath.Join(t.TempDir(), "hl")
	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "orig"), []byte("shared"), 0o644))
	require.NoError(t, os.Link(filepath.Join(root, "orig"), filepath.Join(root, "copy")))

	stream, recs := buildStream(t, root, BuilderOptions{})

	hardlinks := 0
	for _, r := range recs {
		if r.EntryType == index.TypeHardlink {
			hardlinks++
			assert.NotEmpty(t, r.Target)
		}
	}
	assert.Equal(t, 1, hardlinks)

	out := t.TempDir()
	_, err := (&Extractor{OutDir: out}).Run(bytes.NewReader(stream))
	require.NoError(t, err)

	oi, err := os.Stat(filepath.Join(out, "hl", "orig"))
	require.NoError(t, err)
	ci, err := os.Stat(filepath.Join(out, "hl", "copy"))
	require.NoError(t, err)
	assert.True(t, os.SameFile(oi, ci))
}

func TestExcludePrunes(t *testing.T) {
	root := makeTree(t)
	_, recs := buildStream(t, root, BuilderOptions{Exclude: []string{"b"}})

	for _, r := range recs {
		assert.NotContains(t, r.Path, "tree/b")
	}
}

func TestExtractFilter(t *testing.T) {
	root := makeTree(t)
	stream, _ := buildStream(t, root, BuilderOptions{})

	ch := filter.NewChain()
	require.NoError(t, ch.AddInclude("*.txt"))

	out := t.TempDir()
	_, err := (&Extractor{OutDir: out, Filter: ch}).Run(bytes.NewReader(stream))
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(out, "tree", "a.txt"))
	assert.NoFileExists(t, filepath.Join(out, "tree", "link"))
}

func TestStripComponents(t *testing.T) {
	root := makeTree(t)
	stream, _ := buildStream(t, root, BuilderOptions{})

	out := t.TempDir()
	_, err := (&Extractor{OutDir: out, StripComponents: 1}).Run(bytes.NewReader(stream))
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(out, "a.txt"))
	assert.FileExists(t, filepath.Join(out, "b", "c.txt"))
	assert.NoDirExists(t, filepath.Join(out, "tree"))
}

func TestPartialTruncatedStream(t *testing.T) {
	root := makeTree(t)
	stream, _ := buildStream(t, root, BuilderOptions{})

	cut := stream[:len(stream)/2]

	out := t.TempDir()
	_, err := (&Extractor{OutDir: out}).Run(bytes.NewReader(cut))
	assert.Error(t, err)

	out2 := t.TempDir()
	_, err = (&Extractor{OutDir: out2, Partial: true}).Run(bytes.NewReader(cut))
	assert.NoError(t, err)
}

func TestCleanArchivePath(t *testing.T) {
	p, ok := CleanArchivePath("a/b/c.txt")
	require.True(t, ok)
	assert.Equal(t, "a/b/c.txt", p)

	p, ok = CleanArchivePath("/abs/path")
	require.True(t, ok)
	assert.Equal(t, "abs/path", p)

	_, ok = CleanArchivePath("../escape")
	assert.False(t, ok)
	_, ok = CleanArchivePath("a/../../b")
	assert.False(t, ok)
	_, ok = CleanArchivePath("")
	assert.False(t, ok)
}

func TestAddSingleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "solo.bin")
	require.NoError(t, os.WriteFile(path, []byte("just one"), 0o644))

	var buf bytes.Buffer
	b, err := NewBuilder(&buf, BuilderOptions{})
	require.NoError(t, err)
	require.NoError(t, b.AddPath(path))
	require.NoError(t, b.Close())

	recs := b.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, "solo.bin", recs[0].Path)

	out := t.TempDir()
	_, err = (&Extractor{OutDir: out}).Run(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(out, "solo.bin"))
}
