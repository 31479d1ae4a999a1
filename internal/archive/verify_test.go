package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ectar/ectar/internal/index"
	"github.com/ectar/ectar/internal/shard"
)

func TestVerifyHealthy(t *testing.T) {
	root := smallTree(t)
	base, _ := createSmall(t, root)

	rep, err := Verify(context.Background(), VerifyConfig{Input: base + ".c*.s*"})
	require.NoError(t, err)
	assert.Equal(t, StatusHealthy, rep.Status)
	assert.Equal(t, 1, rep.TotalChunks)
	assert.Equal(t, 1, rep.ChunksVerified)
	assert.Equal(t, 9, rep.TotalShards)
	assert.Zero(t, rep.MissingShards)
}

func TestVerifyDegraded(t *testing.T) {
	root := smallTree(t)
	base, _ := createSmall(t, root)
	require.NoError(t, os.Remove(shard.FileName(base, 1, 2)))

	rep, err := Verify(context.Background(), VerifyConfig{Input: base + ".c*.s*"})
	require.NoError(t, err)
	assert.Equal(t, StatusDegraded, rep.Status)
	assert.Equal(t, 1, rep.MissingShards)
	require.Len(t, rep.Chunks, 1)
	assert.True(t, rep.Chunks[0].Recoverable)
	assert.Equal(t, 8, rep.Chunks[0].ShardsAvailable)
}

func TestVerifyFailed(t *testing.T) {
	root := smallTree(t)
	base, _ := createSmall(t, root)
	for _, s := range []int{0, 1, 2, 3} {
		require.NoError(t, os.Remove(shard.FileName(base, 1, s)))
	}

	rep, err := Verify(context.Background(), VerifyConfig{Input: base + ".c*.s*"})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, rep.Status)
	assert.Equal(t, []int{1}, rep.Unrecoverable)
}

func TestVerifyFullChecksFileHashes(t *testing.T) {
	root := smallTree(t)
	base, _ := createSmall(t, root)

	rep, err := Verify(context.Background(), VerifyConfig{Input: base + ".c*.s*", Full: true})
	require.NoError(t, err)
	assert.Equal(t, StatusHealthy, rep.Status)
	assert.Equal(t, 2, rep.FilesChecked) // a.txt and b/c.txt
	assert.Empty(t, rep.FileMismatches)
	require.Len(t, rep.Chunks, 1)
	require.NotNil(t, rep.Chunks[0].ChecksumValid)
	assert.True(t, *rep.Chunks[0].ChecksumValid)
}

func TestVerifyFullDetectsCorruption(t *testing.T) {
	root := smallTree(t)
	base, _ := createSmall(t, root)

	path := shard.FileName(base, 1, 1)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0x55
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	rep, err := Verify(context.Background(), VerifyConfig{Input: base + ".c*.s*", Full: true})
	require.NoError(t, err)
	assert.Equal(t, StatusDegraded, rep.Status)
	assert.Equal(t, []int{1}, rep.ChunksFailed)
}

func TestVerifyReportFile(t *testing.T) {
	root := smallTree(t)
	base, _ := createSmall(t, root)

	reportPath := filepath.Join(t.TempDir(), "report.json")
	_, err := Verify(context.Background(), VerifyConfig{
		Input:      base + ".c*.s*",
		ReportPath: reportPath,
	})
	require.NoError(t, err)

	raw, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	var rep VerifyReport
	require.NoError(t, json.Unmarshal(raw, &rep))
	assert.Equal(t, StatusHealthy, rep.Status)
}

func TestVerifyRequiresIndex(t *testing.T) {
	root := smallTree(t)
	base, _ := createSmall(t, root)
	require.NoError(t, os.Remove(index.Path(base)))

	_, err := Verify(context.Background(), VerifyConfig{Input: base + ".c*.s*"})
	assert.Error(t, err)
}

func TestListFormats(t *testing.T) {
	root := smallTree(t)
	base, _ := createSmall(t, root)

	var text bytes.Buffer
	require.NoError(t, List(ListConfig{Input: base + ".c*.s*", Format: FormatText, Out: &text}))
	assert.Contains(t, text.String(), "a.txt")
	assert.Contains(t, text.String(), "b/c.txt")

	var long bytes.Buffer
	require.NoError(t, List(ListConfig{Input: base + ".c*.s*", Format: FormatText, Long: true, Out: &long}))
	assert.Contains(t, long.String(), "Archive:")
	assert.Contains(t, long.String(), "file")

	var js bytes.Buffer
	require.NoError(t, List(ListConfig{Input: base + ".c*.s*", Format: FormatJSON, Out: &js}))
	var files []index.FileRecord
	require.NoError(t, json.Unmarshal(js.Bytes(), &files))
	assert.Len(t, files, 3)

	var csvOut bytes.Buffer
	require.NoError(t, List(ListConfig{Input: base + ".c*.s*", Format: FormatCSV, Out: &csvOut}))
	assert.Contains(t, csvOut.String(), "path,type,size")
}

func TestListPattern(t *testing.T) {
	root := smallTree(t)
	base, _ := createSmall(t, root)

	var out bytes.Buffer
	require.NoError(t, List(ListConfig{Input: base + ".c*.s*", Pattern: "*.txt", Format: FormatText, Out: &out}))
	assert.Contains(t, out.String(), "a.txt")
	assert.NotContains(t, out.String()+"\n", "\nb\n")
}

func TestParseListFormat(t *testing.T) {
	f, err := ParseListFormat("json")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)
	_, err = ParseListFormat("xml")
	assert.Error(t, err)
}

func TestInfoText(t *testing.T) {
	root := smallTree(t)
	base, _ := createSmall(t, root)

	var out bytes.Buffer
	require.NoError(t, Info(InfoConfig{Input: base + ".c*.s*", Format: FormatText, Out: &out}))
	s := out.String()
	assert.Contains(t, s, "Data Shards:       6")
	assert.Contains(t, s, "Parity Shards:     3")
	assert.Contains(t, s, "Total Chunks:      1")
	assert.Contains(t, s, "Compression Level: 3")
}

func TestInfoJSON(t *testing.T) {
	root := smallTree(t)
	base, _ := createSmall(t, root)

	var out bytes.Buffer
	require.NoError(t, Info(InfoConfig{Input: base + ".c*.s*", Format: FormatJSON, Out: &out}))
	var ix index.Index
	require.NoError(t, json.Unmarshal(out.Bytes(), &ix))
	assert.Equal(t, 6, ix.Parameters.DataShards)
}
