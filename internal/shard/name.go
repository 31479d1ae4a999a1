// Package shard handles the on-media shard files: the
// <basename>.c<CCC>.s<SS> naming convention, concurrent per-chunk
// writing, and discovery of surviving shards for recovery.
package shard

import (
	"fmt"
	"regexp"
	"strconv"
)

// FileName returns the shard file name for a chunk/share pair. The chunk
// field is zero-padded to at least three digits and the share field to at
// least two; both widen naturally for larger archives.
func FileName(base string, chunk, share int) string {
	return fmt.Sprintf("%s.c%03d.s%02d", base, chunk, share)
}

var nameRe = regexp.MustCompile(`^(.+)\.c(\d+)\.s(\d+)$`)

// ParseName splits a shard file name (no directory) into its basename,
// chunk number, and share number. ok is false for non-shard names.
func ParseName(name string) (base string, chunk, share int, ok bool) {
	m := nameRe.FindStringSubmatch(name)
	if m == nil {
		return "", 0, 0, false
	}
	chunk, err := strconv.Atoi(m[2])
	if err != nil {
		return "", 0, 0, false
	}
	share, err = strconv.Atoi(m[3])
	if err != nil {
		return "", 0, 0, false
	}
	return m[1], chunk, share, true
}
