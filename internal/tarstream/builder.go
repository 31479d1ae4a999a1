// Package tarstream builds the linear tar byte stream from a file tree
// and extracts it back, recording and restoring the metadata the index
// carries. The stream itself is plain ustar/pax, readable by any tar.
package tarstream

import (
	"archive/tar"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/ectar/ectar/internal/event"
	"github.com/ectar/ectar/internal/filter"
	"github.com/ectar/ectar/internal/index"
	"github.com/ectar/ectar/internal/stats"
)

// BuilderOptions configures the tar builder.
type BuilderOptions struct {
	// CurrentChunk reports the chunk number the next byte lands in; used
	// to tag file records. May be nil (records get chunk 0).
	CurrentChunk func() int
	// LastChunk reports the chunk holding the last byte written, for
	// span tracking of entries that end exactly on a chunk boundary.
	// Falls back to CurrentChunk when nil.
	LastChunk func() int
	// Exclude patterns are applied to archive-relative paths during the
	// walk; excluded directories are pruned whole.
	Exclude []string
	// FollowSymlinks archives the target of a symlink instead of the
	// link itself (directory links are kept as links to avoid cycles).
	FollowSymlinks bool

	Events chan<- event.Event
	Stats  *stats.Collector
}

// Builder writes a tar stream and collects the index file records as a
// side effect of the walk.
type Builder struct {
	tw      *tar.Writer
	opts    BuilderOptions
	exclude *filter.Chain
	records []index.FileRecord
	inodes  map[inodeKey]string
}

type inodeKey struct {
	dev uint64
	ino uint64
}

// NewBuilder wraps w in a tar writer.
func NewBuilder(w io.Writer, opts BuilderOptions) (*Builder, error) {
	ex := filter.NewChain()
	for _, p := range opts.Exclude {
		if err := ex.AddExclude(p); err != nil {
			return nil, fmt.Errorf("exclude pattern %q: %w", p, err)
		}
	}
	return &Builder{
		tw:      tar.NewWriter(w),
		opts:    opts,
		exclude: ex,
		inodes:  map[inodeKey]string{},
	}, nil
}

// Records returns the file records collected so far.
func (b *Builder) Records() []index.FileRecord { return b.records }

// Close finishes the tar stream (writes the trailing zero blocks).
func (b *Builder) Close() error { return b.tw.Close() }

func (b *Builder) currentChunk() int {
	if b.opts.CurrentChunk == nil {
		return 0
	}
	return b.opts.CurrentChunk()
}

// AddPath archives one input path. A file is archived under its
// basename; a directory is archived recursively under its basename.
func (b *Builder) AddPath(root string) error {
	root = filepath.Clean(root)
	info, err := os.Lstat(root)
	if err != nil {
		return fmt.Errorf("stat %s: %w", root, err)
	}

	top := filepath.Base(root)
	if !info.IsDir() {
		return b.addEntry(root, top, info)
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("walk %s: %w", path, err)
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		name := top
		if rel != "." {
			name = top + "/" + filepath.ToSlash(rel)
		}

		if !b.exclude.Match(name, d.IsDir()) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}
		return b.addEntry(path, name, info)
	})
}

func (b *Builder) addEntry(fsPath, name string, info os.FileInfo) error {
	if b.opts.FollowSymlinks && info.Mode()&os.ModeSymlink != 0 {
		resolved, err := os.Stat(fsPath)
		if err != nil {
			return fmt.Errorf("follow symlink %s: %w", fsPath, err)
		}
		if !resolved.IsDir() {
			info = resolved
		}
	}

	startChunk := b.currentChunk()
	mode := info.Mode()

	rec := index.FileRecord{
		Path:  name,
		Chunk: startChunk,
		Size:  info.Size(),
		Mode:  uint32(mode.Perm()),
		Mtime: info.ModTime().UTC(),
	}
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		uid, gid := int64(st.Uid), int64(st.Gid)
		rec.UID, rec.GID = &uid, &gid
	}

	var err error
	switch {
	case mode.IsDir():
		rec.EntryType = index.TypeDirectory
		rec.Size = 0
		err = b.writeDir(name, info)
	case mode&os.ModeSymlink != 0:
		rec.EntryType = index.TypeSymlink
		rec.Size = 0
		rec.Target, err = os.Readlink(fsPath)
		if err == nil {
			err = b.writeSymlink(name, info, rec.Target)
		}
	case mode.IsRegular():
		if prior, linked := b.hardlinkTarget(info); linked {
			rec.EntryType = index.TypeHardlink
			rec.Target = prior
			rec.Size = 0
			err = b.writeHardlink(name, info, prior)
			break
		}
		rec.EntryType = index.TypeFile
		rec.Checksum, err = b.writeFile(fsPath, name, info)
	default:
		// Devices, fifos, sockets: recorded but not archived.
		rec.EntryType = index.TypeOther
		rec.Size = 0
		slog.Warn("skipping special file", "path", fsPath, "mode", mode.String())
	}
	if err != nil {
		return err
	}

	if sp := b.spans(startChunk); sp != nil {
		rec.SpansChunks = sp
	}
	b.records = append(b.records, rec)

	event.Emit(b.opts.Events, event.Event{Type: event.FileAdded, Path: name, Size: rec.Size})
	if b.opts.Stats != nil {
		b.opts.Stats.AddFilesAdded(1)
		b.opts.Stats.AddBytesRead(rec.Size)
	}
	return nil
}

// spans returns the chunk range an entry crossed, or nil if it stayed in
// its starting chunk. The tar writer is flushed first so the chunker's
// byte count is current.
func (b *Builder) spans(start int) []int {
	if err := b.tw.Flush(); err != nil {
		return nil
	}
	end := 0
	if b.opts.LastChunk != nil {
		end = b.opts.LastChunk()
	} else {
		end = b.currentChunk()
	}
	if end <= start {
		return nil
	}
	sp := make([]int, 0, end-start+1)
	for c := start; c <= end; c++ {
		sp = append(sp, c)
	}
	return sp
}

func (b *Builder) hardlinkTarget(info os.FileInfo) (string, bool) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok || st.Nlink < 2 {
		return "", false
	}
	key := inodeKey{dev: uint64(st.Dev), ino: st.Ino}
	prior, seen := b.inodes[key]
	return prior, seen
}

func (b *Builder) header(name string, info os.FileInfo, link string) (*tar.Header, error) {
	hdr, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return nil, fmt.Errorf("tar header for %s: %w", name, err)
	}
	hdr.Name = name
	return hdr, nil
}

func (b *Builder) writeDir(name string, info os.FileInfo) error {
	hdr, err := b.header(name+"/", info, "")
	if err != nil {
		return err
	}
	return b.tw.WriteHeader(hdr)
}

func (b *Builder) writeSymlink(name string, info os.FileInfo, target string) error {
	hdr, err := b.header(name, info, target)
	if err != nil {
		return err
	}
	return b.tw.WriteHeader(hdr)
}

func (b *Builder) writeHardlink(name string, info os.FileInfo, target string) error {
	hdr, err := b.header(name, info, target)
	if err != nil {
		return err
	}
	hdr.Typeflag = tar.TypeLink
	hdr.Linkname = target
	hdr.Size = 0
	return b.tw.WriteHeader(hdr)
}

// writeFile streams the file into the tar writer, hashing it in the same
// pass, and returns the sha256 checksum string.
func (b *Builder) writeFile(fsPath, name string, info os.FileInfo) (string, error) {
	hdr, err := b.header(name, info, "")
	if err != nil {
		return "", err
	}
	if err := b.tw.WriteHeader(hdr); err != nil {
		return "", err
	}

	f, err := os.Open(fsPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", fsPath, err)
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(b.tw, io.TeeReader(f, h))
	if err != nil {
		return "", fmt.Errorf("archive %s: %w", fsPath, err)
	}
	if n != hdr.Size {
		return "", fmt.Errorf("archive %s: size changed during read (%d != %d)", fsPath, n, hdr.Size)
	}

	if st, ok := info.Sys().(*syscall.Stat_t); ok && st.Nlink > 1 {
		b.inodes[inodeKey{dev: uint64(st.Dev), ino: st.Ino}] = name
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil)), nil
}

// CleanArchivePath normalizes a tar entry name: forward slashes, no
// leading slash, no parent-directory escapes. ok is false when the path
// cannot be made safe.
func CleanArchivePath(name string) (string, bool) {
	name = filepath.ToSlash(name)
	name = strings.TrimPrefix(name, "/")
	name = strings.TrimSuffix(name, "/")
	if name == "" || name == "." {
		return "", false
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return "", false
		}
	}
	return name, true
}
