package tarstream

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ectar/ectar/internal/event"
	"github.com/ectar/ectar/internal/filter"
	"github.com/ectar/ectar/internal/stats"
)

// StreamError marks a malformed or truncated tar stream.
type StreamError struct {
	Err error
}

func (e *StreamError) Error() string { return fmt.Sprintf("tar stream: %v", e.Err) }
func (e *StreamError) Unwrap() error { return e.Err }

// Failure records one entry that could not be extracted.
type Failure struct {
	Path string
	Err  error
}

// ExtractResult summarizes an extraction pass.
type ExtractResult struct {
	Entries  int // entries restored
	Files    int
	Dirs     int
	Symlinks int
	Failed   []Failure
}

// Extractor unpacks a tar stream into an output directory, honoring the
// include/exclude chain and strip-components. In partial mode a
// truncated stream ends extraction cleanly instead of failing: entries
// that fit entirely within the surviving prefix are restored.
type Extractor struct {
	OutDir          string
	Filter          *filter.Chain
	StripComponents int
	Partial         bool

	Events chan<- event.Event
	Stats  *stats.Collector
}

type dirTimes struct {
	path string
	hdr  *tar.Header
}

// Run consumes the stream until EOF. Entry-level failures (permission,
// unsupported type) are recorded, not fatal; stream-level corruption is
// fatal unless Partial is set.
func (e *Extractor) Run(r io.Reader) (ExtractResult, error) {
	var res ExtractResult
	if err := os.MkdirAll(e.OutDir, 0o755); err != nil {
		return res, err
	}

	tr := tar.NewReader(r)
	var dirs []dirTimes

	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if e.Partial {
				slog.Warn("tar stream ended early", "error", err)
				break
			}
			return res, &StreamError{Err: err}
		}

		name, ok := CleanArchivePath(hdr.Name)
		if !ok {
			slog.Warn("skipping unsafe entry path", "path", hdr.Name)
			continue
		}

		isDir := hdr.Typeflag == tar.TypeDir
		if e.Filter != nil && !e.Filter.Match(name, isDir) {
			continue
		}

		stripped, ok := e.strip(name)
		if !ok {
			continue
		}
		dst := filepath.Join(e.OutDir, filepath.FromSlash(stripped))

		if err := e.restore(tr, hdr, name, stripped, dst, &res, &dirs); err != nil {
			if e.Partial && isStreamTruncation(err) {
				slog.Warn("entry truncated, ending partial extraction", "path", name)
				e.fail(&res, name, err)
				break
			}
			e.fail(&res, name, err)
			continue
		}

		res.Entries++
		event.Emit(e.Events, event.Event{Type: event.FileExtracted, Path: name, Size: hdr.Size})
		if e.Stats != nil {
			e.Stats.AddFilesExtracted(1)
		}
	}

	// Directory times are applied deepest-first, after their contents
	// stopped mutating them.
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i].path) > len(dirs[j].path) })
	for _, d := range dirs {
		if err := os.Chtimes(d.path, d.hdr.AccessTime, d.hdr.ModTime); err != nil {
			slog.Debug("set directory times", "path", d.path, "error", err)
		}
	}

	return res, nil
}

func (e *Extractor) strip(name string) (string, bool) {
	if e.StripComponents == 0 {
		return name, true
	}
	parts := strings.Split(name, "/")
	if len(parts) <= e.StripComponents {
		return "", false
	}
	return strings.Join(parts[e.StripComponents:], "/"), true
}

func (e *Extractor) fail(res *ExtractResult, name string, err error) {
	res.Failed = append(res.Failed, Failure{Path: name, Err: err})
	event.Emit(e.Events, event.Event{Type: event.FileFailed, Path: name, Error: err})
	if e.Stats != nil {
		e.Stats.AddFilesFailed(1)
	}
}

func (e *Extractor) restore(tr *tar.Reader, hdr *tar.Header, name, stripped, dst string,
	res *ExtractResult, dirs *[]dirTimes) error {
	if parent := filepath.Dir(dst); parent != "." {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return err
		}
	}

	switch hdr.Typeflag {
	case tar.TypeDir:
		if err := os.MkdirAll(dst, hdr.FileInfo().Mode().Perm()); err != nil {
			return err
		}
		if err := os.Chmod(dst, hdr.FileInfo().Mode().Perm()); err != nil {
			return err
		}
		*dirs = append(*dirs, dirTimes{path: dst, hdr: hdr})
		res.Dirs++
		return nil

	case tar.TypeReg:
		f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, hdr.FileInfo().Mode().Perm())
		if err != nil {
			return err
		}
		n, err := io.Copy(f, tr)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
		if n != hdr.Size {
			return &StreamError{Err: fmt.Errorf("short entry %s: %d of %d bytes", name, n, hdr.Size)}
		}
		if err := os.Chmod(dst, hdr.FileInfo().Mode().Perm()); err != nil {
			return err
		}
		if err := os.Chtimes(dst, hdr.AccessTime, hdr.ModTime); err != nil {
			slog.Debug("set file times", "path", dst, "error", err)
		}
		res.Files++
		return nil

	case tar.TypeSymlink:
		os.Remove(dst)
		if err := os.Symlink(hdr.Linkname, dst); err != nil {
			return err
		}
		res.Symlinks++
		return nil

	case tar.TypeLink:
		target, ok := CleanArchivePath(hdr.Linkname)
		if !ok {
			return fmt.Errorf("unsafe hardlink target %q", hdr.Linkname)
		}
		strippedTarget, ok := e.strip(target)
		if !ok {
			return fmt.Errorf("hardlink target %q stripped away", target)
		}
		os.Remove(dst)
		if err := os.Link(filepath.Join(e.OutDir, filepath.FromSlash(strippedTarget)), dst); err != nil {
			return err
		}
		res.Files++
		return nil

	default:
		return fmt.Errorf("unsupported entry type %q", hdr.Typeflag)
	}
}

// isStreamTruncation distinguishes a cut-off stream from an entry-local
// problem; only the former ends a partial extraction.
func isStreamTruncation(err error) bool {
	var se *StreamError
	if errors.As(err, &se) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF)
}
