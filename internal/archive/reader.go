package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Member describes one entry in the container.
//
// Offset and Size locate the member's content in the (decompressed) tar
// stream. A Member stays valid for the lifetime of the Reader that produced it.
type Member struct {
	// Name is the slash-separated member name. Directory names have their
	// trailing "/" removed.
	Name string

	// Size is the content length in bytes.
	Size int64

	// Offset is the byte offset of the content in the tar stream.
	Offset int64

	// Mode holds the member's type and permission bits.
	Mode fs.FileMode

	// ModTime is the member's modification time.
	ModTime time.Time
}

// Regular reports whether the member is a regular file.
func (m Member) Regular() bool {
	return m.Mode.IsRegular()
}

// Reader provides a single forward scan over a tar container and
// range reads of individual members.
//
// A Reader is not safe for concurrent scans. Extract uses positional reads
// and may be called from several goroutines once the scan has finished.
type Reader struct {
	path          string
	src           *os.File
	size          int64
	format        Format
	spoolPath     string
	spoolDir      string
	maxSpoolSize  uint64
	maxMemberSize int64
	consumed      bool
	closed        bool
	logger        *slog.Logger
}

// Option configures a Reader.
type Option func(*Reader)

// WithLogger sets the logger for archive operations.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reader) {
		r.logger = logger
	}
}

// WithSpoolDir sets the directory that holds decompressed spool files.
// The default is os.TempDir.
func WithSpoolDir(dir string) Option {
	return func(r *Reader) {
		r.spoolDir = dir
	}
}

// WithMaxSpoolSize limits the decompressed size of a compressed container.
// Set limit to 0 to disable the limit.
func WithMaxSpoolSize(limit uint64) Option {
	return func(r *Reader) {
		r.maxSpoolSize = limit
	}
}

// WithMaxMemberSize limits the size of a single extracted member.
// Set limit to 0 to disable the limit.
func WithMaxMemberSize(limit int64) Option {
	return func(r *Reader) {
		r.maxMemberSize = limit
	}
}

// log returns the logger, falling back to a discard logger if nil.
func (r *Reader) log() *slog.Logger {
	if r.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.logger
}

// Open opens the container at path and validates that it holds a tar stream.
//
// Open fails with ErrNotFound if path does not exist and with
// ErrInvalidFormat if the file is not a tar container, optionally
// compressed with gzip, zstd or lz4.
func Open(path string, opts ...Option) (*Reader, error) {
	r := &Reader{path: path}
	for _, opt := range opts {
		opt(r)
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	if info.IsDir() {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fmt.Errorf("%w: is a directory", ErrInvalidFormat)}
	}

	f, err := os.Open(path) //nolint:gosec // caller chooses the archive
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}

	var head [sniffLen]byte
	n, err := f.ReadAt(head[:], 0)
	if err != nil && !errors.Is(err, io.EOF) {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	r.format = DetectFormat(head[:n])

	if r.format.Compressed() {
		spool, size, spoolErr := r.spool(f, info.Size())
		_ = f.Close()
		if spoolErr != nil {
			return nil, spoolErr
		}
		r.src = spool
		r.spoolPath = spool.Name()
		r.size = size
	} else {
		r.src = f
		r.size = info.Size()
	}

	if err := r.validate(); err != nil {
		_ = r.Close()
		return nil, err
	}

	r.log().Debug("archive opened", "path", path, "format", r.format.String(), "size", r.size)
	return r, nil
}

// spool decompresses the container into a temporary file.
func (r *Reader) spool(f *os.File, size int64) (*os.File, int64, error) {
	start := time.Now()
	dec, release, err := decoder(r.format, io.NewSectionReader(f, 0, size))
	if err != nil {
		return nil, 0, &fs.PathError{Op: "open", Path: r.path, Err: fmt.Errorf("%w: %s: %w", ErrInvalidFormat, r.format, err)}
	}
	defer release()

	tmp, err := os.CreateTemp(r.spoolDir, "unitypackage-*.tar")
	if err != nil {
		return nil, 0, fmt.Errorf("%w: create spool file: %w", ErrIO, err)
	}
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	cw := &CountingWriter{W: tmp, Limit: r.maxSpoolSize}
	if _, err := io.Copy(cw, dec); err != nil {
		switch {
		case errors.Is(err, ErrSizeOverflow), errors.Is(err, ErrOverflow):
			return nil, 0, fmt.Errorf("%w: decompressed %s exceeds %d bytes", ErrSizeOverflow, r.path, r.maxSpoolSize)
		case cw.Err != nil:
			return nil, 0, fmt.Errorf("%w: write spool file: %w", ErrIO, cw.Err)
		default:
			return nil, 0, &fs.PathError{Op: "open", Path: r.path, Err: fmt.Errorf("%w: %s: %w", ErrInvalidFormat, r.format, err)}
		}
	}

	success = true
	//nolint:gosec // N is bounded by the file system
	spooled := int64(cw.N)
	r.log().Debug("archive spooled",
		"path", r.path,
		"format", r.format.String(),
		"bytes", spooled,
		"duration", time.Since(start))
	return tmp, spooled, nil
}

// validate checks that the stream starts with a parseable tar header.
func (r *Reader) validate() error {
	if r.size == 0 {
		return &fs.PathError{Op: "open", Path: r.path, Err: fmt.Errorf("%w: empty file", ErrInvalidFormat)}
	}
	tr := tar.NewReader(io.NewSectionReader(r.src, 0, r.size))
	if _, err := tr.Next(); err != nil {
		if errors.Is(err, io.EOF) {
			return &fs.PathError{Op: "open", Path: r.path, Err: fmt.Errorf("%w: no members", ErrInvalidFormat)}
		}
		return &fs.PathError{Op: "open", Path: r.path, Err: fmt.Errorf("%w: %w", ErrInvalidFormat, err)}
	}
	return nil
}

// Path returns the path the Reader was opened with.
func (r *Reader) Path() string {
	return r.path
}

// Format returns the detected container encoding.
func (r *Reader) Format() Format {
	return r.format
}

// Size returns the size of the tar stream in bytes (after decompression).
func (r *Reader) Size() int64 {
	return r.size
}

// Members returns a single-pass iterator over the container's members in
// archive order.
//
// The scan can run once per Reader; later calls yield ErrMembersConsumed.
// A corrupt header mid-stream yields an error wrapping ErrInvalidFormat
// and ends the sequence.
func (r *Reader) Members() iter.Seq2[Member, error] {
	return func(yield func(Member, error) bool) {
		if r.closed {
			yield(Member{}, ErrClosed)
			return
		}
		if r.consumed {
			yield(Member{}, ErrMembersConsumed)
			return
		}
		r.consumed = true

		sr := io.NewSectionReader(r.src, 0, r.size)
		tr := tar.NewReader(sr)
		for {
			hdr, err := tr.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(Member{}, fmt.Errorf("%w: %s: %w", ErrInvalidFormat, r.path, err))
				return
			}

			// tar.Reader does not read ahead, so the section position is
			// the start of this member's content.
			offset, err := sr.Seek(0, io.SeekCurrent)
			if err != nil {
				yield(Member{}, fmt.Errorf("%w: %w", ErrIO, err))
				return
			}

			m := Member{
				Name:    NormalizeName(hdr.Name, hdr.Typeflag == tar.TypeDir),
				Size:    hdr.Size,
				Offset:  offset,
				Mode:    hdr.FileInfo().Mode(),
				ModTime: hdr.ModTime,
			}
			if !yield(m, nil) {
				return
			}
		}
	}
}

// Extract reads the full content of m.
//
// Extract performs I/O on every call; callers that need the content more
// than once should keep the result.
func (r *Reader) Extract(m Member) ([]byte, error) {
	if r.closed {
		return nil, ErrClosed
	}
	if m.Size < 0 || m.Offset < 0 || m.Offset > r.size-m.Size {
		return nil, fmt.Errorf("%w: member %s out of range", ErrIO, m.Name)
	}
	if r.maxMemberSize > 0 && m.Size > r.maxMemberSize {
		return nil, fmt.Errorf("%w: member %s is %d bytes", ErrSizeOverflow, m.Name, m.Size)
	}

	buf := make([]byte, m.Size)
	n, err := r.src.ReadAt(buf, m.Offset)
	if n == len(buf) {
		return buf, nil
	}
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	return nil, fmt.Errorf("%w: read %s: %w", ErrIO, m.Name, err)
}

// Close releases the container file and removes any spool file.
// Close is idempotent and always returns nil; cleanup failures are logged.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if r.src != nil {
		if err := r.src.Close(); err != nil {
			r.log().Warn("closing archive", "path", r.path, "error", err)
		}
	}
	if r.spoolPath != "" {
		if err := os.Remove(r.spoolPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			r.log().Warn("removing spool file", "path", r.spoolPath, "error", err)
		}
	}
	return nil
}

// NormalizeName returns the member name as the index sees it. Directory
// names lose their trailing "/"; every other name is kept verbatim, so a
// "./" prefix still counts as a path segment.
func NormalizeName(name string, dir bool) string {
	if dir {
		return strings.TrimRight(name, "/")
	}
	return name
}
