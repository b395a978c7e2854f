package unitypackage

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/meigma/unitypackage/internal/archive"
)

// Member roles inside a GUID directory.
const (
	rolePathname  = "pathname"
	roleAsset     = "asset"
	roleAssetMeta = "asset.meta"
	rolePreview   = "preview.png"
)

// Source supplies the members of a package and reads their content.
//
// Members is consumed exactly once, during Build.
type Source interface {
	Extractor
	Members() iter.Seq2[Member, error]
}

// BuildStats summarizes a build pass.
type BuildStats struct {
	// Members is the number of container members scanned.
	Members int

	// Records is the number of records retained in the index.
	Records int

	// Dropped is the number of GUID groups discarded for lacking a
	// pathname or an asset.
	Dropped int

	// Anomalies is the number of members with an unrecognized role.
	Anomalies int

	// Duration is the wall time of the build pass.
	Duration time.Duration
}

// Index maps GUIDs to the Records of one package.
//
// The set of records is fixed once built. Individual records still
// transition fields from unextracted to extracted as they are read.
type Index struct {
	src           Source
	records       map[string]*Record
	order         []string
	stats         BuildStats
	closed        bool
	logger        *slog.Logger
	maxAnomalies  int
	spoolDir      string
	maxSpoolSize  uint64
	maxMemberSize int64
}

// log returns the logger, falling back to a discard logger if nil.
func (idx *Index) log() *slog.Logger {
	if idx.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return idx.logger
}

// Open opens the package at path and builds its index.
//
// Open fails with ErrNotFound when path does not exist, ErrInvalidFormat
// when it is not a tar container and ErrMalformedArchive when members do
// not follow the GUID/role layout. The archive stays open until Close.
func Open(path string, opts ...Option) (*Index, error) {
	cfg := &Index{}
	for _, opt := range opts {
		opt(cfg)
	}

	archiveOpts := []archive.Option{
		archive.WithSpoolDir(cfg.spoolDir),
		archive.WithMaxSpoolSize(cfg.maxSpoolSize),
		archive.WithMaxMemberSize(cfg.maxMemberSize),
	}
	if cfg.logger != nil {
		archiveOpts = append(archiveOpts, archive.WithLogger(cfg.logger))
	}
	ar, err := archive.Open(path, archiveOpts...)
	if err != nil {
		return nil, err
	}

	idx, err := Build(ar, opts...)
	if err != nil {
		_ = ar.Close()
		return nil, err
	}
	return idx, nil
}

// Build scans src once and indexes every GUID group that has both a
// pathname and an asset member.
//
// A member nested deeper than <guid>/<role> fails the build with
// ErrMalformedArchive, as does a role repeated within one GUID group.
// Unrecognized roles are logged and skipped. On failure no index is
// returned and src is left open.
func Build(src Source, opts ...Option) (*Index, error) {
	idx := &Index{
		src:     src,
		records: make(map[string]*Record),
	}
	for _, opt := range opts {
		opt(idx)
	}

	start := time.Now()
	idx.log().Info("indexing asset entries")

	var order []string
	for m, err := range src.Members() {
		if err != nil {
			return nil, fmt.Errorf("build index: %w", err)
		}
		idx.stats.Members++

		segments := strings.Split(m.Name, "/")
		switch {
		case len(segments) < 2:
			// Top-level GUID directories and stray files carry no fields.
			continue
		case len(segments) > 2:
			return nil, fmt.Errorf("%w: member %q is nested %d levels deep, expected 2",
				ErrMalformedArchive, m.Name, len(segments))
		}

		guid, role := segments[0], segments[1]
		rec, ok := idx.records[guid]
		if !ok {
			rec = newRecord(guid, src)
			idx.records[guid] = rec
			order = append(order, guid)
		}

		if err := idx.dispatch(rec, role, m); err != nil {
			return nil, err
		}
	}

	idx.order = make([]string, 0, len(order))
	for _, guid := range order {
		if idx.records[guid].Has(FieldPathname, FieldAsset) {
			idx.order = append(idx.order, guid)
			continue
		}
		delete(idx.records, guid)
		idx.stats.Dropped++
	}
	idx.stats.Records = len(idx.order)
	idx.stats.Duration = time.Since(start)

	idx.log().Info("indexing complete",
		"records", idx.stats.Records,
		"members", idx.stats.Members,
		"dropped", idx.stats.Dropped,
		"anomalies", idx.stats.Anomalies,
		"duration", idx.stats.Duration)
	return idx, nil
}

// dispatch stores member m on rec according to its role.
func (idx *Index) dispatch(rec *Record, role string, m Member) error {
	if !m.Regular() {
		return idx.anomaly(role, m)
	}

	var err error
	switch role {
	case rolePathname:
		if err = rec.set(FieldPathname, m); err == nil {
			err = rec.setText(FieldGUID, rec.guid)
		}
	case roleAsset:
		err = rec.set(FieldAsset, m)
	case roleAssetMeta:
		err = rec.set(FieldAssetMeta, m)
	case rolePreview:
		return nil
	default:
		return idx.anomaly(role, m)
	}
	if err != nil {
		return fmt.Errorf("%w: member %q: %w", ErrMalformedArchive, m.Name, err)
	}
	return nil
}

// anomaly records a member whose role is not part of the package layout.
func (idx *Index) anomaly(role string, m Member) error {
	idx.stats.Anomalies++
	idx.log().Warn("unknown key in asset entry", "role", role, "member", m.Name)
	if idx.maxAnomalies > 0 && idx.stats.Anomalies > idx.maxAnomalies {
		return fmt.Errorf("%w: more than %d unrecognized members", ErrMalformedArchive, idx.maxAnomalies)
	}
	return nil
}

// Stats returns a summary of the build pass.
func (idx *Index) Stats() BuildStats {
	return idx.stats
}

// Len returns the number of records in the index.
func (idx *Index) Len() int {
	return len(idx.order)
}

// GUIDs returns the GUIDs of all records in build order.
func (idx *Index) GUIDs() []string {
	out := make([]string, len(idx.order))
	copy(out, idx.order)
	return out
}

// ByGUID returns the record for guid or an error wrapping ErrNotFound.
func (idx *Index) ByGUID(guid string) (*Record, error) {
	rec, ok := idx.records[guid]
	if !ok {
		return nil, fmt.Errorf("%w: guid %q", ErrNotFound, guid)
	}
	return rec, nil
}

// Records returns an iterator over all records in build order.
func (idx *Index) Records() iter.Seq[*Record] {
	return func(yield func(*Record) bool) {
		for _, guid := range idx.order {
			if !yield(idx.records[guid]) {
				return
			}
		}
	}
}

// ByExtension returns an iterator over records whose pathname ends in ext
// (for example ".png"). Matching is case-sensitive.
func (idx *Index) ByExtension(ext string) iter.Seq[*Record] {
	return idx.ByExtensions(ext)
}

// ByExtensions returns an iterator over records whose pathname extension
// is any of exts, in build order.
//
// Each call scans the built index afresh. Reading a pathname extracts it
// on first use; a record whose pathname cannot be read is logged and
// skipped rather than ending the iteration.
func (idx *Index) ByExtensions(exts ...string) iter.Seq[*Record] {
	want := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		want[ext] = struct{}{}
	}
	return func(yield func(*Record) bool) {
		if len(want) == 0 {
			return
		}
		for _, guid := range idx.order {
			rec := idx.records[guid]
			ext, err := rec.Extension()
			if err != nil {
				idx.log().Warn("skipping record", "guid", guid, "error", err)
				continue
			}
			if _, ok := want[ext]; !ok {
				continue
			}
			if !yield(rec) {
				return
			}
		}
	}
}

// Close releases the underlying archive. Close is idempotent and never
// fails; after Close, reading unextracted fields fails with ErrClosed.
func (idx *Index) Close() error {
	if idx.closed {
		return nil
	}
	idx.closed = true
	if c, ok := idx.src.(io.Closer); ok {
		if err := c.Close(); err != nil && !errors.Is(err, ErrClosed) {
			idx.log().Warn("closing package", "error", err)
		}
	}
	return nil
}
