package importer

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/errgroup"

	"github.com/meigma/unitypackage"
	"github.com/meigma/unitypackage/config"
)

// Index is the subset of *unitypackage.Index used by the Importer.
type Index interface {
	ByGUID(guid string) (*unitypackage.Record, error)
	ByExtensions(exts ...string) iter.Seq[*unitypackage.Record]
	Records() iter.Seq[*unitypackage.Record]
}

// Asset describes the record behind one Handler call. Its values are read
// before the handler runs, so handlers never touch the shared Index.
type Asset struct {
	GUID     string
	Pathname string
	Basename string
	Kind     Kind
	Size     int64
	Digest   digest.Digest
}

// Handler consumes one asset. path names a temporary copy of the asset
// payload that is removed when Handler returns. Handlers may run
// concurrently with each other.
type Handler func(ctx context.Context, asset Asset, path string) error

// Stats reports the outcome of an Import or ExtractTo call.
type Stats struct {
	// FileCount is the number of assets processed.
	FileCount int

	// TotalBytes is the total payload size of processed assets.
	TotalBytes uint64

	// Skipped is the number of assets left untouched because their
	// destination already existed.
	Skipped int
}

// Importer hands the assets of an Index to handlers and to disk.
type Importer struct {
	idx      Index
	textures []string
	models   []string
	kinds    map[string]Kind
	workers  int
	tempDir  string
	progress ProgressFunc
	logger   *slog.Logger

	// mu serializes record reads; records are single-reader.
	mu sync.Mutex
}

// Option configures an Importer.
type Option func(*Importer)

// WithTextureExtensions replaces the extensions classified as textures.
func WithTextureExtensions(exts ...string) Option {
	return func(im *Importer) {
		im.textures = exts
	}
}

// WithModelExtensions replaces the extensions classified as models.
func WithModelExtensions(exts ...string) Option {
	return func(im *Importer) {
		im.models = exts
	}
}

// WithWorkers sets the number of handlers run in parallel.
// Values <= 0 use runtime.NumCPU.
func WithWorkers(n int) Option {
	return func(im *Importer) {
		im.workers = n
	}
}

// WithTempDir sets the directory for temporary handoff files.
func WithTempDir(dir string) Option {
	return func(im *Importer) {
		im.tempDir = dir
	}
}

// WithProgress sets a callback for progress updates.
func WithProgress(fn ProgressFunc) Option {
	return func(im *Importer) {
		im.progress = fn
	}
}

// WithLogger sets the logger for import diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(im *Importer) {
		im.logger = logger
	}
}

// New creates an Importer over idx. Extension sets default to
// config.Default.
func New(idx Index, opts ...Option) *Importer {
	defaults := config.Default()
	im := &Importer{
		idx:      idx,
		textures: defaults.TextureExtensions,
		models:   defaults.ModelExtensions,
	}
	for _, opt := range opts {
		opt(im)
	}
	if im.workers <= 0 {
		im.workers = runtime.NumCPU()
	}
	im.kinds = make(map[string]Kind, len(im.textures)+len(im.models))
	for _, ext := range im.textures {
		im.kinds[ext] = KindTexture
	}
	for _, ext := range im.models {
		if _, ok := im.kinds[ext]; !ok {
			im.kinds[ext] = KindModel
		}
	}
	return im
}

// log returns the logger, falling back to a discard logger if nil.
func (im *Importer) log() *slog.Logger {
	if im.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return im.logger
}

func (im *Importer) emit(ev ProgressEvent) {
	if im.progress != nil {
		im.progress(ev)
	}
}

// KindOf classifies an extension such as ".png".
func (im *Importer) KindOf(ext string) Kind {
	return im.kinds[ext]
}

// Extensions returns the extensions classified as kind.
func (im *Importer) Extensions(kind Kind) []string {
	switch kind {
	case KindTexture:
		return append([]string(nil), im.textures...)
	case KindModel:
		return append([]string(nil), im.models...)
	default:
		return nil
	}
}

// Importable returns an iterator over the records whose extension is a
// texture or model extension, in index order.
func (im *Importer) Importable() iter.Seq[*unitypackage.Record] {
	exts := make([]string, 0, len(im.kinds))
	for ext := range im.kinds {
		exts = append(exts, ext)
	}
	return im.idx.ByExtensions(exts...)
}

// loaded is a record whose fields have been read under the lock.
type loaded struct {
	pathname string
	basename string
	ext      string
	asset    []byte
	meta     string
	hasMeta  bool
}

// load reads the fields needed to hand off rec. Reads are serialized
// across all goroutines of the Importer.
func (im *Importer) load(rec *unitypackage.Record, withMeta bool) (*loaded, error) {
	im.mu.Lock()
	defer im.mu.Unlock()

	l := &loaded{}
	var err error
	if l.pathname, err = rec.Pathname(); err != nil {
		return nil, err
	}
	if l.basename, err = rec.Basename(); err != nil {
		return nil, err
	}
	if l.ext, err = rec.Extension(); err != nil {
		return nil, err
	}
	if l.asset, err = rec.Asset(); err != nil {
		return nil, err
	}
	if withMeta && rec.Has(unitypackage.FieldAssetMeta) {
		if l.meta, err = rec.AssetMeta(); err != nil {
			return nil, err
		}
		l.hasMeta = true
	}
	return l, nil
}

// resolve looks up guids, dropping duplicates. An unknown GUID fails the
// whole call before any work starts.
func (im *Importer) resolve(guids []string) ([]*unitypackage.Record, error) {
	recs := make([]*unitypackage.Record, 0, len(guids))
	seen := make(map[string]struct{}, len(guids))
	for _, guid := range guids {
		if _, ok := seen[guid]; ok {
			continue
		}
		seen[guid] = struct{}{}
		rec, err := im.idx.ByGUID(guid)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// counters accumulates Stats and progress across workers.
type counters struct {
	files   atomic.Int64
	bytes   atomic.Uint64
	skipped atomic.Int64
}

func (c *counters) stats() Stats {
	return Stats{
		FileCount:  int(c.files.Load()),
		TotalBytes: c.bytes.Load(),
		Skipped:    int(c.skipped.Load()),
	}
}

// run applies fn to every record with bounded parallelism.
// Scheduling stops at the first error or when ctx is canceled.
func (im *Importer) run(ctx context.Context, recs []*unitypackage.Record, fn func(ctx context.Context, rec *unitypackage.Record) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(im.workers)
	for _, rec := range recs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, rec)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// Import hands the asset of each record in guids to handler through a
// scoped temporary file.
//
// Handlers run in parallel up to the configured worker count. The first
// handler error cancels the remaining work and is returned. An unknown
// GUID fails with unitypackage.ErrNotFound before any handler runs.
func (im *Importer) Import(ctx context.Context, guids []string, handler Handler) (Stats, error) {
	recs, err := im.resolve(guids)
	if err != nil {
		return Stats{}, err
	}

	var c counters
	total := len(recs)
	err = im.run(ctx, recs, func(ctx context.Context, rec *unitypackage.Record) error {
		l, err := im.load(rec, false)
		if err != nil {
			return err
		}
		im.log().Debug("importing asset", "guid", rec.GUID(), "path", l.pathname, "bytes", len(l.asset))

		asset := Asset{
			GUID:     rec.GUID(),
			Pathname: l.pathname,
			Basename: l.basename,
			Kind:     im.KindOf(l.ext),
			Size:     int64(len(l.asset)),
			Digest:   digest.FromBytes(l.asset),
		}
		err = WithTempFile(im.tempDir, l.basename, l.asset, func(path string) error {
			return handler(ctx, asset, path)
		})
		if err != nil {
			return fmt.Errorf("import %s (%s): %w", l.pathname, rec.GUID(), err)
		}

		done := c.files.Add(1)
		bytesDone := c.bytes.Add(uint64(len(l.asset)))
		im.emit(ProgressEvent{
			Stage:      StageImporting,
			Path:       l.pathname,
			BytesDone:  bytesDone,
			FilesDone:  int(done),
			FilesTotal: total,
		})
		return nil
	})
	return c.stats(), err
}
