package importer

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/unitypackage"
)

// metaSuffix is appended to an asset's path for its sidecar file.
const metaSuffix = ".meta"

// ExtractOption configures ExtractTo.
type ExtractOption func(*extractConfig)

type extractConfig struct {
	overwrite bool
	meta      bool
}

// ExtractWithOverwrite allows replacing existing files.
// By default, existing files are skipped.
func ExtractWithOverwrite(overwrite bool) ExtractOption {
	return func(c *extractConfig) {
		c.overwrite = overwrite
	}
}

// ExtractWithMeta writes the asset.meta text next to each asset as
// "<pathname>.meta" when the record has one.
func ExtractWithMeta(meta bool) ExtractOption {
	return func(c *extractConfig) {
		c.meta = meta
	}
}

// ExtractedFile describes one asset written by ExtractTo.
type ExtractedFile struct {
	GUID   string
	Path   string
	Size   int64
	Digest digest.Digest
}

// ExtractResult is the outcome of ExtractTo.
type ExtractResult struct {
	Stats Stats

	// Files lists the written assets in the order of the guids argument.
	// Skipped assets are not listed.
	Files []ExtractedFile
}

// ExtractTo writes the asset of each record in guids to dest/<pathname>.
// A nil guids extracts every record of the index.
//
// Files are written to a temporary name and renamed into place, so a
// partially written asset is never visible at its final path. All
// pathnames are validated before anything is written; a pathname that is
// absolute or escapes dest fails with fs.ErrInvalid, and two selected
// records that would write the same file fail with fs.ErrExist.
//
// Without ExtractWithOverwrite, an existing asset file skips the record and
// an existing sidecar is left as it is.
func (im *Importer) ExtractTo(ctx context.Context, dest string, guids []string, opts ...ExtractOption) (*ExtractResult, error) {
	var cfg extractConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	if guids == nil {
		for rec := range im.idx.Records() {
			guids = append(guids, rec.GUID())
		}
	}
	recs, err := im.resolve(guids)
	if err != nil {
		return nil, err
	}

	if err := im.checkTargets(recs, cfg.meta); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dest, 0o750); err != nil {
		return nil, fmt.Errorf("create destination %s: %w", dest, err)
	}
	root, err := os.OpenRoot(dest)
	if err != nil {
		return nil, fmt.Errorf("open destination root %s: %w", dest, err)
	}
	defer root.Close()

	var (
		c     counters
		mu    sync.Mutex
		files = make([]*ExtractedFile, len(recs))
		pos   = make(map[*unitypackage.Record]int, len(recs))
	)
	for i, rec := range recs {
		pos[rec] = i
	}

	total := len(recs)
	err = im.run(ctx, recs, func(_ context.Context, rec *unitypackage.Record) error {
		l, err := im.load(rec, cfg.meta)
		if err != nil {
			return err
		}
		rel := filepath.FromSlash(l.pathname)

		if !cfg.overwrite {
			if _, err := root.Lstat(rel); err == nil {
				c.skipped.Add(1)
				im.log().Debug("skipping existing file", "path", l.pathname)
				return nil
			}
		}

		if err := writeFileAtomic(root, rel, l.asset, cfg.overwrite); err != nil {
			return fmt.Errorf("extract %s: %w", l.pathname, err)
		}
		if l.hasMeta {
			if err := im.writeMeta(root, rel, l, cfg.overwrite); err != nil {
				return err
			}
		}

		f := &ExtractedFile{
			GUID:   rec.GUID(),
			Path:   l.pathname,
			Size:   int64(len(l.asset)),
			Digest: digest.FromBytes(l.asset),
		}
		mu.Lock()
		files[pos[rec]] = f
		mu.Unlock()

		done := c.files.Add(1)
		bytesDone := c.bytes.Add(uint64(len(l.asset)))
		im.emit(ProgressEvent{
			Stage:      StageExtracting,
			Path:       l.pathname,
			BytesDone:  bytesDone,
			FilesDone:  int(done),
			FilesTotal: total,
		})
		return nil
	})

	res := &ExtractResult{Stats: c.stats()}
	for _, f := range files {
		if f != nil {
			res.Files = append(res.Files, *f)
		}
	}
	if err != nil {
		return res, err
	}
	im.log().Info("extraction complete",
		"dest", dest,
		"files", res.Stats.FileCount,
		"skipped", res.Stats.Skipped,
		"bytes", res.Stats.TotalBytes)
	return res, nil
}

// checkTargets validates the destination of every record before anything
// is written. Sidecar names take part when meta is set.
func (im *Importer) checkTargets(recs []*unitypackage.Record, meta bool) error {
	im.mu.Lock()
	defer im.mu.Unlock()

	owners := make(map[string]string, len(recs))
	claim := func(target, guid string) error {
		if prev, ok := owners[target]; ok {
			return &fs.PathError{Op: "extract", Path: target, Err: fmt.Errorf("%w: written by both %s and %s", fs.ErrExist, prev, guid)}
		}
		owners[target] = guid
		return nil
	}

	for _, rec := range recs {
		p, err := rec.Pathname()
		if err != nil {
			return err
		}
		if !fs.ValidPath(p) || p == "." {
			return &fs.PathError{Op: "extract", Path: p, Err: fs.ErrInvalid}
		}
		if err := claim(p, rec.GUID()); err != nil {
			return err
		}
		if meta && rec.Has(unitypackage.FieldAssetMeta) {
			if err := claim(p+metaSuffix, rec.GUID()); err != nil {
				return err
			}
		}
	}
	return nil
}

// writeMeta writes the sidecar of l next to its asset at rel. An existing
// sidecar is kept unless overwrite is set.
func (im *Importer) writeMeta(root *os.Root, rel string, l *loaded, overwrite bool) error {
	metaRel := rel + metaSuffix
	if !overwrite {
		if _, err := root.Lstat(metaRel); err == nil {
			im.log().Debug("keeping existing sidecar", "path", l.pathname+metaSuffix)
			return nil
		}
	}
	if err := writeFileAtomic(root, metaRel, []byte(l.meta), overwrite); err != nil {
		return fmt.Errorf("extract %s%s: %w", l.pathname, metaSuffix, err)
	}
	return nil
}

// writeFileAtomic writes data to rel under root through a temp file in the
// same directory and renames it into place.
func writeFileAtomic(root *os.Root, rel string, data []byte, overwrite bool) error {
	if err := root.MkdirAll(filepath.Dir(rel), 0o750); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, tmpRel, err := openPartial(root, rel)
	if err != nil {
		return err
	}
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = root.Remove(tmpRel)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	// Rename fails on Windows when the target exists. Never replace a
	// directory with a file.
	if overwrite {
		if info, err := root.Lstat(rel); err == nil {
			if info.IsDir() {
				return &fs.PathError{Op: "extract", Path: rel, Err: errors.New("is a directory")}
			}
			_ = root.Remove(rel)
		}
	}

	if err := root.Rename(tmpRel, rel); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	success = true
	return nil
}

// openPartial creates a hidden "<name>.<hex>.part" file beside rel.
// The random part is regenerated when the name is taken.
func openPartial(root *os.Root, rel string) (*os.File, string, error) {
	dir, name := filepath.Split(rel)
	var token [6]byte
	for range 8 {
		if _, err := rand.Read(token[:]); err != nil {
			return nil, "", fmt.Errorf("temp name for %s: %w", rel, err)
		}
		partial := filepath.Join(dir, "."+name+"."+hex.EncodeToString(token[:])+".part")
		f, err := root.OpenFile(partial, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		switch {
		case err == nil:
			return f, partial, nil
		case !errors.Is(err, fs.ErrExist):
			return nil, "", fmt.Errorf("create temp file for %s: %w", rel, err)
		}
	}
	return nil, "", fmt.Errorf("create temp file for %s: no free name", rel)
}
