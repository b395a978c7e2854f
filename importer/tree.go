package importer

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/meigma/unitypackage"
)

// Item is one row of the selection tree built by Prepare.
type Item struct {
	// GUID is the record's GUID, or "" for a directory row.
	GUID string

	// Name is the directory name or the asset's basename.
	Name string

	// Kind is KindDirectory for directory rows.
	Kind Kind

	// Depth is the nesting level, starting at 0.
	Depth int
}

// IsDir reports whether the item is a directory row.
func (it Item) IsDir() bool {
	return it.Kind == KindDirectory
}

type treeAsset struct {
	dir  string
	base string
	kind Kind
	rec  *unitypackage.Record
}

// Prepare lists the importable assets of the index as a flattened
// directory tree.
//
// Each importable record appears once, with the kind KindOf assigns to its
// extension. Assets are ordered by directory, then basename, then kind.
// A directory row is emitted for every path component that differs from
// the previous asset's directory, so each asset follows the rows of all
// its parent directories.
func (im *Importer) Prepare() ([]Item, error) {
	start := time.Now()

	assets, err := im.treeAssets()
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(assets, func(a, b treeAsset) int {
		return cmp.Or(
			strings.Compare(a.dir, b.dir),
			strings.Compare(a.base, b.base),
			cmp.Compare(a.kind, b.kind),
		)
	})

	items := make([]Item, 0, len(assets))
	var prev []string
	for i, a := range assets {
		dirs := pathParts(a.dir)
		changed := false
		for depth, name := range dirs {
			if changed || depth >= len(prev) || prev[depth] != name {
				changed = true
				items = append(items, Item{Name: name, Kind: KindDirectory, Depth: depth})
			}
		}
		prev = dirs

		items = append(items, Item{GUID: a.rec.GUID(), Name: a.base, Kind: a.kind, Depth: len(dirs)})
		im.emit(ProgressEvent{Stage: StagePreparing, FilesDone: i + 1, FilesTotal: len(assets)})
	}

	im.log().Debug("prepared import tree", "assets", len(assets), "rows", len(items), "duration", time.Since(start))
	return items, nil
}

// treeAssets lists each importable record once, classified by KindOf.
func (im *Importer) treeAssets() ([]treeAsset, error) {
	im.mu.Lock()
	defer im.mu.Unlock()

	var assets []treeAsset
	for rec := range im.Importable() {
		ext, err := rec.Extension()
		if err != nil {
			return nil, err
		}
		dir, err := rec.Dirname()
		if err != nil {
			return nil, err
		}
		base, err := rec.Basename()
		if err != nil {
			return nil, err
		}
		assets = append(assets, treeAsset{dir: dir, base: base, kind: im.KindOf(ext), rec: rec})
	}
	return assets, nil
}

// pathParts splits a slash-separated directory into its components.
// A leading "/" is kept as the first component; empty and "." components
// are dropped.
func pathParts(dir string) []string {
	var parts []string
	if strings.HasPrefix(dir, "/") {
		parts = append(parts, "/")
	}
	for part := range strings.SplitSeq(dir, "/") {
		if part == "" || part == "." {
			continue
		}
		parts = append(parts, part)
	}
	return parts
}
