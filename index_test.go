package unitypackage

import (
	"errors"
	"io/fs"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/unitypackage/internal/archive"
	"github.com/meigma/unitypackage/internal/testutil"
)

// memorySource is an in-memory Source that counts extractions.
type memorySource struct {
	names    []string
	data     map[string][]byte
	dirs     map[string]bool
	scanErr  error
	extracts map[string]int
	closed   int
}

func newMemorySource() *memorySource {
	return &memorySource{
		data:     make(map[string][]byte),
		dirs:     make(map[string]bool),
		extracts: make(map[string]int),
	}
}

func (s *memorySource) add(name string, data []byte) *memorySource {
	s.names = append(s.names, name)
	s.data[name] = data
	return s
}

func (s *memorySource) addDir(name string) *memorySource {
	s.names = append(s.names, name)
	s.dirs[name] = true
	return s
}

func (s *memorySource) Members() iter.Seq2[Member, error] {
	return func(yield func(Member, error) bool) {
		for _, name := range s.names {
			m := Member{Name: name, Size: int64(len(s.data[name])), Mode: 0o644}
			if s.dirs[name] {
				m.Mode = fs.ModeDir | 0o755
			}
			if !yield(m, nil) {
				return
			}
		}
		if s.scanErr != nil {
			yield(Member{}, s.scanErr)
		}
	}
}

func (s *memorySource) Extract(m Member) ([]byte, error) {
	s.extracts[m.Name]++
	data, ok := s.data[m.Name]
	if !ok {
		return nil, archive.ErrIO
	}
	return data, nil
}

func (s *memorySource) Close() error {
	s.closed++
	return nil
}

func guidsOf(seq iter.Seq[*Record]) []string {
	var out []string
	for rec := range seq {
		out = append(out, rec.GUID())
	}
	return out
}

// roundTripSource is the two-asset package used throughout these tests.
func roundTripSource() *memorySource {
	return newMemorySource().
		addDir("G1").
		add("G1/pathname", []byte("models/cube.fbx")).
		add("G1/asset", []byte{0x00, 0x01, 0x02}).
		add("G1/asset.meta", []byte("meta text")).
		addDir("G2").
		add("G2/asset", []byte{0xFF, 0xFE}).
		add("G2/pathname", []byte("tex/diffuse.png"))
}

func TestBuild_RoundTrip(t *testing.T) {
	t.Parallel()

	src := roundTripSource()
	idx, err := Build(src)
	require.NoError(t, err)

	assert.Equal(t, 2, idx.Len())
	assert.Equal(t, []string{"G1", "G2"}, idx.GUIDs())
	assert.Equal(t, []string{"G1"}, guidsOf(idx.ByExtension(".fbx")))
	assert.Equal(t, []string{"G1", "G2"}, guidsOf(idx.ByExtensions(".png", ".fbx")))

	g2, err := idx.ByGUID("G2")
	require.NoError(t, err)
	_, err = g2.AssetMeta()
	require.ErrorIs(t, err, ErrKeyNotSet)

	g1, err := idx.ByGUID("G1")
	require.NoError(t, err)
	meta, err := g1.AssetMeta()
	require.NoError(t, err)
	assert.Equal(t, "meta text", meta)

	asset, err := g2.Asset()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xFE}, asset)

	stats := idx.Stats()
	assert.Equal(t, 7, stats.Members)
	assert.Equal(t, 2, stats.Records)
	assert.Equal(t, 0, stats.Dropped)
}

func TestBuild_DoesNotExtract(t *testing.T) {
	t.Parallel()

	src := roundTripSource()
	idx, err := Build(src)
	require.NoError(t, err)
	assert.Empty(t, src.extracts)

	rec, err := idx.ByGUID("G1")
	require.NoError(t, err)
	assert.Equal(t, StateUnextracted, rec.State(FieldPathname))
	assert.Equal(t, StateUnextracted, rec.State(FieldAsset))
	assert.Equal(t, StateExtracted, rec.State(FieldGUID))
}

func TestRecord_ExtractOnce(t *testing.T) {
	t.Parallel()

	src := roundTripSource()
	idx, err := Build(src)
	require.NoError(t, err)

	rec, err := idx.ByGUID("G1")
	require.NoError(t, err)

	first, err := rec.Asset()
	require.NoError(t, err)
	second, err := rec.Asset()
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, src.extracts["G1/asset"])
	assert.Equal(t, StateExtracted, rec.State(FieldAsset))

	// Derived attributes read the pathname once, then reuse it.
	for range 3 {
		_, err := rec.Basename()
		require.NoError(t, err)
		_, err = rec.Extension()
		require.NoError(t, err)
	}
	assert.Equal(t, 1, src.extracts["G1/pathname"])
}

func TestBuild_DropsIncompleteGroups(t *testing.T) {
	t.Parallel()

	src := roundTripSource().
		add("G3/preview.png", []byte("png")).
		add("G4/pathname", []byte("only/path.txt")).
		add("G5/asset", []byte("only asset"))

	idx, err := Build(src)
	require.NoError(t, err)

	assert.Equal(t, []string{"G1", "G2"}, idx.GUIDs())
	for _, guid := range []string{"G3", "G4", "G5"} {
		_, err := idx.ByGUID(guid)
		require.ErrorIs(t, err, ErrNotFound, guid)
	}
	assert.Equal(t, 3, idx.Stats().Dropped)

	for rec := range idx.Records() {
		assert.True(t, rec.Has(FieldPathname, FieldAsset))
		p, err := rec.Pathname()
		require.NoError(t, err)
		assert.NotEmpty(t, p)
	}
}

func TestBuild_TooDeep(t *testing.T) {
	t.Parallel()

	src := roundTripSource().add("G3/nested/asset", []byte("x"))
	idx, err := Build(src)
	require.ErrorIs(t, err, ErrMalformedArchive)
	assert.Nil(t, idx)
	assert.Contains(t, err.Error(), "G3/nested/asset")
}

func TestBuild_DotPrefixedMember(t *testing.T) {
	t.Parallel()

	src := newMemorySource().
		addDir("./G1").
		add("./G1/pathname", []byte("models/cube.fbx")).
		add("./G1/asset", []byte("x"))
	idx, err := Build(src)
	require.ErrorIs(t, err, ErrMalformedArchive)
	assert.Nil(t, idx)
	assert.Contains(t, err.Error(), "./G1/pathname")
}

func TestBuild_DuplicateRole(t *testing.T) {
	t.Parallel()

	src := roundTripSource().add("G1/asset", []byte("again"))
	_, err := Build(src)
	require.ErrorIs(t, err, ErrDuplicateField)
	require.ErrorIs(t, err, ErrMalformedArchive)
}

func TestBuild_UnknownRoles(t *testing.T) {
	t.Parallel()

	t.Run("logged and skipped", func(t *testing.T) {
		t.Parallel()

		src := roundTripSource().
			add("G1/thumbnail.jpg", []byte("x")).
			add("G2/extra", []byte("y"))
		idx, err := Build(src)
		require.NoError(t, err)
		assert.Equal(t, 2, idx.Len())
		assert.Equal(t, 2, idx.Stats().Anomalies)
	})

	t.Run("bounded", func(t *testing.T) {
		t.Parallel()

		src := roundTripSource().
			add("G1/thumbnail.jpg", []byte("x")).
			add("G2/extra", []byte("y"))
		_, err := Build(src, WithMaxAnomalies(1))
		require.ErrorIs(t, err, ErrMalformedArchive)
	})
}

func TestBuild_ScanError(t *testing.T) {
	t.Parallel()

	src := roundTripSource()
	src.scanErr = archive.ErrInvalidFormat
	_, err := Build(src)
	require.ErrorIs(t, err, ErrInvalidFormat)
}

func TestRecord_SetTwice(t *testing.T) {
	t.Parallel()

	rec := newRecord("G1", newMemorySource())
	require.NoError(t, rec.set(FieldAsset, Member{Name: "G1/asset"}))
	err := rec.set(FieldAsset, Member{Name: "G1/asset"})
	require.ErrorIs(t, err, ErrDuplicateField)

	require.NoError(t, rec.setText(FieldGUID, "G1"))
	require.ErrorIs(t, rec.setText(FieldGUID, "G1"), ErrDuplicateField)
}

func TestRecord_Errors(t *testing.T) {
	t.Parallel()

	src := newMemorySource().
		add("G1/pathname", []byte{0xC3, 0x28}).
		add("G1/asset", []byte("payload"))
	idx, err := Build(src)
	require.NoError(t, err)

	rec, err := idx.ByGUID("G1")
	require.NoError(t, err)

	_, err = rec.Pathname()
	require.ErrorIs(t, err, ErrDecode)

	// Raw bytes are still available.
	raw, err := rec.Value(FieldPathname)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xC3, 0x28}, raw)

	_, err = rec.Value(FieldAssetMeta)
	require.ErrorIs(t, err, ErrKeyNotSet)

	// A pathname that does not decode is skipped, not fatal.
	assert.Empty(t, guidsOf(idx.ByExtensions(".png", "")))
}

func TestRecord_ExtractFailure(t *testing.T) {
	t.Parallel()

	src := roundTripSource()
	idx, err := Build(src)
	require.NoError(t, err)

	rec, err := idx.ByGUID("G1")
	require.NoError(t, err)
	delete(src.data, "G1/asset")

	_, err = rec.Asset()
	require.ErrorIs(t, err, ErrIO)
	assert.Equal(t, StateUnextracted, rec.State(FieldAsset))
}

func TestRecord_Size(t *testing.T) {
	t.Parallel()

	idx, err := Build(roundTripSource())
	require.NoError(t, err)
	rec, err := idx.ByGUID("G1")
	require.NoError(t, err)

	size, ok := rec.Size(FieldAsset)
	assert.True(t, ok)
	assert.Equal(t, int64(3), size)

	_, err = rec.Asset()
	require.NoError(t, err)
	size, ok = rec.Size(FieldAsset)
	assert.True(t, ok)
	assert.Equal(t, int64(3), size)

	g2, err := idx.ByGUID("G2")
	require.NoError(t, err)
	_, ok = g2.Size(FieldAssetMeta)
	assert.False(t, ok)
}

func TestRecord_Digest(t *testing.T) {
	t.Parallel()

	idx, err := Build(roundTripSource())
	require.NoError(t, err)
	rec, err := idx.ByGUID("G1")
	require.NoError(t, err)

	d, err := rec.Digest()
	require.NoError(t, err)
	assert.Equal(t, "sha256:ae4b3280e56e2faf83f414a6e3dabe9d5fbe18976544c05fed121accb85b53fc", d.String())
}

func TestRecord_DerivedAttributes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pathname string
		base     string
		dir      string
		ext      string
	}{
		{pathname: "models/cube.fbx", base: "cube.fbx", dir: "models", ext: ".fbx"},
		{pathname: "Assets/Textures/a.b.png", base: "a.b.png", dir: "Assets/Textures", ext: ".png"},
		{pathname: "readme", base: "readme", dir: "", ext: ""},
		{pathname: "Assets/.hidden", base: ".hidden", dir: "Assets", ext: ""},
		{pathname: "Assets/..x.tga", base: "..x.tga", dir: "Assets", ext: ".tga"},
		{pathname: "Assets/dir.v2/file", base: "file", dir: "Assets/dir.v2", ext: ""},
		{pathname: "/root.png", base: "root.png", dir: "/", ext: ".png"},
	}

	for _, tt := range tests {
		t.Run(tt.pathname, func(t *testing.T) {
			t.Parallel()

			src := newMemorySource().
				add("G/pathname", []byte(tt.pathname)).
				add("G/asset", []byte("x"))
			idx, err := Build(src)
			require.NoError(t, err)
			rec, err := idx.ByGUID("G")
			require.NoError(t, err)

			base, err := rec.Basename()
			require.NoError(t, err)
			assert.Equal(t, tt.base, base)

			dir, err := rec.Dirname()
			require.NoError(t, err)
			assert.Equal(t, tt.dir, dir)

			ext, err := rec.Extension()
			require.NoError(t, err)
			assert.Equal(t, tt.ext, ext)
		})
	}
}

func TestByExtensions_Exact(t *testing.T) {
	t.Parallel()

	src := newMemorySource()
	pathnames := map[string]string{
		"A": "tex/a.png",
		"B": "tex/b.PNG",
		"C": "tex/c.png.meta",
		"D": "models/d.fbx",
		"E": "tex/e.png",
	}
	for _, guid := range []string{"A", "B", "C", "D", "E"} {
		src.add(guid+"/pathname", []byte(pathnames[guid]))
		src.add(guid+"/asset", []byte(guid))
	}
	idx, err := Build(src)
	require.NoError(t, err)

	got := guidsOf(idx.ByExtension(".png"))
	assert.Equal(t, []string{"A", "E"}, got)

	// Restartable: a second scan yields the same records.
	assert.Equal(t, got, guidsOf(idx.ByExtension(".png")))
	assert.Empty(t, guidsOf(idx.ByExtensions()))

	var all []string
	for rec := range idx.Records() {
		ext, err := rec.Extension()
		require.NoError(t, err)
		if ext == ".png" {
			all = append(all, rec.GUID())
		}
	}
	assert.Equal(t, all, got)
}

func TestRecords_EarlyStop(t *testing.T) {
	t.Parallel()

	idx, err := Build(roundTripSource())
	require.NoError(t, err)

	var seen []string
	for rec := range idx.Records() {
		seen = append(seen, rec.GUID())
		break
	}
	assert.Equal(t, []string{"G1"}, seen)
}

func TestIndex_Close(t *testing.T) {
	t.Parallel()

	src := roundTripSource()
	idx, err := Build(src)
	require.NoError(t, err)

	require.NoError(t, idx.Close())
	require.NoError(t, idx.Close())
	assert.Equal(t, 1, src.closed)
}

func TestParseField(t *testing.T) {
	t.Parallel()

	for _, f := range []Field{FieldGUID, FieldPathname, FieldAsset, FieldAssetMeta} {
		got, ok := ParseField(f.String())
		require.True(t, ok)
		assert.Equal(t, f, got)
	}
	_, ok := ParseField("preview")
	assert.False(t, ok)
}

func TestOpen_Package(t *testing.T) {
	t.Parallel()

	spoolDir := t.TempDir()
	path := testutil.WritePackage(t,
		testutil.Asset{GUID: "G1", Pathname: "models/cube.fbx", Asset: []byte("fbx"), Meta: "meta text", Preview: true},
		testutil.Asset{GUID: "G2", Pathname: "tex/diffuse.png", Asset: []byte("png")},
		testutil.Asset{GUID: "G3", Preview: true},
	)

	idx, err := Open(path, WithSpoolDir(spoolDir))
	require.NoError(t, err)
	defer idx.Close()

	assert.Equal(t, []string{"G1", "G2"}, idx.GUIDs())
	assert.Equal(t, []string{"G2"}, guidsOf(idx.ByExtension(".png")))

	rec, err := idx.ByGUID("G1")
	require.NoError(t, err)
	asset, err := rec.Asset()
	require.NoError(t, err)
	assert.Equal(t, "fbx", string(asset))

	require.NoError(t, idx.Close())
	g2, err := idx.ByGUID("G2")
	require.NoError(t, err)
	_, err = g2.Asset()
	require.ErrorIs(t, err, ErrClosed)
}

func TestOpen_Errors(t *testing.T) {
	t.Parallel()

	t.Run("missing", func(t *testing.T) {
		t.Parallel()
		_, err := Open(t.TempDir() + "/missing.unitypackage")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("not a tar", func(t *testing.T) {
		t.Parallel()
		path := testutil.WriteFile(t, "notes.unitypackage", []byte("just some text"))
		_, err := Open(path)
		require.ErrorIs(t, err, ErrInvalidFormat)
	})

	t.Run("dot-prefixed members", func(t *testing.T) {
		t.Parallel()
		raw := testutil.BuildTar(t, []testutil.TarEntry{
			{Name: "./G1/", Dir: true},
			{Name: "./G1/pathname", Data: []byte("a.png")},
			{Name: "./G1/asset", Data: []byte("x")},
		})
		path := testutil.WriteFile(t, "dotted.unitypackage", raw)
		idx, err := Open(path)
		require.ErrorIs(t, err, ErrMalformedArchive)
		assert.Nil(t, idx)
	})

	t.Run("nested member", func(t *testing.T) {
		t.Parallel()
		raw := testutil.BuildTar(t, []testutil.TarEntry{
			{Name: "G1/pathname", Data: []byte("a.png")},
			{Name: "G1/sub/asset", Data: []byte("x")},
		})
		path := testutil.WriteFile(t, "deep.unitypackage", raw)
		idx, err := Open(path)
		require.ErrorIs(t, err, ErrMalformedArchive)
		assert.Nil(t, idx)
	})
}

func TestErrors_Distinct(t *testing.T) {
	t.Parallel()

	sentinels := []error{
		ErrNotFound, ErrInvalidFormat, ErrIO, ErrMalformedArchive,
		ErrDuplicateField, ErrKeyNotSet, ErrDecode,
	}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j {
				assert.False(t, errors.Is(a, b), "%v should not match %v", a, b)
			}
		}
	}
}
