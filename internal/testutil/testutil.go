// Package testutil builds synthetic package archives for tests.
package testutil

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/meigma/unitypackage/internal/archive"
)

// TarEntry is one member written by BuildTar.
type TarEntry struct {
	Name string
	Data []byte
	Dir  bool
}

// Asset describes one GUID directory of a package.
// Empty Pathname or nil Asset leave the corresponding member out.
type Asset struct {
	GUID     string
	Pathname string
	Asset    []byte
	Meta     string
	Preview  bool
}

// PackageEntries lays out assets the way the authoring tool exports them:
// a directory member per GUID followed by its field members.
func PackageEntries(assets ...Asset) []TarEntry {
	var entries []TarEntry
	for _, a := range assets {
		entries = append(entries, TarEntry{Name: a.GUID + "/", Dir: true})
		if a.Asset != nil {
			entries = append(entries, TarEntry{Name: a.GUID + "/asset", Data: a.Asset})
		}
		if a.Meta != "" {
			entries = append(entries, TarEntry{Name: a.GUID + "/asset.meta", Data: []byte(a.Meta)})
		}
		if a.Pathname != "" {
			entries = append(entries, TarEntry{Name: a.GUID + "/pathname", Data: []byte(a.Pathname)})
		}
		if a.Preview {
			entries = append(entries, TarEntry{Name: a.GUID + "/preview.png", Data: []byte("\x89PNG preview")})
		}
	}
	return entries
}

// BuildTar returns an uncompressed tar stream holding entries in order.
func BuildTar(tb testing.TB, entries []TarEntry) []byte {
	tb.Helper()

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	modTime := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	for _, e := range entries {
		hdr := &tar.Header{
			Name:    e.Name,
			Mode:    0o644,
			ModTime: modTime,
		}
		if e.Dir {
			hdr.Typeflag = tar.TypeDir
			hdr.Mode = 0o755
		} else {
			hdr.Typeflag = tar.TypeReg
			hdr.Size = int64(len(e.Data))
		}
		if err := tw.WriteHeader(hdr); err != nil {
			tb.Fatalf("write header %s: %v", e.Name, err)
		}
		if !e.Dir {
			if _, err := tw.Write(e.Data); err != nil {
				tb.Fatalf("write %s: %v", e.Name, err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		tb.Fatalf("close tar: %v", err)
	}
	return buf.Bytes()
}

// Compress encodes data with the codec for format.
func Compress(tb testing.TB, format archive.Format, data []byte) []byte {
	tb.Helper()

	var buf bytes.Buffer
	switch format {
	case archive.FormatTar:
		return data
	case archive.FormatGzip:
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(data); err != nil {
			tb.Fatalf("gzip write: %v", err)
		}
		if err := zw.Close(); err != nil {
			tb.Fatalf("gzip close: %v", err)
		}
	case archive.FormatZstd:
		enc, err := zstd.NewWriter(&buf)
		if err != nil {
			tb.Fatalf("zstd writer: %v", err)
		}
		if _, err := enc.Write(data); err != nil {
			tb.Fatalf("zstd write: %v", err)
		}
		if err := enc.Close(); err != nil {
			tb.Fatalf("zstd close: %v", err)
		}
	case archive.FormatLZ4:
		zw := lz4.NewWriter(&buf)
		if _, err := zw.Write(data); err != nil {
			tb.Fatalf("lz4 write: %v", err)
		}
		if err := zw.Close(); err != nil {
			tb.Fatalf("lz4 close: %v", err)
		}
	default:
		tb.Fatalf("unsupported format %v", format)
	}
	return buf.Bytes()
}

// WriteFile writes data to name inside a fresh temp directory and returns
// the full path.
func WriteFile(tb testing.TB, name string, data []byte) string {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		tb.Fatalf("write %s: %v", path, err)
	}
	return path
}

// WritePackage writes assets as a gzip-compressed package and returns its path.
func WritePackage(tb testing.TB, assets ...Asset) string {
	tb.Helper()

	data := Compress(tb, archive.FormatGzip, BuildTar(tb, PackageEntries(assets...)))
	return WriteFile(tb, "test.unitypackage", data)
}
