package archive

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Format identifies the outer encoding of a container file.
type Format uint8

const (
	FormatTar Format = iota
	FormatGzip
	FormatZstd
	FormatLZ4
)

// String returns the human-readable name of the format.
func (f Format) String() string {
	switch f {
	case FormatTar:
		return "tar"
	case FormatGzip:
		return "tar+gzip"
	case FormatZstd:
		return "tar+zstd"
	case FormatLZ4:
		return "tar+lz4"
	default:
		return "unknown"
	}
}

// Compressed reports whether the format wraps the tar stream in a codec.
func (f Format) Compressed() bool {
	return f != FormatTar
}

var (
	magicGzip = []byte{0x1f, 0x8b}
	magicZstd = []byte{0x28, 0xb5, 0x2f, 0xfd}
	magicLZ4  = []byte{0x04, 0x22, 0x4d, 0x18}
)

// sniffLen is the number of leading bytes DetectFormat inspects.
const sniffLen = 4

// DetectFormat identifies the container encoding from its leading bytes.
// Anything without a known compression magic is assumed to be raw tar;
// the tar header check happens separately.
func DetectFormat(head []byte) Format {
	switch {
	case bytes.HasPrefix(head, magicGzip):
		return FormatGzip
	case bytes.HasPrefix(head, magicZstd):
		return FormatZstd
	case bytes.HasPrefix(head, magicLZ4):
		return FormatLZ4
	default:
		return FormatTar
	}
}

// decoder wraps r in the decompressor for f.
// The returned release function must be called when done.
func decoder(f Format, r io.Reader) (io.Reader, func(), error) {
	switch f {
	case FormatGzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return zr, func() { _ = zr.Close() }, nil
	case FormatZstd:
		dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, nil, err
		}
		return dec, dec.Close, nil
	case FormatLZ4:
		return lz4.NewReader(r), func() {}, nil
	case FormatTar:
		return r, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported format %d", f)
	}
}
