package unitypackage

import "github.com/meigma/unitypackage/internal/archive"

// Re-export types from internal/archive for public API.
type (
	// Member describes one entry in the package container.
	Member = archive.Member

	// Format identifies the outer encoding of a package file.
	Format = archive.Format
)

// Re-export format constants.
const (
	FormatTar  = archive.FormatTar
	FormatGzip = archive.FormatGzip
	FormatZstd = archive.FormatZstd
	FormatLZ4  = archive.FormatLZ4
)
