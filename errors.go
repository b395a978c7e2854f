package unitypackage

import (
	"errors"

	"github.com/meigma/unitypackage/internal/archive"
)

// Errors re-exported from the archive layer.
var (
	// ErrNotFound is returned when the package path does not exist or a
	// GUID lookup misses.
	ErrNotFound = archive.ErrNotFound

	// ErrInvalidFormat is returned when a file is not a tar container.
	ErrInvalidFormat = archive.ErrInvalidFormat

	// ErrIO is returned when member content cannot be read.
	ErrIO = archive.ErrIO

	// ErrSizeOverflow is returned when a member or decompressed stream
	// exceeds the configured limit.
	ErrSizeOverflow = archive.ErrSizeOverflow

	// ErrMembersConsumed is returned when a member scan is requested twice.
	ErrMembersConsumed = archive.ErrMembersConsumed

	// ErrClosed is returned when content is read after the package was closed.
	ErrClosed = archive.ErrClosed
)

// Sentinel errors specific to the package index.
var (
	// ErrMalformedArchive is returned when the container does not follow the
	// GUID/role member layout.
	ErrMalformedArchive = errors.New("unitypackage: malformed archive")

	// ErrDuplicateField is returned when a record field is set twice.
	ErrDuplicateField = errors.New("unitypackage: field already set")

	// ErrKeyNotSet is returned when reading a field that was never set.
	ErrKeyNotSet = errors.New("unitypackage: field not set")

	// ErrDecode is returned when a field read as text is not valid UTF-8.
	ErrDecode = errors.New("unitypackage: invalid utf-8")
)
