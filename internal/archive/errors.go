package archive

import "errors"

// Sentinel errors for archive operations.
var (
	// ErrNotFound is returned when the archive path does not exist.
	ErrNotFound = errors.New("unitypackage: not found")

	// ErrInvalidFormat is returned when a file is not a readable tar container.
	ErrInvalidFormat = errors.New("unitypackage: invalid archive format")

	// ErrIO is returned when member content cannot be read.
	ErrIO = errors.New("unitypackage: read failed")

	// ErrSizeOverflow is returned when a member or decompressed stream exceeds
	// the configured limit.
	ErrSizeOverflow = errors.New("unitypackage: size limit exceeded")

	// ErrMembersConsumed is returned when the single-pass member scan is
	// requested a second time.
	ErrMembersConsumed = errors.New("unitypackage: members already consumed")

	// ErrClosed is returned when a closed Reader is used.
	ErrClosed = errors.New("unitypackage: archive closed")
)
