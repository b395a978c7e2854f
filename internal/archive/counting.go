package archive

import (
	"errors"
	"io"
)

// ErrOverflow indicates a counter exceeded its maximum value.
var ErrOverflow = errors.New("counter overflow")

// CountingWriter wraps a writer and counts bytes written.
//
// When Limit is non-zero, a write that would take N past Limit fails with
// ErrSizeOverflow and nothing is written.
type CountingWriter struct {
	W     io.Writer
	N     uint64
	Limit uint64

	// Err records the first error returned by W.
	Err error
}

// Write implements io.Writer.
func (cw *CountingWriter) Write(p []byte) (int, error) {
	//nolint:gosec // len is never negative
	size := uint64(len(p))
	if cw.N > ^uint64(0)-size {
		return 0, ErrOverflow
	}
	if cw.Limit > 0 && cw.N+size > cw.Limit {
		return 0, ErrSizeOverflow
	}
	n, err := cw.W.Write(p)
	if err != nil && cw.Err == nil {
		cw.Err = err
	}
	if n > 0 {
		cw.N += uint64(n) //nolint:gosec // overflow checked above
	}
	return n, err
}
