package unitypackage

import "log/slog"

// Option configures an Index.
type Option func(*Index)

// WithLogger sets the logger for build and query diagnostics.
// By default nothing is logged.
func WithLogger(logger *slog.Logger) Option {
	return func(idx *Index) {
		idx.logger = logger
	}
}

// WithMaxAnomalies fails the build with ErrMalformedArchive once more than
// n members with unrecognized roles have been seen.
// Set n to 0 to log and continue without a bound (the default).
func WithMaxAnomalies(n int) Option {
	return func(idx *Index) {
		if n < 0 {
			n = 0
		}
		idx.maxAnomalies = n
	}
}

// WithSpoolDir sets the directory used to decompress compressed packages.
// Only used by Open.
func WithSpoolDir(dir string) Option {
	return func(idx *Index) {
		idx.spoolDir = dir
	}
}

// WithMaxSpoolSize limits the decompressed size of a compressed package.
// Set limit to 0 to disable the limit. Only used by Open.
func WithMaxSpoolSize(limit uint64) Option {
	return func(idx *Index) {
		idx.maxSpoolSize = limit
	}
}

// WithMaxMemberSize limits the size of any single field read from the
// package. Set limit to 0 to disable the limit. Only used by Open.
func WithMaxMemberSize(limit int64) Option {
	return func(idx *Index) {
		idx.maxMemberSize = limit
	}
}
