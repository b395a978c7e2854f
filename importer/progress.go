package importer

// ProgressEvent represents a progress update during preparation, import or
// extraction.
type ProgressEvent struct {
	// Stage identifies the current phase of the operation.
	Stage ProgressStage

	// Path is the asset pathname currently being processed, if applicable.
	Path string

	// BytesDone is the number of asset bytes completed so far.
	BytesDone uint64

	// FilesDone is the number of assets completed.
	FilesDone int

	// FilesTotal is the total number of assets in the operation.
	FilesTotal int
}

// ProgressStage identifies the current phase of an operation.
type ProgressStage uint8

const (
	// StagePreparing indicates the selection tree is being built.
	StagePreparing ProgressStage = iota

	// StageImporting indicates assets are being handed to a Handler.
	StageImporting

	// StageExtracting indicates assets are being written to disk.
	StageExtracting
)

// String returns the string representation of the stage.
func (s ProgressStage) String() string {
	switch s {
	case StagePreparing:
		return "preparing"
	case StageImporting:
		return "importing"
	case StageExtracting:
		return "extracting"
	default:
		return "unknown"
	}
}

// ProgressFunc receives progress updates during operations.
// Implementations must be safe for concurrent calls.
type ProgressFunc func(ProgressEvent)
