package archtype

// ProgressEvent represents a progress update while an archive is processed.
type ProgressEvent struct {
	// Stage identifies the current phase of the operation.
	Stage ProgressStage

	// Path is the archive being processed.
	Path string

	// Level is the target compression level. It is zero for StageListing.
	Level int
}

// ProgressStage identifies the current phase of an operation.
type ProgressStage uint8

// Progress stages for recompression.
const (
	// StageListing indicates the archive contents are being listed.
	StageListing ProgressStage = iota

	// StageExtracting indicates the archive is being expanded into a scratch directory.
	StageExtracting

	// StageCompressing indicates the scratch directory is being re-encoded.
	StageCompressing

	// StageVerifying indicates the new archive is compared against the source.
	StageVerifying

	// StageReplacing indicates the new archive is moved over the source.
	StageReplacing

	// StageDiscarding indicates a dry-run result is being removed.
	StageDiscarding
)

// String returns the string representation of the stage.
func (s ProgressStage) String() string {
	switch s {
	case StageListing:
		return "listing"
	case StageExtracting:
		return "extracting"
	case StageCompressing:
		return "compressing"
	case StageVerifying:
		return "verifying"
	case StageReplacing:
		return "replacing"
	case StageDiscarding:
		return "discarding"
	default:
		return "unknown"
	}
}

// ProgressFunc receives progress updates.
type ProgressFunc func(ProgressEvent)
