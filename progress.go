package repack

import "github.com/meigma/repack/internal/archtype"

// Re-export progress types from internal/archtype.
type (
	// ProgressEvent represents a progress update while an archive is processed.
	ProgressEvent = archtype.ProgressEvent

	// ProgressStage identifies the current phase of an operation.
	ProgressStage = archtype.ProgressStage

	// ProgressFunc receives progress updates.
	ProgressFunc = archtype.ProgressFunc
)

// Re-export progress stage constants.
const (
	StageListing     = archtype.StageListing
	StageExtracting  = archtype.StageExtracting
	StageCompressing = archtype.StageCompressing
	StageVerifying   = archtype.StageVerifying
	StageReplacing   = archtype.StageReplacing
	StageDiscarding  = archtype.StageDiscarding
)
