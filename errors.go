package repack

import "github.com/meigma/repack/internal/archtype"

// Sentinel errors re-exported from internal/archtype.
var (
	// ErrFormat is returned when a size string or a listing line is malformed.
	ErrFormat = archtype.ErrFormat

	// ErrInvalidOperand is returned when a ratio is taken against a zero size.
	ErrInvalidOperand = archtype.ErrInvalidOperand

	// ErrToolExecution is returned when the archiver exits non-zero or times out.
	// The concrete error is a *ToolError.
	ErrToolExecution = archtype.ErrToolExecution

	// ErrIntegrityMismatch is returned when a re-encoded archive does not describe
	// the same files as its source. The concrete error is an *IntegrityError.
	ErrIntegrityMismatch = archtype.ErrIntegrityMismatch
)
