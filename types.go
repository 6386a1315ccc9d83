package repack

import (
	"github.com/meigma/repack/internal/archtype"
	"github.com/meigma/repack/internal/sizing"
)

// Size is an exact byte count with K/M/G (decimal) formatting.
type Size = sizing.Size

// ParseSize parses text such as "3M" or "1500" into a Size.
var ParseSize = sizing.Parse

// MustParseSize is like ParseSize but panics on malformed input.
var MustParseSize = sizing.MustParse

// CompressOptions controls how the archiver builds a new archive.
type CompressOptions = archtype.CompressOptions

// ToolError describes a failed invocation of the external archiver.
type ToolError = archtype.ToolError

// IntegrityError reports a files-summary mismatch after a re-encode.
type IntegrityError = archtype.IntegrityError
