package repack

import "fmt"

// Decision is the outcome of evaluating one archive.
type Decision struct {
	// Recompress is true when the archive should be re-encoded.
	Recompress bool

	// Level is the target compression level. Only meaningful when Recompress is set.
	Level int

	// Reason explains the decision for reports and logs.
	Reason string
}

// Policy decides whether an archive is worth re-encoding and at which level.
type Policy struct {
	params Params
}

// NewPolicy creates a Policy for the given parameters.
func NewPolicy(params Params) *Policy {
	return &Policy{params: params}
}

// Decide evaluates an archive.
//
// An archive qualifies when it is solid, holds unpacked data, and its
// largest shared block (two or more files) reaches MaxSolidBlockSize.
// Blocks holding a single file never qualify an archive.
func (p *Policy) Decide(a *Archive) Decision {
	if !a.IsSolid() {
		return Decision{Reason: "not solid"}
	}
	if a.UnpackedSize().IsZero() {
		return Decision{Reason: "no unpacked data"}
	}
	largest, ok := a.LargestSharedBlock()
	if !ok {
		return Decision{Reason: "no shared blocks"}
	}
	if largest.Size < p.params.MaxSolidBlockSize {
		return Decision{Reason: fmt.Sprintf("largest shared block %s below %s", largest.Size, p.params.MaxSolidBlockSize)}
	}
	return Decision{
		Recompress: true,
		Level:      p.CompressionLevel(a),
		Reason:     fmt.Sprintf("shared block %d is %s", largest.Index, largest.Size),
	}
}

// CompressionLevel picks the level for a qualifying archive.
//
// Level 0 (store) is chosen when the archive barely compresses, meaning its
// ratio reaches MinUnpackedRatio, and storing it would cost at most
// MaxNonpackedSpaceLoss bytes. Otherwise the configured level is used.
func (p *Policy) CompressionLevel(a *Archive) int {
	ratio, err := a.Ratio()
	if err != nil {
		return p.params.CompressionLevel
	}
	if ratio >= p.params.MinUnpackedRatio &&
		a.PackedSize().Add(p.params.MaxNonpackedSpaceLoss) >= a.UnpackedSize() {
		return 0
	}
	return p.params.CompressionLevel
}
