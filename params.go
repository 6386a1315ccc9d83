package repack

import (
	"errors"
	"fmt"
	"time"
)

// Default recompression parameters.
const (
	DefaultMaxSolidBlockSize     Size = 3_000_000
	DefaultMaxNonpackedSpaceLoss Size = 2_000_000
	DefaultMinUnpackedRatio           = 0.9
	DefaultCompressionLevel           = 7
	DefaultTempDir                    = "temp"
	DefaultTimeout                    = time.Hour
)

// Params holds the thresholds and switches that drive recompression.
type Params struct {
	// MaxSolidBlockSize is the largest acceptable shared solid block. Archives
	// with a larger shared block are re-encoded with blocks of at most this size.
	MaxSolidBlockSize Size

	// MaxNonpackedSpaceLoss is how many bytes storing an archive uncompressed
	// may cost compared to its current packed size.
	MaxNonpackedSpaceLoss Size

	// MinUnpackedRatio is the packed/unpacked ratio from which storing
	// uncompressed is preferred.
	MinUnpackedRatio float64

	// CompressionLevel is used when the archive is worth compressing.
	CompressionLevel int

	// TempDir holds scratch directories and dry-run results.
	TempDir string

	// Timeout bounds every archiver call.
	Timeout time.Duration

	// DryRun analyzes and re-encodes into TempDir without replacing anything.
	DryRun bool

	// KeepDryRunResult leaves dry-run archives in TempDir.
	KeepDryRunResult bool
}

// DefaultParams returns the reference parameters.
func DefaultParams() Params {
	return Params{
		MaxSolidBlockSize:     DefaultMaxSolidBlockSize,
		MaxNonpackedSpaceLoss: DefaultMaxNonpackedSpaceLoss,
		MinUnpackedRatio:      DefaultMinUnpackedRatio,
		CompressionLevel:      DefaultCompressionLevel,
		TempDir:               DefaultTempDir,
		Timeout:               DefaultTimeout,
	}
}

// Validate reports parameter combinations that cannot work.
func (p *Params) Validate() error {
	switch {
	case p.MaxSolidBlockSize < 0:
		return fmt.Errorf("max solid block size %s is negative", p.MaxSolidBlockSize)
	case p.MaxNonpackedSpaceLoss < 0:
		return fmt.Errorf("max nonpacked space loss %s is negative", p.MaxNonpackedSpaceLoss)
	case p.CompressionLevel < 0 || p.CompressionLevel > 9:
		return fmt.Errorf("compression level %d out of range 0-9", p.CompressionLevel)
	case p.TempDir == "":
		return errors.New("temp dir is empty")
	case p.Timeout < 0:
		return fmt.Errorf("timeout %s is negative", p.Timeout)
	}
	return nil
}

// String renders the parameters for logs.
func (p Params) String() string {
	return fmt.Sprintf("max_solid_block_size=%s max_nonpacked_space_loss=%s min_unpacked_ratio=%.2f "+
		"compression_level=%d temp_dir=%s timeout=%s dry_run=%t keep_dry_run_result=%t",
		p.MaxSolidBlockSize, p.MaxNonpackedSpaceLoss, p.MinUnpackedRatio,
		p.CompressionLevel, p.TempDir, p.Timeout, p.DryRun, p.KeepDryRunResult)
}
