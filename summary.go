package repack

import (
	"fmt"
	"slices"
	"strings"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/repack/internal/sizing"
)

// Info renders the archive analytics: for solid archives a block-size
// statistics prefix, then the method, the ratio and the unpacked and packed
// totals, e.g.
//
//	Solid 1 blocks (min/max/avg 255.46M/255.46M/255.46M) LZMA:24 53.33% (479.00M->255.46M)
//
// The output is deterministic for a given listing.
func (a *Archive) Info() string {
	var b strings.Builder
	if a.solid {
		blocks := a.blocks()
		sizes := make([]Size, len(blocks))
		for i, blk := range blocks {
			sizes[i] = blk.Size
		}
		b.WriteString("Solid ")
		b.WriteString(sizesInfo("block", sizes))
	}
	fmt.Fprintf(&b, "%s %s (%s->%s)", a.method, a.ratioText(), a.UnpackedSize(), a.PackedSize())
	return b.String()
}

// FilesInfo renders file-count statistics and the extension set, e.g.
//
//	2 files (min/max/avg 10.00/20.00/15.00) types [wav]
//
// Two archives are considered to hold the same files when their FilesInfo
// strings are equal. The comparison only covers aggregates: file sets with
// permuted sizes compare equal.
func (a *Archive) FilesInfo() string {
	return sizesInfo("file", a.fileSizes()) + "types [" + strings.Join(a.extensions(), ",") + "]"
}

// ManifestDigest returns a digest over the sorted list of file paths and
// unpacked sizes. It is a stricter fingerprint than FilesInfo.
func (a *Archive) ManifestDigest() digest.Digest {
	lines := make([]string, len(a.files))
	for i := range a.files {
		lines[i] = fmt.Sprintf("%s\x00%d\n", a.files[i].Path, a.files[i].Size.Int64())
	}
	slices.Sort(lines)
	return digest.FromString(strings.Join(lines, ""))
}

func (a *Archive) ratioText() string {
	ratio, err := a.Ratio()
	if err != nil {
		return "-"
	}
	return fmt.Sprintf("%.2f%%", 100*ratio)
}

// sizesInfo renders "<n> <kind>s (min/max/avg a/b/c) " with a trailing space.
// An empty list renders zero statistics.
func sizesInfo(kind string, sizes []Size) string {
	var lo, hi, avg Size
	if len(sizes) > 0 {
		lo, hi = slices.Min(sizes), slices.Max(sizes)
		avg = sizing.Sum(sizes...).Div(int64(len(sizes)))
	}
	return fmt.Sprintf("%d %ss (min/max/avg %s/%s/%s) ", len(sizes), kind, lo, hi, avg)
}
