package repack

import "slices"

// Block is a solid compression unit, identified by its position in the archive.
type Block struct {
	Index int

	// Size is the summed packed size of the files in the block.
	Size Size

	// Files is the number of files that contributed to the block.
	Files int
}

// IsSingleFile reports whether exactly one file contributed to the block.
func (b Block) IsSingleFile() bool {
	return b.Files == 1
}

// IsShared reports whether two or more files contributed to the block.
// Empty and single-file blocks are not shared.
func (b Block) IsShared() bool {
	return b.Files > 1
}

// Blocks returns one Block per declared block, including blocks that no
// file contributed to. Files without a block index are not counted.
func (a *Archive) Blocks() []Block {
	return slices.Clone(a.blocks())
}

// SharedBlocks returns the blocks that hold more than one file.
func (a *Archive) SharedBlocks() []Block {
	var shared []Block
	for _, b := range a.blocks() {
		if b.IsShared() {
			shared = append(shared, b)
		}
	}
	return shared
}

// LargestSharedBlock returns the shared block with the largest packed size.
// It returns false when the archive has no shared block.
func (a *Archive) LargestSharedBlock() (Block, bool) {
	var (
		largest Block
		found   bool
	)
	for _, b := range a.SharedBlocks() {
		if !found || b.Size > largest.Size {
			largest, found = b, true
		}
	}
	return largest, found
}

func (a *Archive) computeBlocks() []Block {
	blocks := make([]Block, a.blockCount)
	for i := range blocks {
		blocks[i].Index = i
	}
	for i := range a.files {
		f := &a.files[i]
		if !f.InBlock() {
			continue
		}
		blocks[f.Block].Size += f.PackedSize
		blocks[f.Block].Files++
	}
	return blocks
}
