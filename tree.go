package repack

import (
	"fmt"

	"github.com/disiqueira/gotree/v3"
)

const unblockedLabel = "unblocked"

// BlockTree renders the block layout of the archive: one node per declared
// block holding the paths of its files, followed by an "unblocked" node for
// files outside any block.
func (a *Archive) BlockTree() string {
	root := gotree.New(a.path)
	blocks := a.blocks()
	nodes := make([]gotree.Tree, len(blocks))
	for i, b := range blocks {
		nodes[i] = root.Add(fmt.Sprintf("block %d %s (%d files)", b.Index, b.Size, b.Files))
	}

	var unblocked gotree.Tree
	for i := range a.files {
		f := &a.files[i]
		if f.InBlock() {
			nodes[f.Block].Add(f.Path)
			continue
		}
		if unblocked == nil {
			unblocked = root.Add(unblockedLabel)
		}
		unblocked.Add(f.Path)
	}
	return root.Print()
}
