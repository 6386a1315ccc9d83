package repack

import (
	"fmt"
	"slices"
	"sync"

	"github.com/meigma/repack/internal/archtype"
	"github.com/meigma/repack/internal/listing"
	"github.com/meigma/repack/internal/pathutil"
	"github.com/meigma/repack/internal/sizing"
)

// NoBlock is the block index of a file that belongs to no numbered solid block.
const NoBlock = listing.NoBlock

// FileEntry is one file inside an archive.
type FileEntry struct {
	// Path is unique within the archive.
	Path string

	// Size is the unpacked size.
	Size Size

	// PackedSize is zero when the listing omits it, which happens for files
	// whose bytes are reported on another member of the same block.
	PackedSize Size

	// Attributes is the archiver's flag string, kept verbatim.
	Attributes string

	// Block is the solid block index, or NoBlock.
	Block int
}

// InBlock reports whether the file belongs to a numbered solid block.
func (f *FileEntry) InBlock() bool {
	return f.Block != NoBlock
}

// Extension returns the text after the last dot of the file name,
// or the whole name when it has no dot.
func (f *FileEntry) Extension() string {
	return pathutil.Ext(f.Path)
}

// Archive is the model of one archive file built from its listing.
//
// An Archive is immutable after construction. Derived quantities are
// computed on first use and cached; all methods are safe for concurrent use.
type Archive struct {
	path       string
	method     string
	solid      bool
	blockCount int
	files      []FileEntry
	byPath     map[string]int

	unpacked   func() Size
	packed     func() Size
	blocks     func() []Block
	extensions func() []string
}

// ParseListing builds an Archive from the raw output of the listing command.
// Directory entries are dropped.
func ParseListing(path, text string) (*Archive, error) {
	l, err := listing.Parse(path, text)
	if err != nil {
		return nil, err
	}
	return newArchive(l)
}

func newArchive(l *listing.Listing) (*Archive, error) {
	a := &Archive{
		path:       l.Path,
		method:     l.Method,
		solid:      l.Solid,
		blockCount: l.Blocks,
		files:      make([]FileEntry, 0, len(l.Files)),
		byPath:     make(map[string]int, len(l.Files)),
	}
	for i := range l.Files {
		f := &l.Files[i]
		if f.IsDirectory() {
			continue
		}
		if f.Block != NoBlock && f.Block >= l.Blocks {
			return nil, fmt.Errorf("listing %s: %w: file %q in block %d of %d",
				l.Path, archtype.ErrFormat, f.Path, f.Block, l.Blocks)
		}
		a.byPath[f.Path] = len(a.files)
		a.files = append(a.files, FileEntry{
			Path:       f.Path,
			Size:       f.Size,
			PackedSize: f.PackedSize,
			Attributes: f.Attributes,
			Block:      f.Block,
		})
	}

	a.unpacked = sync.OnceValue(func() Size {
		return sizing.Sum(a.fileSizes()...)
	})
	a.packed = sync.OnceValue(func() Size {
		var total Size
		for i := range a.files {
			total += a.files[i].PackedSize
		}
		return total
	})
	a.blocks = sync.OnceValue(a.computeBlocks)
	a.extensions = sync.OnceValue(a.computeExtensions)
	return a, nil
}

// Path returns the archive path as it was listed.
func (a *Archive) Path() string {
	return a.path
}

// Method returns the archive-level method descriptor, e.g. "LZMA:24".
func (a *Archive) Method() string {
	return a.method
}

// IsSolid reports whether the archive uses solid compression.
func (a *Archive) IsSolid() bool {
	return a.solid
}

// BlockCount returns the declared number of solid blocks.
func (a *Archive) BlockCount() int {
	return a.blockCount
}

// Len returns the number of files, directories excluded.
func (a *Archive) Len() int {
	return len(a.files)
}

// Files returns a copy of the file entries in listing order.
func (a *Archive) Files() []FileEntry {
	return slices.Clone(a.files)
}

// File returns the entry for path.
func (a *Archive) File(path string) (FileEntry, bool) {
	i, ok := a.byPath[path]
	if !ok {
		return FileEntry{}, false
	}
	return a.files[i], true
}

// UnpackedSize returns the total unpacked size of all files.
func (a *Archive) UnpackedSize() Size {
	return a.unpacked()
}

// PackedSize returns the total packed size of all files.
func (a *Archive) PackedSize() Size {
	return a.packed()
}

// Ratio returns packed/unpacked size. Lower is better compression.
// An archive without unpacked bytes has no ratio and returns ErrInvalidOperand.
func (a *Archive) Ratio() (float64, error) {
	return a.PackedSize().Ratio(a.UnpackedSize())
}

// Extensions returns the sorted set of distinct file extensions.
func (a *Archive) Extensions() []string {
	return slices.Clone(a.extensions())
}

func (a *Archive) fileSizes() []Size {
	sizes := make([]Size, len(a.files))
	for i := range a.files {
		sizes[i] = a.files[i].Size
	}
	return sizes
}

func (a *Archive) computeExtensions() []string {
	seen := make(map[string]struct{}, 4)
	exts := make([]string, 0, 4)
	for i := range a.files {
		ext := a.files[i].Extension()
		if _, ok := seen[ext]; ok {
			continue
		}
		seen[ext] = struct{}{}
		exts = append(exts, ext)
	}
	slices.Sort(exts)
	return exts
}
