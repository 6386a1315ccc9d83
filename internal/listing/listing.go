package listing

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/meigma/repack/internal/archtype"
	"github.com/meigma/repack/internal/sizing"
)

// NoBlock marks a file that is not assigned to a numbered solid block,
// such as an empty or stored file.
const NoBlock = -1

// DirectoryMarker is the attribute flag that starts a directory entry.
const DirectoryMarker = "D"

// Listing is the parsed form of one archive listing.
type Listing struct {
	Path   string
	Method string
	Solid  bool
	Blocks int

	// Files holds the file records in first-seen order, directories included.
	Files []File
}

// File is one entry of a listing.
type File struct {
	Path       string
	Size       sizing.Size
	PackedSize sizing.Size
	Attributes string
	Block      int

	hasSize bool
}

// IsDirectory reports whether the entry carries the directory flag.
func (f *File) IsDirectory() bool {
	return strings.HasPrefix(f.Attributes, DirectoryMarker)
}

type field uint8

const (
	fieldSolid field = iota + 1
	fieldMethod
	fieldBlocks
	fieldSize
	fieldPackedSize
	fieldAttributes
	fieldBlock
)

const pathKey = "Path"

// archiveFields and fileFields are the recognized keys per record type.
// Any other key is ignored so that newer archiver versions keep working.
var (
	archiveFields = map[string]field{
		"Solid":  fieldSolid,
		"Method": fieldMethod,
		"Blocks": fieldBlocks,
	}
	fileFields = map[string]field{
		"Size":        fieldSize,
		"Packed Size": fieldPackedSize,
		"Attributes":  fieldAttributes,
		"Block":       fieldBlock,
	}
)

// parser carries the fold state: cur is the index of the open file record,
// or -1 while archive-level keys are being read.
type parser struct {
	listing *Listing
	byPath  map[string]int
	cur     int
}

// Parse builds a Listing from the raw output of the listing command for the
// archive at archivePath.
//
// A "Path" line naming anything other than archivePath opens the file record
// for that path, creating it on first sight; repeated paths reopen the same
// record. Every other recognized key updates the open record.
func Parse(archivePath, text string) (*Listing, error) {
	p := parser{
		listing: &Listing{Path: archivePath},
		byPath:  make(map[string]int),
		cur:     -1,
	}
	for _, pair := range Tokenize(text) {
		if err := p.apply(pair); err != nil {
			return nil, fmt.Errorf("listing %s line %d: %w", archivePath, pair.Line, err)
		}
	}
	for i := range p.listing.Files {
		f := &p.listing.Files[i]
		if !f.hasSize && !f.IsDirectory() {
			return nil, fmt.Errorf("listing %s: %w: file %q has no Size", archivePath, archtype.ErrFormat, f.Path)
		}
	}
	return p.listing, nil
}

func (p *parser) apply(pair Pair) error {
	if pair.Key == pathKey {
		if pair.Value != p.listing.Path {
			p.open(pair.Value)
		}
		return nil
	}
	if p.cur < 0 {
		return p.applyArchive(pair)
	}
	return p.applyFile(&p.listing.Files[p.cur], pair)
}

func (p *parser) open(path string) {
	if idx, ok := p.byPath[path]; ok {
		p.cur = idx
		return
	}
	p.listing.Files = append(p.listing.Files, File{Path: path, Block: NoBlock})
	p.cur = len(p.listing.Files) - 1
	p.byPath[path] = p.cur
}

func (p *parser) applyArchive(pair Pair) error {
	switch archiveFields[pair.Key] {
	case fieldSolid:
		p.listing.Solid = pair.Value == "+"
	case fieldMethod:
		p.listing.Method = pair.Value
	case fieldBlocks:
		n, err := parseCount(pair)
		if err != nil {
			return err
		}
		p.listing.Blocks = n
	}
	return nil
}

func (p *parser) applyFile(f *File, pair Pair) error {
	switch fileFields[pair.Key] {
	case fieldSize:
		size, err := sizing.Parse(pair.Value)
		if err != nil {
			return err
		}
		f.Size = size
		f.hasSize = true
	case fieldPackedSize:
		if pair.Value == "" {
			f.PackedSize = 0
			return nil
		}
		size, err := sizing.Parse(pair.Value)
		if err != nil {
			return err
		}
		f.PackedSize = size
	case fieldAttributes:
		f.Attributes = pair.Value
	case fieldBlock:
		if pair.Value == "" {
			f.Block = NoBlock
			return nil
		}
		n, err := parseCount(pair)
		if err != nil {
			return err
		}
		f.Block = n
	}
	return nil
}

func parseCount(pair Pair) (int, error) {
	n, err := strconv.Atoi(pair.Value)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s %q is not a count", archtype.ErrFormat, pair.Key, pair.Value)
	}
	return n, nil
}
