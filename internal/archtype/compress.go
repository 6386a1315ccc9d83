package archtype

// CompressOptions controls how the archiver builds a new archive.
type CompressOptions struct {
	// Level is the compression level, 0 stores files without compression.
	Level int

	// SolidBlockSize limits the size of a solid block in bytes.
	// Zero lets the archiver choose. Ignored when Level is 0.
	SolidBlockSize int64

	// RemoveSources deletes input files as they are added to the archive.
	RemoveSources bool
}
