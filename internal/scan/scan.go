// Package scan lists regular files below a set of paths.
package scan

import (
	"iter"
	"os"
	"path/filepath"

	"github.com/meigma/repack/internal/sizing"
)

// Entry is a regular file and its size.
type Entry struct {
	Path string
	Size sizing.Size
}

// Files yields every regular file named by paths or found below them.
//
// Paths are visited breadth-first: each given path in order, then the
// subdirectories discovered, in the order they were found. Directory
// entries are visited in name order. Symbolic links inside directories are
// not followed. An unreadable path yields an Entry carrying that path
// together with the error, and the walk continues.
func Files(paths []string) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		queue := append([]string(nil), paths...)
		for len(queue) > 0 {
			path := queue[0]
			queue = queue[1:]

			info, err := os.Stat(path)
			if err != nil {
				if !yield(Entry{Path: path}, err) {
					return
				}
				continue
			}
			if !info.IsDir() {
				if !yield(Entry{Path: path, Size: sizing.Size(info.Size())}, nil) {
					return
				}
				continue
			}

			entries, err := os.ReadDir(path)
			if err != nil {
				if !yield(Entry{Path: path}, err) {
					return
				}
				continue
			}
			for _, e := range entries {
				full := filepath.Join(path, e.Name())
				switch {
				case e.IsDir():
					queue = append(queue, full)
				case e.Type().IsRegular():
					fi, err := e.Info()
					if err != nil {
						if !yield(Entry{Path: full}, err) {
							return
						}
						continue
					}
					if !yield(Entry{Path: full, Size: sizing.Size(fi.Size())}, nil) {
						return
					}
				}
			}
		}
	}
}
