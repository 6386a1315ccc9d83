// Package testutil provides a fake archiver for tests.
//
// Fake archives are JSON documents holding the file contents and the
// compression settings. The Tool renders them as the technical listing the
// real archiver prints, so the listing parser runs against realistic input.
package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/meigma/repack/internal/archtype"
)

const (
	// storedPercent and compressedPercent are the default packed/unpacked
	// percentages of level 0 and other levels.
	storedPercent     = 100
	compressedPercent = 40

	// corruptExitCode is what the archiver returns for unreadable archives.
	corruptExitCode = 2
)

// Archive is the on-disk content of a fake archive.
type Archive struct {
	// Method is the archive-level method. Defaults by level when empty.
	Method string `json:"method,omitempty"`

	// Level is the compression level. Level 0 stores every file in its own block.
	Level int `json:"level"`

	// BlockSize bounds the unpacked bytes per solid block. 0 puts all
	// files in one block.
	BlockSize int64 `json:"block_size,omitempty"`

	// PackedPercent is the packed size of a block as a percentage of its
	// unpacked size. Defaults by level when zero.
	PackedPercent int64 `json:"packed_percent,omitempty"`

	Files []File `json:"files"`
}

// File is one member of a fake archive.
type File struct {
	Path string `json:"path"`
	Data []byte `json:"data,omitempty"`
	Dir  bool   `json:"dir,omitempty"`
}

// WriteArchive stores a as a fake archive at path.
func WriteArchive(tb testing.TB, path string, a Archive) {
	tb.Helper()
	data, err := json.Marshal(a)
	if err != nil {
		tb.Fatalf("marshal archive: %v", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		tb.Fatalf("write archive: %v", err)
	}
}

// ReadArchive loads the fake archive at path.
func ReadArchive(tb testing.TB, path string) Archive {
	tb.Helper()
	a, err := readArchive(path)
	if err != nil {
		tb.Fatalf("read archive: %v", err)
	}
	return a
}

// Call records one invocation of the Tool.
type Call struct {
	Op      string
	Archive string
	Dir     string
	Opts    archtype.CompressOptions
}

// Tool is a fake archiver operating on fake archives.
// It is safe for concurrent use.
type Tool struct {
	// ExtractErr makes Extract write a partial file and fail.
	ExtractErr error

	// CompressErr makes Compress write a partial output and fail.
	CompressErr error

	// Mutate alters the archive Compress is about to write.
	Mutate func(*Archive)

	// Stall names an op ("list", "extract", "compress") that blocks until
	// its context ends, like an archiver stuck on a bad disk.
	Stall string

	mu    sync.Mutex
	calls []Call
}

// Calls returns the recorded invocations in order.
func (t *Tool) Calls() []Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Call(nil), t.calls...)
}

// CountOps returns how many times op ("list", "extract", "compress") ran.
func (t *Tool) CountOps(op string) int {
	n := 0
	for _, c := range t.Calls() {
		if c.Op == op {
			n++
		}
	}
	return n
}

// wait blocks until ctx ends when op is stalled and returns the context error.
func (t *Tool) wait(ctx context.Context, op string) error {
	if t.Stall == op {
		<-ctx.Done()
	}
	return ctx.Err()
}

func (t *Tool) record(c Call) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, c)
}

// List renders the technical listing of the archive at path.
func (t *Tool) List(ctx context.Context, path string) (string, error) {
	t.record(Call{Op: "list", Archive: path})
	if err := t.wait(ctx, "list"); err != nil {
		return "", err
	}
	a, err := readArchive(path)
	if err != nil {
		return "", corrupt([]string{"7zr", "l", "-slt", path}, path, err)
	}
	return Render(path, a), nil
}

// Extract writes the archive members into dir.
func (t *Tool) Extract(ctx context.Context, path, dir string) error {
	t.record(Call{Op: "extract", Archive: path, Dir: dir})
	if err := t.wait(ctx, "extract"); err != nil {
		return err
	}
	command := []string{"7zr", "x", "-o" + dir, path}
	if t.ExtractErr != nil {
		_ = os.WriteFile(filepath.Join(dir, "partial.bin"), []byte("partial"), 0o600)
		return &archtype.ToolError{Command: command, ExitCode: corruptExitCode, Output: "ERROR: Data Error", Err: t.ExtractErr}
	}
	a, err := readArchive(path)
	if err != nil {
		return corrupt(command, path, err)
	}
	for _, f := range a.Files {
		target := filepath.Join(dir, filepath.FromSlash(f.Path))
		if f.Dir {
			if err := os.MkdirAll(target, 0o750); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
			return err
		}
		if err := os.WriteFile(target, f.Data, 0o600); err != nil {
			return err
		}
	}
	return nil
}

// Compress builds a fake archive at output from the contents of dir.
func (t *Tool) Compress(ctx context.Context, dir, output string, opts archtype.CompressOptions) error {
	t.record(Call{Op: "compress", Archive: output, Dir: dir, Opts: opts})
	if err := t.wait(ctx, "compress"); err != nil {
		return err
	}
	if t.CompressErr != nil {
		_ = os.WriteFile(output, []byte("partial"), 0o600)
		return &archtype.ToolError{
			Command:  []string{"7zr", "a", output},
			Dir:      dir,
			ExitCode: corruptExitCode,
			Output:   "ERROR: No space left on device",
			Err:      t.CompressErr,
		}
	}

	a := Archive{Level: opts.Level}
	if opts.Level > 0 {
		a.BlockSize = opts.SolidBlockSize
	}
	var sources []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == dir {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			a.Files = append(a.Files, File{Path: rel, Dir: true})
			return nil
		}
		data, err := os.ReadFile(path) //nolint:gosec // test helper
		if err != nil {
			return err
		}
		a.Files = append(a.Files, File{Path: rel, Data: data})
		sources = append(sources, path)
		return nil
	})
	if err != nil {
		return err
	}
	if opts.RemoveSources {
		for _, src := range sources {
			if err := os.Remove(src); err != nil {
				return err
			}
		}
	}
	if t.Mutate != nil {
		t.Mutate(&a)
	}
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return os.WriteFile(output, data, 0o600)
}

// Render returns the listing text for a stored at path.
func Render(path string, a Archive) string {
	percent := a.PackedPercent
	if percent == 0 {
		percent = compressedPercent
		if a.Level == 0 {
			percent = storedPercent
		}
	}
	method := a.Method
	if method == "" {
		method = "LZMA2:24"
		if a.Level == 0 {
			method = "Copy"
		}
	}

	type member struct {
		file   File
		block  int
		packed string
	}
	members := make([]member, 0, len(a.Files))
	var (
		blocks     int
		blockBytes int64
		blockStart = -1
		physical   int64
	)
	// closeBlock stores the packed size of the open block on its first member.
	closeBlock := func() {
		if blockStart < 0 {
			return
		}
		packed := blockBytes * percent / 100
		physical += packed
		members[blockStart].packed = strconv.FormatInt(packed, 10)
		blockStart, blockBytes = -1, 0
	}
	for _, f := range a.Files {
		m := member{file: f, block: -1}
		size := int64(len(f.Data))
		if f.Dir || size == 0 {
			m.packed = "0"
			members = append(members, m)
			continue
		}
		if a.Level == 0 || (blockStart >= 0 && a.BlockSize > 0 && blockBytes+size > a.BlockSize) {
			closeBlock()
		}
		if blockStart < 0 {
			blockStart = len(members)
			blocks++
		}
		m.block = blocks - 1
		blockBytes += size
		members = append(members, m)
	}
	closeBlock()

	solid := "-"
	if a.Level > 0 {
		solid = "+"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\n7-Zip (r) 23.01 (x64) : Copyright (c) 1999-2023 Igor Pavlov : 2023-06-20\n\n")
	fmt.Fprintf(&b, "Listing archive: %s\n\n--\n", path)
	fmt.Fprintf(&b, "Path = %s\nType = 7z\nPhysical Size = %d\nHeaders Size = 122\n", path, physical)
	fmt.Fprintf(&b, "Method = %s\nSolid = %s\nBlocks = %d\n\n----------\n", method, solid, blocks)
	for _, m := range members {
		attrs, block := "A", ""
		if m.file.Dir {
			attrs = "D"
		}
		if m.block >= 0 {
			block = strconv.Itoa(m.block)
		}
		fmt.Fprintf(&b, "Path = %s\nSize = %d\nPacked Size = %s\nModified = 2024-01-02 03:04:05\n",
			m.file.Path, len(m.file.Data), m.packed)
		fmt.Fprintf(&b, "Attributes = %s\nCRC = \nEncrypted = -\nMethod = %s\nBlock = %s\n\n", attrs, method, block)
	}
	return b.String()
}

func readArchive(path string) (Archive, error) {
	var a Archive
	data, err := os.ReadFile(path) //nolint:gosec // test helper
	if err != nil {
		return a, err
	}
	if err := json.Unmarshal(data, &a); err != nil {
		return a, err
	}
	return a, nil
}

// corrupt reports an unreadable archive the way the archiver does.
func corrupt(command []string, path string, cause error) error {
	if errors.Is(cause, fs.ErrNotExist) {
		return &archtype.ToolError{
			Command:  command,
			ExitCode: corruptExitCode,
			Output:   "ERROR: The system cannot find the file specified: " + path,
			Err:      cause,
		}
	}
	return &archtype.ToolError{
		Command:  command,
		ExitCode: corruptExitCode,
		Output:   "ERROR: " + path + "\nCan not open the file as archive",
		Err:      cause,
	}
}
