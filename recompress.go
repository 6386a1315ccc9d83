package repack

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/opencontainers/go-digest"
)

const (
	// scratchPrefixLen is the number of digest hex characters used to name
	// scratch directories.
	scratchPrefixLen = 16

	// tmpSuffix is appended to the source path for the new archive until it
	// replaces the source.
	tmpSuffix = ".tmp"

	scratchDirPerm = 0o750
)

// Result describes a completed recompression.
type Result struct {
	// Source is the archive before recompression.
	Source *Archive

	// Archive is the re-encoded archive as listed after compression.
	Archive *Archive

	// Level is the compression level that was used.
	Level int

	// Delta is the packed size of the new archive minus that of the source.
	// A positive delta means the re-encode made the archive larger.
	Delta Size

	// Replaced is true when the new archive replaced the source.
	Replaced bool

	// OutputPath is where the new archive ended up, or "" when it was discarded.
	OutputPath string
}

// Recompressor drives the extract, re-encode, verify and replace cycle for
// single archives.
type Recompressor struct {
	tool     Tool
	params   Params
	strict   bool
	progress ProgressFunc
	logger   *slog.Logger
}

// NewRecompressor creates a Recompressor that uses tool and params.
func NewRecompressor(tool Tool, params Params, opts ...RecompressOption) *Recompressor {
	r := &Recompressor{
		tool:   tool,
		params: params,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// log returns the logger, falling back to a discard logger if nil.
func (r *Recompressor) log() *slog.Logger {
	if r.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.logger
}

// report sends a progress event if a callback is configured.
func (r *Recompressor) report(stage ProgressStage, path string, level int) {
	r.log().Debug("recompress stage", "archive", path, "stage", stage.String())
	if r.progress == nil {
		return
	}
	r.progress(ProgressEvent{Stage: stage, Path: path, Level: level})
}

// Recompress re-encodes src at the given compression level.
//
// The archive is extracted into a fresh scratch directory under
// Params.TempDir and compressed into a new file, deleting the extracted
// files as they are consumed. The new archive is listed and its FilesInfo
// must equal that of src, otherwise an *IntegrityError is returned. Only
// then is the source replaced (or, for dry runs, the result discarded or
// kept). The scratch directory and any partial output are removed on every
// error path, and the source is left untouched. Every archiver call is
// bounded by Params.Timeout.
func (r *Recompressor) Recompress(ctx context.Context, src *Archive, level int) (*Result, error) {
	output, err := r.outputPath(src.Path())
	if err != nil {
		return nil, err
	}
	if source, absErr := filepath.Abs(src.Path()); absErr == nil && source == output {
		return nil, fmt.Errorf("output %s would overwrite the source archive", output)
	}

	after, err := r.encode(ctx, src, output, level)
	if err != nil {
		return nil, err
	}

	if err := r.verify(src, after); err != nil {
		r.discard(output)
		return nil, err
	}

	res := &Result{
		Source:  src,
		Archive: after,
		Level:   level,
		Delta:   after.PackedSize().Sub(src.PackedSize()),
	}

	switch {
	case !r.params.DryRun:
		r.report(StageReplacing, src.Path(), level)
		if err := os.Rename(output, src.Path()); err != nil {
			r.discard(output)
			return nil, fmt.Errorf("replace archive: %w", err)
		}
		res.Replaced = true
		res.OutputPath = src.Path()
	case !r.params.KeepDryRunResult:
		r.report(StageDiscarding, src.Path(), level)
		if err := os.Remove(output); err != nil {
			return nil, fmt.Errorf("remove dry-run result: %w", err)
		}
	default:
		res.OutputPath = output
	}

	r.log().Info("archive recompressed",
		"archive", src.Path(),
		"level", level,
		"delta", res.Delta.String(),
		"replaced", res.Replaced)
	return res, nil
}

// encode extracts src into a scratch directory and compresses it into
// output, then lists the result. The scratch directory is always removed;
// output is removed when any step fails.
func (r *Recompressor) encode(ctx context.Context, src *Archive, output string, level int) (after *Archive, err error) {
	scratch, err := r.makeScratchDir(src.Path())
	if err != nil {
		return nil, err
	}
	defer func() {
		if rmErr := os.RemoveAll(scratch); rmErr != nil {
			r.log().Warn("failed to remove scratch dir", "dir", scratch, "error", rmErr)
			if err == nil {
				err = fmt.Errorf("remove scratch dir: %w", rmErr)
			}
		}
		if err != nil {
			r.discard(output)
		}
	}()

	r.report(StageExtracting, src.Path(), level)
	err = callTool(ctx, r.params.Timeout, []string{"extract", src.Path()}, func(ctx context.Context) error {
		return r.tool.Extract(ctx, src.Path(), scratch)
	})
	if err != nil {
		return nil, err
	}
	if err := removeFile(output); err != nil {
		return nil, fmt.Errorf("remove stale output: %w", err)
	}

	r.report(StageCompressing, src.Path(), level)
	opts := CompressOptions{
		Level:          level,
		SolidBlockSize: r.params.MaxSolidBlockSize.Int64(),
		RemoveSources:  true,
	}
	err = callTool(ctx, r.params.Timeout, []string{"compress", output}, func(ctx context.Context) error {
		return r.tool.Compress(ctx, scratch, output, opts)
	})
	if err != nil {
		return nil, err
	}

	r.report(StageVerifying, src.Path(), level)
	_, after, err = listArchive(ctx, r.tool, r.params.Timeout, output)
	return after, err
}

// verify compares the fingerprints of the source and the re-encoded archive.
func (r *Recompressor) verify(src, after *Archive) error {
	if want, got := src.FilesInfo(), after.FilesInfo(); want != got {
		return &IntegrityError{Path: src.Path(), Want: want, Got: got}
	}
	if r.strict {
		if want, got := src.ManifestDigest(), after.ManifestDigest(); want != got {
			want, got := manifestDiff(src, after, want.String(), got.String())
			return &IntegrityError{Path: src.Path(), Want: want, Got: got}
		}
	}
	return nil
}

// manifestDiff describes the first file that differs between src and after,
// falling back to the given digests when no single file explains the change.
func manifestDiff(src, after *Archive, wantDigest, gotDigest string) (want, got string) {
	for _, f := range src.Files() {
		g, ok := after.File(f.Path)
		if !ok {
			return fmt.Sprintf("%s %s", f.Path, f.Size), "missing"
		}
		if g.Size != f.Size {
			return fmt.Sprintf("%s %s", f.Path, f.Size), fmt.Sprintf("%s %s", g.Path, g.Size)
		}
	}
	for _, g := range after.Files() {
		if _, ok := src.File(g.Path); !ok {
			return "missing", fmt.Sprintf("%s %s", g.Path, g.Size)
		}
	}
	return wantDigest, gotDigest
}

// outputPath returns the absolute path the new archive is written to.
// The archiver runs inside the scratch directory, so relative paths would
// resolve against it. Dry-run results carry the scratch prefix of the
// source so that equally named archives from different directories do not
// collide in TempDir.
func (r *Recompressor) outputPath(source string) (string, error) {
	output := source + tmpSuffix
	if r.params.DryRun {
		output = filepath.Join(r.params.TempDir, ScratchPrefix(source)+"-"+filepath.Base(source))
	}
	return filepath.Abs(output)
}

// makeScratchDir creates a unique scratch directory under TempDir whose
// name starts with a digest of the absolute source path.
func (r *Recompressor) makeScratchDir(source string) (string, error) {
	if err := os.MkdirAll(r.params.TempDir, scratchDirPerm); err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	dir, err := os.MkdirTemp(r.params.TempDir, ScratchPrefix(source)+"-*")
	if err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}
	return dir, nil
}

// discard removes a partial or rejected output file, logging failures.
func (r *Recompressor) discard(output string) {
	if err := removeFile(output); err != nil {
		r.log().Warn("failed to remove output", "path", output, "error", err)
	}
}

// ScratchPrefix returns the name prefix of scratch directories created for
// the archive at path.
func ScratchPrefix(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return digest.FromString(path).Encoded()[:scratchPrefixLen]
}

// removeFile removes path, treating a missing file as success.
func removeFile(path string) error {
	err := os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
