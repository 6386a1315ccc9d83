package repack

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/repack/internal/testutil"
)

const wavFilesInfo = "2 files (min/max/avg 10.00/20.00/15.00) types [wav]"

// wavArchive is a solid archive of two files in one block packed to 50%.
func wavArchive() testutil.Archive {
	return testutil.Archive{
		Method:        "LZMA:24",
		Level:         9,
		PackedPercent: 50,
		Files: []testutil.File{
			{Path: "disc", Dir: true},
			{Path: "disc/01.wav", Data: make([]byte, 10)},
			{Path: "disc/02.wav", Data: make([]byte, 20)},
		},
	}
}

type fixture struct {
	tool    *testutil.Tool
	params  Params
	path    string
	tempDir string
	source  []byte
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		tool:    &testutil.Tool{},
		params:  DefaultParams(),
		path:    filepath.Join(dir, "music.7z"),
		tempDir: filepath.Join(dir, "temp"),
	}
	f.params.MaxSolidBlockSize = 10
	f.params.TempDir = f.tempDir
	testutil.WriteArchive(t, f.path, wavArchive())

	var err error
	f.source, err = os.ReadFile(f.path)
	require.NoError(t, err)
	return f
}

func (f *fixture) open(t *testing.T) *Archive {
	t.Helper()
	_, a, err := listArchive(context.Background(), f.tool, 0, f.path)
	require.NoError(t, err)
	return a
}

// assertClean checks that no scratch directory or temporary output is left.
func (f *fixture) assertClean(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.tempDir)
	if !errors.Is(err, os.ErrNotExist) {
		require.NoError(t, err)
		assert.Empty(t, entries)
	}
	assert.NoFileExists(t, f.path+".tmp")
}

func (f *fixture) assertSourceUnchanged(t *testing.T) {
	t.Helper()
	got, err := os.ReadFile(f.path)
	require.NoError(t, err)
	assert.Equal(t, f.source, got)
}

func TestRecompressReplacesArchive(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	src := f.open(t)
	require.Equal(t, wavFilesInfo, src.FilesInfo())
	require.Equal(t, Size(15), src.PackedSize())

	var stages []ProgressStage
	r := NewRecompressor(f.tool, f.params, RecompressWithProgress(func(ev ProgressEvent) {
		assert.Equal(t, f.path, ev.Path)
		assert.Equal(t, 7, ev.Level)
		stages = append(stages, ev.Stage)
	}))

	res, err := r.Recompress(context.Background(), src, 7)
	require.NoError(t, err)
	assert.True(t, res.Replaced)
	assert.Equal(t, f.path, res.OutputPath)
	assert.Equal(t, 7, res.Level)
	assert.Equal(t, wavFilesInfo, res.Archive.FilesInfo())
	assert.Equal(t, Size(-3), res.Delta)
	assert.Equal(t, "-3.00", res.Delta.String())
	assert.Equal(t, []ProgressStage{StageExtracting, StageCompressing, StageVerifying, StageReplacing}, stages)

	replaced := testutil.ReadArchive(t, f.path)
	assert.Equal(t, 7, replaced.Level)
	assert.Equal(t, int64(10), replaced.BlockSize)

	var compress testutil.Call
	for _, c := range f.tool.Calls() {
		if c.Op == "compress" {
			compress = c
		}
	}
	assert.Equal(t, CompressOptions{Level: 7, SolidBlockSize: 10, RemoveSources: true}, compress.Opts)
	assert.True(t, filepath.IsAbs(compress.Archive))
	f.assertClean(t)
}

func TestRecompressIntegrityMismatch(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.tool.Mutate = func(a *testutil.Archive) {
		a.Files = a.Files[:len(a.Files)-1]
	}

	_, err := NewRecompressor(f.tool, f.params).Recompress(context.Background(), f.open(t), 7)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIntegrityMismatch)

	var integrityErr *IntegrityError
	require.ErrorAs(t, err, &integrityErr)
	assert.Equal(t, wavFilesInfo, integrityErr.Want)
	assert.Equal(t, "1 files (min/max/avg 10.00/10.00/10.00) types [wav]", integrityErr.Got)

	f.assertSourceUnchanged(t)
	f.assertClean(t)
}

func TestRecompressExtractFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.tool.ExtractErr = errors.New("data error")

	_, err := NewRecompressor(f.tool, f.params).Recompress(context.Background(), f.open(t), 7)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrToolExecution)
	assert.Zero(t, f.tool.CountOps("compress"))

	f.assertSourceUnchanged(t)
	f.assertClean(t)
}

func TestRecompressCompressFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.tool.CompressErr = errors.New("disk full")

	_, err := NewRecompressor(f.tool, f.params).Recompress(context.Background(), f.open(t), 7)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrToolExecution)

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Contains(t, toolErr.Output, "No space left")

	f.assertSourceUnchanged(t)
	f.assertClean(t)
}

func TestRecompressRemovesStaleOutput(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	require.NoError(t, os.WriteFile(f.path+".tmp", []byte("stale"), 0o600))

	_, err := NewRecompressor(f.tool, f.params).Recompress(context.Background(), f.open(t), 7)
	require.NoError(t, err)
	f.assertClean(t)
}

func TestRecompressDryRun(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.params.DryRun = true

	var stages []ProgressStage
	r := NewRecompressor(f.tool, f.params, RecompressWithProgress(func(ev ProgressEvent) {
		stages = append(stages, ev.Stage)
	}))
	res, err := r.Recompress(context.Background(), f.open(t), 7)
	require.NoError(t, err)
	assert.False(t, res.Replaced)
	assert.Empty(t, res.OutputPath)
	assert.Equal(t, Size(-3), res.Delta)
	assert.Equal(t, StageDiscarding, stages[len(stages)-1])

	f.assertSourceUnchanged(t)
	f.assertClean(t)
}

func TestRecompressDryRunKeepResult(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.params.DryRun = true
	f.params.KeepDryRunResult = true

	res, err := NewRecompressor(f.tool, f.params).Recompress(context.Background(), f.open(t), 7)
	require.NoError(t, err)
	assert.False(t, res.Replaced)

	want, err := filepath.Abs(filepath.Join(f.tempDir, ScratchPrefix(f.path)+"-music.7z"))
	require.NoError(t, err)
	assert.Equal(t, want, res.OutputPath)
	assert.FileExists(t, res.OutputPath)
	assert.Equal(t, 7, testutil.ReadArchive(t, res.OutputPath).Level)

	entries, err := os.ReadDir(f.tempDir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "only the kept result remains")
	f.assertSourceUnchanged(t)
}

func TestRecompressStrictVerify(t *testing.T) {
	t.Parallel()

	rename := func(a *testutil.Archive) {
		for i := range a.Files {
			if a.Files[i].Path == "disc/02.wav" {
				a.Files[i].Path = "disc/03.wav"
			}
		}
	}

	t.Run("aggregate check accepts renamed file", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.tool.Mutate = rename
		_, err := NewRecompressor(f.tool, f.params).Recompress(context.Background(), f.open(t), 7)
		require.NoError(t, err)
	})

	t.Run("strict check rejects renamed file", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.tool.Mutate = rename
		r := NewRecompressor(f.tool, f.params, RecompressWithStrictVerify(true))
		_, err := r.Recompress(context.Background(), f.open(t), 7)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrIntegrityMismatch)

		var integrityErr *IntegrityError
		require.ErrorAs(t, err, &integrityErr)
		assert.Equal(t, "disc/02.wav 20.00", integrityErr.Want)
		assert.Equal(t, "missing", integrityErr.Got)
		f.assertSourceUnchanged(t)
		f.assertClean(t)
	})

	t.Run("strict check names resized file", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.tool.Mutate = func(a *testutil.Archive) {
			for i := range a.Files {
				switch a.Files[i].Path {
				case "disc/01.wav":
					a.Files[i].Data = make([]byte, 20)
				case "disc/02.wav":
					a.Files[i].Data = make([]byte, 10)
				}
			}
		}
		r := NewRecompressor(f.tool, f.params, RecompressWithStrictVerify(true))
		_, err := r.Recompress(context.Background(), f.open(t), 7)

		var integrityErr *IntegrityError
		require.ErrorAs(t, err, &integrityErr)
		assert.Equal(t, "disc/01.wav 10.00", integrityErr.Want)
		assert.Equal(t, "disc/01.wav 20.00", integrityErr.Got)
	})
}

func TestRecompressDryRunInSourceDir(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	dir := filepath.Dir(f.path)
	f.params.TempDir = dir
	f.params.DryRun = true
	f.params.KeepDryRunResult = true

	res, err := NewRecompressor(f.tool, f.params).Recompress(context.Background(), f.open(t), 7)
	require.NoError(t, err)
	f.assertSourceUnchanged(t)

	want, err := filepath.Abs(filepath.Join(dir, ScratchPrefix(f.path)+"-music.7z"))
	require.NoError(t, err)
	assert.Equal(t, want, res.OutputPath)
	assert.Equal(t, 7, testutil.ReadArchive(t, res.OutputPath).Level)
	assert.Equal(t, 9, testutil.ReadArchive(t, f.path).Level)
}

func TestRecompressDryRunSameName(t *testing.T) {
	t.Parallel()

	tempDir := filepath.Join(t.TempDir(), "temp")
	params := DefaultParams()
	params.MaxSolidBlockSize = 10
	params.TempDir = tempDir
	params.DryRun = true
	params.KeepDryRunResult = true

	tool := &testutil.Tool{}
	r := NewRecompressor(tool, params)
	outputs := make(map[string]int)
	for i, dir := range []string{t.TempDir(), t.TempDir()} {
		path := filepath.Join(dir, "music.7z")
		arc := wavArchive()
		arc.Files[1].Data = make([]byte, 10+i)
		testutil.WriteArchive(t, path, arc)

		_, src, err := listArchive(context.Background(), tool, 0, path)
		require.NoError(t, err)
		res, err := r.Recompress(context.Background(), src, 7)
		require.NoError(t, err)
		outputs[res.OutputPath] = i
	}

	require.Len(t, outputs, 2)
	for output, i := range outputs {
		var size int
		for _, file := range testutil.ReadArchive(t, output).Files {
			if file.Path == "disc/01.wav" {
				size = len(file.Data)
			}
		}
		assert.Equal(t, 10+i, size, output)
	}
	entries, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestRecompressTimeout(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		stall string
		op    string
	}{
		{name: "extract", stall: "extract", op: "extract"},
		{name: "compress", stall: "compress", op: "compress"},
		{name: "verify listing", stall: "list", op: "list"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			src := f.open(t)
			f.tool.Stall = tt.stall
			f.params.Timeout = 50 * time.Millisecond

			errc := make(chan error, 1)
			go func() {
				_, err := NewRecompressor(f.tool, f.params).Recompress(context.Background(), src, 7)
				errc <- err
			}()

			var err error
			select {
			case err = <-errc:
			case <-time.After(5 * time.Second):
				t.Fatal("recompress ignored the timeout")
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrToolExecution)
			assert.ErrorIs(t, err, context.DeadlineExceeded)

			var toolErr *ToolError
			require.ErrorAs(t, err, &toolErr)
			assert.True(t, toolErr.TimedOut)
			assert.Equal(t, f.params.Timeout, toolErr.Timeout)
			assert.Equal(t, tt.op, toolErr.Command[0])
			assert.Contains(t, toolErr.Error(), "timed out after")

			f.assertSourceUnchanged(t)
			f.assertClean(t)
		})
	}
}

func TestRecompressCanceledIsNotTimeout(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	src := f.open(t)
	f.tool.Stall = "extract"
	f.params.Timeout = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewRecompressor(f.tool, f.params).Recompress(ctx, src, 7)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	var toolErr *ToolError
	assert.False(t, errors.As(err, &toolErr))
	f.assertSourceUnchanged(t)
	f.assertClean(t)
}

func TestScratchPrefix(t *testing.T) {
	t.Parallel()

	a := ScratchPrefix("/data/a.7z")
	assert.Len(t, a, 16)
	assert.Equal(t, a, ScratchPrefix("/data/a.7z"))
	assert.NotEqual(t, a, ScratchPrefix("/data/b.7z"))
}
