package repack

import (
	"context"
	"errors"
	"time"
)

// Tool is the external archiver.
//
// Implementations must return a *ToolError when the underlying process exits
// with a non-zero status or exceeds its timeout.
type Tool interface {
	// List returns the technical listing of the archive ("l -slt" output).
	List(ctx context.Context, archive string) (string, error)

	// Extract expands the archive into dir, which must exist.
	Extract(ctx context.Context, archive, dir string) error

	// Compress builds a new solid archive at output from the contents of dir.
	Compress(ctx context.Context, dir, output string, opts CompressOptions) error
}

// callTool runs one archiver call bounded by timeout. Zero disables the
// bound. A call cut off by the bound that did not already report a
// *ToolError is reported as a timed-out *ToolError describing op.
func callTool(ctx context.Context, timeout time.Duration, op []string, fn func(context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := fn(callCtx)
	if err == nil || ctx.Err() != nil || !errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return err
	}
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return err
	}
	return &ToolError{Command: op, ExitCode: -1, TimedOut: true, Timeout: timeout, Err: err}
}

// listArchive lists path with tool under timeout and builds its model.
func listArchive(ctx context.Context, tool Tool, timeout time.Duration, path string) (string, *Archive, error) {
	var text string
	err := callTool(ctx, timeout, []string{"list", path}, func(ctx context.Context) error {
		var listErr error
		text, listErr = tool.List(ctx, path)
		return listErr
	})
	if err != nil {
		return "", nil, err
	}
	arc, err := ParseListing(path, text)
	if err != nil {
		return "", nil, err
	}
	return text, arc, nil
}
