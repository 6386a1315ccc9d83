// Package sevenzip runs the 7-Zip command line archiver.
package sevenzip

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/meigma/repack/internal/archtype"
)

const (
	// DefaultBinary is the archiver executable looked up in PATH.
	DefaultBinary = "7zr"

	// DefaultTimeout bounds every archiver call.
	DefaultTimeout = time.Hour

	// waitDelay bounds how long output pipes may stay open after the
	// process was killed.
	waitDelay = 5 * time.Second
)

// Runner invokes the archiver as an external process.
// Every call is bounded by the configured timeout; the process is killed
// when it expires.
type Runner struct {
	binary  string
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithBinary sets the archiver executable.
func WithBinary(path string) Option {
	return func(r *Runner) {
		r.binary = path
	}
}

// WithTimeout sets the per-call timeout. Zero disables the timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		r.timeout = d
	}
}

// WithLogger sets the logger that receives the archiver output at debug level.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// New creates a Runner.
func New(opts ...Option) *Runner {
	r := &Runner{
		binary:  DefaultBinary,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// log returns the logger, falling back to a discard logger if nil.
func (r *Runner) log() *slog.Logger {
	if r.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.logger
}

// List returns the technical listing of archive.
func (r *Runner) List(ctx context.Context, archive string) (string, error) {
	return r.run(ctx, "", ListArgs(archive)...)
}

// Extract expands archive into dir.
func (r *Runner) Extract(ctx context.Context, archive, dir string) error {
	_, err := r.run(ctx, "", ExtractArgs(archive, dir)...)
	return err
}

// Compress creates output from the contents of dir. The archiver runs with
// dir as working directory, so output should be absolute.
func (r *Runner) Compress(ctx context.Context, dir, output string, opts archtype.CompressOptions) error {
	_, err := r.run(ctx, dir, CompressArgs(output, opts)...)
	return err
}

// ListArgs returns the arguments of a technical listing.
func ListArgs(archive string) []string {
	return []string{"l", "-slt", archive}
}

// ExtractArgs returns the arguments that extract archive into dir.
func ExtractArgs(archive, dir string) []string {
	return []string{"x", "-o" + dir, archive}
}

// CompressArgs returns the arguments that build a 7z archive at output.
// Level 0 disables solid mode; other levels use solid blocks of at most
// SolidBlockSize bytes, or the archiver default when it is zero.
func CompressArgs(output string, opts archtype.CompressOptions) []string {
	args := []string{"a", "-t7z", "-myx=9", "-mmt=on", fmt.Sprintf("-mx=%d", opts.Level)}
	switch {
	case opts.Level == 0:
		args = append(args, "-ms=off")
	case opts.SolidBlockSize > 0:
		args = append(args, fmt.Sprintf("-ms=e%db", opts.SolidBlockSize))
	default:
		args = append(args, "-ms=e")
	}
	if opts.RemoveSources {
		args = append(args, "-sdel")
	}
	return append(args, output)
}

// run executes the archiver and returns its combined output.
func (r *Runner) run(ctx context.Context, dir string, args ...string) (string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	command := append([]string{r.binary}, args...)
	r.log().Debug("running archiver", "command", strings.Join(command, " "), "dir", dir)

	cmd := exec.CommandContext(ctx, r.binary, args...)
	cmd.Dir = dir
	cmd.WaitDelay = waitDelay

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	var out bytes.Buffer
	var g errgroup.Group
	g.Go(func() error {
		return r.capture(pr, &out)
	})

	runErr := cmd.Run()
	_ = pw.Close()
	if captureErr := g.Wait(); captureErr != nil && runErr == nil {
		runErr = fmt.Errorf("read archiver output: %w", captureErr)
	}
	if runErr == nil {
		return out.String(), nil
	}

	toolErr := &archtype.ToolError{
		Command:  command,
		Dir:      dir,
		ExitCode: -1,
		Output:   out.String(),
		Err:      runErr,
	}
	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		toolErr.ExitCode = exitErr.ExitCode()
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		toolErr.TimedOut = true
		toolErr.Timeout = r.timeout
	}
	r.log().Debug("archiver failed",
		"command", strings.Join(command, " "),
		"exit_code", toolErr.ExitCode,
		"timed_out", toolErr.TimedOut)
	return "", toolErr
}

// capture copies the process output into out and logs it line by line.
// It reads until the write side of the pipe is closed.
func (r *Runner) capture(pr *io.PipeReader, out *bytes.Buffer) error {
	logger := r.log()
	br := bufio.NewReader(pr)
	for {
		line, err := br.ReadString('\n')
		out.WriteString(line)
		if text := strings.TrimSpace(line); text != "" {
			logger.Debug("archiver output", "line", text)
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			pr.CloseWithError(err)
			return err
		}
	}
}
