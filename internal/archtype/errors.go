// Package archtype holds the types shared between the repack packages and
// the internal collaborators (listing parser, archiver runner, fake tool).
package archtype

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors for repack operations.
var (
	// ErrFormat is returned when a size string or a listing line is malformed.
	ErrFormat = errors.New("repack: malformed input")

	// ErrInvalidOperand is returned when an arithmetic operation has no defined result,
	// such as dividing by a zero size.
	ErrInvalidOperand = errors.New("repack: invalid operand")

	// ErrToolExecution is returned when the external archiver exits with a non-zero
	// status or exceeds its timeout.
	ErrToolExecution = errors.New("repack: archiver failed")

	// ErrIntegrityMismatch is returned when a re-encoded archive does not describe
	// the same files as its source.
	ErrIntegrityMismatch = errors.New("repack: files mismatch")
)

// ToolError describes a failed invocation of the external archiver.
// The captured output is kept verbatim so operators can diagnose corrupted
// or truncated archives.
type ToolError struct {
	Command  []string
	Dir      string
	ExitCode int
	TimedOut bool
	Timeout  time.Duration
	Output   string
	Err      error
}

func (e *ToolError) Error() string {
	var msg strings.Builder
	msg.WriteString(strings.Join(e.Command, " "))
	switch {
	case e.TimedOut:
		fmt.Fprintf(&msg, " timed out after %s", e.Timeout)
	case e.ExitCode >= 0:
		fmt.Fprintf(&msg, " returned %d", e.ExitCode)
	case e.Err != nil:
		fmt.Fprintf(&msg, " failed: %v", e.Err)
	}
	msg.WriteString(":\n")
	msg.WriteString(e.Output)
	return msg.String()
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// Is reports ErrToolExecution as a match so callers need not type-assert.
func (e *ToolError) Is(target error) bool {
	return target == ErrToolExecution
}

// IntegrityError reports a files-summary mismatch between a source archive
// and its re-encoded replacement.
type IntegrityError struct {
	Path string
	Want string
	Got  string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("files mismatch for %s: want %q, got %q", e.Path, e.Want, e.Got)
}

// Is reports ErrIntegrityMismatch as a match.
func (e *IntegrityError) Is(target error) bool {
	return target == ErrIntegrityMismatch
}
