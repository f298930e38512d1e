// internal/scanner/interface.go
// Scanner process interface definitions

package scanner

import (
	"context"
	"time"
)

// Executor runs one scan and returns the tool's raw output
type Executor interface {
	// Run launches the scanner with args followed by targets. It returns
	// when the process and all of its children have exited.
	//
	// A non-zero exit returns both the RawOutput and an ErrNonZeroExit
	// error so the caller can still use whatever was written.
	Run(ctx context.Context, args, targets []string, timeout time.Duration) (*RawOutput, error)
}

// RawOutput is everything captured from one scanner process
type RawOutput struct {
	Stdout    []byte
	Stderr    string
	ExitCode  int
	Duration  time.Duration
	Truncated bool // stdout hit the output cap
}

// ExecutorFunc adapts a function to the Executor interface
type ExecutorFunc func(ctx context.Context, args, targets []string, timeout time.Duration) (*RawOutput, error)

// Run implements Executor
func (f ExecutorFunc) Run(ctx context.Context, args, targets []string, timeout time.Duration) (*RawOutput, error) {
	return f(ctx, args, targets, timeout)
}
