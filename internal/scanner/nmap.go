// internal/scanner/nmap.go
// nmap subprocess runner with timeout and process-group termination

package scanner

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	"github.com/aspnmy/scanapi/internal/models"
	"github.com/aspnmy/scanapi/pkg/logger"
)

const (
	defaultMaxOutput = 32 << 20
	maxStderrBytes   = 64 << 10
)

// Config holds runner settings
type Config struct {
	Binary         string
	KillGrace      time.Duration // SIGTERM to SIGKILL delay
	MaxOutputBytes int64
}

// NmapRunner implements Executor by running the nmap binary
type NmapRunner struct {
	config Config
}

// NewNmapRunner creates a runner
func NewNmapRunner(cfg Config) *NmapRunner {
	if cfg.Binary == "" {
		cfg.Binary = "nmap"
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = defaultMaxOutput
	}
	return &NmapRunner{config: cfg}
}

// BuildArgs returns the argv (without the binary) for a scan. XML goes to
// stdout and the targets are always the last discrete tokens.
func BuildArgs(args, targets []string) []string {
	argv := make([]string, 0, len(args)+len(targets)+2)
	argv = append(argv, "-oX", "-")
	argv = append(argv, args...)
	argv = append(argv, targets...)
	return argv
}

// Run implements Executor
func (r *NmapRunner) Run(ctx context.Context, args, targets []string, timeout time.Duration) (*RawOutput, error) {
	if len(targets) == 0 {
		return nil, models.NewError(models.ErrLaunchFailure, "no targets")
	}
	target := strings.Join(targets, " ")

	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	argv := BuildArgs(args, targets)
	cmd := exec.CommandContext(runCtx, r.config.Binary, argv...)

	stdout := &cappedBuffer{max: r.config.MaxOutputBytes}
	stderr := &cappedBuffer{max: maxStderrBytes}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	configureProcess(cmd, r.config.KillGrace)

	logger.Debug("Launching scanner",
		logger.String("binary", r.config.Binary),
		logger.String("args", strings.Join(argv, " ")),
	)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, models.NewError(models.ErrLaunchFailure, "%s", r.config.Binary).WithCause(err)
	}
	pid := cmd.Process.Pid

	waitErr := cmd.Wait()
	killGroup(pid)

	out := &RawOutput{
		Stdout:    stdout.buf.Bytes(),
		Stderr:    stderr.buf.String(),
		ExitCode:  cmd.ProcessState.ExitCode(),
		Duration:  time.Since(start),
		Truncated: stdout.truncated,
	}
	if out.Truncated {
		logger.Warn("Scanner output truncated",
			logger.String("target", target),
			logger.Int64("limit", r.config.MaxOutputBytes),
		)
	}

	if runCtx.Err() != nil {
		if ctx.Err() != nil {
			return out, models.NewError(models.ErrCancelled, "scan of %s stopped after %s", target, out.Duration.Round(time.Millisecond))
		}
		return out, models.NewError(models.ErrTimeout, "scan of %s exceeded %s", target, timeout).WithDetail(out.Stderr)
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(waitErr, &exitErr):
			return out, models.NewError(models.ErrNonZeroExit, "exit status %d", out.ExitCode).
				WithDetail(strings.TrimSpace(out.Stderr))
		case errors.Is(waitErr, exec.ErrWaitDelay) && out.ExitCode == 0:
			// a child kept stdout open after nmap exited
			logger.Warn("Scanner output pipe held open", logger.String("target", target))
		default:
			return out, models.NewError(models.ErrLaunchFailure, "wait for %s", r.config.Binary).WithCause(waitErr)
		}
	}

	return out, nil
}

// cappedBuffer keeps the first max bytes written and discards the rest
type cappedBuffer struct {
	buf       bytes.Buffer
	max       int64
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	remaining := b.max - int64(b.buf.Len())
	if remaining <= 0 {
		if len(p) > 0 {
			b.truncated = true
		}
		return len(p), nil
	}
	if int64(len(p)) > remaining {
		b.buf.Write(p[:remaining])
		b.truncated = true
		return len(p), nil
	}
	return b.buf.Write(p)
}
