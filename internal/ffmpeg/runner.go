package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// DefaultCommandTimeout bounds a single subprocess invocation when the stage
// supplies no tighter deadline.
const DefaultCommandTimeout = 10 * time.Minute

// Runner executes external tools with bounded timeouts. Cancellation kills
// the subprocess.
type Runner struct {
	logger  *slog.Logger
	timeout time.Duration
}

// NewRunner builds a Runner.
func NewRunner(logger *slog.Logger, timeout time.Duration) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	return &Runner{logger: logger.With("component", "subprocess"), timeout: timeout}
}

// Run executes the command, returning stdout. Stderr is captured and
// included in the error on failure.
func (r *Runner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Give the process a moment to exit cleanly on cancellation before the
	// kill signal.
	cmd.WaitDelay = 5 * time.Second

	start := time.Now()
	err := cmd.Run()
	r.logger.Debug("subprocess finished",
		"cmd", name, "args", len(args), "duration", time.Since(start), "err", err)

	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s: %w", name, ctx.Err())
		}
		return nil, fmt.Errorf("%s: %w: %s", name, err, tailLines(stderr.String(), 5))
	}
	return stdout.Bytes(), nil
}

// RunCombined executes the command, returning stdout and stderr interleaved.
// ffmpeg filters such as showinfo log to stderr, so callers that parse filter
// output need both streams.
func (r *Runner) RunCombined(ctx context.Context, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	var combined bytes.Buffer
	cmd.Stdout = &combined
	cmd.Stderr = &combined
	cmd.WaitDelay = 5 * time.Second

	start := time.Now()
	err := cmd.Run()
	r.logger.Debug("subprocess finished",
		"cmd", name, "args", len(args), "duration", time.Since(start), "err", err)

	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s: %w", name, ctx.Err())
		}
		return nil, fmt.Errorf("%s: %w: %s", name, err, tailLines(combined.String(), 5))
	}
	return combined.Bytes(), nil
}

// tailLines returns the last n non-empty lines of s, joined. ffmpeg puts the
// useful diagnostic at the end of a long banner.
func tailLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	kept := make([]string, 0, n)
	for i := len(lines) - 1; i >= 0 && len(kept) < n; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			kept = append([]string{line}, kept...)
		}
	}
	return strings.Join(kept, " | ")
}
