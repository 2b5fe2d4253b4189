package proc

import (
	"context"
	"errors"
	"os/exec"
	"sync"
	"time"
)

// maxCaptureBytes bounds retained output of a Run call; older output is
// dropped so failure diagnostics keep the tail.
const maxCaptureBytes = 256 * 1024

// CaptureResult describes a completed one-shot execution.
type CaptureResult struct {
	// Exit status; -1 when the process was killed.
	ExitCode int
	// Combined stdout and stderr, tail-truncated.
	Output string
	// True when the deadline killed the process.
	TimedOut bool
	Duration time.Duration
}

// Run executes path to completion with a deadline, capturing combined
// output. A nonzero exit is reported in the result, not as an error;
// the error return is reserved for failures to launch.
func (s *Supervisor) Run(ctx context.Context, path string, args []string, timeout time.Duration, opts Options) (CaptureResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, path, args...)
	if opts.Dir != "" {
		cmd.Dir = opts.Dir
	}
	if len(opts.Env) > 0 {
		cmd.Env = append(cmd.Environ(), opts.Env...)
	}
	buf := &tailBuffer{max: maxCaptureBytes}
	cmd.Stdout = buf
	cmd.Stderr = buf

	start := time.Now()
	err := cmd.Run()
	res := CaptureResult{
		Output:   buf.String(),
		TimedOut: ctx.Err() == context.DeadlineExceeded,
		Duration: time.Since(start),
	}
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			res.ExitCode = ee.ExitCode()
			return res, nil
		}
		if res.TimedOut {
			res.ExitCode = -1
			return res, nil
		}
		return res, &SpawnError{Path: path, Err: err}
	}
	return res, nil
}

// tailBuffer retains the last max bytes written to it. Stdout and stderr
// share one instance, so writes are locked.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if len(b.buf) > b.max {
		b.buf = b.buf[len(b.buf)-b.max:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
