package acquire

import (
	"context"
	"fmt"
	"strings"
	"time"

	"inferd/internal/proc"
)

const (
	defaultVersionTimeout  = 15 * time.Second
	defaultWorkloadTimeout = 2 * time.Minute
)

// Workload runs a minimal real job against exe using artifact and returns
// the combined process output for failure-signature scanning. The context
// carries the workload deadline; an expired context is a hard failure.
type Workload func(ctx context.Context, exe, artifact string) (output string, err error)

// ValidationSpec defines the two validation phases a candidate executable
// must pass before it is installed.
type ValidationSpec struct {
	// Phase 1: cheap liveness flag, e.g. ["--version"].
	VersionArgs    []string
	VersionTimeout time.Duration
	// Phase 2: real workload, skipped when nil or when no test artifact
	// was supplied.
	Workload        Workload
	WorkloadTimeout time.Duration
	// Output substrings that mark a broken accelerator backend even on a
	// zero exit, e.g. "cuda error" or "out of memory".
	FailurePatterns []string
}

// validate runs both phases against exe.
func (a *Acquirer) validate(ctx context.Context, exe string, spec Spec, artifact string) error {
	vt := spec.Probe.VersionTimeout
	if vt <= 0 {
		vt = defaultVersionTimeout
	}
	res, err := a.run.Run(ctx, exe, spec.Probe.VersionArgs, vt, proc.Options{})
	if err != nil {
		return fmt.Errorf("version check: %w", err)
	}
	if res.TimedOut {
		return fmt.Errorf("version check timed out after %s", vt)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("version check exited %d: %s", res.ExitCode, tailOf(res.Output))
	}

	if artifact == "" || spec.Probe.Workload == nil {
		return nil
	}
	wt := spec.Probe.WorkloadTimeout
	if wt <= 0 {
		wt = defaultWorkloadTimeout
	}
	wctx, cancel := context.WithTimeout(ctx, wt)
	defer cancel()
	out, werr := spec.Probe.Workload(wctx, exe, artifact)
	if sig := matchFailure(out, spec.Probe.FailurePatterns); sig != "" {
		return fmt.Errorf("accelerator failure signature %q in output", sig)
	}
	if werr != nil {
		if wctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("functional check timed out after %s", wt)
		}
		return fmt.Errorf("functional check: %w", werr)
	}
	return nil
}

func matchFailure(output string, patterns []string) string {
	lower := strings.ToLower(output)
	for _, p := range patterns {
		if p != "" && strings.Contains(lower, strings.ToLower(p)) {
			return p
		}
	}
	return ""
}

// tailOf compacts process output for inclusion in an error message.
func tailOf(out string) string {
	out = strings.TrimSpace(out)
	if len(out) > 300 {
		out = "..." + out[len(out)-300:]
	}
	return strings.ReplaceAll(out, "\n", " | ")
}
