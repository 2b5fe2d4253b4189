// Package hardware reports the machine resources the daemon plans against:
// CPU cores, system memory and the accelerator, if one is present.
package hardware

import "context"

// Accelerator kinds reported in Snapshot.
const (
	KindNone  = "none"
	KindCUDA  = "cuda"
	KindROCm  = "rocm"
	KindMetal = "metal"
)

// GPUInfo describes the detected accelerator.
type GPUInfo struct {
	Kind      string
	Name      string
	TotalVRAM uint64
	FreeVRAM  uint64
}

// Snapshot is a point-in-time view of machine resources. GPU is nil when
// no accelerator is available.
type Snapshot struct {
	CPUCores int
	TotalRAM uint64
	FreeRAM  uint64
	GPU      *GPUInfo
}

// HasGPU reports whether an accelerator was detected.
func (s Snapshot) HasGPU() bool { return s.GPU != nil }

// Provider produces hardware snapshots. Implementations must be safe for
// concurrent use.
type Provider interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// Static is a fixed-value Provider for tests and overrides.
type Static struct {
	Snap Snapshot
	Err  error
}

func (s Static) Snapshot(context.Context) (Snapshot, error) { return s.Snap, s.Err }
