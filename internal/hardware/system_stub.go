//go:build !cuda

package hardware

import (
	"context"
	"runtime"

	"github.com/rs/zerolog"
)

// System probes live machine resources. Built without the cuda tag it
// reports no accelerator.
type System struct {
	log zerolog.Logger
}

func NewSystem(log zerolog.Logger) *System {
	return &System{log: log}
}

func (s *System) Snapshot(ctx context.Context) (Snapshot, error) {
	total, avail, err := readMemInfo()
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		CPUCores: runtime.NumCPU(),
		TotalRAM: total,
		FreeRAM:  avail,
	}, nil
}
