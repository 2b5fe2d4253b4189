//go:build cuda

package hardware

import (
	"context"
	"runtime"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
	"github.com/rs/zerolog"
)

// Device narrows nvml.Device to what the snapshot needs (mockable).
type Device interface {
	GetName() (string, nvml.Return)
	GetMemoryInfo() (nvml.Memory, nvml.Return)
}

// NVML narrows the NVML entry points used here (mockable).
type NVML interface {
	Init() nvml.Return
	Shutdown() nvml.Return
	DeviceGetCount() (int, nvml.Return)
	DeviceGetHandleByIndex(index int) (Device, nvml.Return)
}

type realNVML struct{}

func (realNVML) Init() nvml.Return     { return nvml.Init() }
func (realNVML) Shutdown() nvml.Return { return nvml.Shutdown() }
func (realNVML) DeviceGetCount() (int, nvml.Return) {
	return nvml.DeviceGetCount()
}

func (realNVML) DeviceGetHandleByIndex(index int) (Device, nvml.Return) {
	dev, ret := nvml.DeviceGetHandleByIndex(index)
	if ret != nvml.SUCCESS {
		return nil, ret
	}
	return dev, ret
}

// System probes live machine resources. Accelerator data comes from NVML;
// the first device is reported.
type System struct {
	log zerolog.Logger
	nv  NVML
}

func NewSystem(log zerolog.Logger) *System {
	return &System{log: log, nv: realNVML{}}
}

// NewSystemWithNVML injects an NVML implementation, for tests.
func NewSystemWithNVML(nv NVML, log zerolog.Logger) *System {
	return &System{log: log, nv: nv}
}

func (s *System) Snapshot(ctx context.Context) (Snapshot, error) {
	total, avail, err := readMemInfo()
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{
		CPUCores: runtime.NumCPU(),
		TotalRAM: total,
		FreeRAM:  avail,
	}
	snap.GPU = s.probeGPU()
	return snap, nil
}

func (s *System) probeGPU() *GPUInfo {
	if ret := s.nv.Init(); ret != nvml.SUCCESS {
		s.log.Debug().Str("nvml", nvml.ErrorString(ret)).Msg("nvml init failed, assuming no accelerator")
		return nil
	}
	defer s.nv.Shutdown()

	count, ret := s.nv.DeviceGetCount()
	if ret != nvml.SUCCESS || count == 0 {
		return nil
	}
	dev, ret := s.nv.DeviceGetHandleByIndex(0)
	if ret != nvml.SUCCESS {
		s.log.Warn().Str("nvml", nvml.ErrorString(ret)).Msg("device handle failed")
		return nil
	}
	info := &GPUInfo{Kind: KindCUDA}
	if name, ret := dev.GetName(); ret == nvml.SUCCESS {
		info.Name = name
	}
	mem, ret := dev.GetMemoryInfo()
	if ret != nvml.SUCCESS {
		s.log.Warn().Str("nvml", nvml.ErrorString(ret)).Msg("memory info failed")
		return nil
	}
	info.TotalVRAM = mem.Total
	info.FreeVRAM = mem.Free
	return info
}
