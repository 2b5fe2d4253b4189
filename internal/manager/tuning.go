package manager

import (
	"encoding/json"
	"os"
	"path/filepath"

	"inferd/internal/common/fsutil"
	"inferd/internal/hardware"
	"inferd/pkg/types"
)

// Defaults applied when neither the user nor the tuner sets a value.
const (
	defaultCtxSize  = 4096
	defaultParallel = 1
	// Layer count assumed for models whose metadata carries none.
	defaultLayerGuess = 40
)

// serverConfig is the fully resolved launch configuration for one server:
// the user's request merged over auto-tuned recommendations.
type serverConfig struct {
	Model     string `json:"model"`
	Port      int    `json:"port"`
	Threads   int    `json:"threads"`
	CtxSize   int    `json:"ctx_size"`
	GPULayers int    `json:"gpu_layers"`
	Parallel  int    `json:"parallel"`
	FlashAttn bool   `json:"flash_attn"`
}

func (c serverConfig) request() types.ServerConfigRequest {
	gl := c.GPULayers
	return types.ServerConfigRequest{
		Model:     c.Model,
		Port:      c.Port,
		Threads:   c.Threads,
		CtxSize:   c.CtxSize,
		GPULayers: &gl,
		Parallel:  c.Parallel,
		FlashAttn: c.FlashAttn,
	}
}

// recommendGPULayers picks how many layers to offload so the projected
// footprint stays inside the free-VRAM safety margin.
func recommendGPULayers(snap hardware.Snapshot, m *types.Model, overhead, safety float64) int {
	if !snap.HasGPU() || m.SizeBytes <= 0 {
		return 0
	}
	layers := m.Layers
	if layers <= 0 {
		layers = defaultLayerGuess
	}
	perLayer := float64(m.SizeBytes) * overhead / float64(layers)
	budget := float64(snap.GPU.FreeVRAM) * safety
	fit := int(budget / perLayer)
	if fit >= layers {
		// Everything fits: offload all layers plus the output layer.
		return layers + 1
	}
	if fit < 0 {
		return 0
	}
	return fit
}

// autoTune derives a launch configuration from the hardware snapshot and
// model metadata, then lets explicit fields in req override it. A nil
// GPULayers means "tune for me"; an explicit 0 forces CPU-only.
func autoTune(req types.ServerConfigRequest, m *types.Model, snap hardware.Snapshot, overhead, safety float64) serverConfig {
	cfg := serverConfig{
		Model:     m.ID,
		Port:      req.Port,
		Threads:   snap.CPUCores,
		CtxSize:   defaultCtxSize,
		GPULayers: recommendGPULayers(snap, m, overhead, safety),
		Parallel:  defaultParallel,
		FlashAttn: snap.HasGPU() && snap.GPU.Kind == hardware.KindCUDA,
	}
	if cfg.Threads < 1 {
		cfg.Threads = 1
	}
	if req.Threads > 0 {
		cfg.Threads = req.Threads
	}
	if req.CtxSize > 0 {
		cfg.CtxSize = req.CtxSize
	}
	if req.GPULayers != nil {
		cfg.GPULayers = *req.GPULayers
	}
	if req.Parallel > 0 {
		cfg.Parallel = req.Parallel
	}
	if req.FlashAttn {
		cfg.FlashAttn = true
	}
	return cfg
}

// saveServerConfig records the effective launch configuration so the next
// daemon start (or an autostart) can replay it exactly.
func saveServerConfig(stateDir, name string, cfg serverConfig) error {
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(filepath.Join(stateDir, name+"-config.json"), b, 0o644)
}

// loadServerConfig returns the previously persisted launch configuration,
// or ok=false when none exists or it cannot be parsed.
func loadServerConfig(stateDir, name string) (serverConfig, bool) {
	b, err := os.ReadFile(filepath.Join(stateDir, name+"-config.json"))
	if err != nil {
		return serverConfig{}, false
	}
	var cfg serverConfig
	if err := json.Unmarshal(b, &cfg); err != nil {
		return serverConfig{}, false
	}
	return cfg, true
}
