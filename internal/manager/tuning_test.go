package manager

import (
	"testing"

	"inferd/internal/hardware"
	"inferd/pkg/types"
)

func TestRecommendGPULayersFullOffload(t *testing.T) {
	m := textModel() // 4 GiB, 32 layers
	got := recommendGPULayers(gpuSnapshot(10<<30), &m, 1.2, 0.75)
	if got != 33 {
		t.Fatalf("layers = %d, want all layers plus output (33)", got)
	}
}

func TestRecommendGPULayersPartialOffload(t *testing.T) {
	m := textModel()
	// Budget 1.5 GiB against a 4.8 GiB projection across 32 layers.
	got := recommendGPULayers(gpuSnapshot(2<<30), &m, 1.2, 0.75)
	if got <= 0 || got >= 32 {
		t.Fatalf("layers = %d, want a partial offload", got)
	}
}

func TestRecommendGPULayersNoGPU(t *testing.T) {
	m := textModel()
	snap := hardware.Snapshot{CPUCores: 4, TotalRAM: 16 << 30}
	if got := recommendGPULayers(snap, &m, 1.2, 0.75); got != 0 {
		t.Fatalf("layers = %d, want 0 without an accelerator", got)
	}
}

func TestRecommendGPULayersUnknownLayerCount(t *testing.T) {
	m := textModel()
	m.Layers = 0
	got := recommendGPULayers(gpuSnapshot(10<<30), &m, 1.2, 0.75)
	if got != defaultLayerGuess+1 {
		t.Fatalf("layers = %d, want fallback guess %d", got, defaultLayerGuess+1)
	}
}

func TestAutoTuneDefaults(t *testing.T) {
	m := textModel()
	cfg := autoTune(types.ServerConfigRequest{Model: m.ID}, &m, gpuSnapshot(10<<30), 1.2, 0.75)
	if cfg.Threads != 8 {
		t.Fatalf("threads = %d, want core count", cfg.Threads)
	}
	if cfg.CtxSize != defaultCtxSize {
		t.Fatalf("ctx = %d", cfg.CtxSize)
	}
	if !cfg.FlashAttn {
		t.Fatalf("flash attention should be on for cuda")
	}
	if cfg.GPULayers != 33 {
		t.Fatalf("gpu layers = %d", cfg.GPULayers)
	}
}

func TestAutoTuneExplicitZeroGPULayers(t *testing.T) {
	m := textModel()
	zero := 0
	cfg := autoTune(types.ServerConfigRequest{Model: m.ID, GPULayers: &zero}, &m, gpuSnapshot(10<<30), 1.2, 0.75)
	if cfg.GPULayers != 0 {
		t.Fatalf("explicit 0 must force cpu-only, got %d", cfg.GPULayers)
	}
}

func TestAutoTuneUserOverrides(t *testing.T) {
	m := textModel()
	gl := 7
	req := types.ServerConfigRequest{Model: m.ID, Threads: 2, CtxSize: 512, GPULayers: &gl, Parallel: 4}
	cfg := autoTune(req, &m, gpuSnapshot(10<<30), 1.2, 0.75)
	if cfg.Threads != 2 || cfg.CtxSize != 512 || cfg.GPULayers != 7 || cfg.Parallel != 4 {
		t.Fatalf("user overrides lost: %+v", cfg)
	}
}

func TestAutoTuneNoHardware(t *testing.T) {
	m := textModel()
	cfg := autoTune(types.ServerConfigRequest{Model: m.ID}, &m, hardware.Snapshot{}, 1.2, 0.75)
	if cfg.Threads != 1 {
		t.Fatalf("threads = %d, want floor of 1", cfg.Threads)
	}
	if cfg.GPULayers != 0 || cfg.FlashAttn {
		t.Fatalf("no accelerator, got %+v", cfg)
	}
}

func TestSaveLoadServerConfig(t *testing.T) {
	dir := t.TempDir()
	in := serverConfig{Model: "llama3-8b", Port: 8080, Threads: 8, CtxSize: 4096, GPULayers: 33, Parallel: 1, FlashAttn: true}
	if err := saveServerConfig(dir, "text", in); err != nil {
		t.Fatalf("save: %v", err)
	}
	out, ok := loadServerConfig(dir, "text")
	if !ok {
		t.Fatalf("load failed")
	}
	if out != in {
		t.Fatalf("roundtrip mismatch: %+v vs %+v", out, in)
	}
	if _, ok := loadServerConfig(dir, "image"); ok {
		t.Fatalf("missing config should not load")
	}
}

func TestServerConfigRequestRoundtrip(t *testing.T) {
	in := serverConfig{Model: "llama3-8b", Port: 8080, Threads: 8, CtxSize: 4096, GPULayers: 0, Parallel: 1}
	req := in.request()
	if req.GPULayers == nil || *req.GPULayers != 0 {
		t.Fatalf("replayed config must pin gpu layers explicitly, got %v", req.GPULayers)
	}
	m := textModel()
	cfg := autoTune(req, &m, gpuSnapshot(10<<30), 1.2, 0.75)
	if cfg.GPULayers != 0 {
		t.Fatalf("replay changed gpu layers to %d", cfg.GPULayers)
	}
}
