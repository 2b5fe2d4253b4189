package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.yaml", `
addr: :9999
models_dir: /tmp/models
data_dir: /tmp/data
log_level: debug
text:
  port: 9080
  model: m1
  test_artifact: ~/models/tiny.gguf
  variants:
    - tag: cuda
      url: https://example.com/llama-cuda.zip
      sha256: abc123
      deps:
        - url: https://example.com/cudart.zip
          sha256: def456
    - tag: cpu
      url: https://example.com/llama-cpu.zip
      sha256: fff000
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9999" || cfg.ModelsDir != "/tmp/models" || cfg.DataDir != "/tmp/data" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.Text.Port != 9080 || cfg.Text.Model != "m1" || cfg.Text.TestArtifact != "~/models/tiny.gguf" {
		t.Fatalf("unexpected text cfg: %+v", cfg.Text)
	}
	if len(cfg.Text.Variants) != 2 {
		t.Fatalf("expected 2 variants, got %d", len(cfg.Text.Variants))
	}
	v := cfg.Text.Variants[0]
	if v.Tag != "cuda" || v.SHA256 != "abc123" || len(v.Deps) != 1 || v.Deps[0].SHA256 != "def456" {
		t.Fatalf("unexpected variant: %+v", v)
	}
}

func TestLoadJSON(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.json", `{"addr":":7070","models_dir":"/m","image":{"port":7081,"model":"sd15"}}`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":7070" || cfg.ModelsDir != "/m" || cfg.Image.Port != 7081 || cfg.Image.Model != "sd15" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadTOML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.toml", `
addr = ":8081"
models_dir = "/x"

[arbiter]
safety_fraction = 0.5
overhead_factor = 1.5

[[text.variants]]
tag = "vulkan"
url = "https://example.com/llama-vulkan.tar.gz"
sha256 = "beef"
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8081" || cfg.ModelsDir != "/x" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.Arbiter.SafetyFraction != 0.5 || cfg.Arbiter.OverheadFactor != 1.5 {
		t.Fatalf("unexpected arbiter cfg: %+v", cfg.Arbiter)
	}
	if len(cfg.Text.Variants) != 1 || cfg.Text.Variants[0].Tag != "vulkan" {
		t.Fatalf("unexpected variants: %+v", cfg.Text.Variants)
	}
}

func TestLoadKeepsDefaultsForAbsentFields(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.yaml", "addr: :9999\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	def := Default()
	if cfg.Arbiter != def.Arbiter {
		t.Fatalf("arbiter defaults lost: %+v", cfg.Arbiter)
	}
	if cfg.Health != def.Health {
		t.Fatalf("health defaults lost: %+v", cfg.Health)
	}
	if cfg.Text.Port != def.Text.Port || cfg.Image.Port != def.Image.Port {
		t.Fatalf("port defaults lost: text=%d image=%d", cfg.Text.Port, cfg.Image.Port)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error on empty path")
	}
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.txt", "not supported")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected unsupported extension error")
	}
}
