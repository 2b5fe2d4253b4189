package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the daemon.
// Load starts from Default, so fields absent from the file keep their defaults.
type Config struct {
	// Control API listen address.
	Addr string `json:"addr" yaml:"addr" toml:"addr"`
	// Directory scanned for model files.
	ModelsDir string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	// Root for downloaded binaries, work dirs and persisted state.
	DataDir string `json:"data_dir" yaml:"data_dir" toml:"data_dir"`
	// Zerolog level name (trace, debug, info, warn, error).
	LogLevel string `json:"log_level" yaml:"log_level" toml:"log_level"`

	Text    Server  `json:"text" yaml:"text" toml:"text"`
	Image   Server  `json:"image" yaml:"image" toml:"image"`
	Arbiter Arbiter `json:"arbiter" yaml:"arbiter" toml:"arbiter"`
	Health  Health  `json:"health" yaml:"health" toml:"health"`
}

// Server carries per-server defaults and the binary variant table.
type Server struct {
	// Default listen port when a start request leaves it unset.
	Port int `json:"port" yaml:"port" toml:"port"`
	// Default model ID for autostart and unset start requests.
	Model string `json:"model" yaml:"model" toml:"model"`
	// Candidate binary builds, tried in order. Required before the
	// server can be started.
	Variants []Variant `json:"variants" yaml:"variants" toml:"variants"`
	// Small model file used to exercise a freshly extracted binary
	// before it is accepted. Empty skips the functional check.
	TestArtifact string `json:"test_artifact,omitempty" yaml:"test_artifact,omitempty" toml:"test_artifact,omitempty"`
}

// Variant describes one downloadable build of a server binary.
type Variant struct {
	// Backend tag, e.g. "cuda", "vulkan", "avx2", "cpu".
	Tag string `json:"tag" yaml:"tag" toml:"tag"`
	// Archive URL (.zip, .tar.gz or .tgz).
	URL string `json:"url" yaml:"url" toml:"url"`
	// Hex SHA-256 of the archive.
	SHA256 string `json:"sha256" yaml:"sha256" toml:"sha256"`
	// Extra files fetched next to the archive before extraction.
	Deps []Dependency `json:"deps,omitempty" yaml:"deps,omitempty" toml:"deps,omitempty"`
}

// Dependency is one extra download a variant needs, e.g. a runtime library bundle.
type Dependency struct {
	URL    string `json:"url" yaml:"url" toml:"url"`
	SHA256 string `json:"sha256" yaml:"sha256" toml:"sha256"`
}

// Arbiter tunes the memory arbitration heuristics.
type Arbiter struct {
	// Fraction of available memory treated as usable, 0 < f <= 1.
	SafetyFraction float64 `json:"safety_fraction" yaml:"safety_fraction" toml:"safety_fraction"`
	// Multiplier applied to model sizes to cover runtime overhead.
	OverheadFactor float64 `json:"overhead_factor" yaml:"overhead_factor" toml:"overhead_factor"`
	// Fallback image-generation footprint in GiB when the model size is unknown.
	ImageEstimateGiB float64 `json:"image_estimate_gib" yaml:"image_estimate_gib" toml:"image_estimate_gib"`
}

// Health tunes the post-spawn readiness polling backoff.
type Health struct {
	InitialDelayMS int     `json:"initial_delay_ms" yaml:"initial_delay_ms" toml:"initial_delay_ms"`
	Multiplier     float64 `json:"multiplier" yaml:"multiplier" toml:"multiplier"`
	MaxDelayMS     int     `json:"max_delay_ms" yaml:"max_delay_ms" toml:"max_delay_ms"`
	// Overall deadline for the text server to become healthy.
	TextTimeoutS int `json:"text_timeout_s" yaml:"text_timeout_s" toml:"text_timeout_s"`
	// Overall deadline for the image wrapper to become healthy.
	ImageTimeoutS int `json:"image_timeout_s" yaml:"image_timeout_s" toml:"image_timeout_s"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Addr:      "127.0.0.1:8090",
		ModelsDir: "~/models",
		DataDir:   "~/.inferd",
		LogLevel:  "info",
		Text:      Server{Port: 8080},
		Image:     Server{Port: 8081},
		Arbiter: Arbiter{
			SafetyFraction:   0.75,
			OverheadFactor:   1.2,
			ImageEstimateGiB: 6.5,
		},
		Health: Health{
			InitialDelayMS: 500,
			Multiplier:     1.6,
			MaxDelayMS:     5000,
			TextTimeoutS:   120,
			ImageTimeoutS:  30,
		},
	}
}

// Load reads a configuration file based on its extension, overlaying it
// onto Default. Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
