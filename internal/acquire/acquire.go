// Package acquire obtains a working server binary for the current
// machine: it tries candidate build variants in order, downloading,
// checksumming, extracting and validating each until one proves usable,
// then installs it and remembers the winner for next time.
package acquire

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"inferd/internal/fetch"
	"inferd/internal/hardware"
	"inferd/internal/proc"
)

// Dependency is an extra archive a variant needs next to its main one,
// e.g. a CUDA runtime bundle.
type Dependency struct {
	URL    string
	SHA256 string
}

// Variant is one downloadable build of a binary. Order in Spec.Variants
// is the preference order.
type Variant struct {
	Tag    string
	URL    string
	SHA256 string
	Deps   []Dependency
}

// Spec describes one binary to acquire.
type Spec struct {
	// Short name, e.g. "llama" or "sd"; used for directories and the
	// cache hint file.
	Name string
	// Platform-appropriate executable names searched after extraction.
	ExeNames []string
	// Stable directory the validated build is installed into. Replaced
	// wholesale on each successful acquisition.
	InstallDir string
	// Scratch space for downloads and extraction.
	WorkDir string
	// Directory holding the variant cache hint.
	StateDir string
	// Hardware/OS identity guarding the cache hint. Defaults to
	// GOOS-GOARCH.
	PlatformKey string
	Variants    []Variant
	Probe       ValidationSpec
}

// Acquirer downloads and validates server binaries.
type Acquirer struct {
	fetcher *fetch.Fetcher
	hw      hardware.Provider
	run     *proc.Supervisor
	log     zerolog.Logger
}

func New(fetcher *fetch.Fetcher, hw hardware.Provider, run *proc.Supervisor, log zerolog.Logger) *Acquirer {
	return &Acquirer{fetcher: fetcher, hw: hw, run: run, log: log}
}

// EnsureBinary returns the path of a validated executable for spec,
// downloading and installing one if needed. testArtifact, when non-empty,
// enables the functional validation phase against that model file.
//
// A previously installed executable that still passes validation is
// returned without any network traffic. Otherwise variants are tried in
// order (cache hint first, hardware-impossible backends dropped); the
// first fully validated one is installed. When all of them fail the
// returned AcquireError lists every variant's reason.
func (a *Acquirer) EnsureBinary(ctx context.Context, spec Spec, testArtifact string) (string, error) {
	if len(spec.ExeNames) == 0 {
		return "", fmt.Errorf("acquire %s: no executable names configured", spec.Name)
	}
	if spec.PlatformKey == "" {
		spec.PlatformKey = runtime.GOOS + "-" + runtime.GOARCH
	}

	if exe, err := findExecutable(spec.InstallDir, spec.ExeNames); err == nil {
		if verr := a.validate(ctx, exe, spec, testArtifact); verr == nil {
			a.log.Info().Str("binary", spec.Name).Str("exe", exe).Msg("existing install validated")
			return exe, nil
		} else {
			a.log.Warn().Str("binary", spec.Name).Err(verr).Msg("existing install failed validation, reacquiring")
			_ = os.RemoveAll(spec.InstallDir)
		}
	}

	candidates := a.candidateOrder(ctx, spec)
	if len(candidates) == 0 {
		reason := "no variants configured"
		if len(spec.Variants) > 0 {
			reason = "no variant is usable on this hardware"
		}
		return "", &AcquireError{Binary: spec.Name, Failures: []VariantFailure{{Tag: "-", Reason: reason}}}
	}

	start := time.Now()
	var failures []VariantFailure
	for _, v := range candidates {
		exe, err := a.tryVariant(ctx, spec, v, testArtifact)
		if err != nil {
			if ctx.Err() != nil {
				return "", fmt.Errorf("acquire %s: %w", spec.Name, ctx.Err())
			}
			a.log.Warn().Str("binary", spec.Name).Str("variant", v.Tag).Err(err).Msg("variant failed")
			failures = append(failures, VariantFailure{Tag: v.Tag, Reason: err.Error()})
			continue
		}
		if err := saveHint(spec.StateDir, spec.Name, spec.PlatformKey, v.Tag); err != nil {
			a.log.Warn().Str("binary", spec.Name).Err(err).Msg("variant hint not persisted")
		}
		a.log.Info().Str("binary", spec.Name).Str("variant", v.Tag).
			Dur("took", time.Since(start)).Str("exe", exe).Msg("binary acquired")
		return exe, nil
	}
	return "", &AcquireError{Binary: spec.Name, Failures: failures}
}

// candidateOrder applies the hardware filter and the cache hint reorder.
func (a *Acquirer) candidateOrder(ctx context.Context, spec Spec) []Variant {
	usable := spec.Variants
	if snap, err := a.hw.Snapshot(ctx); err != nil {
		// Without a probe there is nothing to rule out.
		a.log.Warn().Err(err).Msg("hardware snapshot failed, keeping all variants")
	} else {
		filtered := make([]Variant, 0, len(spec.Variants))
		for _, v := range spec.Variants {
			if variantUsable(v.Tag, snap) {
				filtered = append(filtered, v)
			} else {
				a.log.Info().Str("binary", spec.Name).Str("variant", v.Tag).
					Msg("variant dropped, accelerator unavailable")
			}
		}
		usable = filtered
	}

	hint := loadHint(spec.StateDir, spec.Name, spec.PlatformKey)
	if hint == "" {
		return usable
	}
	ordered := make([]Variant, 0, len(usable))
	for _, v := range usable {
		if v.Tag == hint {
			ordered = append(ordered, v)
		}
	}
	if len(ordered) == 0 {
		return usable
	}
	for _, v := range usable {
		if v.Tag != hint {
			ordered = append(ordered, v)
		}
	}
	return ordered
}

// variantUsable drops accelerator builds the snapshot rules out.
func variantUsable(tag string, snap hardware.Snapshot) bool {
	t := strings.ToLower(tag)
	switch {
	case strings.Contains(t, "cuda"):
		return snap.HasGPU() && snap.GPU.Kind == hardware.KindCUDA
	case strings.Contains(t, "rocm"), strings.Contains(t, "hip"):
		return snap.HasGPU() && snap.GPU.Kind == hardware.KindROCm
	case strings.Contains(t, "vulkan"):
		return snap.HasGPU()
	default:
		return true
	}
}

func (a *Acquirer) tryVariant(ctx context.Context, spec Spec, v Variant, testArtifact string) (string, error) {
	workRoot := filepath.Join(spec.WorkDir, spec.Name, v.Tag)
	dlDir := filepath.Join(workRoot, "dl")
	extractDir := filepath.Join(workRoot, "extract")
	defer os.RemoveAll(workRoot)
	for _, d := range []string{dlDir, extractDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return "", err
		}
	}

	for _, dep := range v.Deps {
		if err := a.fetchAndExtract(ctx, dep.URL, dep.SHA256, dlDir, extractDir); err != nil {
			return "", fmt.Errorf("dependency %s: %w", archiveName(dep.URL), err)
		}
	}
	if err := a.fetchAndExtract(ctx, v.URL, v.SHA256, dlDir, extractDir); err != nil {
		return "", err
	}

	exe, err := findExecutable(extractDir, spec.ExeNames)
	if err != nil {
		return "", err
	}
	if err := os.Chmod(exe, 0o755); err != nil {
		return "", err
	}
	if err := a.validate(ctx, exe, spec, testArtifact); err != nil {
		return "", err
	}
	return a.install(spec, extractDir, exe)
}

func (a *Acquirer) fetchAndExtract(ctx context.Context, rawURL, wantSHA, dlDir, extractDir string) error {
	name := archiveName(rawURL)
	dest := filepath.Join(dlDir, name)
	res, err := a.fetcher.Download(ctx, rawURL, dest, fetch.Options{Progress: a.progressLogger(name)})
	if err != nil {
		return err
	}
	if wantSHA != "" && !strings.EqualFold(res.SHA256, wantSHA) {
		return &ChecksumError{URL: rawURL, Want: strings.ToLower(wantSHA), Got: res.SHA256}
	}
	return extractArchive(dest, extractDir)
}

// install replaces InstallDir with the extraction tree, so shared
// libraries land next to the executable, and returns the installed path.
func (a *Acquirer) install(spec Spec, extractDir, exe string) (string, error) {
	rel, err := filepath.Rel(extractDir, exe)
	if err != nil {
		return "", err
	}
	if err := os.RemoveAll(spec.InstallDir); err != nil {
		return "", err
	}
	if err := copyTree(extractDir, spec.InstallDir); err != nil {
		return "", err
	}
	target := filepath.Join(spec.InstallDir, rel)
	if err := os.Chmod(target, 0o755); err != nil {
		return "", err
	}
	return target, nil
}

func (a *Acquirer) progressLogger(name string) fetch.ProgressFunc {
	return func(p fetch.Progress) {
		ev := a.log.Debug().Str("file", name).Int64("downloaded", p.Downloaded)
		if p.Total > 0 {
			ev = ev.Int64("total", p.Total)
		}
		ev.Msg("downloading")
	}
}

// archiveName picks a local file name for a download URL, keeping the
// extension so the extractor can sniff the format.
func archiveName(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		if base := path.Base(u.Path); base != "" && base != "." && base != "/" {
			return base
		}
	}
	return "download.bin"
}
