package manager

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"inferd/internal/hardware"
	"inferd/pkg/types"
)

var (
	arbiterOffloadsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "inferd",
		Subsystem: "arbiter",
		Name:      "offloads_total",
		Help:      "Times the text server was suspended to make room for an image job",
	})
	arbiterRestoreFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "inferd",
		Subsystem: "arbiter",
		Name:      "restore_failures_total",
		Help:      "Failed attempts to restart the suspended text server",
	})
	arbiterSuspended = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "inferd",
		Subsystem: "arbiter",
		Name:      "primary_suspended",
		Help:      "1 while the text server is offloaded for an image job",
	})
)

func init() {
	prometheus.MustRegister(arbiterOffloadsTotal, arbiterRestoreFailures, arbiterSuspended)
}

// ArbiterConfig carries the sizing heuristics. The zero value is unusable;
// use DefaultArbiterConfig and override per deployment.
type ArbiterConfig struct {
	// SafetyFraction is how much of a memory pool jobs may collectively
	// claim before the text server gets offloaded.
	SafetyFraction float64
	// OverheadFactor inflates on-disk model size to projected resident size.
	OverheadFactor float64
	// DefaultImageBytes is assumed for image models of unknown size.
	DefaultImageBytes uint64
}

func DefaultArbiterConfig() ArbiterConfig {
	return ArbiterConfig{
		SafetyFraction:    0.75,
		OverheadFactor:    1.2,
		DefaultImageBytes: 13 << 29, // 6.5 GiB
	}
}

// primaryServer is the arbiter's view of the text server it may suspend.
type primaryServer interface {
	Name() string
	Running() bool
	// Footprint reports the server's projected VRAM and RAM usage.
	Footprint() (vram, ram uint64, ok bool)
	// CurrentConfig returns the effective launch configuration, for replay.
	CurrentConfig() (types.ServerConfigRequest, bool)
	Stop(ctx context.Context) error
	Start(ctx context.Context, req types.ServerConfigRequest) error
}

// SavedPrimaryState remembers a suspended text server so it can be brought
// back with exactly the configuration it last ran with.
type SavedPrimaryState struct {
	Config  types.ServerConfigRequest
	Model   string
	SavedAt time.Time
}

// ResourceArbiter decides whether an image job fits next to the running
// text server and suspends/restores the text server around jobs that do
// not. All state is guarded by mu.
type ResourceArbiter struct {
	mu        sync.Mutex
	cfg       ArbiterConfig
	hw        hardware.Provider
	primary   primaryServer
	saved     *SavedPrimaryState
	offloads  uint64
	publisher EventPublisher
	log       zerolog.Logger
}

func NewResourceArbiter(cfg ArbiterConfig, hw hardware.Provider, pub EventPublisher, log zerolog.Logger) *ResourceArbiter {
	if cfg.SafetyFraction <= 0 || cfg.SafetyFraction > 1 {
		cfg.SafetyFraction = DefaultArbiterConfig().SafetyFraction
	}
	if cfg.OverheadFactor < 1 {
		cfg.OverheadFactor = DefaultArbiterConfig().OverheadFactor
	}
	if cfg.DefaultImageBytes == 0 {
		cfg.DefaultImageBytes = DefaultArbiterConfig().DefaultImageBytes
	}
	if pub == nil {
		pub = noopPublisher{}
	}
	return &ResourceArbiter{cfg: cfg, hw: hw, publisher: pub, log: log}
}

// SetPrimary wires the text server in after construction; both sides of
// the relationship live in this package so neither can be built first.
func (r *ResourceArbiter) SetPrimary(p primaryServer) {
	r.mu.Lock()
	r.primary = p
	r.mu.Unlock()
}

// EstimateModelBytes projects the resident size of a model.
func (r *ResourceArbiter) EstimateModelBytes(m *types.Model) uint64 {
	if m.SizeBytes <= 0 {
		if m.Kind == types.ModelKindImage {
			return r.cfg.DefaultImageBytes
		}
		return 0
	}
	return uint64(float64(m.SizeBytes) * r.cfg.OverheadFactor)
}

// CheckCapacity reports whether the model could ever fit on this machine,
// regardless of what is currently running. Total capacities are compared,
// not free ones: a model blocked only by the current tenant is feasible.
func (r *ResourceArbiter) CheckCapacity(ctx context.Context, m *types.Model) error {
	need := r.EstimateModelBytes(m)
	if need == 0 {
		return nil
	}
	snap, err := r.hw.Snapshot(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("hardware snapshot failed, skipping capacity check")
		return nil
	}
	have := snap.TotalRAM
	if snap.HasGPU() {
		have += snap.GPU.TotalVRAM
	}
	if need > have {
		return ErrInsufficientResources("memory", need, have)
	}
	return nil
}

// RunImageJob runs one image generation, offloading the text server first
// when the projected footprint does not fit alongside it. When the text
// server was offloaded the arbiter always tries to bring it back, even if
// the job failed; a restore failure is logged and swallowed so the job's
// own result wins.
func (r *ResourceArbiter) RunImageJob(ctx context.Context, needBytes uint64, run func(context.Context) error) error {
	if err := r.offloadIfNeeded(ctx, needBytes); err != nil {
		return err
	}

	jobErr := run(ctx)

	// Restore must not be skipped because the job's context died.
	r.restorePrimary(context.Background())
	return jobErr
}

func (r *ResourceArbiter) offloadIfNeeded(ctx context.Context, needBytes uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.primary == nil || !r.primary.Running() {
		return nil
	}
	snap, err := r.hw.Snapshot(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("hardware snapshot failed, assuming image job fits")
		return nil
	}
	if r.fits(snap, needBytes) {
		return nil
	}

	cfg, ok := r.primary.CurrentConfig()
	if !ok {
		return nil
	}
	r.log.Info().Str("server", r.primary.Name()).Msg("offloading text server for image job")
	r.publisher.Publish(Event{Name: "arbiter_offload", Server: r.primary.Name(), Fields: map[string]any{"model": cfg.Model}})
	if err := r.primary.Stop(ctx); err != nil {
		return err
	}
	r.saved = &SavedPrimaryState{Config: cfg, Model: cfg.Model, SavedAt: time.Now()}
	r.offloads++
	arbiterOffloadsTotal.Inc()
	arbiterSuspended.Set(1)
	return nil
}

// fits projects the image job next to the primary's current usage against
// the pools it will land on.
func (r *ResourceArbiter) fits(snap hardware.Snapshot, needBytes uint64) bool {
	primVRAM, primRAM, ok := r.primary.Footprint()
	if !ok {
		primVRAM, primRAM = 0, 0
	}
	if snap.HasGPU() {
		budget := uint64(float64(snap.GPU.TotalVRAM) * r.cfg.SafetyFraction)
		return needBytes+primVRAM <= budget
	}
	budget := uint64(float64(snap.TotalRAM) * r.cfg.SafetyFraction)
	return needBytes+primRAM <= budget
}

func (r *ResourceArbiter) restorePrimary(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.saved == nil {
		return
	}
	saved := *r.saved
	r.log.Info().Str("model", saved.Model).Msg("restoring offloaded text server")
	if err := r.primary.Start(ctx, saved.Config); err != nil {
		// Keep the saved state so a later job cycle can retry the restore.
		arbiterRestoreFailures.Inc()
		r.log.Error().Err(err).Str("model", saved.Model).Msg("text server restore failed")
		r.publisher.Publish(Event{Name: "arbiter_restore_failed", Server: r.primary.Name(), Fields: map[string]any{"error": err.Error()}})
		return
	}
	r.saved = nil
	arbiterSuspended.Set(0)
	r.publisher.Publish(Event{Name: "arbiter_restored", Server: r.primary.Name(), Fields: map[string]any{"model": saved.Model}})
}

// Status reports the arbiter's view for the status endpoint.
func (r *ResourceArbiter) Status() types.ArbiterStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := types.ArbiterStatus{OffloadsTotal: r.offloads}
	if r.saved != nil {
		st.SuspendedModel = r.saved.Model
		st.SuspendedAtUnix = r.saved.SavedAt.Unix()
	}
	return st
}
