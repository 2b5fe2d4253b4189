package manager

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"inferd/internal/acquire"
	"inferd/internal/hardware"
	"inferd/internal/proc"
	"inferd/pkg/types"
)

const defaultGracefulStop = 5 * time.Second

// TextServerConfig wires a TextServer. BinSpec describes where the
// llama.cpp server builds come from; TestArtifact optionally points at a
// tiny model used to exercise candidate binaries before accepting them.
type TextServerConfig struct {
	Name           string
	Host           string
	DefaultPort    int
	DefaultModel   string
	BinSpec        acquire.Spec
	TestArtifact   string
	StateDir       string
	Health         HealthConfig
	GracefulStop   time.Duration
	OverheadFactor float64
	SafetyFraction float64
}

// TextServer supervises one llama.cpp-style HTTP inference server.
type TextServer struct {
	lifecycle
	cfg      TextServerConfig
	models   modelResolver
	ensurer  binaryEnsurer
	runner   processRunner
	hw       hardware.Provider
	capacity capacityChecker
	health   prober

	// Guarded by lifecycle.mu.
	proc     proc.Process
	model    types.Model
	launch   serverConfig
	lastExit *proc.ExitInfo
}

func NewTextServer(cfg TextServerConfig, models modelResolver, ensurer binaryEnsurer, runner processRunner, hw hardware.Provider, capacity capacityChecker, pub EventPublisher, log zerolog.Logger) *TextServer {
	if cfg.Name == "" {
		cfg.Name = "text"
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.GracefulStop <= 0 {
		cfg.GracefulStop = defaultGracefulStop
	}
	if cfg.Health == (HealthConfig{}) {
		cfg.Health = DefaultHealthConfig()
	}
	def := DefaultArbiterConfig()
	if cfg.OverheadFactor < 1 {
		cfg.OverheadFactor = def.OverheadFactor
	}
	if cfg.SafetyFraction <= 0 || cfg.SafetyFraction > 1 {
		cfg.SafetyFraction = def.SafetyFraction
	}
	return &TextServer{
		lifecycle: newLifecycle(cfg.Name, pub, log),
		cfg:       cfg,
		models:    models,
		ensurer:   ensurer,
		runner:    runner,
		hw:        hw,
		capacity:  capacity,
		health:    newProber(),
	}
}

// Start brings the server up for the requested model. It resolves the
// model, checks it can fit, acquires a working server binary, spawns it
// and waits for the health endpoint to report ready.
func (s *TextServer) Start(ctx context.Context, req types.ServerConfigRequest) error {
	if req.Model == "" {
		req.Model = s.cfg.DefaultModel
	}
	gen, err := s.beginStart()
	if err != nil {
		return err
	}
	s.publish("start_begin", map[string]any{"model": req.Model})
	started := time.Now()

	if err := s.start(ctx, gen, req); err != nil {
		s.abortStart(gen)
		s.log.Error().Str("server", s.name).Str("model", req.Model).Err(err).Msg("start failed")
		s.publish("start_failed", map[string]any{"model": req.Model, "error": err.Error()})
		return err
	}
	s.log.Info().Str("server", s.name).Str("model", req.Model).
		Dur("elapsed", time.Since(started)).Msg("server running")
	return nil
}

func (s *TextServer) start(ctx context.Context, gen uint64, req types.ServerConfigRequest) error {
	model, err := s.models.Lookup(req.Model)
	if err != nil {
		return err
	}
	if model.Kind != types.ModelKindText {
		return fmt.Errorf("model %s is %s, not text", model.ID, model.Kind)
	}
	if err := s.capacity.CheckCapacity(ctx, &model); err != nil {
		return err
	}

	exe, err := s.ensurer.EnsureBinary(ctx, s.cfg.BinSpec, s.cfg.TestArtifact)
	if err != nil {
		return err
	}

	port := req.Port
	if port == 0 {
		port = s.cfg.DefaultPort
	}
	// Anything answering the health probe here belongs to someone else.
	if st := s.health.probe(ctx, s.healthURL(port), s.cfg.Health.ProbeTimeout); st != HealthUnknown {
		return ErrPortInUse(port)
	}

	snap, err := s.hw.Snapshot(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("hardware snapshot failed, tuning conservatively")
		snap = hardware.Snapshot{CPUCores: 1}
	}
	launch := autoTune(req, &model, snap, s.cfg.OverheadFactor, s.cfg.SafetyFraction)
	launch.Port = port
	if err := saveServerConfig(s.cfg.StateDir, s.name, launch); err != nil {
		s.log.Warn().Err(err).Msg("launch config not persisted")
	}

	spawnCtx, cancelSpawn := context.WithCancel(ctx)
	defer cancelSpawn()
	p, err := s.runner.Start(exe, llamaArgs(launch, model.Path, s.cfg.Host), proc.Options{
		OnLine: func(stream, line string) { logServerLine(s.log, s.name, stream, line) },
		OnExit: func(info proc.ExitInfo) { s.onExit(gen, info, cancelSpawn) },
	})
	if err != nil {
		return err
	}
	s.publish("spawned", map[string]any{"model": model.ID, "pid": p.PID(), "port": port})

	attempts, herr := s.health.waitHealthy(spawnCtx, s.name, s.healthURL(port), s.cfg.Health)
	if herr != nil {
		if info := s.takeExit(gen); info != nil {
			herr = fmt.Errorf("%s exited during startup (code %d)", s.name, info.Code)
		}
		p.Stop(s.cfg.GracefulStop)
		return herr
	}

	s.mu.Lock()
	if s.gen != gen || s.state != StateStarting {
		// Stop won the race; do not resurrect.
		s.mu.Unlock()
		p.Stop(s.cfg.GracefulStop)
		return fmt.Errorf("start of %s aborted by stop", s.name)
	}
	s.proc = p
	s.model = model
	s.launch = launch
	s.state = StateRunning
	s.startedAt = time.Now()
	s.lastExit = nil
	s.mu.Unlock()

	s.publish("start_ready", map[string]any{"model": model.ID, "port": port, "probes": attempts})
	return nil
}

// onExit runs on the process supervisor's waiter goroutine.
func (s *TextServer) onExit(gen uint64, info proc.ExitInfo, cancelSpawn context.CancelFunc) {
	if info.Requested {
		return
	}
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.lastExit = &info
	crashed := s.state == StateRunning
	if crashed {
		s.state = StateCrashed
		s.proc = nil
	}
	s.mu.Unlock()

	// Wake a health wait that would otherwise poll a corpse.
	cancelSpawn()
	if crashed {
		s.log.Error().Str("server", s.name).Int("code", info.Code).Msg("server exited unexpectedly")
		s.publish("server_crashed", map[string]any{"code": info.Code})
	}
}

// takeExit returns the recorded exit of the current start attempt, if any.
func (s *TextServer) takeExit(gen uint64) *proc.ExitInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return nil
	}
	return s.lastExit
}

// Stop shuts the server down. It is safe to call in any state, repeatedly.
func (s *TextServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return nil
	}
	p := s.proc
	s.proc = nil
	s.state = StateStopping
	s.gen++
	s.mu.Unlock()

	if p != nil {
		p.Stop(s.cfg.GracefulStop)
	}

	s.mu.Lock()
	s.state = StateStopped
	s.startedAt = time.Time{}
	s.mu.Unlock()
	s.log.Info().Str("server", s.name).Msg("server stopped")
	s.publish("server_stopped", nil)
	return nil
}

// Healthy performs a single probe against the running server.
func (s *TextServer) Healthy(ctx context.Context) bool {
	s.mu.Lock()
	port := s.launch.Port
	running := s.state == StateRunning
	s.mu.Unlock()
	if !running {
		return false
	}
	return s.health.probe(ctx, s.healthURL(port), s.cfg.Health.ProbeTimeout) == HealthOK
}

// CurrentConfig returns the effective launch configuration for replay.
func (s *TextServer) CurrentConfig() (types.ServerConfigRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning {
		return types.ServerConfigRequest{}, false
	}
	return s.launch.request(), true
}

// Footprint projects the running server's VRAM and RAM usage from how many
// layers were offloaded.
func (s *TextServer) Footprint() (vram, ram uint64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning || s.model.SizeBytes <= 0 {
		return 0, 0, s.state == StateRunning
	}
	layers := s.model.Layers
	if layers <= 0 {
		layers = defaultLayerGuess
	}
	frac := float64(s.launch.GPULayers) / float64(layers+1)
	if frac > 1 {
		frac = 1
	}
	total := float64(s.model.SizeBytes) * s.cfg.OverheadFactor
	return uint64(total * frac), uint64(total * (1 - frac)), true
}

// Status reports the server's state for the status endpoint.
func (s *TextServer) Status() types.ServerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := types.ServerStatus{
		Name:  s.name,
		State: string(s.state),
	}
	if s.state == StateRunning {
		st.Model = s.model.ID
		st.Port = s.launch.Port
		st.StartedAtUnix = s.startedAt.Unix()
		if s.proc != nil {
			st.PID = s.proc.PID()
		}
	}
	return st
}

func (s *TextServer) healthURL(port int) string {
	return "http://" + s.cfg.Host + ":" + strconv.Itoa(port) + "/health"
}

func (s *TextServer) defaultModel() string { return s.cfg.DefaultModel }

// llamaArgs maps the launch configuration onto llama.cpp server flags.
func llamaArgs(cfg serverConfig, modelPath, host string) []string {
	args := []string{
		"--model", modelPath,
		"--host", host,
		"--port", strconv.Itoa(cfg.Port),
		"--threads", strconv.Itoa(cfg.Threads),
		"--ctx-size", strconv.Itoa(cfg.CtxSize),
		"--n-gpu-layers", strconv.Itoa(cfg.GPULayers),
		"--parallel", strconv.Itoa(cfg.Parallel),
		"--no-webui",
	}
	if cfg.FlashAttn {
		args = append(args, "--flash-attn")
	}
	return args
}
