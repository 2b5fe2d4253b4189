package manager

import (
	"context"
	"encoding/base64"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"inferd/internal/acquire"
	"inferd/internal/proc"
	"inferd/pkg/types"
)

// Generation defaults applied when the request leaves fields zero.
const (
	defaultImageSize  = 512
	defaultImageSteps = 20
	defaultCfgScale   = 7.0
	defaultSampler    = "euler_a"
)

// ImageServerConfig wires an ImageServer. Unlike the text server, the
// diffusion binary runs one process per job; the long-lived part is a
// small HTTP wrapper this package serves itself.
type ImageServerConfig struct {
	Name         string
	Host         string
	DefaultPort  int
	DefaultModel string
	BinSpec      acquire.Spec
	TestArtifact string
	StateDir     string
	WorkDir      string
	Health       HealthConfig
	GracefulStop time.Duration
}

// ImageServer owns the image generation wrapper endpoint and the
// per-job diffusion processes behind it.
type ImageServer struct {
	lifecycle
	cfg      ImageServerConfig
	models   modelResolver
	ensurer  binaryEnsurer
	runner   processRunner
	capacity capacityChecker
	arbiter  *ResourceArbiter
	health   prober
	slot     *jobSlot
	est      *phaseEstimator

	// Guarded by lifecycle.mu.
	exe    string
	model  types.Model
	port   int
	httpLn net.Listener
	srv    *http.Server
}

func NewImageServer(cfg ImageServerConfig, models modelResolver, ensurer binaryEnsurer, runner processRunner, capacity capacityChecker, arbiter *ResourceArbiter, pub EventPublisher, log zerolog.Logger) *ImageServer {
	if cfg.Name == "" {
		cfg.Name = "image"
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.GracefulStop <= 0 {
		cfg.GracefulStop = defaultGracefulStop
	}
	if cfg.Health == (HealthConfig{}) {
		cfg.Health = DefaultHealthConfig()
		cfg.Health.Overall = 30 * time.Second
	}
	return &ImageServer{
		lifecycle: newLifecycle(cfg.Name, pub, log),
		cfg:       cfg,
		models:    models,
		ensurer:   ensurer,
		runner:    runner,
		capacity:  capacity,
		arbiter:   arbiter,
		health:    newProber(),
		slot:      newJobSlot(),
		est:       newPhaseEstimator(),
	}
}

// Start resolves the image model, acquires a diffusion binary and brings
// up the wrapper endpoint that serves generation requests for it.
func (s *ImageServer) Start(ctx context.Context, req types.ServerConfigRequest) error {
	if req.Model == "" {
		req.Model = s.cfg.DefaultModel
	}
	gen, err := s.beginStart()
	if err != nil {
		return err
	}
	s.publish("start_begin", map[string]any{"model": req.Model})

	if err := s.start(ctx, gen, req); err != nil {
		s.abortStart(gen)
		s.log.Error().Str("server", s.name).Str("model", req.Model).Err(err).Msg("start failed")
		s.publish("start_failed", map[string]any{"model": req.Model, "error": err.Error()})
		return err
	}
	return nil
}

func (s *ImageServer) start(ctx context.Context, gen uint64, req types.ServerConfigRequest) error {
	model, err := s.models.Lookup(req.Model)
	if err != nil {
		return err
	}
	if model.Kind != types.ModelKindImage {
		return fmt.Errorf("model %s is %s, not image", model.ID, model.Kind)
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
	if st := s.health.probe(ctx, s.healthURL(port), s.cfg.Health.ProbeTimeout); st != HealthUnknown {
		return ErrPortInUse(port)
	}
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return ErrPortInUse(port)
	}
	srv := &http.Server{Handler: s.wrapperMux()}
	go func() {
		if serr := srv.Serve(ln); serr != nil && serr != http.ErrServerClosed {
			s.log.Error().Err(serr).Str("server", s.name).Msg("wrapper endpoint failed")
		}
	}()

	if err := saveServerConfig(s.cfg.StateDir, s.name, serverConfig{Model: model.ID, Port: port}); err != nil {
		s.log.Warn().Err(err).Msg("launch config not persisted")
	}

	if _, err := s.health.waitHealthy(ctx, s.name, s.healthURL(port), s.cfg.Health); err != nil {
		_ = srv.Close()
		return err
	}

	s.mu.Lock()
	if s.gen != gen || s.state != StateStarting {
		s.mu.Unlock()
		_ = srv.Close()
		return fmt.Errorf("start of %s aborted by stop", s.name)
	}
	s.exe = exe
	s.model = model
	s.port = port
	s.httpLn = ln
	s.srv = srv
	s.state = StateRunning
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.log.Info().Str("server", s.name).Str("model", model.ID).Int("port", port).Msg("image endpoint ready")
	s.publish("start_ready", map[string]any{"model": model.ID, "port": port})
	return nil
}

// Stop tears the wrapper endpoint down. Safe to call in any state; jobs
// already running are given the graceful window to finish.
func (s *ImageServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return nil
	}
	srv := s.srv
	s.srv = nil
	s.httpLn = nil
	s.state = StateStopping
	s.gen++
	s.mu.Unlock()

	if srv != nil {
		shutCtx, cancel := context.WithTimeout(context.Background(), s.cfg.GracefulStop)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			_ = srv.Close()
		}
	}

	s.mu.Lock()
	s.state = StateStopped
	s.startedAt = time.Time{}
	s.mu.Unlock()
	s.log.Info().Str("server", s.name).Msg("server stopped")
	s.publish("server_stopped", nil)
	return nil
}

// Healthy performs a single probe against the wrapper endpoint.
func (s *ImageServer) Healthy(ctx context.Context) bool {
	s.mu.Lock()
	port := s.port
	running := s.state == StateRunning
	s.mu.Unlock()
	if !running {
		return false
	}
	return s.health.probe(ctx, s.healthURL(port), s.cfg.Health.ProbeTimeout) == HealthOK
}

// Generate runs one text-to-image job. A second concurrent call is
// rejected with a busy error rather than queued.
func (s *ImageServer) Generate(ctx context.Context, req types.GenerateImageRequest) (types.GenerateImageResponse, error) {
	s.mu.Lock()
	running := s.state == StateRunning
	exe := s.exe
	model := s.model
	s.mu.Unlock()
	if !running {
		return types.GenerateImageResponse{}, ErrNotRunning(s.name)
	}

	release, jobID, ok := s.slot.tryAcquire()
	if !ok {
		return types.GenerateImageResponse{}, ErrTooBusy()
	}
	defer release()

	applyGenerationDefaults(&req)
	s.publish("job_begin", map[string]any{"job": jobID, "model": model.ID})

	var resp types.GenerateImageResponse
	err := s.arbiter.RunImageJob(ctx, s.arbiter.EstimateModelBytes(&model), func(jobCtx context.Context) error {
		var jerr error
		resp, jerr = s.runJob(jobCtx, jobID, exe, model, req)
		return jerr
	})
	if err != nil {
		s.publish("job_failed", map[string]any{"job": jobID, "error": err.Error()})
		return types.GenerateImageResponse{}, err
	}
	s.publish("job_done", map[string]any{"job": jobID, "elapsed_ms": resp.ElapsedMS})
	return resp, nil
}

func (s *ImageServer) runJob(ctx context.Context, jobID, exe string, model types.Model, req types.GenerateImageRequest) (types.GenerateImageResponse, error) {
	outDir := filepath.Join(s.cfg.WorkDir, jobID)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return types.GenerateImageResponse{}, err
	}
	defer os.RemoveAll(outDir)
	outPath := filepath.Join(outDir, "out.png")

	progress := s.est.startJob(req.Steps)
	done := make(chan proc.ExitInfo, 1)
	start := time.Now()
	p, err := s.runner.Start(exe, sdArgs(model.Path, outPath, req), proc.Options{
		OnLine: func(stream, line string) {
			if step, total, ok := parseStepLine(line); ok {
				progress.observeStep(step, total)
				s.publish("job_progress", map[string]any{
					"job": jobID, "step": step, "steps": total, "fraction": progress.fraction(),
				})
			}
			logServerLine(s.log, s.name, stream, line)
		},
		OnExit: func(info proc.ExitInfo) { done <- info },
	})
	if err != nil {
		return types.GenerateImageResponse{}, err
	}

	select {
	case info := <-done:
		if info.Code != 0 {
			return types.GenerateImageResponse{}, fmt.Errorf("image generation exited %d", info.Code)
		}
	case <-ctx.Done():
		p.Stop(s.cfg.GracefulStop)
		return types.GenerateImageResponse{}, ctx.Err()
	}
	progress.finish()

	b, err := os.ReadFile(outPath)
	if err != nil {
		return types.GenerateImageResponse{}, fmt.Errorf("generation produced no image: %w", err)
	}
	return types.GenerateImageResponse{
		Image:     base64.StdEncoding.EncodeToString(b),
		Format:    "png",
		Width:     req.Width,
		Height:    req.Height,
		Seed:      req.Seed,
		ElapsedMS: time.Since(start).Milliseconds(),
		JobID:     jobID,
	}, nil
}

// Status reports the server's state for the status endpoint.
func (s *ImageServer) Status() types.ServerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := types.ServerStatus{
		Name:  s.name,
		State: string(s.state),
	}
	if s.state == StateRunning {
		st.Model = s.model.ID
		st.Port = s.port
		st.StartedAtUnix = s.startedAt.Unix()
	}
	return st
}

// Busy reports whether a generation job holds the slot.
func (s *ImageServer) Busy() bool { return s.slot.inFlight() }

func (s *ImageServer) defaultModel() string { return s.cfg.DefaultModel }

func (s *ImageServer) healthURL(port int) string {
	return "http://" + s.cfg.Host + ":" + strconv.Itoa(port) + "/health"
}

func applyGenerationDefaults(req *types.GenerateImageRequest) {
	if req.Width <= 0 {
		req.Width = defaultImageSize
	}
	if req.Height <= 0 {
		req.Height = defaultImageSize
	}
	if req.Steps <= 0 {
		req.Steps = defaultImageSteps
	}
	if req.CfgScale <= 0 {
		req.CfgScale = defaultCfgScale
	}
	if req.Sampler == "" {
		req.Sampler = defaultSampler
	}
	if req.Seed <= 0 {
		req.Seed = rand.Int63()
	}
}

// sdArgs maps a generation request onto stable-diffusion.cpp CLI flags.
func sdArgs(modelPath, outPath string, req types.GenerateImageRequest) []string {
	args := []string{
		"-M", "txt2img",
		"-m", modelPath,
		"-p", req.Prompt,
		"-o", outPath,
		"-W", strconv.Itoa(req.Width),
		"-H", strconv.Itoa(req.Height),
		"--steps", strconv.Itoa(req.Steps),
		"--cfg-scale", strconv.FormatFloat(req.CfgScale, 'f', -1, 64),
		"--sampling-method", req.Sampler,
		"-s", strconv.FormatInt(req.Seed, 10),
	}
	if req.NegativePrompt != "" {
		args = append(args, "-n", req.NegativePrompt)
	}
	return args
}

// Diffusion builds print step counters either as "step 4/20" or as a bar
// suffixed with "4/20"; both carry current/total.
var stepCounterRE = regexp.MustCompile(`(\d+)\s*/\s*(\d+)`)

func parseStepLine(line string) (step, total int, ok bool) {
	lower := strings.ToLower(line)
	if !strings.Contains(lower, "step") && !strings.Contains(lower, "|") {
		return 0, 0, false
	}
	m := stepCounterRE.FindStringSubmatch(line)
	if m == nil {
		return 0, 0, false
	}
	step, _ = strconv.Atoi(m[1])
	total, _ = strconv.Atoi(m[2])
	if total <= 0 || step < 1 || step > total {
		return 0, 0, false
	}
	return step, total, true
}
