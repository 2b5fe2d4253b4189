package manager

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"inferd/internal/catalog"
	"inferd/internal/hardware"
	"inferd/pkg/types"
)

// probeBudget bounds the health probes folded into a status response.
const probeBudget = 2 * time.Second

// Manager ties the two managed servers, the model catalog and the
// resource arbiter together behind one surface for the control API.
type Manager struct {
	catalog   *catalog.Store
	text      *TextServer
	image     *ImageServer
	arbiter   *ResourceArbiter
	hw        hardware.Provider
	log       zerolog.Logger
	startTime time.Time
}

func New(cat *catalog.Store, text *TextServer, image *ImageServer, arb *ResourceArbiter, hw hardware.Provider, log zerolog.Logger) *Manager {
	arb.SetPrimary(text)
	return &Manager{
		catalog:   cat,
		text:      text,
		image:     image,
		arbiter:   arb,
		hw:        hw,
		log:       log,
		startTime: time.Now(),
	}
}

// ListModels returns the current catalog contents.
func (m *Manager) ListModels() []types.Model { return m.catalog.List() }

// RescanModels re-reads the models directory.
func (m *Manager) RescanModels() error { return m.catalog.Rescan() }

// server dispatches by the wire name used in /v1/servers/{name}/...
func (m *Manager) server(name string) (managedServer, error) {
	switch name {
	case m.text.Name():
		return m.text, nil
	case m.image.Name():
		return m.image, nil
	default:
		return nil, ErrUnknownServer(name)
	}
}

// managedServer is the slice of both server kinds the manager dispatches on.
type managedServer interface {
	Name() string
	Start(ctx context.Context, req types.ServerConfigRequest) error
	Stop(ctx context.Context) error
	Healthy(ctx context.Context) bool
	Status() types.ServerStatus
	State() State
	defaultModel() string
}

// StartServer starts the named server with the given configuration.
func (m *Manager) StartServer(ctx context.Context, name string, req types.ServerConfigRequest) error {
	srv, err := m.server(name)
	if err != nil {
		return err
	}
	return srv.Start(ctx, req)
}

// StopServer stops the named server. Stopping a stopped server is a no-op.
func (m *Manager) StopServer(ctx context.Context, name string) error {
	srv, err := m.server(name)
	if err != nil {
		return err
	}
	return srv.Stop(ctx)
}

// ServerHealth probes the named server once.
func (m *Manager) ServerHealth(ctx context.Context, name string) (types.HealthResponse, error) {
	srv, err := m.server(name)
	if err != nil {
		return types.HealthResponse{}, err
	}
	if srv.State() != StateRunning {
		return types.HealthResponse{Status: "stopped"}, nil
	}
	if srv.Healthy(ctx) {
		return types.HealthResponse{Status: "ok"}, nil
	}
	return types.HealthResponse{Status: "error"}, nil
}

// GenerateImage forwards a generation request to the image server. The
// same generation path backs the wrapper endpoint on the image port.
func (m *Manager) GenerateImage(ctx context.Context, req types.GenerateImageRequest) (types.GenerateImageResponse, error) {
	return m.image.Generate(ctx, req)
}

// Status builds the full status document, including one bounded health
// probe per running server and a fresh hardware snapshot.
func (m *Manager) Status(ctx context.Context) types.StatusResponse {
	probeCtx, cancel := context.WithTimeout(ctx, probeBudget)
	defer cancel()

	resp := types.StatusResponse{
		UptimeSeconds:  int64(time.Since(m.startTime).Seconds()),
		ServerTimeUnix: time.Now().Unix(),
	}
	for _, srv := range []managedServer{m.text, m.image} {
		st := srv.Status()
		if srv.State() == StateRunning {
			st.Healthy = srv.Healthy(probeCtx)
		}
		resp.Servers = append(resp.Servers, st)
	}
	resp.Arbiter = m.arbiter.Status()
	resp.Arbiter.Busy = m.image.Busy()

	if snap, err := m.hw.Snapshot(ctx); err != nil {
		m.log.Warn().Err(err).Msg("hardware snapshot failed for status")
	} else {
		resp.Hardware = hardwareStatus(snap)
	}
	return resp
}

func hardwareStatus(snap hardware.Snapshot) types.HardwareStatus {
	hs := types.HardwareStatus{
		CPUCores:      snap.CPUCores,
		RAMTotalBytes: snap.TotalRAM,
		RAMFreeBytes:  snap.FreeRAM,
	}
	if snap.HasGPU() {
		hs.GPU = &types.GPUStatus{
			Kind:           snap.GPU.Kind,
			Name:           snap.GPU.Name,
			VRAMTotalBytes: snap.GPU.TotalVRAM,
			VRAMFreeBytes:  snap.GPU.FreeVRAM,
		}
	}
	return hs
}

// Autostart replays the persisted launch configurations. A server with
// nothing persisted but a configured default model is started with
// defaults, so a fresh install comes up serving. Failures are logged and
// skipped so one bad server does not block the other.
func (m *Manager) Autostart(ctx context.Context, stateDir string) {
	for _, srv := range []managedServer{m.text, m.image} {
		var req types.ServerConfigRequest
		if cfg, ok := loadServerConfig(stateDir, srv.Name()); ok {
			req = cfg.request()
		} else if def := srv.defaultModel(); def != "" {
			req.Model = def
		} else {
			continue
		}
		m.log.Info().Str("server", srv.Name()).Str("model", req.Model).Msg("autostarting")
		if err := srv.Start(ctx, req); err != nil {
			m.log.Warn().Str("server", srv.Name()).Err(err).Msg("autostart failed")
		}
	}
}

// Close stops both servers. Image first so a stop-triggered restore of
// the text server cannot race the text server's own shutdown.
func (m *Manager) Close(ctx context.Context) error {
	var first error
	if err := m.image.Stop(ctx); err != nil {
		first = err
	}
	if err := m.text.Stop(ctx); err != nil && first == nil {
		first = err
	}
	return first
}
