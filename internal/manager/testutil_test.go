package manager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"inferd/internal/acquire"
	"inferd/internal/catalog"
	"inferd/internal/hardware"
	"inferd/internal/proc"
	"inferd/pkg/types"
)

func testLogger() zerolog.Logger { return zerolog.Nop() }

// pickFreePort reserves an ephemeral port and releases it for the test to
// claim again. Good enough for single-process tests.
func pickFreePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()
	return port
}

// serveOnPort serves handler on the given port until test cleanup.
func serveOnPort(t *testing.T, port int, handler http.Handler) func() {
	t.Helper()
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		t.Fatalf("listen %d: %v", port, err)
	}
	srv := &http.Server{Handler: handler}
	go func() { _ = srv.Serve(ln) }()
	stop := func() { _ = srv.Close() }
	t.Cleanup(stop)
	return stop
}

// healthSeq answers /health with the scripted statuses in order, holding
// the last one forever.
func healthSeq(statuses ...string) http.Handler {
	var mu sync.Mutex
	i := 0
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		st := statuses[i]
		if i < len(statuses)-1 {
			i++
		}
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": st})
	})
}

// fastHealth keeps readiness polling snappy in tests.
func fastHealth() HealthConfig {
	return HealthConfig{
		InitialDelay: 10 * time.Millisecond,
		Multiplier:   1.5,
		MaxDelay:     50 * time.Millisecond,
		Overall:      3 * time.Second,
		ProbeTimeout: 500 * time.Millisecond,
	}
}

type fakeResolver map[string]types.Model

func (r fakeResolver) Lookup(id string) (types.Model, error) {
	m, ok := r[id]
	if !ok {
		return types.Model{}, fmt.Errorf("%w: %s", catalog.ErrNotFound, id)
	}
	return m, nil
}

type fakeEnsurer struct {
	mu    sync.Mutex
	exe   string
	err   error
	calls int
}

func (e *fakeEnsurer) EnsureBinary(context.Context, acquire.Spec, string) (string, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.err != nil {
		return "", e.err
	}
	return e.exe, nil
}

func (e *fakeEnsurer) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type fakeProcess struct {
	mu      sync.Mutex
	pid     int
	running bool
	stops   int
}

func newFakeProcess(pid int) *fakeProcess { return &fakeProcess{pid: pid, running: true} }

func (p *fakeProcess) PID() int { return p.pid }

func (p *fakeProcess) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *fakeProcess) Stop(time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = false
	p.stops++
	return nil
}

func (p *fakeProcess) stopCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stops
}

type fakeRunner struct {
	mu       sync.Mutex
	proc     *fakeProcess
	err      error
	lastPath string
	lastArgs []string
	lastOpts proc.Options
	// onSpawn runs synchronously inside Start, e.g. to bring up a fake
	// health endpoint or to write the job's output file.
	onSpawn func(args []string, opts proc.Options)
}

func (r *fakeRunner) Start(path string, args []string, opts proc.Options) (proc.Process, error) {
	r.mu.Lock()
	r.lastPath = path
	r.lastArgs = args
	r.lastOpts = opts
	hook := r.onSpawn
	if r.err != nil {
		err := r.err
		r.mu.Unlock()
		return nil, err
	}
	if r.proc == nil {
		r.proc = newFakeProcess(4242)
	}
	p := r.proc
	r.mu.Unlock()
	if hook != nil {
		hook(args, opts)
	}
	return p, nil
}

func (r *fakeRunner) spawned() ([]string, proc.Options) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastArgs, r.lastOpts
}

type okCapacity struct{}

func (okCapacity) CheckCapacity(context.Context, *types.Model) error { return nil }

type failCapacity struct{ err error }

func (c failCapacity) CheckCapacity(context.Context, *types.Model) error { return c.err }

func gpuSnapshot(freeVRAM uint64) hardware.Snapshot {
	return hardware.Snapshot{
		CPUCores: 8,
		TotalRAM: 32 << 30,
		FreeRAM:  24 << 30,
		GPU: &hardware.GPUInfo{
			Kind:      hardware.KindCUDA,
			Name:      "Fake RTX",
			TotalVRAM: 12 << 30,
			FreeVRAM:  freeVRAM,
		},
	}
}

func textModel() types.Model {
	return types.Model{ID: "llama3-8b", Path: "/models/llama3-8b.gguf", SizeBytes: 4 << 30, Kind: types.ModelKindText, Layers: 32}
}

func imageModel() types.Model {
	return types.Model{ID: "sd15", Path: "/models/sd15.safetensors", SizeBytes: 2 << 30, Kind: types.ModelKindImage}
}

// argValue extracts the value following a flag in an argv slice.
func argValue(args []string, flag string) (string, bool) {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1], true
		}
	}
	return "", false
}

type textFixture struct {
	srv      *TextServer
	runner   *fakeRunner
	ensurer  *fakeEnsurer
	pub      *MemoryPublisher
	resolver fakeResolver
	port     int
	stateDir string
}

func newTextFixture(t *testing.T) *textFixture {
	t.Helper()
	f := &textFixture{
		runner:   &fakeRunner{},
		ensurer:  &fakeEnsurer{exe: "/opt/bin/llama-server"},
		pub:      NewMemoryPublisher(),
		resolver: fakeResolver{"llama3-8b": textModel()},
		port:     pickFreePort(t),
		stateDir: t.TempDir(),
	}
	f.srv = NewTextServer(TextServerConfig{
		Name:        "text",
		Host:        "127.0.0.1",
		DefaultPort: f.port,
		StateDir:    f.stateDir,
		Health:      fastHealth(),
	}, f.resolver, f.ensurer, f.runner, hardware.Static{Snap: gpuSnapshot(10 << 30)}, okCapacity{}, f.pub, testLogger())
	return f
}

// withHealthOnSpawn makes the fake spawn bring up a health endpoint, the
// way a real server would.
func (f *textFixture) withHealthOnSpawn(t *testing.T, statuses ...string) {
	t.Helper()
	if len(statuses) == 0 {
		statuses = []string{"ok"}
	}
	f.runner.onSpawn = func([]string, proc.Options) {
		serveOnPort(t, f.port, healthSeq(statuses...))
	}
}

func hasEvent(pub *MemoryPublisher, name string) bool {
	for _, n := range pub.Names() {
		if n == name {
			return true
		}
	}
	return false
}

// waitFor polls cond until true or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", d)
}

var errBoom = errors.New("boom")
