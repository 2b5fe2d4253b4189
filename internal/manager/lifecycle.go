package manager

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"inferd/internal/acquire"
	"inferd/internal/proc"
	"inferd/pkg/types"
)

// Consumer-side seams so tests can stand in for the heavyweight pieces.

// modelResolver is satisfied by *catalog.Store.
type modelResolver interface {
	Lookup(id string) (types.Model, error)
}

// binaryEnsurer is satisfied by *acquire.Acquirer.
type binaryEnsurer interface {
	EnsureBinary(ctx context.Context, spec acquire.Spec, testArtifact string) (string, error)
}

// processRunner is satisfied by *proc.Supervisor.
type processRunner interface {
	Start(path string, args []string, opts proc.Options) (proc.Process, error)
}

// capacityChecker is satisfied by *ResourceArbiter.
type capacityChecker interface {
	CheckCapacity(ctx context.Context, m *types.Model) error
}

// lifecycle holds the state machine shared by both server kinds. Embedded
// by value; the embedding server owns everything process-specific.
type lifecycle struct {
	name      string
	mu        sync.Mutex
	state     State
	gen       uint64
	startedAt time.Time
	publisher EventPublisher
	log       zerolog.Logger
}

func newLifecycle(name string, pub EventPublisher, log zerolog.Logger) lifecycle {
	if pub == nil {
		pub = noopPublisher{}
	}
	return lifecycle{name: name, state: StateStopped, publisher: pub, log: log}
}

func (l *lifecycle) Name() string { return l.name }

// State returns the current lifecycle state.
func (l *lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Running reports whether the server is serving traffic.
func (l *lifecycle) Running() bool { return l.State() == StateRunning }

func (l *lifecycle) publish(name string, fields map[string]any) {
	l.publisher.Publish(Event{Name: name, Server: l.name, Fields: fields})
}

// beginStart claims the state machine for one start attempt. The returned
// generation invalidates the attempt if Stop arrives mid-start.
func (l *lifecycle) beginStart() (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateStopped && l.state != StateCrashed {
		return 0, ErrAlreadyRunning(l.name)
	}
	l.state = StateStarting
	l.gen++
	return l.gen, nil
}

// abortStart rolls a failed start attempt back to stopped, unless a
// concurrent Stop already moved the machine on.
func (l *lifecycle) abortStart(gen uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.gen == gen && l.state == StateStarting {
		l.state = StateStopped
	}
}
