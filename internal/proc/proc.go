// Package proc spawns and supervises external server executables. A
// started Process streams its output line by line to a callback, reports
// its exit with a clean/abnormal distinction, and is terminated gracefully
// first (SIGTERM) with a forced kill after a timeout.
package proc

import (
	"bufio"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// Output stream names passed to OnLine.
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

// maxLineBytes bounds a single scanned output line.
const maxLineBytes = 1 << 20

// ExitInfo describes how a process ended. Requested is true when Stop
// initiated the termination; an unrequested exit is a crash from the
// supervisor's point of view.
type ExitInfo struct {
	Code      int
	Requested bool
	Err       error
}

// Clean reports a requested or zero-status exit.
func (e ExitInfo) Clean() bool { return e.Requested || e.Code == 0 }

// Options configure a Start call.
type Options struct {
	// Working directory; empty means inherit.
	Dir string
	// Extra environment entries appended to the parent environment.
	Env []string
	// OnLine receives each output line as it is produced. Optional.
	OnLine func(stream, line string)
	// OnExit fires exactly once when the process ends. Optional.
	OnExit func(ExitInfo)
}

// Process is a live supervised child.
type Process interface {
	PID() int
	Running() bool
	// Stop terminates the process: SIGTERM, then SIGKILL after
	// gracefulTimeout. It blocks until the process is gone and is safe
	// to call more than once.
	Stop(gracefulTimeout time.Duration) error
}

// Supervisor starts supervised processes.
type Supervisor struct {
	log zerolog.Logger
}

func NewSupervisor(log zerolog.Logger) *Supervisor {
	return &Supervisor{log: log}
}

// Start launches path with args. The returned Process is already running;
// failures to launch return a SpawnError.
func (s *Supervisor) Start(path string, args []string, opts Options) (Process, error) {
	cmd := exec.Command(path, args...)
	if opts.Dir != "" {
		cmd.Dir = opts.Dir
	}
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &SpawnError{Path: path, Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &SpawnError{Path: path, Err: err}
	}
	if err := cmd.Start(); err != nil {
		return nil, &SpawnError{Path: path, Err: err}
	}

	c := &child{
		cmd:  cmd,
		log:  s.log,
		done: make(chan struct{}),
	}
	s.log.Debug().Str("exe", path).Int("pid", cmd.Process.Pid).Msg("process started")

	var drains sync.WaitGroup
	drains.Add(2)
	go c.drain(StreamStdout, stdout, opts.OnLine, &drains)
	go c.drain(StreamStderr, stderr, opts.OnLine, &drains)

	go func() {
		// Pipes must be fully read before Wait per os/exec docs.
		drains.Wait()
		err := cmd.Wait()

		c.mu.Lock()
		c.exited = true
		requested := c.requested
		c.mu.Unlock()

		info := ExitInfo{Code: exitCode(err), Requested: requested, Err: err}
		s.log.Debug().Str("exe", path).Int("pid", cmd.Process.Pid).
			Int("code", info.Code).Bool("requested", requested).Msg("process exited")
		if opts.OnExit != nil {
			opts.OnExit(info)
		}
		close(c.done)
	}()
	return c, nil
}

type child struct {
	cmd  *exec.Cmd
	log  zerolog.Logger
	done chan struct{}

	mu        sync.Mutex
	requested bool
	exited    bool
}

func (c *child) PID() int { return c.cmd.Process.Pid }

func (c *child) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.exited
}

func (c *child) Stop(gracefulTimeout time.Duration) error {
	c.mu.Lock()
	if c.exited {
		c.mu.Unlock()
		return nil
	}
	c.requested = true
	c.mu.Unlock()

	_ = c.cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-c.done:
	case <-time.After(gracefulTimeout):
		c.log.Warn().Int("pid", c.cmd.Process.Pid).Msg("graceful stop timed out, killing")
		_ = c.cmd.Process.Kill()
		<-c.done
	}
	return nil
}

func (c *child) drain(stream string, r io.Reader, onLine func(string, string), wg *sync.WaitGroup) {
	defer wg.Done()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	for sc.Scan() {
		if onLine != nil {
			onLine(stream, sc.Text())
		}
	}
}

// exitCode maps a Wait error to a status code: 0 for success, the
// process's code for a plain nonzero exit, -1 when killed by a signal or
// when no code is available.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if ee, ok := err.(*exec.ExitError); ok {
		return ee.ExitCode()
	}
	return -1
}
