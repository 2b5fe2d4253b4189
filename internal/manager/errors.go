package manager

import (
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"inferd/internal/catalog"
)

// alreadyRunningError signals a start request against a running server for 409 mapping.
type alreadyRunningError struct{ name string }

func (e alreadyRunningError) Error() string { return "server already running: " + e.name }

// ErrAlreadyRunning constructs an alreadyRunningError.
func ErrAlreadyRunning(name string) error { return alreadyRunningError{name: name} }

// IsAlreadyRunning reports whether err indicates the server was already started.
func IsAlreadyRunning(err error) bool {
	var target alreadyRunningError
	return errors.As(err, &target)
}

// tooBusyError signals that the single generation slot is taken (return 429).
type tooBusyError struct{}

func (tooBusyError) Error() string { return "a generation job is already in flight" }

// ErrTooBusy constructs a tooBusyError.
func ErrTooBusy() error { return tooBusyError{} }

// IsTooBusy reports whether err indicates backpressure (return 429).
func IsTooBusy(err error) bool {
	var target tooBusyError
	return errors.As(err, &target)
}

// IsModelNotFound reports whether the error indicates a missing model id.
func IsModelNotFound(err error) bool { return errors.Is(err, catalog.ErrNotFound) }

// insufficientResourcesError signals that a model cannot fit for 507 mapping.
type insufficientResourcesError struct {
	resource string
	need     uint64
	have     uint64
}

func (e insufficientResourcesError) Error() string {
	return fmt.Sprintf("insufficient %s: need %s, have %s",
		e.resource, humanize.IBytes(e.need), humanize.IBytes(e.have))
}

// ErrInsufficientResources constructs an insufficientResourcesError.
func ErrInsufficientResources(resource string, need, have uint64) error {
	return insufficientResourcesError{resource: resource, need: need, have: have}
}

// IsInsufficientResources reports whether err indicates the model cannot fit (return 507).
func IsInsufficientResources(err error) bool {
	var target insufficientResourcesError
	return errors.As(err, &target)
}

// portInUseError signals that something else already answers on the configured port.
type portInUseError struct{ port int }

func (e portInUseError) Error() string {
	return fmt.Sprintf("port %d is already serving a health endpoint", e.port)
}

// ErrPortInUse constructs a portInUseError.
func ErrPortInUse(port int) error { return portInUseError{port: port} }

// IsPortInUse reports whether err indicates a port conflict (return 409).
func IsPortInUse(err error) bool {
	var target portInUseError
	return errors.As(err, &target)
}

// healthTimeoutError signals that a spawned server never became healthy (return 502).
type healthTimeoutError struct {
	name     string
	attempts int
	elapsed  time.Duration
}

func (e healthTimeoutError) Error() string {
	return fmt.Sprintf("%s did not become healthy after %d probes in %s",
		e.name, e.attempts, e.elapsed.Round(time.Millisecond))
}

// ErrHealthTimeout constructs a healthTimeoutError.
func ErrHealthTimeout(name string, attempts int, elapsed time.Duration) error {
	return healthTimeoutError{name: name, attempts: attempts, elapsed: elapsed}
}

// IsHealthTimeout reports whether err indicates a server that never came up (return 502).
func IsHealthTimeout(err error) bool {
	var target healthTimeoutError
	return errors.As(err, &target)
}

// unknownServerError signals a server name outside the managed set.
type unknownServerError struct{ name string }

func (e unknownServerError) Error() string { return "unknown server: " + e.name }

// ErrUnknownServer constructs an unknownServerError.
func ErrUnknownServer(name string) error { return unknownServerError{name: name} }

// IsUnknownServer reports whether err names a server that does not exist.
func IsUnknownServer(err error) bool {
	var target unknownServerError
	return errors.As(err, &target)
}

// notRunningError signals an operation that needs a running server.
type notRunningError struct{ name string }

func (e notRunningError) Error() string { return "server not running: " + e.name }

// ErrNotRunning constructs a notRunningError.
func ErrNotRunning(name string) error { return notRunningError{name: name} }

// IsNotRunning reports whether err indicates the server is stopped.
func IsNotRunning(err error) bool {
	var target notRunningError
	return errors.As(err, &target)
}
