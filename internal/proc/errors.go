package proc

import (
	"errors"
	"fmt"
)

// SpawnError means the executable could not be started at all, as opposed
// to starting and then exiting.
type SpawnError struct {
	Path string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// IsSpawnFailure reports whether err is a failure to launch an executable.
func IsSpawnFailure(err error) bool {
	var se *SpawnError
	return errors.As(err, &se)
}
