package manager

// State represents the lifecycle state of a managed inference server.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	// StateCrashed means the server process exited without being asked to.
	StateCrashed State = "crashed"
)
