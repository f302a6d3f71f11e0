package supervisor

// State is the lifecycle state of one supervised role.
type State string

const (
	StateIdle     State = "idle"     // not scheduled, e.g. after a launch error with restarts disabled
	StateStarting State = "starting" // checking the binary, recovering it, spawning
	StateRunning  State = "running"  // child alive
	StateExited   State = "exited"   // child gone, restart pending
)

// StatusSink receives every state transition of every role.
type StatusSink interface {
	Report(role string, state State)
}

type nopSink struct{}

func (nopSink) Report(role string, state State) {}
