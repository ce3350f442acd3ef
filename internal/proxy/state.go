package proxy

// State is the daemon lifecycle. It is owned exclusively by the Manager's
// control loop; listeners never mutate it.
type State int

const (
	// StateInit is the state before the first conclusive probe.
	StateInit State = iota
	// StateOffline means the real server is down and the proxy holds its
	// address with both listeners running.
	StateOffline
	// StateStarting means a wake was triggered and the daemon is waiting
	// for the real server to come up, with the address already released.
	StateStarting
	// StateOnline means the real server answers probes and the proxy is
	// fully inert.
	StateOnline
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateOffline:
		return "OFFLINE"
	case StateStarting:
		return "STARTING"
	case StateOnline:
		return "ONLINE"
	default:
		return "UNKNOWN"
	}
}
