package proxy

// WakeEvent reports that a client tried to reach the sleeping server. Events
// are produced on listener goroutines, queued, and drained serially by the
// control loop so that state transitions never race.
type WakeEvent struct {
	// Source names the emitting listener ("minecraft" or "presence").
	Source string
	// Reason is a diagnostic tag for the log line, e.g. the peer address.
	Reason string
}
