package data

import "sync"

// ConnState is the connectivity of one feed as seen by its last completed
// fetch.
type ConnState int

const (
	Online ConnState = iota
	Offline
)

func (s ConnState) String() string {
	switch s {
	case Online:
		return "online"
	case Offline:
		return "offline"
	default:
		return "unknown"
	}
}

// Connectivity is a two-state machine driven only by fetch completions:
// success moves it to Online, failure to Offline. It starts Online.
//
// Completions are applied in the order they are observed, so when several
// fetches are in flight the one that completes last decides the state.
type Connectivity struct {
	mu        sync.Mutex
	state     ConnState
	seq       uint64
	listeners []func(ConnState)
}

// NewConnectivity returns a machine in the Online state.
func NewConnectivity() *Connectivity {
	return &Connectivity{state: Online}
}

// State returns the current state.
func (c *Connectivity) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Online reports whether the state is Online.
func (c *Connectivity) Online() bool {
	return c.State() == Online
}

// Completions returns how many fetch outcomes have been observed.
func (c *Connectivity) Completions() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Observe records a fetch outcome and returns the resulting state.
// Listeners run after the lock is released, and only on transitions.
func (c *Connectivity) Observe(err error) ConnState {
	next := Online
	if err != nil {
		next = Offline
	}

	c.mu.Lock()
	c.seq++
	changed := c.state != next
	c.state = next
	var listeners []func(ConnState)
	if changed {
		listeners = append(listeners, c.listeners...)
	}
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(next)
	}
	return next
}

// OnChange registers fn to run on every transition.
func (c *Connectivity) OnChange(fn func(ConnState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}
