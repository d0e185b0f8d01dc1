package timeline

import "sync"

// State is a step of a render.
type State int

// Render states. Any state may move to StateFailed.
const (
	StateIdle State = iota
	StateCollecting
	StateConcatenating
	StateEncoding
	StateDone
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:          "idle",
	StateCollecting:    "collecting",
	StateConcatenating: "concatenating",
	StateEncoding:      "encoding",
	StateDone:          "done",
	StateFailed:        "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}

	return "unknown"
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Observer is told about each state a render enters, in order.
type Observer func(State)

type machine struct {
	mu      sync.Mutex
	state   State
	observe Observer
}

func newMachine(observe Observer) *machine {
	return &machine{state: StateIdle, observe: observe}
}

func (m *machine) current() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state
}

// transition only moves forward; it is a no-op once the render is terminal.
func (m *machine) transition(next State) {
	m.mu.Lock()

	if m.state.Terminal() || next <= m.state {
		m.mu.Unlock()

		return
	}

	m.state = next
	m.mu.Unlock()

	if m.observe != nil {
		m.observe(next)
	}
}

func (m *machine) fail() {
	m.mu.Lock()

	if m.state.Terminal() {
		m.mu.Unlock()

		return
	}

	m.state = StateFailed
	m.mu.Unlock()

	if m.observe != nil {
		m.observe(StateFailed)
	}
}
