// Package permission tracks microphone authorization state for the
// conversation controller.
package permission

import (
	"context"
	"sync"
)

type State string

const (
	Granted State = "granted"
	Denied  State = "denied"
	Prompt  State = "prompt"
)

// Source is the platform capability that reports authorization state.
// Watch returns false when the platform cannot push change notifications;
// that is not an error condition, the state simply stays where Query (or
// later Update calls) left it.
type Source interface {
	Query(ctx context.Context) (State, error)
	Watch(ctx context.Context) (<-chan State, bool)
}

// Monitor holds the last known microphone authorization state and fans out
// changes to subscribers. It starts at Prompt.
type Monitor struct {
	mu      sync.RWMutex
	source  Source
	current State
	subs    map[int]chan State
	nextSub int
}

func NewMonitor(source Source) *Monitor {
	return &Monitor{
		source:  source,
		current: Prompt,
		subs:    make(map[int]chan State),
	}
}

// Start queries the current state once and, when the source supports change
// notifications, keeps following them for the lifetime of ctx.
func (m *Monitor) Start(ctx context.Context) {
	if m.source == nil {
		return
	}
	if state, err := m.source.Query(ctx); err == nil {
		m.set(state)
	}
	ch, ok := m.source.Watch(ctx)
	if !ok {
		return
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case state, open := <-ch:
				if !open {
					return
				}
				m.set(state)
			}
		}
	}()
}

func (m *Monitor) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Update records a state change reported by the platform bridge.
func (m *Monitor) Update(state State) {
	switch state {
	case Granted, Denied, Prompt:
		m.set(state)
	}
}

// ForceDenied is invoked when capture fails with a permission error; the
// authorization state is known denied even if the platform never notified us.
func (m *Monitor) ForceDenied() {
	m.set(Denied)
}

// Subscribe returns a buffered channel of state changes and a cancel func.
func (m *Monitor) Subscribe() (<-chan State, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSub
	m.nextSub++
	ch := make(chan State, 8)
	m.subs[id] = ch

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

func (m *Monitor) set(state State) {
	m.mu.Lock()
	if m.current == state {
		m.mu.Unlock()
		return
	}
	m.current = state
	subs := make([]chan State, 0, len(m.subs))
	for _, ch := range m.subs {
		subs = append(subs, ch)
	}
	m.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- state:
		default:
			// Slow subscriber; drop rather than block the notifier.
		}
	}
}

// StaticSource reports a fixed state and no change notifications. Used in
// mock mode and tests.
type StaticSource struct {
	Value State
}

func (s StaticSource) Query(context.Context) (State, error) { return s.Value, nil }

func (s StaticSource) Watch(context.Context) (<-chan State, bool) { return nil, false }
