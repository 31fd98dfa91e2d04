package demo

import (
	"fmt"
	"sync"

	"github.com/zeu5/redisraft/raftlog"
)

// Machine is a minimal key/value state machine: it applies the commands a
// raftlog entry carries, in the same "switch on the command tag" shape the
// teacher's state machine used, generalized to this demo's own catalog.
type Machine struct {
	mu    sync.Mutex
	state map[string]int64
}

// NewMachine returns an empty state machine.
func NewMachine() *Machine {
	return &Machine{state: make(map[string]int64)}
}

// Apply decodes entry.Data as a Command and applies it, returning the
// resulting value for Put/CAS or the prior value for Delete.
func (m *Machine) Apply(entry *raftlog.LogEntry) (int64, error) {
	cmd, err := DecodeCommand(entry.Data)
	if err != nil {
		return 0, fmt.Errorf("demo: decode command at kind %d: %w", entry.Kind, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch Kind(entry.Kind) {
	case CommandPut:
		m.state[cmd.Key] = cmd.Value
		return cmd.Value, nil
	case CommandDelete:
		prev := m.state[cmd.Key]
		delete(m.state, cmd.Key)
		return prev, nil
	case CommandCAS:
		if m.state[cmd.Key] != cmd.Expected {
			return m.state[cmd.Key], fmt.Errorf("demo: cas mismatch on %q", cmd.Key)
		}
		m.state[cmd.Key] = cmd.Value
		return cmd.Value, nil
	default:
		return 0, fmt.Errorf("demo: unknown command kind %d", entry.Kind)
	}
}

// Get returns the current value stored for key and whether it is present.
func (m *Machine) Get(key string) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.state[key]
	return v, ok
}
