package sink

import (
	"sync"

	"github.com/elliotchance/orderedmap/v2"
)

// Memory holds results and transcript lines in process. It backs the HTTP
// API and tests.
type Memory struct {
	mu     sync.RWMutex
	values *orderedmap.OrderedMap[string, interface{}]
	lines  []string
}

// NewMemory creates an empty in-memory sink
func NewMemory() *Memory {
	return &Memory{values: orderedmap.NewOrderedMap[string, interface{}]()}
}

func (m *Memory) Save(key string, value interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values.Set(key, value)
	return nil
}

func (m *Memory) Log(line string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines = append(m.lines, line)
	return nil
}

func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.values.Keys()
}

func (m *Memory) Get(key string) (interface{}, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.values.Get(key)
}

// Lines returns a copy of the transcript
func (m *Memory) Lines() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.lines...)
}
