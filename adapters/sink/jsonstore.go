// Package sink implements result sinks: a JSON file store, an append-only
// transcript, an in-memory sink and the recorder that serialises writes to them.
package sink

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/elliotchance/orderedmap/v2"
)

// JSONStore keeps every result in insertion order and rewrites the whole
// file on each Save so the file on disk is always a complete document
type JSONStore struct {
	path   string
	values *orderedmap.OrderedMap[string, json.RawMessage]
}

// NewJSONStore creates the store and its parent directory. Any previous file
// at path is replaced on the first Save.
func NewJSONStore(path string) (*JSONStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create results directory: %w", err)
	}
	return &JSONStore{
		path:   path,
		values: orderedmap.NewOrderedMap[string, json.RawMessage](),
	}, nil
}

// Path returns the file the store writes
func (s *JSONStore) Path() string {
	return s.path
}

// Save stores value under key, keeping the key's original position when it is overwritten
func (s *JSONStore) Save(key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal result %s: %w", key, err)
	}
	s.values.Set(key, raw)
	return s.flush()
}

// Log is a no-op; the JSON store only holds named results
func (s *JSONStore) Log(string) error {
	return nil
}

// Keys returns result keys in first-saved order
func (s *JSONStore) Keys() []string {
	return s.values.Keys()
}

// Get returns the stored JSON for key
func (s *JSONStore) Get(key string) (interface{}, bool) {
	raw, ok := s.values.Get(key)
	if !ok {
		return nil, false
	}
	return raw, true
}

// Bytes renders the current document
func (s *JSONStore) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("{")
	for i, key := range s.values.Keys() {
		if i > 0 {
			buf.WriteString(",")
		}
		k, _ := json.Marshal(key)
		raw, _ := s.values.Get(key)
		buf.Write(k)
		buf.WriteString(":")
		buf.Write(raw)
	}
	buf.WriteString("}")

	var out bytes.Buffer
	if err := json.Indent(&out, buf.Bytes(), "", "  "); err != nil {
		return nil, fmt.Errorf("failed to render results: %w", err)
	}
	out.WriteString("\n")
	return out.Bytes(), nil
}

// flush writes to a temporary file and renames it over the target
func (s *JSONStore) flush() error {
	data, err := s.Bytes()
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".results-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp results file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write results: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to sync results: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close results: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace results file: %w", err)
	}
	return nil
}
