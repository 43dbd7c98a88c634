package sink

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Transcript appends human-readable lines to a text file
type Transcript struct {
	f *os.File
}

// NewTranscript truncates path and writes a header naming the run
func NewTranscript(path, title string) (*Transcript, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create transcript directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript: %w", err)
	}
	t := &Transcript{f: f}
	rule := strings.Repeat("=", 72)
	header := fmt.Sprintf("%s\n%s\nStarted: %s\n%s", rule, title, time.Now().UTC().Format(time.RFC3339), rule)
	if err := t.Log(header); err != nil {
		f.Close()
		return nil, err
	}
	return t, nil
}

// Save is a no-op; the transcript only holds lines
func (t *Transcript) Save(string, interface{}) error {
	return nil
}

// Log appends line and a newline
func (t *Transcript) Log(line string) error {
	if _, err := t.f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("failed to append transcript: %w", err)
	}
	return nil
}

// Close flushes and closes the file
func (t *Transcript) Close() error {
	if err := t.f.Sync(); err != nil {
		t.f.Close()
		return err
	}
	return t.f.Close()
}
