package sink

import (
	"fmt"
	"strings"
	"sync"

	"goharmonic/internal"
	"goharmonic/internal/errors"
	"goharmonic/ports"
)

// Recorder fans results out to several sinks behind a single mutex, so
// callers on any goroutine see writes applied in one total order
type Recorder struct {
	mu     sync.Mutex
	sinks  []ports.ResultSink
	logger *internal.Logger
}

// NewRecorder creates a recorder over sinks, in write order
func NewRecorder(logger *internal.Logger, sinks ...ports.ResultSink) *Recorder {
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	return &Recorder{sinks: sinks, logger: logger}
}

// Save writes to every sink. It tries all of them and reports the failures together.
func (r *Recorder) Save(key string, value interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var failed []string
	var first error
	for _, s := range r.sinks {
		if err := s.Save(key, value); err != nil {
			failed = append(failed, err.Error())
			if first == nil {
				first = err
			}
		}
	}
	r.logger.Debug("saved %s", key)
	if first != nil {
		return errors.Wrap(first, fmt.Sprintf("failed to save %s: %s", key, strings.Join(failed, "; ")))
	}
	return nil
}

// Log appends to every sink's transcript and echoes the line to the operational log
func (r *Recorder) Log(line string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logger.Info("%s", line)
	var first error
	for _, s := range r.sinks {
		if err := s.Log(line); err != nil && first == nil {
			first = err
		}
	}
	if first != nil {
		return errors.Wrap(first, "failed to append transcript")
	}
	return nil
}

// Logf formats and logs a transcript line
func (r *Recorder) Logf(format string, args ...interface{}) error {
	return r.Log(fmt.Sprintf(format, args...))
}
