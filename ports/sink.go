package ports

// ResultSink receives named results and transcript lines from a run.
// Save overwrites any earlier value stored under the same key and is durable
// when it returns. Log appends one line to the human-readable transcript.
type ResultSink interface {
	Save(key string, value interface{}) error
	Log(line string) error
}

// ResultSnapshot is implemented by sinks that can hand back what they hold
type ResultSnapshot interface {
	Keys() []string
	Get(key string) (interface{}, bool)
}
