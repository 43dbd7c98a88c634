package api

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"goharmonic/internal"
)

// Event kinds streamed to clients
const (
	EventLog    = "log"
	EventResult = "result"
	EventDone   = "done"
)

// RunEvent is one transcript line or saved result of a run
type RunEvent struct {
	RunID     string          `json:"run_id"`
	Kind      string          `json:"kind"`
	Line      string          `json:"line,omitempty"`
	Key       string          `json:"key,omitempty"`
	Value     json.RawMessage `json:"value,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

type subscriber struct {
	runID string
	ch    chan RunEvent
}

// Hub fans run events out to Server-Sent Events subscribers
type Hub struct {
	clients    map[string]map[chan RunEvent]bool
	clientsMu  sync.RWMutex
	register   chan subscriber
	unregister chan subscriber
	broadcast  chan RunEvent
	logger     *internal.Logger
}

// NewHub creates a hub. Its loop runs until ctx is done.
func NewHub(ctx context.Context, logger *internal.Logger) *Hub {
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	h := &Hub{
		clients:    make(map[string]map[chan RunEvent]bool),
		register:   make(chan subscriber, 10),
		unregister: make(chan subscriber, 10),
		broadcast:  make(chan RunEvent, 256),
		logger:     logger,
	}
	go h.run(ctx)
	return h
}

func (h *Hub) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case s := <-h.register:
			h.clientsMu.Lock()
			if h.clients[s.runID] == nil {
				h.clients[s.runID] = make(map[chan RunEvent]bool)
			}
			h.clients[s.runID][s.ch] = true
			h.clientsMu.Unlock()
			h.logger.Debug("stream subscriber added for run %s", s.runID)

		case s := <-h.unregister:
			h.clientsMu.Lock()
			if clients, ok := h.clients[s.runID]; ok {
				delete(clients, s.ch)
				if len(clients) == 0 {
					delete(h.clients, s.runID)
				}
			}
			h.clientsMu.Unlock()

		case ev := <-h.broadcast:
			h.clientsMu.RLock()
			for ch := range h.clients[ev.RunID] {
				select {
				case ch <- ev:
				default:
					h.logger.Warn("stream subscriber for run %s is full, dropping %s event", ev.RunID, ev.Kind)
				}
			}
			h.clientsMu.RUnlock()
		}
	}
}

// Publish queues an event; it drops the event rather than block a run
func (h *Hub) Publish(ev RunEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	select {
	case h.broadcast <- ev:
	default:
		h.logger.Warn("event queue full, dropping %s event for run %s", ev.Kind, ev.RunID)
	}
}

// Subscribers returns the number of clients streaming runID
func (h *Hub) Subscribers(runID string) int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients[runID])
}

// Subscribe registers a channel for runID. The returned func unregisters it.
func (h *Hub) Subscribe(runID string) (<-chan RunEvent, func()) {
	ch := make(chan RunEvent, 64)
	h.register <- subscriber{runID: runID, ch: ch}
	return ch, func() { h.unregister <- subscriber{runID: runID, ch: ch} }
}

// HandleStream serves GET /api/runs/:id/events until the run finishes or
// the client goes away
func (h *Hub) HandleStream(c *gin.Context) {
	runID := c.Param("id")
	events, cancel := h.Subscribe(runID)
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case ev := <-events:
			c.SSEvent(ev.Kind, ev)
			return ev.Kind != EventDone
		case <-time.After(30 * time.Second):
			c.SSEvent("ping", gin.H{"timestamp": time.Now().UTC().Format(time.RFC3339)})
			return true
		case <-ctx.Done():
			return false
		}
	})
}

// Sink publishes a run's results and transcript to the hub
type Sink struct {
	hub   *Hub
	runID string
}

// NewSink creates a result sink streaming runID
func NewSink(hub *Hub, runID string) *Sink {
	return &Sink{hub: hub, runID: runID}
}

func (s *Sink) Save(key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.hub.Publish(RunEvent{RunID: s.runID, Kind: EventResult, Key: key, Value: raw})
	return nil
}

func (s *Sink) Log(line string) error {
	s.hub.Publish(RunEvent{RunID: s.runID, Kind: EventLog, Line: line})
	return nil
}

// Done tells subscribers the run has finished
func (s *Sink) Done() {
	s.hub.Publish(RunEvent{RunID: s.runID, Kind: EventDone})
}
