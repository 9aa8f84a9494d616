package events

import (
	"context"
	"sync"

	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// LogHandler writes events to the structured log. Used when no queue is
// configured, and useful in development to watch the event stream.
type LogHandler struct {
	logger *logging.Logger
}

func NewLogHandler(logger *logging.Logger) *LogHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogHandler{logger: logger}
}

func (h *LogHandler) Handle(ctx context.Context, entry OutboxEntry) error {
	h.logger.Info("event delivered",
		"event_id", entry.ID,
		"type", entry.Type,
		"provider_id", entry.ProviderID,
		"payload", string(entry.Payload),
	)
	return nil
}

// MemorySink collects emitted events in memory for tests and for running
// without a database.
type MemorySink struct {
	mu      sync.Mutex
	entries []SinkEntry
}

// SinkEntry is one captured emission.
type SinkEntry struct {
	ProviderID string
	Type       string
	Payload    any
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Emit(ctx context.Context, providerID string, eventType string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, SinkEntry{ProviderID: providerID, Type: eventType, Payload: payload})
	return nil
}

// Entries returns the captured emissions in order.
func (s *MemorySink) Entries() []SinkEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SinkEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// ByType returns captured emissions matching the event type.
func (s *MemorySink) ByType(eventType string) []SinkEntry {
	var out []SinkEntry
	for _, e := range s.Entries() {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
