package trading

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"tradeflow/logger"
	"tradeflow/models"
)

// Recorder keeps the append-only activity feed consumed by the UI layer.
// Events are only ever appended; retention within the process is
// unbounded, the rotated structured log is the durable sink.
type Recorder struct {
	mu     sync.Mutex
	events []models.ActivityEvent
	log    *logger.Log
}

// NewRecorder creates a Recorder that mirrors every event into log.
func NewRecorder(log *logger.Log) *Recorder {
	return &Recorder{log: log}
}

// Record appends a new event and mirrors it to the structured logger at
// the matching level.
func (r *Recorder) Record(level models.ActivityLevel, message string, details map[string]interface{}) models.ActivityEvent {
	event := models.ActivityEvent{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   message,
		Details:   details,
	}

	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()

	entry := r.log.WithComponent("activity").WithFields(logger.Fields{"event_id": event.ID})
	if len(details) > 0 {
		entry = entry.WithFields(logger.Fields(details))
	}
	switch level {
	case models.ActivityWarning:
		entry.Warn(message)
	case models.ActivityError:
		entry.Error(message)
	default:
		entry.Info(message)
	}

	return event
}

// Events returns a copy of the feed in emission order.
func (r *Recorder) Events() []models.ActivityEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.ActivityEvent, len(r.events))
	copy(out, r.events)
	return out
}

// Len returns the number of recorded events.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}
