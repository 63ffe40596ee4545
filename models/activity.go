package models

import "time"

// ActivityLevel classifies an activity event for the consuming UI layer.
type ActivityLevel string

const (
	ActivityInfo    ActivityLevel = "info"
	ActivitySuccess ActivityLevel = "success"
	ActivityWarning ActivityLevel = "warning"
	ActivityError   ActivityLevel = "error"
)

// ActivityEvent is one timestamped entry of the append-only activity
// feed. Events are never mutated or removed after emission.
type ActivityEvent struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Level     ActivityLevel          `json:"level"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
}
