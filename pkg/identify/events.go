package identify

import "time"

// Event kinds recorded for a session.
const (
	EventState   = "state"
	EventProbe   = "probe"
	EventEmbed   = "embed"
	EventResult  = "result"
	EventProfile = "profile"
)

// Event is one telemetry record of a session.
type Event struct {
	Timestamp  time.Time `json:"timestamp"`
	SessionID  string    `json:"session_id"`
	Kind       string    `json:"event"`
	State      State     `json:"state,omitempty"`
	PromptID   string    `json:"prompt_id,omitempty"`
	Category   string    `json:"category,omitempty"`
	RunIndex   int       `json:"run_index"`
	Attempts   int       `json:"attempts,omitempty"`
	OK         bool      `json:"ok"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms,omitempty"`
	Model      string    `json:"model,omitempty"`
}

// EventSink receives session events. Implementations must be safe for
// concurrent use.
type EventSink interface {
	Record(Event) error
}

type nopSink struct{}

func (nopSink) Record(Event) error { return nil }
