package report

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/llmfinder/llmfinder/pkg/identify"
	"github.com/llmfinder/llmfinder/pkg/stringutil"
)

// Subscriber handles session events dispatched by an EventStream.
type Subscriber interface {
	Handle(event identify.Event)
	// ShouldHandle filters the events this subscriber receives.
	ShouldHandle(event identify.Event) bool
}

// EventStream is a synchronous event dispatcher. It implements
// identify.EventSink so one session can feed telemetry and progress output
// at the same time.
type EventStream struct {
	mu          sync.Mutex
	subscribers []Subscriber
	sinks       []identify.EventSink
}

// NewEventStream creates a stream that forwards every event to sinks.
func NewEventStream(sinks ...identify.EventSink) *EventStream {
	return &EventStream{sinks: sinks}
}

// Subscribe registers sub. Subscribers are called in registration order.
func (s *EventStream) Subscribe(sub Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, sub)
}

// Record dispatches event. Dispatch is serialized so subscribers writing to
// a terminal never interleave. The first sink error is returned.
func (s *EventStream) Record(event identify.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var first error
	for _, sink := range s.sinks {
		if err := sink.Record(event); err != nil && first == nil {
			first = err
		}
	}
	for _, sub := range s.subscribers {
		if sub.ShouldHandle(event) {
			sub.Handle(event)
		}
	}
	return first
}

// SubscriberCount returns the number of registered subscribers.
func (s *EventStream) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}

var (
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	stateStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

// ProgressSubscriber prints probe progress lines, typically to stderr.
type ProgressSubscriber struct {
	writer  io.Writer
	total   int
	done    int
	run     int
	verbose bool
}

// NewProgressSubscriber creates a subscriber for a suite of total prompts.
// Embedding events are only shown when verbose is set.
func NewProgressSubscriber(w io.Writer, total int, verbose bool) *ProgressSubscriber {
	return &ProgressSubscriber{writer: w, total: total, verbose: verbose}
}

// ShouldHandle accepts state and probe events, and embedding events in
// verbose mode.
func (p *ProgressSubscriber) ShouldHandle(event identify.Event) bool {
	switch event.Kind {
	case identify.EventState, identify.EventProbe:
		return true
	case identify.EventEmbed:
		return p.verbose
	}
	return false
}

// Handle renders one event.
func (p *ProgressSubscriber) Handle(event identify.Event) {
	switch event.Kind {
	case identify.EventState:
		_, _ = fmt.Fprintf(p.writer, "%s %s\n", dimStyle.Render("[*]"), stateStyle.Render(string(event.State)))
		if event.State == identify.StateProbing {
			p.done = 0
		}
	case identify.EventProbe:
		if event.RunIndex != p.run {
			p.run, p.done = event.RunIndex, 0
		}
		p.done++
		mark := okStyle.Render("ok")
		if !event.OK {
			mark = failStyle.Render("failed: " + stringutil.Snippet(event.Error, 80))
		}
		_, _ = fmt.Fprintf(p.writer, "  -> (%d/%d) %s/%s %s %s\n",
			p.done, p.total, event.Category, event.PromptID, mark,
			dimStyle.Render(fmt.Sprintf("%dms", event.DurationMS)))
	case identify.EventEmbed:
		mark := okStyle.Render("embedded")
		if !event.OK {
			mark = failStyle.Render("embedding failed: " + stringutil.Snippet(event.Error, 80))
		}
		_, _ = fmt.Fprintf(p.writer, "  -> %s %s\n", event.PromptID, mark)
	}
}
