package identify

import (
	"sync"
	"time"
)

// State is a phase of an identification session.
type State string

const (
	StateInit       State = "INIT"
	StateProbing    State = "PROBING"
	StateExtracting State = "EXTRACTING"
	StateScoring    State = "SCORING"
	StateRanked     State = "RANKED"
	StateFailed     State = "FAILED"
)

// Terminal reports whether s ends a session.
func (s State) Terminal() bool {
	return s == StateRanked || s == StateFailed
}

var allowedTransitions = map[State][]State{
	StateInit:       {StateProbing, StateFailed},
	StateProbing:    {StateExtracting, StateFailed},
	StateExtracting: {StateScoring, StateFailed},
	StateScoring:    {StateRanked, StateFailed},
}

// Transition is one recorded state change.
type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}

// session tracks the state machine of one identification.
type session struct {
	mu          sync.Mutex
	id          string
	state       State
	transitions []Transition
	sink        EventSink
}

func newSession(id string, sink EventSink) *session {
	return &session{id: id, state: StateInit, sink: sink}
}

// advance moves the session to next. Illegal transitions panic since they
// indicate a programming error in the orchestrator.
func (s *session) advance(next State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ok := false
	for _, allowed := range allowedTransitions[s.state] {
		if allowed == next {
			ok = true
			break
		}
	}
	if !ok {
		panic("identify: illegal state transition " + string(s.state) + " -> " + string(next))
	}

	now := time.Now()
	s.transitions = append(s.transitions, Transition{From: s.state, To: next, At: now})
	s.state = next
	_ = s.sink.Record(Event{Timestamp: now, SessionID: s.id, Kind: EventState, State: next, OK: next != StateFailed})
}

func (s *session) current() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *session) history() []Transition {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Transition, len(s.transitions))
	copy(out, s.transitions)
	return out
}
