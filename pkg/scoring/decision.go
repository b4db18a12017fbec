package scoring

import "fmt"

// Decision records the weighting actually used by a session.
type Decision struct {
	Mode  Mode    `json:"mode"`
	Alpha float64 `json:"effective_weight"`
	// Forced is true when the configured weighting was overridden because
	// semantic comparison was unavailable.
	Forced bool   `json:"weight_forced"`
	Reason string `json:"forced_reason,omitempty"`
}

// Decide resolves the scorer for a session. When semantic comparison is
// unavailable and the configured mode needs it, the session falls back to
// heuristic-only scoring with alpha forced to 1 and the reason is recorded.
func Decide(mode Mode, alpha float64, semanticAvailable bool, reason string) (Scorer, Decision, error) {
	if mode != ModeHeuristic && !semanticAvailable {
		if reason == "" {
			reason = "semantic comparison unavailable"
		}
		return HeuristicScorer{}, Decision{Mode: ModeHeuristic, Alpha: 1, Forced: true, Reason: reason}, nil
	}

	s, err := New(mode, alpha)
	if err != nil {
		return nil, Decision{}, err
	}
	return s, Decision{Mode: s.Mode(), Alpha: s.Alpha()}, nil
}

// String renders d for logs.
func (d Decision) String() string {
	if d.Forced {
		return fmt.Sprintf("%s (alpha=%.2f, forced: %s)", d.Mode, d.Alpha, d.Reason)
	}
	return fmt.Sprintf("%s (alpha=%.2f)", d.Mode, d.Alpha)
}
