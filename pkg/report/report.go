// Package report renders identification results as JSON reports and
// records session telemetry.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/llmfinder/llmfinder/pkg/identify"
	"github.com/llmfinder/llmfinder/pkg/scoring"
)

// MatchEntry is one ranked candidate. SemanticSimilarity is nil when the
// candidate had no comparable embeddings.
type MatchEntry struct {
	ModelIdentity       string   `json:"model_identity"`
	HeuristicSimilarity float64  `json:"heuristic_similarity"`
	HeuristicDistance   float64  `json:"heuristic_distance"`
	CommonFeatures      int      `json:"common_features"`
	SemanticSimilarity  *float64 `json:"semantic_similarity"`
	CombinedScore       float64  `json:"combined_score"`
	Rank                int      `json:"rank"`
}

// Timing is the session timing in milliseconds.
type Timing struct {
	ProbingMS    int64 `json:"probing_ms"`
	ExtractingMS int64 `json:"extracting_ms"`
	ScoringMS    int64 `json:"scoring_ms"`
	TotalMS      int64 `json:"total_ms"`
}

// IdentificationReport is the persisted result of one session.
type IdentificationReport struct {
	SessionID        string             `json:"session_id"`
	Target           string             `json:"target,omitempty"`
	State            identify.State     `json:"state"`
	Error            string             `json:"error,omitempty"`
	Coverage         float64            `json:"coverage"`
	Answered         int                `json:"answered"`
	Total            int                `json:"total"`
	Mode             scoring.Mode       `json:"mode"`
	EffectiveWeight  float64            `json:"effective_weight"`
	WeightForced     bool               `json:"weight_forced"`
	ForcedReason     string             `json:"forced_reason,omitempty"`
	Matches          []MatchEntry       `json:"matches"`
	Failures         []identify.Failure `json:"failures,omitempty"`
	LiveFeatures     map[string]float64 `json:"live_features,omitempty"`
	Undetermined     []string           `json:"undetermined_features,omitempty"`
	Timing           Timing             `json:"timing"`
	SuiteFingerprint string             `json:"suite_fingerprint"`
	GeneratedAt      time.Time          `json:"generated_at"`
}

// FromResult builds a report from a session result. sessionErr is the error
// returned alongside res, if any.
func FromResult(res *identify.Result, sessionErr error, now time.Time) IdentificationReport {
	rep := IdentificationReport{
		SessionID:        res.SessionID,
		Target:           res.Target,
		State:            res.State,
		Coverage:         res.Coverage,
		Answered:         res.Answered,
		Total:            res.Total,
		Mode:             res.Decision.Mode,
		EffectiveWeight:  res.Decision.Alpha,
		WeightForced:     res.Decision.Forced,
		ForcedReason:     res.Decision.Reason,
		Matches:          make([]MatchEntry, 0, len(res.Matches)),
		Failures:         res.Failures,
		LiveFeatures:     res.Live.Features,
		Undetermined:     res.Live.Undetermined,
		SuiteFingerprint: res.SuiteFingerprint,
		GeneratedAt:      now.UTC(),
		Timing: Timing{
			ProbingMS:    res.Timing.Probing.Milliseconds(),
			ExtractingMS: res.Timing.Extracting.Milliseconds(),
			ScoringMS:    res.Timing.Scoring.Milliseconds(),
			TotalMS:      res.Timing.Total.Milliseconds(),
		},
	}
	if sessionErr != nil {
		rep.Error = sessionErr.Error()
	}
	for _, m := range res.Matches {
		entry := MatchEntry{
			ModelIdentity:       m.ModelIdentity,
			HeuristicSimilarity: m.Heuristic,
			HeuristicDistance:   m.HeuristicDistance,
			CommonFeatures:      m.CommonFeatures,
			CombinedScore:       m.Combined,
			Rank:                m.Rank,
		}
		if m.SemanticKnown {
			sem := m.Semantic
			entry.SemanticSimilarity = &sem
		}
		rep.Matches = append(rep.Matches, entry)
	}
	return rep
}

// Encode writes v as indented JSON.
func Encode(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

// Write stores v as indented JSON at path. A path of "-" writes to stdout.
// The file is written to a temporary sibling first and renamed into place.
func Write(path string, v any) error {
	if path == "-" {
		return Encode(os.Stdout, v)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".report-*.json")
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := Encode(tmp, v); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close report file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
