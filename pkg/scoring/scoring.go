// Package scoring combines heuristic and semantic similarity into ranked
// candidate matches. It performs no I/O.
package scoring

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"

	"github.com/llmfinder/llmfinder/pkg/embedding"
)

// Mode selects the scorer variant.
type Mode string

const (
	ModeHeuristic Mode = "heuristic"
	ModeSemantic  Mode = "semantic"
	ModeHybrid    Mode = "hybrid"
)

// DefaultAlpha is the default heuristic weight.
const DefaultAlpha = 0.5

// ParseMode converts s into a Mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeHeuristic, ModeSemantic, ModeHybrid:
		return m, nil
	case "":
		return ModeHybrid, nil
	}
	return "", fmt.Errorf("unknown scoring mode %q (heuristic, semantic, hybrid)", s)
}

// Candidate is one stored model to score against the live fingerprint.
type Candidate struct {
	ModelIdentity string
	Features      map[string]float64
	Semantic      embedding.Similarity
}

// Match is the scored comparison of the live fingerprint with one
// candidate.
type Match struct {
	ModelIdentity string `json:"model_identity"`
	// Heuristic is 1 - RMSE over the common features.
	Heuristic float64 `json:"heuristic_similarity"`
	// HeuristicDistance is the RMSE over the common features.
	HeuristicDistance float64 `json:"heuristic_distance"`
	CommonFeatures    int     `json:"common_features"`
	// Semantic is the normalized [0,1] semantic similarity.
	Semantic      float64 `json:"semantic_similarity"`
	SemanticKnown bool    `json:"semantic_known"`
	Combined      float64 `json:"combined_score"`
	Rank          int     `json:"rank"`
}

// HeuristicSimilarity returns 1 - RMSE over the features present in both
// vectors, the RMSE itself and the number of common features. With no
// common feature the similarity is 0.
func HeuristicSimilarity(live, candidate map[string]float64) (similarity, rmse float64, common int) {
	var sum float64
	for _, name := range slices.Sorted(maps.Keys(live)) {
		cv, ok := candidate[name]
		if !ok {
			continue
		}
		d := live[name] - cv
		sum += d * d
		common++
	}
	if common == 0 {
		return 0, 1, 0
	}
	rmse = math.Sqrt(sum / float64(common))
	return clamp01(1 - rmse), rmse, common
}

// Scorer computes a Match for one candidate.
type Scorer interface {
	Mode() Mode
	Alpha() float64
	Score(live map[string]float64, c Candidate) Match
}

// New returns the scorer variant for mode. alpha is only used by the
// hybrid scorer and must lie in [0,1].
func New(mode Mode, alpha float64) (Scorer, error) {
	switch mode {
	case ModeHeuristic:
		return HeuristicScorer{}, nil
	case ModeSemantic:
		return SemanticScorer{}, nil
	case ModeHybrid:
		if math.IsNaN(alpha) || alpha < 0 || alpha > 1 {
			return nil, fmt.Errorf("heuristic weight %v outside [0,1]", alpha)
		}
		return HybridScorer{Weight: alpha}, nil
	}
	return nil, fmt.Errorf("unknown scoring mode %q", mode)
}

// HeuristicScorer ranks by heuristic similarity only.
type HeuristicScorer struct{}

func (HeuristicScorer) Mode() Mode { return ModeHeuristic }
func (HeuristicScorer) Alpha() float64 { return 1 }

func (HeuristicScorer) Score(live map[string]float64, c Candidate) Match {
	return combine(1, live, c)
}

// SemanticScorer ranks by semantic similarity only. Candidates whose
// semantic similarity is unknown fall back to their heuristic similarity.
type SemanticScorer struct{}

func (SemanticScorer) Mode() Mode { return ModeSemantic }
func (SemanticScorer) Alpha() float64 { return 0 }

func (SemanticScorer) Score(live map[string]float64, c Candidate) Match {
	return combine(0, live, c)
}

// HybridScorer weights heuristic similarity by Weight and semantic
// similarity by 1-Weight.
type HybridScorer struct {
	Weight float64
}

func (h HybridScorer) Mode() Mode { return ModeHybrid }
func (h HybridScorer) Alpha() float64 { return h.Weight }

func (h HybridScorer) Score(live map[string]float64, c Candidate) Match {
	return combine(h.Weight, live, c)
}

func combine(alpha float64, live map[string]float64, c Candidate) Match {
	sim, rmse, common := HeuristicSimilarity(live, c.Features)
	m := Match{
		ModelIdentity:     c.ModelIdentity,
		Heuristic:         sim,
		HeuristicDistance: rmse,
		CommonFeatures:    common,
		SemanticKnown:     c.Semantic.Known,
	}
	if !c.Semantic.Known {
		m.Combined = sim
		return m
	}
	m.Semantic = c.Semantic.Normalized()
	m.Combined = clamp01(alpha*sim + (1-alpha)*m.Semantic)
	return m
}

// Rank orders matches by combined score descending, then semantic
// similarity descending, then model identity ascending, and assigns 1-based
// ranks. The input slice is not modified.
func Rank(matches []Match) []Match {
	out := slices.Clone(matches)
	slices.SortStableFunc(out, func(a, b Match) int {
		switch {
		case a.Combined != b.Combined:
			if a.Combined > b.Combined {
				return -1
			}
			return 1
		case a.Semantic != b.Semantic:
			if a.Semantic > b.Semantic {
				return -1
			}
			return 1
		}
		return strings.Compare(a.ModelIdentity, b.ModelIdentity)
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// ScoreAll scores every candidate and returns the ranked matches.
func ScoreAll(s Scorer, live map[string]float64, candidates []Candidate) []Match {
	matches := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		matches = append(matches, s.Score(live, c))
	}
	return Rank(matches)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
