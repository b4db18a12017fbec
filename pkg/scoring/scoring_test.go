package scoring

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmfinder/llmfinder/pkg/embedding"
)

func known(v float64) embedding.Similarity {
	return embedding.Similarity{Value: v, Overlap: 3, Known: true}
}

func TestHeuristicSimilarity(t *testing.T) {
	tests := []struct {
		name      string
		live      map[string]float64
		candidate map[string]float64
		want      float64
		common    int
	}{
		{"identical", map[string]float64{"a": 0.3, "b": 1}, map[string]float64{"a": 0.3, "b": 1}, 1, 2},
		{"opposite", map[string]float64{"a": 0}, map[string]float64{"a": 1}, 0, 1},
		{"half", map[string]float64{"a": 0.5, "b": 0.5}, map[string]float64{"a": 0, "b": 1}, 0.5, 2},
		{"disjoint features ignored", map[string]float64{"a": 1, "x": 0}, map[string]float64{"a": 1, "y": 1}, 1, 1},
		{"no common features", map[string]float64{"a": 1}, map[string]float64{"b": 1}, 0, 0},
		{"empty live", nil, map[string]float64{"b": 1}, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _, common := HeuristicSimilarity(tt.live, tt.candidate)
			assert.InDelta(t, tt.want, got, 1e-12)
			assert.Equal(t, tt.common, common)
		})
	}
}

func TestWorkedExample_HeuristicOnly(t *testing.T) {
	live := map[string]float64{"math_correct": 0.85, "refusal_pattern": 0.15}
	candidates := []Candidate{
		{ModelIdentity: "B", Features: map[string]float64{"math_correct": 0.2, "refusal_pattern": 0.9}},
		{ModelIdentity: "A", Features: map[string]float64{"math_correct": 0.9, "refusal_pattern": 0.1}},
	}

	scorer, decision, err := Decide(ModeHybrid, 1, false, "embeddings disabled")
	require.NoError(t, err)
	assert.True(t, decision.Forced)
	assert.Equal(t, 1.0, decision.Alpha)

	ranked := ScoreAll(scorer, live, candidates)
	require.Len(t, ranked, 2)
	assert.Equal(t, "A", ranked[0].ModelIdentity)
	assert.Equal(t, 1, ranked[0].Rank)
	assert.Greater(t, ranked[0].Combined, ranked[1].Combined)
	assert.InDelta(t, 0.95, ranked[0].Combined, 1e-9)
	assert.InDelta(t, 0.2982, ranked[1].Combined, 1e-3)
}

func TestHybridScorer_Extremes(t *testing.T) {
	live := map[string]float64{"a": 0.2, "b": 0.8}
	c := Candidate{ModelIdentity: "m", Features: map[string]float64{"a": 0.6, "b": 0.8}, Semantic: known(0.4)}
	h, _, _ := HeuristicSimilarity(live, c.Features)

	s1, err := New(ModeHybrid, 1)
	require.NoError(t, err)
	assert.InDelta(t, h, s1.Score(live, c).Combined, 1e-12)

	s0, err := New(ModeHybrid, 0)
	require.NoError(t, err)
	assert.InDelta(t, 0.7, s0.Score(live, c).Combined, 1e-12)

	half, err := New(ModeHybrid, 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 0.5*h+0.5*0.7, half.Score(live, c).Combined, 1e-12)
}

func TestScorers_UnknownSemanticFallsBackToHeuristic(t *testing.T) {
	live := map[string]float64{"a": 1}
	c := Candidate{ModelIdentity: "m", Features: map[string]float64{"a": 0.75}}

	for _, mode := range []Mode{ModeHeuristic, ModeSemantic, ModeHybrid} {
		s, err := New(mode, 0.3)
		require.NoError(t, err)
		m := s.Score(live, c)
		assert.False(t, m.SemanticKnown, mode)
		assert.InDelta(t, 0.75, m.Combined, 1e-12, mode)
		assert.Zero(t, m.Semantic, mode)
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(ModeHybrid, 1.5)
	assert.Error(t, err)
	_, err = New(ModeHybrid, -0.1)
	assert.Error(t, err)
	_, err = New("fuzzy", 0.5)
	assert.Error(t, err)

	s, err := New(ModeSemantic, 99)
	require.NoError(t, err, "alpha is ignored outside hybrid mode")
	assert.Equal(t, 0.0, s.Alpha())
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode(" Hybrid ")
	require.NoError(t, err)
	assert.Equal(t, ModeHybrid, m)

	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeHybrid, m)

	_, err = ParseMode("magic")
	assert.Error(t, err)
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name      string
		mode      Mode
		alpha     float64
		available bool
		want      Decision
	}{
		{"hybrid with semantics", ModeHybrid, 0.3, true, Decision{Mode: ModeHybrid, Alpha: 0.3}},
		{"hybrid without semantics", ModeHybrid, 0.3, false, Decision{Mode: ModeHeuristic, Alpha: 1, Forced: true, Reason: "embedding service failed"}},
		{"semantic without semantics", ModeSemantic, 0.3, false, Decision{Mode: ModeHeuristic, Alpha: 1, Forced: true, Reason: "embedding service failed"}},
		{"heuristic never forced", ModeHeuristic, 0.3, false, Decision{Mode: ModeHeuristic, Alpha: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, got, err := Decide(tt.mode, tt.alpha, tt.available, "embedding service failed")
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("decision mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRank_TieBreaks(t *testing.T) {
	in := []Match{
		{ModelIdentity: "zeta", Combined: 0.8, Semantic: 0.5},
		{ModelIdentity: "alpha", Combined: 0.8, Semantic: 0.5},
		{ModelIdentity: "beta", Combined: 0.8, Semantic: 0.9},
		{ModelIdentity: "top", Combined: 0.95},
		{ModelIdentity: "low", Combined: 0.1, Semantic: 1},
	}
	got := Rank(in)

	want := []Match{
		{ModelIdentity: "top", Combined: 0.95, Rank: 1},
		{ModelIdentity: "beta", Combined: 0.8, Semantic: 0.9, Rank: 2},
		{ModelIdentity: "alpha", Combined: 0.8, Semantic: 0.5, Rank: 3},
		{ModelIdentity: "zeta", Combined: 0.8, Semantic: 0.5, Rank: 4},
		{ModelIdentity: "low", Combined: 0.1, Semantic: 1, Rank: 5},
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("ranking mismatch (-want +got):\n%s", diff)
	}
	assert.Zero(t, in[0].Rank, "input must not be modified")
}

func TestDecision_String(t *testing.T) {
	assert.Equal(t, "hybrid (alpha=0.50)", Decision{Mode: ModeHybrid, Alpha: 0.5}.String())
	assert.Contains(t, Decision{Mode: ModeHeuristic, Alpha: 1, Forced: true, Reason: "x"}.String(), "forced: x")
}
