package scoring

import (
	"fmt"
	"math"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func featureGen() gopter.Gen {
	return gen.MapOf(gen.Identifier(), gen.Float64Range(0, 1))
}

func TestScoringProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("self similarity is perfect", prop.ForAll(
		func(x map[string]float64) bool {
			if len(x) == 0 {
				return true
			}
			sim, rmse, common := HeuristicSimilarity(x, x)
			return sim == 1 && rmse == 0 && common == len(x)
		},
		featureGen(),
	))

	properties.Property("heuristic similarity stays in [0,1]", prop.ForAll(
		func(a, b map[string]float64) bool {
			sim, _, _ := HeuristicSimilarity(a, b)
			return sim >= 0 && sim <= 1
		},
		featureGen(), featureGen(),
	))

	properties.Property("alpha=1 ignores semantics", prop.ForAll(
		func(live, cand map[string]float64, sem float64) bool {
			s := HybridScorer{Weight: 1}
			c := Candidate{ModelIdentity: "m", Features: cand, Semantic: known(sem)}
			h, _, _ := HeuristicSimilarity(live, cand)
			return math.Abs(s.Score(live, c).Combined-h) < 1e-12
		},
		featureGen(), featureGen(), gen.Float64Range(-1, 1),
	))

	properties.Property("alpha=0 equals semantic similarity", prop.ForAll(
		func(live, cand map[string]float64, sem float64) bool {
			s := HybridScorer{Weight: 0}
			c := Candidate{ModelIdentity: "m", Features: cand, Semantic: known(sem)}
			return math.Abs(s.Score(live, c).Combined-known(sem).Normalized()) < 1e-12
		},
		featureGen(), featureGen(), gen.Float64Range(-1, 1),
	))

	properties.Property("combined is monotone in semantic similarity", prop.ForAll(
		func(live, cand map[string]float64, s1, s2, alpha float64) bool {
			lo, hi := min(s1, s2), max(s1, s2)
			s := HybridScorer{Weight: alpha}
			a := s.Score(live, Candidate{Features: cand, Semantic: known(lo)})
			b := s.Score(live, Candidate{Features: cand, Semantic: known(hi)})
			return a.Combined <= b.Combined+1e-12
		},
		featureGen(), featureGen(), gen.Float64Range(-1, 1), gen.Float64Range(-1, 1), gen.Float64Range(0, 1),
	))

	properties.Property("ranking ignores input order", prop.ForAll(
		func(scores []int, sems []int) bool {
			var matches []Match
			for i, sc := range scores {
				sem := 0
				if i < len(sems) {
					sem = sems[i]
				}
				matches = append(matches, Match{
					ModelIdentity: fmt.Sprintf("m%02d", i),
					Combined:      float64(sc) / 3,
					Semantic:      float64(sem) / 2,
				})
			}
			reversed := slices.Clone(matches)
			slices.Reverse(reversed)
			return cmp.Equal(Rank(matches), Rank(reversed))
		},
		gen.SliceOf(gen.IntRange(0, 3)), gen.SliceOf(gen.IntRange(0, 2)),
	))

	properties.TestingRun(t)
}
