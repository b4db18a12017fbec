// Package embedding compares per-category embedding sets and talks to the
// external embedding service.
package embedding

import (
	"fmt"
	"iter"
	"maps"
	"math"
	"slices"

	"github.com/llmfinder/llmfinder/pkg/storage"
)

// Set maps a prompt category to the embedding of a model's answers in that
// category.
type Set map[string][]float64

// Categories returns the categories of s in lexical order.
func (s Set) Categories() []string {
	return slices.Sorted(maps.Keys(s))
}

// DimensionError reports vectors of different length. It matches
// storage.ErrDimensionMismatch so callers treat it as an integrity failure.
type DimensionError struct {
	Category string
	Left     int
	Right    int
}

func (e *DimensionError) Error() string {
	if e.Category == "" {
		return fmt.Sprintf("embedding dimension mismatch: %d vs %d", e.Left, e.Right)
	}
	return fmt.Sprintf("embedding dimension mismatch in category %q: %d vs %d", e.Category, e.Left, e.Right)
}

func (e *DimensionError) Unwrap() error {
	return storage.ErrDimensionMismatch
}

// Cosine returns the cosine similarity of a and b in [-1,1]. Zero-magnitude
// vectors have similarity 0.
func Cosine(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, &DimensionError{Left: len(a), Right: len(b)}
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	c := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return math.Max(-1, math.Min(1, c)), nil
}

// Similarity is the aggregated semantic similarity of one candidate.
type Similarity struct {
	// Value is the mean cosine over shared categories, in [-1,1].
	Value float64
	// Overlap is the number of shared categories.
	Overlap int
	// Known is false when Overlap is below the comparator threshold.
	Known bool
	// PerCategory holds the cosine of every shared category.
	PerCategory map[string]float64
}

// Normalized maps Value from [-1,1] to [0,1]. Unknown similarities map to 0.
func (s Similarity) Normalized() float64 {
	if !s.Known {
		return 0
	}
	return math.Max(0, math.Min(1, (s.Value+1)/2))
}

// Comparator aggregates per-category cosine similarities.
type Comparator struct {
	// MinOverlap is the minimum number of shared categories for a candidate
	// to be scored. Values below 1 are treated as 1.
	MinOverlap int
}

// NewComparator returns a Comparator with the given overlap threshold.
func NewComparator(minOverlap int) Comparator {
	return Comparator{MinOverlap: minOverlap}
}

// Compare returns the mean cosine similarity over the categories present in
// both sets. Categories missing from either side are skipped.
func (c Comparator) Compare(live, candidate Set) (Similarity, error) {
	sim := Similarity{PerCategory: make(map[string]float64)}
	var sum float64
	for _, cat := range live.Categories() {
		cv, ok := candidate[cat]
		if !ok {
			continue
		}
		cos, err := Cosine(live[cat], cv)
		if err != nil {
			return Similarity{}, &DimensionError{Category: cat, Left: len(live[cat]), Right: len(cv)}
		}
		sim.PerCategory[cat] = cos
		sum += cos
		sim.Overlap++
	}

	if sim.Overlap < max(c.MinOverlap, 1) {
		return sim, nil
	}
	sim.Known = true
	sim.Value = sum / float64(sim.Overlap)
	return sim, nil
}

// Mean returns the element-wise mean of vectors, all of which must share
// one dimensionality.
func Mean(vectors [][]float64) ([]float64, error) {
	if len(vectors) == 0 {
		return nil, nil
	}
	out := make([]float64, len(vectors[0]))
	for _, v := range vectors {
		if len(v) != len(out) {
			return nil, &DimensionError{Left: len(out), Right: len(v)}
		}
		for i, x := range v {
			out[i] += x
		}
	}
	for i := range out {
		out[i] /= float64(len(vectors))
	}
	return out, nil
}

// Aggregate groups stored embedding rows into one Set per model. Multiple
// rows for the same category (history retention) are averaged, weighted by
// their sample counts.
func Aggregate(rows iter.Seq2[storage.EmbeddingFingerprint, error]) (map[string]Set, error) {
	type acc struct {
		sum    []float64
		weight float64
	}
	groups := make(map[string]map[string]*acc)

	for row, err := range rows {
		if err != nil {
			return nil, err
		}
		byCat, ok := groups[row.ModelIdentity]
		if !ok {
			byCat = make(map[string]*acc)
			groups[row.ModelIdentity] = byCat
		}
		w := float64(max(row.SampleCount, 1))
		a, ok := byCat[row.Category]
		if !ok {
			a = &acc{sum: make([]float64, len(row.Vector))}
			byCat[row.Category] = a
		}
		if len(row.Vector) != len(a.sum) {
			return nil, &DimensionError{Category: row.Category, Left: len(a.sum), Right: len(row.Vector)}
		}
		for i, x := range row.Vector {
			a.sum[i] += x * w
		}
		a.weight += w
	}

	out := make(map[string]Set, len(groups))
	for model, byCat := range groups {
		set := make(Set, len(byCat))
		for cat, a := range byCat {
			vec := make([]float64, len(a.sum))
			for i := range vec {
				vec[i] = a.sum[i] / a.weight
			}
			set[cat] = vec
		}
		out[model] = set
	}
	return out, nil
}
