package embedding

import (
	"errors"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmfinder/llmfinder/pkg/storage"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{"identical", []float64{1, 2, 3}, []float64{1, 2, 3}, 1},
		{"scaled", []float64{1, 2, 3}, []float64{2, 4, 6}, 1},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0},
		{"opposite", []float64{1, 0}, []float64{-1, 0}, -1},
		{"zero vector", []float64{0, 0}, []float64{1, 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Cosine(tt.a, tt.b)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestCosine_DimensionMismatch(t *testing.T) {
	_, err := Cosine([]float64{1, 2}, []float64{1, 2, 3})
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrDimensionMismatch))
	assert.True(t, storage.IsFatal(err))
}

func TestComparator_Compare(t *testing.T) {
	live := Set{
		"identity":  {1, 0},
		"reasoning": {0, 1},
		"coding":    {1, 1},
	}
	candidate := Set{
		"identity":  {1, 0},
		"reasoning": {0, -1},
		"safety":    {5, 5},
	}

	sim, err := NewComparator(2).Compare(live, candidate)
	require.NoError(t, err)
	assert.True(t, sim.Known)
	assert.Equal(t, 2, sim.Overlap)
	assert.InDelta(t, 0.0, sim.Value, 1e-12)
	assert.InDelta(t, 0.5, sim.Normalized(), 1e-12)
	assert.Len(t, sim.PerCategory, 2)
}

func TestComparator_BelowOverlapIsUnknown(t *testing.T) {
	live := Set{"identity": {1, 0}, "reasoning": {0, 1}}
	candidate := Set{"identity": {1, 0}}

	sim, err := NewComparator(2).Compare(live, candidate)
	require.NoError(t, err)
	assert.False(t, sim.Known)
	assert.Equal(t, 1, sim.Overlap)
	assert.Zero(t, sim.Normalized())

	sim, err = NewComparator(0).Compare(live, Set{"other": {1, 1}})
	require.NoError(t, err)
	assert.False(t, sim.Known, "no shared category can never be known")
}

func TestComparator_SelfSimilarity(t *testing.T) {
	s := Set{"a": {0.3, -0.2, 0.9}, "b": {1, 2, 3}}
	sim, err := NewComparator(1).Compare(s, s)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sim.Normalized(), 1e-12)
}

func TestComparator_DimensionMismatchNamesCategory(t *testing.T) {
	_, err := NewComparator(1).Compare(Set{"a": {1, 2}}, Set{"a": {1}})
	var dimErr *DimensionError
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, "a", dimErr.Category)
}

func TestMean(t *testing.T) {
	got, err := Mean([][]float64{{1, 2}, {3, 4}})
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 3}, got)

	_, err = Mean([][]float64{{1, 2}, {3}})
	assert.ErrorIs(t, err, storage.ErrDimensionMismatch)

	got, err = Mean(nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func rows(items ...storage.EmbeddingFingerprint) iter.Seq2[storage.EmbeddingFingerprint, error] {
	return func(yield func(storage.EmbeddingFingerprint, error) bool) {
		for _, it := range items {
			if !yield(it, nil) {
				return
			}
		}
	}
}

func TestAggregate_WeightedByHistoryRows(t *testing.T) {
	got, err := Aggregate(rows(
		storage.EmbeddingFingerprint{ModelIdentity: "a", Category: "c", Vector: []float64{1, 0}, SampleCount: 3},
		storage.EmbeddingFingerprint{ModelIdentity: "a", Category: "c", RunIndex: 1, Vector: []float64{0, 1}, SampleCount: 1},
		storage.EmbeddingFingerprint{ModelIdentity: "a", Category: "d", Vector: []float64{2, 2}},
		storage.EmbeddingFingerprint{ModelIdentity: "b", Category: "c", Vector: []float64{5, 5}, SampleCount: 2},
	))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.InDeltaSlice(t, []float64{0.75, 0.25}, got["a"]["c"], 1e-12)
	assert.Equal(t, []float64{2, 2}, got["a"]["d"])
	assert.Equal(t, []float64{5, 5}, got["b"]["c"])
}

func TestAggregate_PropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	seq := func(yield func(storage.EmbeddingFingerprint, error) bool) {
		yield(storage.EmbeddingFingerprint{}, boom)
	}
	_, err := Aggregate(seq)
	assert.ErrorIs(t, err, boom)

	_, err = Aggregate(rows(
		storage.EmbeddingFingerprint{ModelIdentity: "a", Category: "c", Vector: []float64{1, 0}},
		storage.EmbeddingFingerprint{ModelIdentity: "a", Category: "c", RunIndex: 1, Vector: []float64{1}},
	))
	assert.ErrorIs(t, err, storage.ErrDimensionMismatch)
}
