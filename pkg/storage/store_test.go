package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, retention Retention) *Store {
	t.Helper()
	s, err := Open(context.Background(), &Config{
		Path:      filepath.Join(t.TempDir(), "fp.db"),
		Retention: retention,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedModel(t *testing.T, s *Store, models ...string) {
	t.Helper()
	for _, m := range models {
		require.NoError(t, s.UpsertHeuristic(context.Background(), m, map[string]float64{"seed": 0.5}, 1))
	}
}

func collectHeuristics(t *testing.T, s *Store) []HeuristicFingerprint {
	t.Helper()
	var out []HeuristicFingerprint
	for fp, err := range s.LoadAllHeuristics(context.Background()) {
		require.NoError(t, err)
		out = append(out, fp)
	}
	return out
}

func collectEmbeddings(t *testing.T, s *Store) []EmbeddingFingerprint {
	t.Helper()
	var out []EmbeddingFingerprint
	for e, err := range s.LoadAllEmbeddings(context.Background()) {
		require.NoError(t, err)
		out = append(out, e)
	}
	return out
}

func TestOpen_CreatesSchema(t *testing.T) {
	s := openTestStore(t, "")
	require.NoError(t, s.Check(context.Background()))

	dim, err := s.Dimension(context.Background())
	require.NoError(t, err)
	assert.Zero(t, dim)
	assert.Empty(t, collectHeuristics(t, s))
}

func TestOpen_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "fp.db")

	s, err := Open(ctx, &Config{Path: path})
	require.NoError(t, err)
	require.NoError(t, s.UpsertHeuristic(ctx, "gpt-4", map[string]float64{"math_correct": 1}, 1))
	require.NoError(t, s.Close())

	s, err = Open(ctx, &Config{Path: path})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	fp, err := s.GetHeuristic(ctx, "gpt-4")
	require.NoError(t, err)
	assert.Equal(t, 1.0, fp.Features["math_correct"])
}

func TestUpsertHeuristic_RunningAverage(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, "")

	require.NoError(t, s.UpsertHeuristic(ctx, "llama3", map[string]float64{"f1": 0.8, "f2": 0.2}, 3))
	require.NoError(t, s.UpsertHeuristic(ctx, "llama3", map[string]float64{"f1": 0.8, "f2": 0.6}, 1))

	fp, err := s.GetHeuristic(ctx, "llama3")
	require.NoError(t, err)
	assert.Equal(t, 4, fp.SampleCount)
	assert.InDelta(t, 0.8, fp.Features["f1"], 1e-9)
	assert.InDelta(t, 0.3, fp.Features["f2"], 1e-9)
	assert.Equal(t, 4, fp.FeatureCounts["f1"])
}

func TestUpsertHeuristic_FirstProfileStoresAsIs(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, "")

	require.NoError(t, s.UpsertHeuristic(ctx, "mistral", map[string]float64{"f1": 0.25}, 2))
	fp, err := s.GetHeuristic(ctx, "mistral")
	require.NoError(t, err)
	assert.Equal(t, 2, fp.SampleCount)
	assert.InDelta(t, 0.25, fp.Features["f1"], 1e-9)
}

func TestUpsertHeuristic_NewFeatureOnLaterProfile(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, "")

	require.NoError(t, s.UpsertHeuristic(ctx, "m", map[string]float64{"a": 1}, 2))
	require.NoError(t, s.UpsertHeuristic(ctx, "m", map[string]float64{"b": 0.5}, 1))

	fp, err := s.GetHeuristic(ctx, "m")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, fp.Features["a"], 1e-9)
	assert.Equal(t, 2, fp.FeatureCounts["a"])
	assert.InDelta(t, 0.5, fp.Features["b"], 1e-9)
	assert.Equal(t, 1, fp.FeatureCounts["b"])
}

func TestUpsert_FeatureCountsOverrideRuns(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, "")

	require.NoError(t, s.Upsert(ctx, Fingerprint{
		ModelIdentity: "m",
		Features:      map[string]float64{"a": 1, "b": 0},
		FeatureCounts: map[string]int{"b": 1},
		Runs:          3,
	}))
	require.NoError(t, s.UpsertHeuristic(ctx, "m", map[string]float64{"a": 0, "b": 1}, 1))

	fp, err := s.GetHeuristic(ctx, "m")
	require.NoError(t, err)
	assert.InDelta(t, 0.75, fp.Features["a"], 1e-9)
	assert.InDelta(t, 0.5, fp.Features["b"], 1e-9)
}

func TestUpsert_RejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, "")

	tests := []struct {
		name string
		fp   Fingerprint
	}{
		{"empty model", Fingerprint{ModelIdentity: "", Runs: 1, Features: map[string]float64{"a": 1}}},
		{"zero runs", Fingerprint{ModelIdentity: "m", Runs: 0, Features: map[string]float64{"a": 1}}},
		{"empty fingerprint", Fingerprint{ModelIdentity: "m", Runs: 1}},
		{"score above one", Fingerprint{ModelIdentity: "m", Runs: 1, Features: map[string]float64{"a": 1.5}}},
		{"negative score", Fingerprint{ModelIdentity: "m", Runs: 1, Features: map[string]float64{"a": -0.1}}},
		{"empty vector", Fingerprint{ModelIdentity: "m", Runs: 1, Embeddings: []EmbeddingFingerprint{{Category: "c"}}}},
		{"missing category", Fingerprint{ModelIdentity: "m", Runs: 1, Embeddings: []EmbeddingFingerprint{{Vector: []float64{1}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Upsert(ctx, tt.fp)
			require.Error(t, err)
			assert.True(t, IsInvalidInput(err), "got %v", err)
		})
	}
	assert.Empty(t, collectHeuristics(t, s))
}

func TestUpsertEmbedding_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, "")
	seedModel(t, s, "m")

	require.NoError(t, s.UpsertEmbedding(ctx, "m", "identity", []float64{1, 0, 0}, "text"))
	err := s.UpsertEmbedding(ctx, "m", "safety", []float64{1, 0}, "text")
	require.Error(t, err)

	var dimErr *DimensionMismatchError
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, 3, dimErr.Expected)
	assert.Equal(t, 2, dimErr.Got)
	assert.True(t, IsFatal(err))

	dim, err := s.Dimension(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, dim)
}

func TestUpsert_AtomicOnEmbeddingFailure(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, "")
	seedModel(t, s, "other")
	require.NoError(t, s.UpsertEmbedding(ctx, "other", "identity", []float64{1, 0}, ""))

	err := s.Upsert(ctx, Fingerprint{
		ModelIdentity: "m",
		Features:      map[string]float64{"a": 1},
		Runs:          1,
		Embeddings:    []EmbeddingFingerprint{{Category: "identity", Vector: []float64{1, 2, 3}}},
	})
	require.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = s.GetHeuristic(ctx, "m")
	assert.True(t, IsNotFound(err), "heuristic part must roll back with the embedding")
}

func TestUpsertEmbedding_RoundTripExact(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, "")
	seedModel(t, s, "m")

	vec := []float64{0.1, -0.25, 1e-12, 3.141592653589793}
	require.NoError(t, s.UpsertEmbedding(ctx, "m", "reasoning", vec, "answers"))

	got := collectEmbeddings(t, s)
	require.Len(t, got, 1)
	assert.Equal(t, vec, got[0].Vector)
	assert.Equal(t, "answers", got[0].SourceText)
	assert.Equal(t, "reasoning", got[0].Category)
}

func TestUpsertEmbedding_RetentionPolicies(t *testing.T) {
	ctx := context.Background()

	t.Run("average", func(t *testing.T) {
		s := openTestStore(t, RetentionAverage)
		seedModel(t, s, "m")
		require.NoError(t, s.UpsertEmbedding(ctx, "m", "c", []float64{1, 0}, "a"))
		require.NoError(t, s.UpsertEmbedding(ctx, "m", "c", []float64{0, 1}, "b"))
		got := collectEmbeddings(t, s)
		require.Len(t, got, 1)
		assert.InDeltaSlice(t, []float64{0.5, 0.5}, got[0].Vector, 1e-12)
		assert.Equal(t, 2, got[0].SampleCount)
		assert.Equal(t, "b", got[0].SourceText)
	})

	t.Run("replace", func(t *testing.T) {
		s := openTestStore(t, RetentionReplace)
		seedModel(t, s, "m")
		require.NoError(t, s.UpsertEmbedding(ctx, "m", "c", []float64{1, 0}, "a"))
		require.NoError(t, s.UpsertEmbedding(ctx, "m", "c", []float64{0, 1}, "b"))
		got := collectEmbeddings(t, s)
		require.Len(t, got, 1)
		assert.Equal(t, []float64{0, 1}, got[0].Vector)
		assert.Equal(t, 1, got[0].SampleCount)
	})

	t.Run("history", func(t *testing.T) {
		s := openTestStore(t, RetentionHistory)
		seedModel(t, s, "m")
		require.NoError(t, s.UpsertEmbedding(ctx, "m", "c", []float64{1, 0}, "a"))
		require.NoError(t, s.UpsertEmbedding(ctx, "m", "c", []float64{0, 1}, "b"))
		got := collectEmbeddings(t, s)
		require.Len(t, got, 2)
		assert.Equal(t, 0, got[0].RunIndex)
		assert.Equal(t, 1, got[1].RunIndex)
	})
}

func TestUpsertEmbedding_RequiresHeuristic(t *testing.T) {
	s := openTestStore(t, "")
	err := s.UpsertEmbedding(context.Background(), "orphan", "c", []float64{1}, "")
	assert.True(t, IsNotFound(err), "got %v", err)
	assert.Empty(t, collectEmbeddings(t, s))
}

func TestUpsertEmbedding_DoesNotCountAsHeuristicSample(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, "")

	require.NoError(t, s.UpsertHeuristic(ctx, "m", map[string]float64{"a": 1}, 2))
	require.NoError(t, s.UpsertEmbedding(ctx, "m", "c", []float64{1}, ""))

	fp, err := s.GetHeuristic(ctx, "m")
	require.NoError(t, err)
	assert.Equal(t, 2, fp.SampleCount)
}

func TestLoadAllHeuristics_OrderedAndComplete(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, "")

	for _, m := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, s.UpsertHeuristic(ctx, m, map[string]float64{"a": 0.5, "b": 0.25}, 1))
	}

	got := collectHeuristics(t, s)
	require.Len(t, got, 3)
	assert.Equal(t, "alpha", got[0].ModelIdentity)
	assert.Equal(t, "mid", got[1].ModelIdentity)
	assert.Equal(t, "zeta", got[2].ModelIdentity)
	for _, fp := range got {
		assert.Len(t, fp.Features, 2)
	}
}

func TestLoadAllHeuristics_StopsEarly(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, "")
	for i := range 5 {
		require.NoError(t, s.UpsertHeuristic(ctx, fmt.Sprintf("m%d", i), map[string]float64{"a": 1}, 1))
	}

	n := 0
	for _, err := range s.LoadAllHeuristics(ctx) {
		require.NoError(t, err)
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)

	// The connection must have been released.
	assert.Len(t, collectHeuristics(t, s), 5)
}

func TestDeleteModel(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, "")

	require.NoError(t, s.Upsert(ctx, Fingerprint{
		ModelIdentity: "gone",
		Features:      map[string]float64{"a": 1},
		Runs:          1,
		Embeddings:    []EmbeddingFingerprint{{Category: "c", Vector: []float64{1, 2}}},
	}))
	require.NoError(t, s.UpsertHeuristic(ctx, "kept", map[string]float64{"a": 0}, 1))

	require.NoError(t, s.DeleteModel(ctx, "gone"))
	_, err := s.GetHeuristic(ctx, "gone")
	assert.True(t, IsNotFound(err))
	assert.Empty(t, collectEmbeddings(t, s))
	assert.Len(t, collectHeuristics(t, s), 1)

	err = s.DeleteModel(ctx, "gone")
	require.Error(t, err)
	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "gone", nf.ResourceID)
}

func TestListModels_Paginates(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, "")
	for _, m := range []string{"a", "b", "c"} {
		require.NoError(t, s.UpsertHeuristic(ctx, m, map[string]float64{"x": 1, "y": 0}, 1))
	}
	require.NoError(t, s.UpsertEmbedding(ctx, "b", "c1", []float64{1}, ""))

	page, err := s.ListModels(ctx, ListOptions{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Models, 2)
	assert.Equal(t, "a", page.Models[0].ModelIdentity)
	assert.Equal(t, 2, page.Models[0].FeatureCount)
	assert.Equal(t, 1, page.Models[1].EmbeddingCount)
	require.NotEmpty(t, page.NextCursor)

	page, err = s.ListModels(ctx, ListOptions{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, page.Models, 1)
	assert.Equal(t, "c", page.Models[0].ModelIdentity)
	assert.Empty(t, page.NextCursor)

	_, err = s.ListModels(ctx, ListOptions{Cursor: "%%%"})
	assert.True(t, IsInvalidInput(err))
}

func TestConcurrentUpsertsSameModel(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, "")

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.UpsertHeuristic(ctx, "shared", map[string]float64{"a": 0.5}, 1)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	fp, err := s.GetHeuristic(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, writers, fp.SampleCount)
	assert.InDelta(t, 0.5, fp.Features["a"], 1e-9)
}

// Two handles on one sqlite file stand in for two processes: neither shares
// the other's in-process mutex, so only the immediate transactions order
// their writes.
func TestConcurrentUpsertsAcrossHandles(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "fp.db")
	first, err := Open(ctx, &Config{Path: path})
	require.NoError(t, err)
	defer func() { _ = first.Close() }()
	second, err := Open(ctx, &Config{Path: path})
	require.NoError(t, err)
	defer func() { _ = second.Close() }()

	const perHandle = 4
	var wg sync.WaitGroup
	errs := make(chan error, 2*perHandle)
	for range perHandle {
		wg.Add(2)
		go func() {
			defer wg.Done()
			errs <- first.UpsertHeuristic(ctx, "shared", map[string]float64{"a": 0.2}, 1)
		}()
		go func() {
			defer wg.Done()
			errs <- second.UpsertHeuristic(ctx, "shared", map[string]float64{"a": 0.8}, 1)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	fp, err := first.GetHeuristic(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, 2*perHandle, fp.SampleCount)
	assert.InDelta(t, 0.5, fp.Features["a"], 1e-9)
}

func TestClosedStore(t *testing.T) {
	s := openTestStore(t, "")
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	err := s.UpsertHeuristic(context.Background(), "m", nil, 1)
	assert.ErrorIs(t, err, ErrClosed)
	for _, err := range s.LoadAllEmbeddings(context.Background()) {
		assert.ErrorIs(t, err, ErrClosed)
	}
}

func TestNewRepository_UsesFactory(t *testing.T) {
	orig := DefaultFactory
	t.Cleanup(func() { DefaultFactory = orig })

	var seen *Config
	DefaultFactory = func(_ context.Context, cfg *Config) (Repository, error) {
		seen = cfg
		return nil, errors.New("boom")
	}
	_, err := NewRepository(context.Background(), &Config{WorkspaceRoot: t.TempDir()})
	require.Error(t, err)
	require.NotNil(t, seen)
	assert.Equal(t, DriverSQLite, seen.Driver)
	assert.Equal(t, RetentionAverage, seen.Retention)

	_, err = NewRepository(context.Background(), &Config{Driver: "oracle"})
	assert.ErrorIs(t, err, ErrUnsupportedDriver)
}
