package identify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfile_StoresAveragedFingerprint(t *testing.T) {
	s := loadTestSuite(t)
	repo := openRepo(t)
	sink := &recordingSink{}

	o := New(gptEndpoint(), repo, s, testConfig(), WithEmbedder(&fakeEmbedder{}), WithEventSink(sink))
	res, err := o.Profile(context.Background(), "gpt-4o", 3)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Successful)
	assert.Len(t, res.Runs, 3)
	assert.Equal(t, []string{"identity", "reasoning", "style"}, res.Categories)
	assert.Equal(t, 1.0, res.Features["mentions_openai"])
	assert.Equal(t, 0.0, res.Features["mentions_meta"])
	assert.Equal(t, 3, res.FeatureCounts["mentions_openai"])

	fp, err := repo.GetHeuristic(context.Background(), "gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, 3, fp.SampleCount)
	assert.Equal(t, 1.0, fp.Features["mentions_openai"])

	var categories []string
	for e, err := range repo.LoadAllEmbeddings(context.Background()) {
		require.NoError(t, err)
		categories = append(categories, e.Category)
		assert.Equal(t, 3, e.SampleCount)
	}
	assert.ElementsMatch(t, []string{"identity", "reasoning", "style"}, categories)
	require.Len(t, sink.kinds(EventProfile), 1)
}

func TestProfile_AccumulatesAcrossSessions(t *testing.T) {
	s := loadTestSuite(t)
	repo := openRepo(t)
	cfg := testConfig()

	_, err := New(gptEndpoint(), repo, s, cfg).Profile(context.Background(), "m", 2)
	require.NoError(t, err)
	_, err = New(gptEndpoint(), repo, s, cfg).Profile(context.Background(), "m", 1)
	require.NoError(t, err)

	fp, err := repo.GetHeuristic(context.Background(), "m")
	require.NoError(t, err)
	assert.Equal(t, 3, fp.SampleCount)
}

func TestProfile_DiscardsLowCoverageRuns(t *testing.T) {
	s := loadTestSuite(t)
	repo := openRepo(t)

	ep := gptEndpoint()
	ep.fail = map[string]bool{"Who created you?": true, "What is your name?": true, "Say hello.": true}

	res, err := New(ep, repo, s, testConfig()).Profile(context.Background(), "gpt-4o", 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoSuccessfulRuns)
	assert.Equal(t, 3, ExitCode(err))
	assert.Zero(t, res.Successful)
	for _, run := range res.Runs {
		assert.False(t, run.Accepted)
	}

	_, err = repo.GetHeuristic(context.Background(), "gpt-4o")
	assert.Error(t, err)
}

func TestProfile_EmbeddingFailureKeepsHeuristics(t *testing.T) {
	s := loadTestSuite(t)
	repo := openRepo(t)

	emb := &fakeEmbedder{err: assert.AnError}
	res, err := New(gptEndpoint(), repo, s, testConfig(), WithEmbedder(emb)).Profile(context.Background(), "gpt-4o", 1)
	require.NoError(t, err)
	assert.Empty(t, res.Categories)
	assert.False(t, res.Runs[0].Embedded)

	dim, err := repo.Dimension(context.Background())
	require.NoError(t, err)
	assert.Zero(t, dim)
}

func TestProfile_RejectsBadRuns(t *testing.T) {
	s := loadTestSuite(t)
	_, err := New(gptEndpoint(), openRepo(t), s, testConfig()).Profile(context.Background(), "m", 0)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
