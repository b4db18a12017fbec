package identify

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/llmfinder/llmfinder/pkg/features"
	"github.com/llmfinder/llmfinder/pkg/storage"
)

// RunSummary describes one profiling run.
type RunSummary struct {
	Index    int       `json:"index"`
	Coverage float64   `json:"coverage"`
	Accepted bool      `json:"accepted"`
	Embedded bool      `json:"embedded"`
	Failures []Failure `json:"failures,omitempty"`
}

// ProfileResult is the outcome of profiling a known model.
type ProfileResult struct {
	SessionID     string             `json:"session_id"`
	ModelIdentity string             `json:"model_identity"`
	Runs          []RunSummary       `json:"runs"`
	Successful    int                `json:"successful_runs"`
	Features      map[string]float64 `json:"features"`
	FeatureCounts map[string]int     `json:"feature_counts"`
	Categories    []string           `json:"embedded_categories,omitempty"`
	Duration      time.Duration      `json:"duration"`
}

// Profile runs the suite against a model of known identity runs times and
// merges the averaged fingerprint into the repository. Runs below the
// coverage threshold are discarded. The stored sample count grows by the
// number of accepted runs.
func (o *Orchestrator) Profile(ctx context.Context, model string, runs int) (*ProfileResult, error) {
	start := time.Now()
	if runs <= 0 {
		return nil, invalidConfig("runs must be positive, got %d", runs)
	}
	if err := o.checkInputs(); err != nil {
		return nil, err
	}

	res := &ProfileResult{SessionID: uuid.NewString(), ModelIdentity: model}
	logger := o.logger.With().Str("session", res.SessionID).Str("model", model).Logger()
	embed := o.cfg.EmbeddingsEnabled && o.embedder != nil

	var (
		vectors    []features.Vector
		embeddings []storage.EmbeddingFingerprint
		categories = make(map[string]struct{})
	)
	for run := 0; run < runs; run++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("profiling canceled: %w", err)
		}
		probe := o.probe(ctx, res.SessionID, run)
		summary := RunSummary{Index: run, Coverage: probe.coverage(), Failures: probe.failures}
		if summary.Coverage < o.cfg.MinCoverage {
			logger.Warn().Int("run", run).Float64("coverage", summary.Coverage).Msg("Run discarded: coverage below minimum")
			res.Runs = append(res.Runs, summary)
			continue
		}

		extraction, err := o.extractor.Extract(o.suite.Prompts, probe.responses)
		if err != nil {
			return nil, err
		}
		summary.Accepted = true
		vectors = append(vectors, extraction.Features)

		if embed {
			set, err := o.embedCategories(ctx, res.SessionID, run, probe.responses)
			if err != nil {
				logger.Warn().Err(err).Int("run", run).Msg("Embedding failed; run stored without embeddings")
			} else {
				texts := o.categoryTexts(probe.responses)
				for _, cat := range set.Categories() {
					embeddings = append(embeddings, storage.EmbeddingFingerprint{
						ModelIdentity: model,
						Category:      cat,
						RunIndex:      run,
						Vector:        set[cat],
						SourceText:    texts[cat],
						SampleCount:   1,
					})
					categories[cat] = struct{}{}
				}
				summary.Embedded = true
			}
		}
		res.Runs = append(res.Runs, summary)
		logger.Info().Int("run", run).Float64("coverage", summary.Coverage).Int("features", len(extraction.Features)).Msg("Profiling run accepted")
	}

	res.Successful = len(vectors)
	if res.Successful == 0 {
		return res, fmt.Errorf("%w: %d run(s) below %.0f%% coverage", ErrNoSuccessfulRuns, runs, o.cfg.MinCoverage*100)
	}

	avg, counts := features.Average(vectors)
	res.Features = avg
	res.FeatureCounts = counts
	for cat := range categories {
		res.Categories = append(res.Categories, cat)
	}
	slices.Sort(res.Categories)

	err := o.repo.Upsert(ctx, storage.Fingerprint{
		ModelIdentity: model,
		Features:      avg,
		FeatureCounts: counts,
		Runs:          res.Successful,
		Embeddings:    embeddings,
	})
	if err != nil {
		return res, err
	}
	res.Duration = time.Since(start)
	_ = o.sink.Record(Event{
		Timestamp:  time.Now(),
		SessionID:  res.SessionID,
		Kind:       EventProfile,
		OK:         true,
		Model:      model,
		DurationMS: res.Duration.Milliseconds(),
	})
	logger.Info().Int("successful_runs", res.Successful).Int("embeddings", len(embeddings)).Msg("Fingerprint stored")
	return res, nil
}
