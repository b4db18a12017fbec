// Package identify drives live identification sessions and offline
// profiling runs against a model endpoint.
package identify

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/llmfinder/llmfinder/pkg/embedding"
	"github.com/llmfinder/llmfinder/pkg/endpoint"
	"github.com/llmfinder/llmfinder/pkg/features"
	"github.com/llmfinder/llmfinder/pkg/scoring"
	"github.com/llmfinder/llmfinder/pkg/storage"
	"github.com/llmfinder/llmfinder/pkg/suite"
)

// Timing records the wall time of each session phase.
type Timing struct {
	Probing    time.Duration `json:"probing"`
	Extracting time.Duration `json:"extracting"`
	Scoring    time.Duration `json:"scoring"`
	Total      time.Duration `json:"total"`
}

// LiveFingerprint is what the session measured on the endpoint.
type LiveFingerprint struct {
	Features     map[string]float64 `json:"features"`
	Undetermined []string           `json:"undetermined,omitempty"`
	Embeddings   embedding.Set      `json:"-"`
}

// Result is the outcome of one identification session. Matches is empty
// unless State is StateRanked.
type Result struct {
	SessionID        string           `json:"session_id"`
	Target           string           `json:"target,omitempty"`
	State            State            `json:"state"`
	Matches          []scoring.Match  `json:"matches"`
	Coverage         float64          `json:"coverage"`
	Answered         int              `json:"answered"`
	Total            int              `json:"total"`
	Failures         []Failure        `json:"failures,omitempty"`
	Decision         scoring.Decision `json:"decision"`
	SuiteFingerprint string           `json:"suite_fingerprint"`
	Timing           Timing           `json:"timing"`
	Live             LiveFingerprint  `json:"live"`
	Transitions      []Transition     `json:"transitions"`
}

// Orchestrator runs identification sessions. It holds no mutable state
// between sessions and is safe for concurrent use.
type Orchestrator struct {
	endpoint  endpoint.Client
	embedder  embedding.Client
	repo      storage.Repository
	suite     *suite.Suite
	cfg       Config
	extractor *features.Extractor
	logger    zerolog.Logger
	sink      EventSink
	target    string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithEmbedder enables semantic comparison through c. A nil client keeps
// the session heuristic-only.
func WithEmbedder(c embedding.Client) Option {
	return func(o *Orchestrator) { o.embedder = c }
}

// WithLogger sets the orchestrator logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithEventSink records session events to sink.
func WithEventSink(sink EventSink) Option {
	return func(o *Orchestrator) {
		if sink != nil {
			o.sink = sink
		}
	}
}

// WithTarget labels results with a printable endpoint description.
func WithTarget(target string) Option {
	return func(o *Orchestrator) { o.target = target }
}

// New creates an Orchestrator. The configuration is validated by Identify
// so that a rejected configuration still yields a FAILED result.
func New(ep endpoint.Client, repo storage.Repository, s *suite.Suite, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		endpoint:  ep,
		repo:      repo,
		suite:     s,
		cfg:       cfg,
		extractor: features.NewExtractor(),
		logger:    log.With().Str("component", "identify").Logger(),
		sink:      nopSink{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) checkInputs() error {
	if err := o.cfg.Validate(); err != nil {
		return err
	}
	if o.endpoint == nil {
		return invalidConfig("no model endpoint configured")
	}
	if o.repo == nil {
		return invalidConfig("no fingerprint repository configured")
	}
	if o.suite == nil || len(o.suite.Prompts) == 0 {
		return invalidConfig("prompt suite is empty")
	}
	return o.suite.Validate()
}

// Identify probes the endpoint with the suite and ranks every stored
// fingerprint against the live one. On failure the returned Result carries
// StateFailed, the reason is returned as error and no matches are set.
func (o *Orchestrator) Identify(ctx context.Context) (*Result, error) {
	start := time.Now()
	res := &Result{
		SessionID: uuid.NewString(),
		Target:    o.target,
		State:     StateInit,
	}
	sess := newSession(res.SessionID, o.sink)
	logger := o.logger.With().Str("session", res.SessionID).Logger()

	fail := func(err error) (*Result, error) {
		sess.advance(StateFailed)
		res.State = sess.current()
		res.Matches = nil
		res.Timing.Total = time.Since(start)
		res.Transitions = sess.history()
		logger.Error().Err(err).Str("state", string(res.State)).Msg("Identification failed")
		return res, err
	}

	if err := o.checkInputs(); err != nil {
		return fail(err)
	}
	res.SuiteFingerprint = o.suite.Fingerprint()
	res.Total = len(o.suite.Prompts)

	sess.advance(StateProbing)
	phase := time.Now()
	probe := o.probe(ctx, res.SessionID, 0)
	res.Timing.Probing = time.Since(phase)
	res.Failures = probe.failures
	res.Answered = len(probe.responses)
	res.Coverage = probe.coverage()

	if err := ctx.Err(); err != nil {
		return fail(fmt.Errorf("identification canceled: %w", err))
	}
	logger.Info().
		Int("answered", res.Answered).
		Int("total", res.Total).
		Float64("coverage", res.Coverage).
		Msg("Probing finished")
	if res.Coverage < o.cfg.MinCoverage {
		return fail(&CoverageError{Coverage: res.Coverage, Threshold: o.cfg.MinCoverage, Failures: probe.failures})
	}

	sess.advance(StateExtracting)
	phase = time.Now()
	extraction, err := o.extractor.Extract(o.suite.Prompts, probe.responses)
	if err != nil {
		return fail(err)
	}
	res.Live = LiveFingerprint{Features: extraction.Features, Undetermined: extraction.Undetermined}

	semanticReason := ""
	switch {
	case o.cfg.Mode == scoring.ModeHeuristic:
	case !o.cfg.EmbeddingsEnabled:
		semanticReason = "embeddings disabled"
	case o.embedder == nil:
		semanticReason = "no embedding service configured"
	default:
		set, err := o.embedCategories(ctx, res.SessionID, 0, probe.responses)
		if err != nil {
			semanticReason = "embedding service failed: " + err.Error()
			logger.Warn().Err(err).Msg("Embedding failed, falling back to heuristic-only scoring")
		} else {
			res.Live.Embeddings = set
		}
	}
	res.Timing.Extracting = time.Since(phase)

	sess.advance(StateScoring)
	phase = time.Now()
	matches, decision, err := o.score(ctx, res.Live, semanticReason)
	if err != nil {
		return fail(err)
	}
	res.Timing.Scoring = time.Since(phase)
	res.Decision = decision
	if decision.Forced {
		logger.Warn().Str("reason", decision.Reason).Msg("Heuristic weight forced to 1")
	}

	sess.advance(StateRanked)
	res.State = sess.current()
	res.Matches = matches
	res.Timing.Total = time.Since(start)
	res.Transitions = sess.history()

	ev := Event{Timestamp: time.Now(), SessionID: res.SessionID, Kind: EventResult, State: res.State, OK: true, DurationMS: res.Timing.Total.Milliseconds()}
	if len(matches) > 0 {
		ev.Model = matches[0].ModelIdentity
		logger.Info().Str("top_match", matches[0].ModelIdentity).Float64("combined", matches[0].Combined).Msg("Identification ranked")
	} else {
		logger.Warn().Msg("Repository holds no fingerprints; nothing to rank")
	}
	_ = o.sink.Record(ev)
	return res, nil
}

// score loads every stored fingerprint and ranks it against live.
func (o *Orchestrator) score(ctx context.Context, live LiveFingerprint, semanticReason string) ([]scoring.Match, scoring.Decision, error) {
	var (
		candidates []scoring.Candidate
		index      = make(map[string]int)
	)
	for fp, err := range o.repo.LoadAllHeuristics(ctx) {
		if err != nil {
			return nil, scoring.Decision{}, err
		}
		index[fp.ModelIdentity] = len(candidates)
		candidates = append(candidates, scoring.Candidate{ModelIdentity: fp.ModelIdentity, Features: fp.Features})
	}

	semanticAvailable := semanticReason == "" && len(live.Embeddings) > 0
	if semanticAvailable {
		stored, err := embedding.Aggregate(o.repo.LoadAllEmbeddings(ctx))
		if err != nil {
			return nil, scoring.Decision{}, err
		}
		if len(stored) == 0 {
			semanticAvailable = false
			semanticReason = "repository holds no embeddings"
		}
		cmp := embedding.NewComparator(o.cfg.MinCategoryOverlap)
		for model, set := range stored {
			i, ok := index[model]
			if !ok {
				continue
			}
			sim, err := cmp.Compare(live.Embeddings, set)
			if err != nil {
				return nil, scoring.Decision{}, err
			}
			candidates[i].Semantic = sim
		}
		if semanticAvailable && !slices.ContainsFunc(candidates, func(c scoring.Candidate) bool { return c.Semantic.Known }) {
			semanticAvailable = false
			semanticReason = "no candidate shares enough embedding categories"
		}
	}
	if semanticReason == "" && o.cfg.Mode != scoring.ModeHeuristic && !semanticAvailable {
		semanticReason = "no live embeddings"
	}

	scorer, decision, err := scoring.Decide(o.cfg.Mode, o.cfg.Alpha, semanticAvailable, semanticReason)
	if err != nil {
		return nil, scoring.Decision{}, invalidConfig("%v", err)
	}
	return scoring.ScoreAll(scorer, live.Features, candidates), decision, nil
}
