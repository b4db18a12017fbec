package pentest

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/llmfinder/llmfinder/pkg/endpoint"
)

// Result is the outcome of one test case.
type Result struct {
	Category           string        `json:"category"`
	TestName           string        `json:"test_name"`
	Prompt             string        `json:"prompt"`
	Response           string        `json:"response,omitempty"`
	Status             Status        `json:"status"`
	EvaluationStrategy Strategy      `json:"evaluation_strategy"`
	SuccessKeyword     string        `json:"success_keyword,omitempty"`
	FailureKeyword     string        `json:"failure_keyword,omitempty"`
	Attempts           int           `json:"attempts"`
	Error              string        `json:"error,omitempty"`
	Duration           time.Duration `json:"duration"`
}

// Summary counts results by status.
type Summary struct {
	Total    int            `json:"total"`
	ByStatus map[Status]int `json:"by_status"`
}

// Report is the outcome of a full pentest run.
type Report struct {
	Suite      string              `json:"suite"`
	Target     string              `json:"target,omitempty"`
	Categories []string            `json:"categories"`
	Results    map[string][]Result `json:"results"`
	Summary    Summary             `json:"summary"`
	Duration   time.Duration       `json:"duration"`
}

// Runner sends every case of a suite to an endpoint.
type Runner struct {
	Endpoint      endpoint.Client
	Suite         *Suite
	Retry         endpoint.RetryPolicy
	PromptTimeout time.Duration
	Concurrency   int
	Target        string
	Logger        zerolog.Logger
}

// NewRunner creates a Runner with default retry and timeout settings.
func NewRunner(ep endpoint.Client, s *Suite) *Runner {
	return &Runner{
		Endpoint:      ep,
		Suite:         s,
		Retry:         endpoint.DefaultRetryPolicy(),
		PromptTimeout: 90 * time.Second,
		Concurrency:   1,
		Logger:        log.With().Str("component", "pentest").Logger(),
	}
}

// Run executes the suite. Endpoint failures are recorded as StatusError
// results; Run only returns an error when ctx is canceled.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	type job struct {
		category string
		tc       TestCase
	}
	var jobs []job
	for _, c := range r.Suite.Categories {
		for _, tc := range c.Cases {
			jobs = append(jobs, job{category: c.Name, tc: tc})
		}
	}

	results := make([]Result, len(jobs))
	var g errgroup.Group
	g.SetLimit(max(r.Concurrency, 1))
	for i, j := range jobs {
		g.Go(func() error {
			results[i] = r.runCase(ctx, j.category, j.tc)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rep := &Report{
		Suite:   r.Suite.Name,
		Target:  r.Target,
		Results: make(map[string][]Result, len(r.Suite.Categories)),
		Summary: Summary{Total: len(results), ByStatus: make(map[Status]int)},
	}
	for _, c := range r.Suite.Categories {
		rep.Categories = append(rep.Categories, c.Name)
	}
	for _, res := range results {
		rep.Results[res.Category] = append(rep.Results[res.Category], res)
		rep.Summary.ByStatus[res.Status]++
	}
	rep.Duration = time.Since(start)
	r.Logger.Info().
		Int("total", rep.Summary.Total).
		Int("vulnerable", rep.Summary.ByStatus[StatusVulnerable]).
		Dur("duration", rep.Duration).
		Msg("Pentest suite complete")
	return rep, nil
}

func (r *Runner) runCase(ctx context.Context, category string, tc TestCase) Result {
	start := time.Now()
	res := Result{
		Category:           category,
		TestName:           tc.Name,
		Prompt:             tc.Prompt,
		EvaluationStrategy: tc.EvaluationStrategy,
		SuccessKeyword:     tc.SuccessKeyword,
		FailureKeyword:     tc.FailureKeyword,
	}

	timeout := r.PromptTimeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var text string
	attempts, err := endpoint.Do(pctx, r.Retry, func(ctx context.Context) error {
		out, err := r.Endpoint.Complete(ctx, tc.Prompt)
		if err != nil {
			return err
		}
		text = out
		return nil
	})
	res.Attempts = attempts
	res.Duration = time.Since(start)
	if err != nil {
		res.Status = StatusError
		res.Error = err.Error()
		r.Logger.Warn().Err(err).Str("category", category).Str("test", tc.Name).Msg("Pentest case failed")
		return res
	}
	res.Response = text
	res.Status = Evaluate(text, tc)
	r.Logger.Debug().Str("category", category).Str("test", tc.Name).Str("status", string(res.Status)).Msg("Pentest case evaluated")
	return res
}
