package identify

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/llmfinder/llmfinder/pkg/embedding"
	"github.com/llmfinder/llmfinder/pkg/endpoint"
	"github.com/llmfinder/llmfinder/pkg/features"
)

// probeResult collects the outcome of sending the suite once.
type probeResult struct {
	total     int
	responses []features.ResponseRecord
	failures  []Failure
}

func (p probeResult) coverage() float64 {
	if p.total == 0 {
		return 0
	}
	return float64(len(p.responses)) / float64(p.total)
}

// probe sends every suite prompt to the endpoint with bounded concurrency.
// Each prompt runs under its own timeout so a hung request cannot stall the
// session. Results are returned in suite order.
func (o *Orchestrator) probe(ctx context.Context, sessionID string, run int) probeResult {
	prompts := o.suite.Prompts
	texts := make([]string, len(prompts))
	ok := make([]bool, len(prompts))
	failures := make([]*Failure, len(prompts))

	var g errgroup.Group
	g.SetLimit(o.cfg.Concurrency)
	for i, p := range prompts {
		g.Go(func() error {
			start := time.Now()
			pctx, cancel := context.WithTimeout(ctx, o.cfg.PromptTimeout)
			defer cancel()

			var text string
			attempts, err := endpoint.Do(pctx, o.cfg.Retry, func(ctx context.Context) error {
				out, err := o.endpoint.Complete(ctx, p.Text)
				if err != nil {
					return err
				}
				text = out
				return nil
			})

			ev := Event{
				Timestamp:  time.Now(),
				SessionID:  sessionID,
				Kind:       EventProbe,
				PromptID:   p.ID,
				Category:   p.Category,
				RunIndex:   run,
				Attempts:   attempts,
				OK:         err == nil,
				DurationMS: time.Since(start).Milliseconds(),
			}
			if err != nil {
				reason := failureReason(ctx, pctx, err)
				failures[i] = &Failure{PromptID: p.ID, Category: p.Category, Attempts: attempts, Reason: reason}
				ev.Error = reason
				o.logger.Debug().Str("prompt_id", p.ID).Int("attempts", attempts).Str("reason", reason).Msg("Prompt failed")
			} else {
				texts[i] = text
				ok[i] = true
			}
			_ = o.sink.Record(ev)
			return nil
		})
	}
	_ = g.Wait()

	res := probeResult{total: len(prompts)}
	for i, p := range prompts {
		if ok[i] {
			res.responses = append(res.responses, features.ResponseRecord{
				ModelIdentity: o.target,
				PromptID:      p.ID,
				RawText:       texts[i],
				RunIndex:      run,
			})
			continue
		}
		res.failures = append(res.failures, *failures[i])
	}
	return res
}

func failureReason(parent, pctx context.Context, err error) string {
	switch {
	case parent.Err() != nil:
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(pctx.Err(), context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, endpoint.ErrEmptyResponse):
		return "empty response"
	default:
		return err.Error()
	}
}

// categoryTexts concatenates the responses of each category in suite order.
func (o *Orchestrator) categoryTexts(responses []features.ResponseRecord) map[string]string {
	byPrompt := make(map[string]string, len(responses))
	for _, r := range responses {
		byPrompt[r.PromptID] = r.RawText
	}
	parts := make(map[string][]string)
	for _, p := range o.suite.Prompts {
		if text, ok := byPrompt[p.ID]; ok {
			parts[p.Category] = append(parts[p.Category], text)
		}
	}
	out := make(map[string]string, len(parts))
	for cat, texts := range parts {
		out[cat] = strings.Join(texts, "\n\n")
	}
	return out
}

// embedCategories embeds every successful response and averages the
// vectors per category. Any failure aborts so that the caller can fall back
// to heuristic-only scoring.
func (o *Orchestrator) embedCategories(ctx context.Context, sessionID string, run int, responses []features.ResponseRecord) (embedding.Set, error) {
	category := make(map[string]string, len(o.suite.Prompts))
	for _, p := range o.suite.Prompts {
		category[p.ID] = p.Category
	}

	vectors := make([][]float64, len(responses))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Concurrency)
	for i, r := range responses {
		g.Go(func() error {
			start := time.Now()
			vec, err := o.embedder.Embed(gctx, r.RawText)
			ev := Event{
				Timestamp:  time.Now(),
				SessionID:  sessionID,
				Kind:       EventEmbed,
				PromptID:   r.PromptID,
				Category:   category[r.PromptID],
				RunIndex:   run,
				OK:         err == nil,
				DurationMS: time.Since(start).Milliseconds(),
			}
			if err != nil {
				ev.Error = err.Error()
			}
			_ = o.sink.Record(ev)
			if err != nil {
				return fmt.Errorf("embed response to %s: %w", r.PromptID, err)
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	grouped := make(map[string][][]float64)
	for i, r := range responses {
		cat, ok := category[r.PromptID]
		if !ok {
			continue
		}
		grouped[cat] = append(grouped[cat], vectors[i])
	}

	set := make(embedding.Set, len(grouped))
	dim := 0
	for _, cat := range slices.Sorted(maps.Keys(grouped)) {
		mean, err := embedding.Mean(grouped[cat])
		if err != nil {
			return nil, err
		}
		if dim == 0 {
			dim = len(mean)
		} else if len(mean) != dim {
			return nil, &embedding.DimensionError{Category: cat, Left: dim, Right: len(mean)}
		}
		set[cat] = mean
	}
	return set, nil
}
