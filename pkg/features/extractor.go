// Copyright 2025 LLMFinder Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package features turns a model's raw probe responses into a bounded
// heuristic feature vector. Every feature score lies in [0,1]; features no
// response could determine are reported separately and left out of the
// vector so they never count as a mismatch downstream.
package features

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/llmfinder/llmfinder/pkg/suite"
)

// ResponseRecord is one successful probe response.
type ResponseRecord struct {
	ModelIdentity string
	PromptID      string
	RawText       string
	RunIndex      int
}

// Vector maps feature names to normalized scores in [0,1].
type Vector map[string]float64

// Extraction is the output of a feature extraction pass.
type Extraction struct {
	Features      Vector         // determined features only
	Undetermined  []string       // features referenced by the suite with no contributing response
	Contributions map[string]int // number of responses that determined each feature
}

// Extractor applies prompt matchers to responses.
type Extractor struct {
	engine *MatcherEngine
}

// NewExtractor creates an Extractor backed by the built-in matcher engine.
func NewExtractor() *Extractor {
	return &Extractor{engine: NewMatcherEngine()}
}

type accumulator struct {
	weighted float64
	points   float64
	count    int
}

// Extract scores responses against the prompts they answered. Responses for
// unknown prompt ids are ignored. The result does not depend on the order of
// responses.
func (e *Extractor) Extract(prompts []suite.PromptSpec, responses []ResponseRecord) (Extraction, error) {
	byID := make(map[string]suite.PromptSpec, len(prompts))
	referenced := make(map[string]struct{})
	for _, p := range prompts {
		byID[p.ID] = p
		for name := range p.ExpectedFeatures {
			referenced[name] = struct{}{}
		}
	}

	ordered := append([]ResponseRecord(nil), responses...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].PromptID != ordered[j].PromptID {
			return ordered[i].PromptID < ordered[j].PromptID
		}
		return ordered[i].RunIndex < ordered[j].RunIndex
	})

	acc := make(map[string]*accumulator)
	for _, resp := range ordered {
		p, ok := byID[resp.PromptID]
		if !ok {
			log.Debug().Str("prompt_id", resp.PromptID).Msg("Response for unknown prompt ignored")
			continue
		}
		for name, spec := range p.ExpectedFeatures {
			out, err := e.engine.Apply(spec.Matcher, resp.RawText)
			if err != nil {
				return Extraction{}, fmt.Errorf("prompt %s feature %s: %w", p.ID, name, err)
			}
			if !out.Determined {
				continue
			}
			a := acc[name]
			if a == nil {
				a = &accumulator{}
				acc[name] = a
			}
			a.weighted += out.Quality * spec.Points
			a.points += spec.Points
			a.count++
		}
	}

	result := Extraction{
		Features:      make(Vector, len(acc)),
		Contributions: make(map[string]int, len(acc)),
	}
	for name, a := range acc {
		if a.points <= 0 {
			continue
		}
		result.Features[name] = clamp01(a.weighted / a.points)
		result.Contributions[name] = a.count
	}
	for name := range referenced {
		if _, ok := result.Features[name]; !ok {
			result.Undetermined = append(result.Undetermined, name)
		}
	}
	sort.Strings(result.Undetermined)
	return result, nil
}

// Average merges per-run vectors into one, averaging each feature over the
// runs that determined it. counts reports how many runs contributed.
func Average(runs []Vector) (avg Vector, counts map[string]int) {
	sums := make(map[string]float64)
	counts = make(map[string]int)
	for _, run := range runs {
		for name, v := range run {
			sums[name] += v
			counts[name]++
		}
	}
	avg = make(Vector, len(sums))
	for name, sum := range sums {
		avg[name] = clamp01(sum / float64(counts[name]))
	}
	return avg, counts
}
