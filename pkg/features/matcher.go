// Copyright 2025 LLMFinder Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package features

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"github.com/llmfinder/llmfinder/pkg/suite"
)

// Outcome is the result of applying one matcher to one response.
type Outcome struct {
	Quality    float64 // match quality in [0,1]; points are scaled by it
	Determined bool    // false when the response carries no evidence either way
}

func full() Outcome { return Outcome{Quality: 1, Determined: true} }

func none() Outcome { return Outcome{Quality: 0, Determined: true} }

func partial(q float64) Outcome { return Outcome{Quality: clamp01(q), Determined: true} }

func undetermined() Outcome { return Outcome{} }

// MatcherFunc evaluates a matcher spec against response text.
type MatcherFunc func(spec suite.MatcherSpec, text string) (Outcome, error)

// MatcherEngine dispatches matcher specs to their implementation by kind.
type MatcherEngine struct {
	matchers map[suite.MatcherKind]MatcherFunc

	mu      sync.Mutex
	regexes map[string]*regexp.Regexp
}

// NewMatcherEngine creates an engine with the built-in matcher kinds.
func NewMatcherEngine() *MatcherEngine {
	m := &MatcherEngine{
		matchers: make(map[suite.MatcherKind]MatcherFunc),
		regexes:  make(map[string]*regexp.Regexp),
	}
	m.Register(suite.KindKeyword, matchKeyword)
	m.Register(suite.KindRegex, m.matchRegex)
	m.Register(suite.KindNumeric, matchNumeric)
	m.Register(suite.KindJSON, matchJSON)
	m.Register(suite.KindYAML, matchYAML)
	m.Register(suite.KindChoice, matchChoice)
	return m
}

// Register installs or replaces the implementation for a matcher kind.
func (m *MatcherEngine) Register(kind suite.MatcherKind, fn MatcherFunc) {
	m.matchers[kind] = fn
}

// Apply evaluates spec against text.
func (m *MatcherEngine) Apply(spec suite.MatcherSpec, text string) (Outcome, error) {
	fn, ok := m.matchers[spec.Kind]
	if !ok {
		return Outcome{}, fmt.Errorf("unknown matcher kind: %s", spec.Kind)
	}
	out, err := fn(spec, text)
	log.Debug().
		Str("kind", string(spec.Kind)).
		Float64("quality", out.Quality).
		Bool("determined", out.Determined).
		Err(err).
		Msg("Matcher evaluated")
	return out, err
}

func (m *MatcherEngine) compile(pattern string) (*regexp.Regexp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if re, ok := m.regexes[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern: %w", err)
	}
	m.regexes[pattern] = re
	return re, nil
}

func matchKeyword(spec suite.MatcherSpec, text string) (Outcome, error) {
	haystack := text
	if !spec.CaseSensitive {
		haystack = strings.ToLower(text)
	}
	hits := make([]bool, len(spec.Keywords))
	for i, kw := range spec.Keywords {
		if !spec.CaseSensitive {
			kw = strings.ToLower(kw)
		}
		hits[i] = strings.Contains(haystack, kw)
	}
	return byMode(spec.ModeOr(suite.ModeAny), hits)
}

func (m *MatcherEngine) matchRegex(spec suite.MatcherSpec, text string) (Outcome, error) {
	hits := make([]bool, len(spec.Patterns))
	for i, pattern := range spec.Patterns {
		re, err := m.compile(pattern)
		if err != nil {
			return Outcome{}, err
		}
		hits[i] = re.MatchString(text)
	}
	return byMode(spec.ModeOr(suite.ModeAny), hits)
}

func byMode(mode string, hits []bool) (Outcome, error) {
	switch mode {
	case suite.ModeAny:
		if anyTrue(hits) {
			return full(), nil
		}
	case suite.ModeAll:
		if allTrue(hits) {
			return full(), nil
		}
	case suite.ModeNone:
		if !anyTrue(hits) {
			return full(), nil
		}
	default:
		return Outcome{}, fmt.Errorf("unknown mode: %s", mode)
	}
	return none(), nil
}

var (
	numberRe      = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
	digitGroupsRe = regexp.MustCompile(`(\d)[, \x{00a0}_](\d{3})\b`)
)

// joinDigitGroups removes thousands separators between digit groups, so
// "302,875,106" reads as one number while "1, 2" stays two.
func joinDigitGroups(text string) string {
	for {
		next := digitGroupsRe.ReplaceAllString(text, "${1}${2}")
		if next == text {
			return text
		}
		text = next
	}
}

// matchNumeric awards full credit for the exact number, partial credit when
// the response is numeric but wrong, and nothing when no number is present.
func matchNumeric(spec suite.MatcherSpec, text string) (Outcome, error) {
	expected, err := cast.ToFloat64E(spec.Expected)
	if err != nil {
		return Outcome{}, fmt.Errorf("numeric expected value: %w", err)
	}
	numbers := numberRe.FindAllString(joinDigitGroups(text), -1)
	if len(numbers) == 0 {
		return none(), nil
	}
	for _, raw := range numbers {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		if math.Abs(v-expected) <= spec.Tolerance {
			return full(), nil
		}
	}
	return partial(spec.PartialOr(0.25)), nil
}

var (
	fencedJSONRe = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	fencedYAMLRe = regexp.MustCompile("(?s)```(?:ya?ml)?\\s*\\n(.*?)```")
)

// matchJSON awards partial credit for syntactically valid JSON and full
// credit when the configured field holds the expected value.
func matchJSON(spec suite.MatcherSpec, text string) (Outcome, error) {
	raw := ""
	if m := fencedJSONRe.FindStringSubmatch(text); len(m) == 2 {
		raw = m[1]
	} else if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		raw = text[start : end+1]
	}
	if raw == "" {
		return none(), nil
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return none(), nil
	}

	actual, ok := lookup(doc, spec.Field)
	if ok && equalValues(actual, spec.Expected) {
		return full(), nil
	}
	return partial(spec.PartialOr(0.5)), nil
}

// matchYAML awards full credit when every required top-level key is present.
func matchYAML(spec suite.MatcherSpec, text string) (Outcome, error) {
	raw := text
	if m := fencedYAMLRe.FindStringSubmatch(text); len(m) == 2 {
		raw = m[1]
	}

	var doc map[string]any
	if err := yaml.Unmarshal([]byte(raw), &doc); err != nil || doc == nil {
		return none(), nil
	}
	for _, key := range spec.RequiredKeys {
		if _, ok := doc[key]; !ok {
			return partial(spec.PartialOr(0.5)), nil
		}
	}
	return full(), nil
}

// matchChoice distinguishes a correct answer from a known wrong answer and
// leaves the feature undetermined when the response contains neither.
func matchChoice(spec suite.MatcherSpec, text string) (Outcome, error) {
	haystack := text
	if !spec.CaseSensitive {
		haystack = strings.ToLower(text)
	}
	contains := func(list []string) bool {
		for _, s := range list {
			if !spec.CaseSensitive {
				s = strings.ToLower(s)
			}
			if strings.Contains(haystack, s) {
				return true
			}
		}
		return false
	}
	switch {
	case contains(spec.Incorrect):
		return none(), nil
	case contains(spec.Correct):
		return full(), nil
	default:
		return undetermined(), nil
	}
}

func lookup(doc map[string]any, path string) (any, bool) {
	var cur any = doc
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func equalValues(actual, expected any) bool {
	if af, err := cast.ToFloat64E(actual); err == nil {
		if ef, err := cast.ToFloat64E(expected); err == nil {
			return af == ef
		}
	}
	return strings.EqualFold(cast.ToString(actual), cast.ToString(expected))
}

func anyTrue(values []bool) bool {
	for _, v := range values {
		if v {
			return true
		}
	}
	return false
}

func allTrue(values []bool) bool {
	for _, v := range values {
		if !v {
			return false
		}
	}
	return len(values) > 0
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
