// Copyright 2025 LLMFinder Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package suite defines the probe prompt suite used for fingerprinting: the
// ordered prompts sent to an endpoint and, for each prompt, the matchers that
// turn its response into heuristic feature scores.
package suite

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/go-playground/validator/v10"
)

// MatcherKind enumerates the supported matcher implementations.
type MatcherKind string

const (
	KindKeyword MatcherKind = "keyword"
	KindRegex   MatcherKind = "regex"
	KindNumeric MatcherKind = "numeric"
	KindJSON    MatcherKind = "json"
	KindYAML    MatcherKind = "yaml"
	KindChoice  MatcherKind = "choice"
)

// AllKinds returns every supported matcher kind.
func AllKinds() []MatcherKind {
	return []MatcherKind{KindKeyword, KindRegex, KindNumeric, KindJSON, KindYAML, KindChoice}
}

// IsValid reports whether k is a known matcher kind.
func (k MatcherKind) IsValid() bool {
	for _, known := range AllKinds() {
		if k == known {
			return true
		}
	}
	return false
}

// Match modes for keyword and regex matchers.
const (
	ModeAny  = "any"
	ModeAll  = "all"
	ModeNone = "none"
)

// supportedVersions constrains the suite schema version.
var supportedVersions = mustConstraint("^1")

func mustConstraint(c string) *semver.Constraints {
	cs, err := semver.NewConstraint(c)
	if err != nil {
		panic(err)
	}
	return cs
}

var (
	validate  = validator.New()
	featureRe = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)
)

// Suite is an ordered collection of prompt specifications.
type Suite struct {
	Name    string       `yaml:"name" json:"name" validate:"required"`
	Version string       `yaml:"version" json:"version" validate:"required"`
	Prompts []PromptSpec `yaml:"prompts" json:"prompts" validate:"required,min=1"`
}

// PromptSpec is one probe prompt and the features its response feeds.
type PromptSpec struct {
	ID               string                 `yaml:"id" json:"id" validate:"required"`
	Category         string                 `yaml:"category" json:"category" validate:"required"`
	Text             string                 `yaml:"text" json:"text" validate:"required"`
	ExpectedFeatures map[string]FeatureSpec `yaml:"expected_features" json:"expected_features" validate:"required,min=1"`
}

// FeatureSpec binds a matcher to the points it awards a feature.
type FeatureSpec struct {
	Matcher MatcherSpec `yaml:"matcher" json:"matcher"`
	Points  float64     `yaml:"points" json:"points" validate:"gt=0"`
}

// MatcherSpec configures a single matcher. Which fields apply depends on Kind.
type MatcherSpec struct {
	Kind          MatcherKind `yaml:"kind" json:"kind" validate:"required"`
	Keywords      []string    `yaml:"keywords,omitempty" json:"keywords,omitempty"`
	Patterns      []string    `yaml:"patterns,omitempty" json:"patterns,omitempty"`
	Mode          string      `yaml:"mode,omitempty" json:"mode,omitempty" validate:"omitempty,oneof=any all none"`
	CaseSensitive bool        `yaml:"case_sensitive,omitempty" json:"case_sensitive,omitempty"`
	Expected      any         `yaml:"expected,omitempty" json:"expected,omitempty"`
	Tolerance     float64     `yaml:"tolerance,omitempty" json:"tolerance,omitempty" validate:"gte=0"`
	Partial       *float64    `yaml:"partial,omitempty" json:"partial,omitempty" validate:"omitempty,gte=0,lte=1"`
	Field         string      `yaml:"field,omitempty" json:"field,omitempty"`
	RequiredKeys  []string    `yaml:"required_keys,omitempty" json:"required_keys,omitempty"`
	Correct       []string    `yaml:"correct,omitempty" json:"correct,omitempty"`
	Incorrect     []string    `yaml:"incorrect,omitempty" json:"incorrect,omitempty"`
}

// PartialOr returns the configured partial credit or def when unset.
func (m MatcherSpec) PartialOr(def float64) float64 {
	if m.Partial == nil {
		return def
	}
	return *m.Partial
}

// ModeOr returns the configured mode or def when unset.
func (m MatcherSpec) ModeOr(def string) string {
	if m.Mode == "" {
		return def
	}
	return m.Mode
}

// ValidationError identifies the suite entry that failed validation.
type ValidationError struct {
	Index    int    // prompt index, -1 for suite-level problems
	PromptID string // prompt id when known
	Feature  string // feature name when the problem is inside a feature
	Reason   string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("invalid prompt suite")
	if e.Index >= 0 {
		fmt.Fprintf(&b, ": prompt[%d]", e.Index)
		if e.PromptID != "" {
			fmt.Fprintf(&b, " (%s)", e.PromptID)
		}
	}
	if e.Feature != "" {
		fmt.Fprintf(&b, " feature %q", e.Feature)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	return b.String()
}

// Validate checks the whole suite and returns the first offending entry.
func (s *Suite) Validate() error {
	if err := validate.Struct(s); err != nil {
		return &ValidationError{Index: -1, Reason: describe(err)}
	}

	v, err := semver.NewVersion(s.Version)
	if err != nil {
		return &ValidationError{Index: -1, Reason: fmt.Sprintf("version %q is not semver: %v", s.Version, err)}
	}
	if !supportedVersions.Check(v) {
		return &ValidationError{Index: -1, Reason: fmt.Sprintf("unsupported suite version %s (want %s)", v, supportedVersions)}
	}

	seen := make(map[string]int, len(s.Prompts))
	for i := range s.Prompts {
		p := &s.Prompts[i]
		if err := validate.Struct(p); err != nil {
			return &ValidationError{Index: i, PromptID: p.ID, Reason: describe(err)}
		}
		if prev, dup := seen[p.ID]; dup {
			return &ValidationError{Index: i, PromptID: p.ID, Reason: fmt.Sprintf("duplicate id (first defined at prompt[%d])", prev)}
		}
		seen[p.ID] = i

		for _, name := range sortedFeatureNames(p.ExpectedFeatures) {
			spec := p.ExpectedFeatures[name]
			if !featureRe.MatchString(name) {
				return &ValidationError{Index: i, PromptID: p.ID, Feature: name, Reason: "feature names must be lowercase snake_case"}
			}
			if err := validate.Struct(spec); err != nil {
				return &ValidationError{Index: i, PromptID: p.ID, Feature: name, Reason: describe(err)}
			}
			if err := validate.Struct(spec.Matcher); err != nil {
				return &ValidationError{Index: i, PromptID: p.ID, Feature: name, Reason: describe(err)}
			}
			if err := spec.Matcher.check(); err != nil {
				return &ValidationError{Index: i, PromptID: p.ID, Feature: name, Reason: err.Error()}
			}
		}
	}
	return nil
}

// check applies the per-kind requirements that struct tags cannot express.
func (m MatcherSpec) check() error {
	switch m.Kind {
	case KindKeyword:
		if len(m.Keywords) == 0 {
			return fmt.Errorf("keyword matcher requires keywords")
		}
	case KindRegex:
		if len(m.Patterns) == 0 {
			return fmt.Errorf("regex matcher requires patterns")
		}
		for _, p := range m.Patterns {
			if _, err := regexp.Compile(p); err != nil {
				return fmt.Errorf("invalid pattern %q: %w", p, err)
			}
		}
	case KindNumeric:
		if m.Expected == nil {
			return fmt.Errorf("numeric matcher requires expected")
		}
		if _, err := toFloat(m.Expected); err != nil {
			return fmt.Errorf("numeric matcher expected value: %w", err)
		}
	case KindJSON:
		if m.Field == "" {
			return fmt.Errorf("json matcher requires field")
		}
		if m.Expected == nil {
			return fmt.Errorf("json matcher requires expected")
		}
	case KindYAML:
		if len(m.RequiredKeys) == 0 {
			return fmt.Errorf("yaml matcher requires required_keys")
		}
	case KindChoice:
		if len(m.Correct) == 0 {
			return fmt.Errorf("choice matcher requires correct")
		}
	default:
		return fmt.Errorf("unknown matcher kind %q", m.Kind)
	}
	return nil
}

// Categories returns the distinct prompt categories in suite order.
func (s *Suite) Categories() []string {
	var out []string
	seen := make(map[string]bool)
	for _, p := range s.Prompts {
		if !seen[p.Category] {
			seen[p.Category] = true
			out = append(out, p.Category)
		}
	}
	return out
}

// FeatureNames returns every feature referenced by the suite, sorted.
func (s *Suite) FeatureNames() []string {
	set := make(map[string]struct{})
	for _, p := range s.Prompts {
		for name := range p.ExpectedFeatures {
			set[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the prompt with the given id.
func (s *Suite) Lookup(id string) (PromptSpec, bool) {
	for _, p := range s.Prompts {
		if p.ID == id {
			return p, true
		}
	}
	return PromptSpec{}, false
}

// Fingerprint returns a stable digest of the prompt ids and texts, so reports
// can name the exact suite a session ran against.
func (s *Suite) Fingerprint() string {
	h := sha256.New()
	for _, p := range s.Prompts {
		h.Write([]byte(p.ID))
		h.Write([]byte{0})
		h.Write([]byte(p.Text))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func sortedFeatureNames(m map[string]FeatureSpec) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if ve, ok := err.(validator.ValidationErrors); ok {
		verrs = ve
	}
	if len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	if fe.Param() != "" {
		return fmt.Sprintf("field %s failed %q (%s)", strings.ToLower(fe.Field()), fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("field %s failed %q", strings.ToLower(fe.Field()), fe.Tag())
}
