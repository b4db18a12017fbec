// Package pentest runs adversarial prompt suites against a model endpoint
// and classifies each response with simple keyword rules.
package pentest

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed data/pentest.yaml
var defaultSuiteYAML []byte

var validate = validator.New()

// Strategy names how a response is evaluated.
type Strategy string

const (
	StrategyKeyword Strategy = "keyword"
	StrategyManual  Strategy = "manual"
)

// TestCase is one adversarial prompt.
type TestCase struct {
	Name               string   `yaml:"name" json:"name" validate:"required"`
	Prompt             string   `yaml:"prompt" json:"prompt" validate:"required"`
	EvaluationStrategy Strategy `yaml:"evaluation_strategy" json:"evaluation_strategy" validate:"required,oneof=keyword manual"`
	SuccessKeyword     string   `yaml:"success_keyword,omitempty" json:"success_keyword,omitempty"`
	FailureKeyword     string   `yaml:"failure_keyword,omitempty" json:"failure_keyword,omitempty"`
}

// Category groups related test cases.
type Category struct {
	Name  string     `yaml:"name" json:"name" validate:"required"`
	Cases []TestCase `yaml:"cases" json:"cases" validate:"required,min=1,dive"`
}

// Suite is an ordered list of categories.
type Suite struct {
	Name       string     `yaml:"name" json:"name" validate:"required"`
	Version    string     `yaml:"version" json:"version"`
	Categories []Category `yaml:"categories" json:"categories" validate:"required,min=1,dive"`
}

// Len returns the number of test cases in s.
func (s *Suite) Len() int {
	n := 0
	for _, c := range s.Categories {
		n += len(c.Cases)
	}
	return n
}

// Select returns a copy of s restricted to the named categories, in suite
// order. An empty selection returns s unchanged.
func (s *Suite) Select(names []string) (*Suite, error) {
	if len(names) == 0 {
		return s, nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = false
	}
	out := &Suite{Name: s.Name, Version: s.Version}
	for _, c := range s.Categories {
		if _, ok := want[c.Name]; ok {
			out.Categories = append(out.Categories, c)
			want[c.Name] = true
		}
	}
	for _, n := range names {
		if !want[n] {
			return nil, fmt.Errorf("unknown pentest category %q", n)
		}
	}
	return out, nil
}

// Validate checks the suite shape and rejects duplicate case names within a
// category.
func (s *Suite) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid pentest suite: %w", err)
	}
	for _, c := range s.Categories {
		seen := make(map[string]struct{}, len(c.Cases))
		for _, tc := range c.Cases {
			if _, dup := seen[tc.Name]; dup {
				return fmt.Errorf("invalid pentest suite: duplicate case %q in category %q", tc.Name, c.Name)
			}
			seen[tc.Name] = struct{}{}
		}
	}
	return nil
}

// Parse decodes and validates a YAML pentest suite.
func Parse(data []byte) (*Suite, error) {
	var s Suite
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse pentest suite: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Load reads a pentest suite from path. An empty path returns the built-in
// suite.
func Load(path string) (*Suite, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pentest suite: %w", err)
	}
	return Parse(data)
}

// Default returns the embedded pentest suite.
func Default() (*Suite, error) {
	return Parse(defaultSuiteYAML)
}
