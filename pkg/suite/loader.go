// Copyright 2025 LLMFinder Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package suite

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

//go:embed data/prompts.yaml
var embeddedSuiteYAML []byte

var (
	defaultOnce  sync.Once
	defaultSuite *Suite
	defaultErr   error
)

// Default returns the built-in prompt suite, parsing it on first use.
func Default() (*Suite, error) {
	defaultOnce.Do(func() {
		defaultSuite, defaultErr = Parse(embeddedSuiteYAML)
	})
	if defaultErr != nil {
		return nil, defaultErr
	}
	return defaultSuite, nil
}

// Load reads and validates a suite file. YAML and JSON are both accepted.
// An empty path returns the built-in suite.
func Load(path string) (*Suite, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt suite %s: %w", path, err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("load prompt suite %s: %w", path, err)
	}
	return s, nil
}

// Parse decodes raw suite bytes without touching global state. Unknown fields
// are rejected so typos in matcher configuration never load silently.
func Parse(data []byte) (*Suite, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &ValidationError{Index: -1, Reason: "suite data is empty"}
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var s Suite
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &ValidationError{Index: -1, Reason: "suite data is empty"}
		}
		return nil, &ValidationError{Index: -1, Reason: "decode: " + err.Error()}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func toFloat(v any) (float64, error) {
	return cast.ToFloat64E(v)
}
