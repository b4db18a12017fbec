package storage

import (
	"encoding/binary"
	"fmt"
	"math"
	"regexp"
	"time"
)

// HeuristicFingerprint is the persisted running-average feature vector of
// one model. FeatureCounts holds the number of samples behind each score.
type HeuristicFingerprint struct {
	ModelIdentity string             `json:"model_identity"`
	Features      map[string]float64 `json:"features"`
	FeatureCounts map[string]int     `json:"feature_counts"`
	SampleCount   int                `json:"sample_count"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// EmbeddingFingerprint is one persisted embedding of a model's answers to
// the prompts of a category.
type EmbeddingFingerprint struct {
	ModelIdentity string    `json:"model_identity"`
	Category      string    `json:"category"`
	RunIndex      int       `json:"run_index"`
	Vector        []float64 `json:"vector"`
	SourceText    string    `json:"source_text,omitempty"`
	SampleCount   int       `json:"sample_count"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Fingerprint bundles a heuristic vector and its embeddings so both can be
// committed in a single transaction.
type Fingerprint struct {
	ModelIdentity string
	Features      map[string]float64
	// FeatureCounts overrides Runs as the sample weight of individual
	// features. Features missing here are weighted by Runs.
	FeatureCounts map[string]int
	Runs          int
	Embeddings    []EmbeddingFingerprint
}

// ModelSummary is a row of the model listing.
type ModelSummary struct {
	ModelIdentity  string    `json:"model_identity"`
	SampleCount    int       `json:"sample_count"`
	FeatureCount   int       `json:"feature_count"`
	EmbeddingCount int       `json:"embedding_count"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ListOptions controls model listing pagination.
type ListOptions struct {
	Limit  int
	Cursor string
}

// ModelPage is one page of the model listing.
type ModelPage struct {
	Models     []ModelSummary `json:"models"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

var modelIdentityRE = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:/@+-]{0,199}$`)

func validateModel(model string) error {
	if !modelIdentityRE.MatchString(model) {
		return NewInvalidInputError("model_identity", fmt.Sprintf("%q is not a valid model identity", model))
	}
	return nil
}

func validateFeatures(features map[string]float64) error {
	for name, v := range features {
		if name == "" {
			return NewInvalidInputError("features", "empty feature name")
		}
		if math.IsNaN(v) || v < 0 || v > 1 {
			return NewInvalidInputError("features", fmt.Sprintf("feature %q score %v outside [0,1]", name, v))
		}
	}
	return nil
}

func validateVector(vec []float64) error {
	if len(vec) == 0 {
		return NewInvalidInputError("vector", "embedding vector is empty")
	}
	for i, v := range vec {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return NewInvalidInputError("vector", fmt.Sprintf("component %d is not finite", i))
		}
	}
	return nil
}

// encodeVector serializes a vector as little-endian float64 values.
func encodeVector(vec []float64) []byte {
	buf := make([]byte, 8*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

func decodeVector(buf []byte, dim int) ([]float64, error) {
	if dim <= 0 || len(buf) != dim*8 {
		return nil, &IntegrityError{Detail: fmt.Sprintf("embedding blob of %d bytes does not hold %d float64 values", len(buf), dim)}
	}
	vec := make([]float64, dim)
	for i := range vec {
		vec[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return vec, nil
}

// runningMean merges a stored mean of oldN samples with a new mean of newN
// samples.
func runningMean(old float64, oldN int, cur float64, newN int) float64 {
	total := oldN + newN
	if total <= 0 {
		return cur
	}
	return (old*float64(oldN) + cur*float64(newN)) / float64(total)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
