package identify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/llmfinder/llmfinder/pkg/storage"
	"github.com/llmfinder/llmfinder/pkg/suite"
)

const (
	errorCodeInvalidConfig = "IDENTIFY_INVALID_CONFIG"
	errorCodeCoverage      = "IDENTIFY_COVERAGE"
	errorCodeRepository    = "IDENTIFY_REPOSITORY"
	errorCodeNotFound      = "IDENTIFY_NOT_FOUND"
	errorCodeNoRuns        = "IDENTIFY_NO_SUCCESSFUL_RUNS"
	errorCodeCanceled      = "IDENTIFY_CANCELED"
	errorCodeFailed        = "IDENTIFY_FAILED"
)

var (
	// ErrInvalidConfig is returned before probing when the session
	// configuration is rejected.
	ErrInvalidConfig = errors.New("invalid session configuration")
	// ErrCoverage is matched by CoverageError.
	ErrCoverage = errors.New("insufficient probe coverage")
	// ErrNoSuccessfulRuns is returned by Profile when every run fell below
	// the coverage threshold.
	ErrNoSuccessfulRuns = errors.New("no successful profiling runs")
)

// Failure describes one prompt that produced no usable response.
type Failure struct {
	PromptID string `json:"prompt_id"`
	Category string `json:"category"`
	Attempts int    `json:"attempts"`
	Reason   string `json:"reason"`
}

// CoverageError reports a session whose successful-prompt ratio fell below
// the configured minimum.
type CoverageError struct {
	Coverage  float64
	Threshold float64
	Failures  []Failure
}

func (e *CoverageError) Error() string {
	ids := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		ids = append(ids, f.PromptID)
	}
	return fmt.Sprintf("coverage %.0f%% below minimum %.0f%% (failed prompts: %s)",
		e.Coverage*100, e.Threshold*100, strings.Join(ids, ", "))
}

// Is matches ErrCoverage.
func (e *CoverageError) Is(target error) bool {
	return target == ErrCoverage
}

func invalidConfig(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// ErrorCode resolves an error to its identification error code.
func ErrorCode(err error) string {
	var verr *suite.ValidationError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidConfig), errors.As(err, &verr):
		return errorCodeInvalidConfig
	case errors.Is(err, ErrCoverage):
		return errorCodeCoverage
	case errors.Is(err, ErrNoSuccessfulRuns):
		return errorCodeNoRuns
	case storage.IsNotFound(err):
		return errorCodeNotFound
	case storage.IsFatal(err):
		return errorCodeRepository
	case errors.Is(err, storage.ErrInvalidInput):
		return errorCodeInvalidConfig
	case errors.Is(err, context.Canceled):
		return errorCodeCanceled
	default:
		return errorCodeFailed
	}
}

// ExitCode maps identification errors to CLI exit codes.
func ExitCode(err error) int {
	switch ErrorCode(err) {
	case "":
		return 0
	case errorCodeInvalidConfig:
		return 2
	case errorCodeCoverage, errorCodeNoRuns:
		return 3
	case errorCodeRepository:
		return 4
	case errorCodeNotFound:
		return 5
	default:
		return 1
	}
}

// Suggestions provides CLI hints for identification errors.
func Suggestions(err error) []string {
	switch ErrorCode(err) {
	case errorCodeInvalidConfig:
		return []string{
			"Check the weight:          --alpha must lie in [0,1]",
			"Validate a custom suite:   llmfinder suite validate <path>",
		}
	case errorCodeCoverage, errorCodeNoRuns:
		return []string{
			"Raise the prompt timeout:  --prompt-timeout 2m",
			"Reduce concurrency:        --concurrency 1",
			"Check that the endpoint is reachable and the model is loaded",
		}
	case errorCodeRepository:
		return []string{
			"Inspect the store:         llmfinder models list",
			"A dimension mismatch means the embedding model changed; re-profile into a fresh store",
		}
	case errorCodeNotFound:
		return []string{
			"List stored models:        llmfinder models list",
		}
	default:
		return nil
	}
}
