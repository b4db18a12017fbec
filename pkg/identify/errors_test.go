package identify

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/llmfinder/llmfinder/pkg/storage"
	"github.com/llmfinder/llmfinder/pkg/suite"
)

func TestErrorCodeAndExitCode(t *testing.T) {
	_, suiteErr := suite.Parse([]byte("name: s\nbogus: true\n"))

	tests := []struct {
		name string
		err  error
		code string
		exit int
	}{
		{"nil", nil, "", 0},
		{"invalid config", invalidConfig("alpha %v", 2), errorCodeInvalidConfig, 2},
		{"suite decode failure", fmt.Errorf("load prompt suite x.yaml: %w", suiteErr), errorCodeInvalidConfig, 2},
		{"coverage", &CoverageError{Coverage: 0.4, Threshold: 0.5}, errorCodeCoverage, 3},
		{"no runs", ErrNoSuccessfulRuns, errorCodeNoRuns, 3},
		{"repository", &storage.IntegrityError{Detail: "missing table"}, errorCodeRepository, 4},
		{"not found", storage.NewNotFoundError("model", "x"), errorCodeNotFound, 5},
		{"canceled", fmt.Errorf("probe who: %w", context.Canceled), errorCodeCanceled, 1},
		{"canceled text without the sentinel", errors.New("upstream said: context canceled"), errorCodeFailed, 1},
		{"other", errors.New("boom"), errorCodeFailed, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, ErrorCode(tt.err))
			assert.Equal(t, tt.exit, ExitCode(tt.err))
		})
	}
}
