package identify

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/llmfinder/llmfinder/pkg/endpoint"
	"github.com/llmfinder/llmfinder/pkg/scoring"
)

var validate = validator.New()

// Config is the per-session configuration. It is passed explicitly to each
// orchestrator; nothing is read from process-wide state.
type Config struct {
	Mode               scoring.Mode  `validate:"oneof=heuristic semantic hybrid"`
	Alpha              float64       `validate:"gte=0,lte=1"`
	MinCoverage        float64       `validate:"gt=0,lte=1"`
	PromptTimeout      time.Duration `validate:"gt=0"`
	Concurrency        int           `validate:"gte=1,lte=64"`
	MinCategoryOverlap int           `validate:"gte=1"`
	EmbeddingsEnabled  bool
	Retry              endpoint.RetryPolicy
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		Mode:               scoring.ModeHybrid,
		Alpha:              scoring.DefaultAlpha,
		EmbeddingsEnabled:  true,
		MinCoverage:        0.5,
		PromptTimeout:      90 * time.Second,
		Concurrency:        4,
		MinCategoryOverlap: 1,
		Retry:              endpoint.DefaultRetryPolicy(),
	}
}

// Validate rejects configurations that must not reach the probing phase.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return invalidConfig("%s fails %q (value %v)", fe.Field(), fe.Tag(), fe.Value())
		}
		return invalidConfig("%v", err)
	}
	if err := c.Retry.Validate(); err != nil {
		return invalidConfig("retry: %v", err)
	}
	return nil
}
