// pkg/config/types.go
package config

import (
	"time"

	"github.com/llmfinder/llmfinder/pkg/endpoint"
	"github.com/llmfinder/llmfinder/pkg/storage"
)

// Config is the root configuration structure for LLMFinder.
type Config struct {
	Log          LogConfig       `description:"Logging configuration" koanf:"log"`
	WorkspaceDir string          `description:"Workspace root directory" koanf:"workspace_dir"`
	Endpoint     endpoint.Config `description:"Model endpoint under test" koanf:"endpoint"`
	Embedding    EmbeddingConfig `description:"Embedding service" koanf:"embedding"`
	Storage      storage.Config  `description:"Fingerprint repository" koanf:"storage"`
	Identify     IdentifyConfig  `description:"Identification session settings" koanf:"identify"`
	Suite        SuiteConfig     `description:"Prompt suites" koanf:"suite"`
	Telemetry    TelemetryConfig `description:"Session telemetry" koanf:"telemetry"`
}

// LogConfig holds logging related configuration.
type LogConfig struct {
	Level  string `description:"Log level set to llmfinder logs." koanf:"level" validate:"omitempty,oneof=trace debug info warn error fatal panic disabled"`
	Format string `description:"Log format: json | text" koanf:"format" validate:"omitempty,oneof=json text"`
	File   string `description:"Log file path" koanf:"file"`
}

// EmbeddingConfig configures the embedding service and its cache.
type EmbeddingConfig struct {
	Enabled bool          `description:"Use semantic comparison" koanf:"enabled"`
	BaseURL string        `description:"OpenAI-compatible API base URL" koanf:"base_url" validate:"omitempty,url"`
	APIKey  string        `description:"Embedding API key" koanf:"api_key"`
	Model   string        `description:"Embedding model name" koanf:"model"`
	Timeout time.Duration `description:"Per-request timeout" koanf:"timeout" validate:"gte=0"`
	Cache   CacheConfig   `description:"Embedding cache" koanf:"cache"`
}

// CacheConfig selects the embedding cache. A Redis URL takes precedence over
// the in-memory cache.
type CacheConfig struct {
	RedisURL   string        `description:"Redis URL (redis://host:port/db)" koanf:"redis_url"`
	TTL        time.Duration `description:"Redis entry lifetime, 0 keeps entries forever" koanf:"ttl" validate:"gte=0"`
	MemorySize int           `description:"In-memory cache entries, 0 disables" koanf:"memory_size" validate:"gte=0"`
}

// IdentifyConfig holds identification session settings.
type IdentifyConfig struct {
	Mode               string               `description:"Scoring mode: heuristic | semantic | hybrid" koanf:"mode" validate:"oneof=heuristic semantic hybrid"`
	HeuristicWeight    float64              `description:"Weight of heuristic similarity in hybrid mode" koanf:"heuristic_weight" validate:"gte=0,lte=1"`
	MinCoverage        float64              `description:"Minimum fraction of answered prompts" koanf:"min_coverage" validate:"gt=0,lte=1"`
	PromptTimeout      time.Duration        `description:"Timeout of one prompt including retries" koanf:"prompt_timeout" validate:"gt=0"`
	Concurrency        int                  `description:"Concurrent prompts" koanf:"concurrency" validate:"gte=1,lte=64"`
	MinCategoryOverlap int                  `description:"Shared categories needed for a semantic score" koanf:"min_category_overlap" validate:"gte=1"`
	Retry              endpoint.RetryPolicy `description:"Retry policy for prompts" koanf:"retry"`
	ReportDir          string               `description:"Directory for session reports" koanf:"report_dir"`
}

// SuiteConfig points at custom prompt suites. Empty paths select the
// embedded defaults.
type SuiteConfig struct {
	Path        string `description:"Identification prompt suite" koanf:"path"`
	PentestPath string `description:"Pentest prompt suite" koanf:"pentest_path"`
}

// TelemetryConfig configures JSONL session telemetry.
type TelemetryConfig struct {
	File string `description:"JSONL telemetry file, empty disables" koanf:"file"`
}
