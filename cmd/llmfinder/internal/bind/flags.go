package bind

import (
	"github.com/spf13/pflag"

	"github.com/llmfinder/llmfinder/pkg/config"
)

// ConfigFlagKeys maps command-line flags to configuration keys. Flags listed here
// override the configuration file and environment when set explicitly.
var ConfigFlagKeys = map[string]string{
	"workspace-dir": "workspace_dir",
	"log-level":     "log.level",
	"log-format":    "log.format",
	"log-file":      "log.file",

	"endpoint":        "endpoint.url",
	"model":           "endpoint.model",
	"api-key":         "endpoint.api_key",
	"request-timeout": "endpoint.timeout",
	"rate-limit":      "endpoint.rate_limit",

	"embeddings":        "embedding.enabled",
	"embedding-url":     "embedding.base_url",
	"embedding-api-key": "embedding.api_key",
	"embedding-model":   "embedding.model",
	"redis-url":         "embedding.cache.redis_url",

	"db":        "storage.path",
	"db-driver": "storage.driver",
	"db-dsn":    "storage.dsn",
	"retention": "storage.embedding_retention",

	"mode":           "identify.mode",
	"alpha":          "identify.heuristic_weight",
	"min-coverage":   "identify.min_coverage",
	"prompt-timeout": "identify.prompt_timeout",
	"concurrency":    "identify.concurrency",
	"min-overlap":    "identify.min_category_overlap",
	"max-attempts":   "identify.retry.max_attempts",
	"report-dir":     "identify.report_dir",

	"suite":     "suite.path",
	"telemetry": "telemetry.file",
}

// Flag defaults only document the built-in values; configuration layers
// are resolved by pkg/config and unchanged flags never override them.
var defaults = config.DefaultConfig()

// AddEndpointFlags registers the model endpoint flags on fs.
func AddEndpointFlags(fs *pflag.FlagSet) {
	fs.String("endpoint", defaults.Endpoint.URL, "Chat endpoint URL of the model under test")
	fs.String("model", defaults.Endpoint.Model, "Model name sent with each request")
	fs.String("api-key", "", "Bearer token for the endpoint")
	fs.Duration("request-timeout", defaults.Endpoint.Timeout, "Timeout of a single HTTP attempt")
	fs.Float64("rate-limit", defaults.Endpoint.RateLimit, "Maximum requests per second, 0 disables limiting")
}

// AddSessionFlags registers the probing session flags on fs.
func AddSessionFlags(fs *pflag.FlagSet) {
	AddProbeFlags(fs)
	fs.String("suite", "", "Prompt suite file (default: built-in suite)")
	fs.Float64("min-coverage", defaults.Identify.MinCoverage, "Minimum fraction of prompts that must be answered")
	fs.String("telemetry", "", "JSONL telemetry file (default: workspace telemetry/sessions.jsonl)")
}

// AddProbeFlags registers the prompt delivery flags on fs.
func AddProbeFlags(fs *pflag.FlagSet) {
	fs.Duration("prompt-timeout", defaults.Identify.PromptTimeout, "Timeout of one prompt including retries")
	fs.Int("concurrency", defaults.Identify.Concurrency, "Prompts sent concurrently")
	fs.Int("max-attempts", defaults.Identify.Retry.MaxAttempts, "Attempts per prompt for transient failures")
}

// AddScoringFlags registers the ranking flags on fs.
func AddScoringFlags(fs *pflag.FlagSet) {
	fs.String("mode", defaults.Identify.Mode, "Scoring mode (heuristic, semantic, hybrid)")
	fs.Float64("alpha", defaults.Identify.HeuristicWeight, "Heuristic weight in hybrid mode, in [0,1]")
	fs.Int("min-overlap", defaults.Identify.MinCategoryOverlap, "Shared categories required for a semantic score")
}

// AddEmbeddingFlags registers the embedding service flags on fs.
func AddEmbeddingFlags(fs *pflag.FlagSet) {
	fs.Bool("embeddings", defaults.Embedding.Enabled, "Use the embedding service for semantic comparison")
	fs.String("embedding-url", defaults.Embedding.BaseURL, "OpenAI-compatible embeddings API base URL")
	fs.String("embedding-api-key", "", "Embedding API key (falls back to $OPENAI_API_KEY)")
	fs.String("embedding-model", defaults.Embedding.Model, "Embedding model")
	fs.String("redis-url", "", "Redis URL for a shared embedding cache")
}

// AddStorageFlags registers the fingerprint repository flags on fs.
func AddStorageFlags(fs *pflag.FlagSet) {
	fs.String("db", "", "SQLite database path (default: workspace fingerprints/fingerprints.db)")
	fs.String("db-driver", defaults.Storage.Driver, "Repository driver (sqlite, postgres)")
	fs.String("db-dsn", "", "PostgreSQL connection string")
	fs.String("retention", string(defaults.Storage.Retention), "Embedding retention policy (average, replace, history)")
}
