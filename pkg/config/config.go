// pkg/config/config.go
package config

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cast"

	"github.com/llmfinder/llmfinder/pkg/embedding"
	"github.com/llmfinder/llmfinder/pkg/endpoint"
	"github.com/llmfinder/llmfinder/pkg/identify"
	"github.com/llmfinder/llmfinder/pkg/scoring"
	"github.com/llmfinder/llmfinder/pkg/storage"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

var validate = validator.New()

// Manager handles loading and accessing application configuration.
type Manager struct {
	mu            sync.RWMutex
	koanfInstance *koanf.Koanf
	currentConfig Config
	sources       []string
}

// NewManager creates a new Manager with an empty koanf instance.
func NewManager() *Manager {
	return &Manager{koanfInstance: koanf.New(".")}
}

// DefaultConfig returns a new Config struct populated with hardcoded default values.
// These serve as the baseline configuration if no other sources override them.
func DefaultConfig() Config {
	session := identify.DefaultConfig()
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Endpoint: endpoint.Config{
			URL:     "http://localhost:11434/api/chat",
			Timeout: 60 * time.Second,
			Burst:   1,
		},
		Embedding: EmbeddingConfig{
			Enabled: true,
			BaseURL: "https://api.openai.com/v1",
			Model:   embedding.DefaultModel,
			Timeout: 30 * time.Second,
			Cache:   CacheConfig{MemorySize: 1024, TTL: 7 * 24 * time.Hour},
		},
		Storage: storage.Config{
			Driver:      storage.DriverSQLite,
			Retention:   storage.RetentionAverage,
			BusyTimeout: 5 * time.Second,
		},
		Identify: IdentifyConfig{
			Mode:               string(session.Mode),
			HeuristicWeight:    session.Alpha,
			MinCoverage:        session.MinCoverage,
			PromptTimeout:      session.PromptTimeout,
			Concurrency:        session.Concurrency,
			MinCategoryOverlap: session.MinCategoryOverlap,
			Retry:              session.Retry,
		},
	}
}

// DefaultConfigAsMap converts the DefaultConfig struct to a map[string]interface{}
// for Koanf's confmap.Provider. Every configurable key must appear here so
// that environment variables can be resolved to it.
func DefaultConfigAsMap() map[string]interface{} {
	def := DefaultConfig()
	return map[string]interface{}{
		"log.level":  def.Log.Level,
		"log.format": def.Log.Format,
		"log.file":   def.Log.File,

		"workspace_dir": def.WorkspaceDir,

		"endpoint.url":        def.Endpoint.URL,
		"endpoint.model":      def.Endpoint.Model,
		"endpoint.api_key":    def.Endpoint.APIKey,
		"endpoint.timeout":    def.Endpoint.Timeout,
		"endpoint.rate_limit": def.Endpoint.RateLimit,
		"endpoint.burst":      def.Endpoint.Burst,

		"embedding.enabled":           def.Embedding.Enabled,
		"embedding.base_url":          def.Embedding.BaseURL,
		"embedding.api_key":           def.Embedding.APIKey,
		"embedding.model":             def.Embedding.Model,
		"embedding.timeout":           def.Embedding.Timeout,
		"embedding.cache.redis_url":   def.Embedding.Cache.RedisURL,
		"embedding.cache.ttl":         def.Embedding.Cache.TTL,
		"embedding.cache.memory_size": def.Embedding.Cache.MemorySize,

		"storage.driver":              def.Storage.Driver,
		"storage.path":                def.Storage.Path,
		"storage.dsn":                 def.Storage.DSN,
		"storage.embedding_retention": string(def.Storage.Retention),
		"storage.busy_timeout":        def.Storage.BusyTimeout,

		"identify.mode":                 def.Identify.Mode,
		"identify.heuristic_weight":     def.Identify.HeuristicWeight,
		"identify.min_coverage":         def.Identify.MinCoverage,
		"identify.prompt_timeout":       def.Identify.PromptTimeout,
		"identify.concurrency":          def.Identify.Concurrency,
		"identify.min_category_overlap": def.Identify.MinCategoryOverlap,
		"identify.report_dir":           def.Identify.ReportDir,
		"identify.retry.max_attempts":   def.Identify.Retry.MaxAttempts,
		"identify.retry.initial_wait":   def.Identify.Retry.InitialWait,
		"identify.retry.max_wait":       def.Identify.Retry.MaxWait,
		"identify.retry.multiplier":     def.Identify.Retry.Multiplier,
		"identify.retry.jitter":         def.Identify.Retry.Jitter,

		"suite.path":         def.Suite.Path,
		"suite.pentest_path": def.Suite.PentestPath,

		"telemetry.file": def.Telemetry.File,
	}
}

// Load loads every source in priority order, unmarshals the merged result
// and validates it.
func (m *Manager) Load(sources ...ConfigSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := koanf.New(".")
	var names []string
	for _, src := range sortSources(sources) {
		if err := src.Load(k); err != nil {
			return fmt.Errorf("%s: %w", src.Name(), err)
		}
		names = append(names, src.Name())
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return fmt.Errorf("error unmarshaling final config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	m.koanfInstance = k
	m.currentConfig = cfg
	m.sources = names
	return nil
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentConfig
}

// Sources returns the names of the sources used by the last Load.
func (m *Manager) Sources() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.sources...)
}

// Value returns the raw merged value of key as a string.
func (m *Manager) Value(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cast.ToString(m.koanfInstance.Get(key))
}

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s fails %q (value %v)", ErrInvalid, fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := c.Identify.Retry.Validate(); err != nil {
		return fmt.Errorf("%w: identify.retry: %v", ErrInvalid, err)
	}
	if !c.Storage.Retention.IsValid() {
		return fmt.Errorf("%w: storage.embedding_retention %q (average, replace, history)", ErrInvalid, c.Storage.Retention)
	}
	return nil
}

// SessionConfig converts the identify section into an orchestrator
// configuration.
func (c Config) SessionConfig() (identify.Config, error) {
	mode, err := scoring.ParseMode(c.Identify.Mode)
	if err != nil {
		return identify.Config{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return identify.Config{
		Mode:               mode,
		Alpha:              c.Identify.HeuristicWeight,
		MinCoverage:        c.Identify.MinCoverage,
		PromptTimeout:      c.Identify.PromptTimeout,
		Concurrency:        c.Identify.Concurrency,
		MinCategoryOverlap: c.Identify.MinCategoryOverlap,
		EmbeddingsEnabled:  c.Embedding.Enabled,
		Retry:              c.Identify.Retry,
	}, nil
}

// StorageConfig returns the repository configuration anchored at the
// workspace root.
func (c Config) StorageConfig(workspaceRoot string) *storage.Config {
	sc := c.Storage
	if sc.WorkspaceRoot == "" {
		sc.WorkspaceRoot = workspaceRoot
	}
	return &sc
}
