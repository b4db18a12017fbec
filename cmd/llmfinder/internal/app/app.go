// Package app builds the runtime components of a command (endpoint client,
// embedding service, fingerprint repository, prompt suites and session
// sinks) from the configuration stored on the command context.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/llmfinder/llmfinder/cmd/llmfinder/internal/bind"
	"github.com/llmfinder/llmfinder/cmd/llmfinder/internal/format"
	"github.com/llmfinder/llmfinder/pkg/appctx"
	"github.com/llmfinder/llmfinder/pkg/config"
	"github.com/llmfinder/llmfinder/pkg/embedding"
	"github.com/llmfinder/llmfinder/pkg/endpoint"
	"github.com/llmfinder/llmfinder/pkg/identify"
	"github.com/llmfinder/llmfinder/pkg/pentest"
	"github.com/llmfinder/llmfinder/pkg/report"
	"github.com/llmfinder/llmfinder/pkg/storage"
	"github.com/llmfinder/llmfinder/pkg/suite"
	"github.com/llmfinder/llmfinder/pkg/workspace"
)

// openAIKeyEnv is consulted when no embedding API key is configured.
const openAIKeyEnv = "OPENAI_API_KEY"

// ReportedError marks a failure whose details were already rendered as part
// of the command output.
type ReportedError struct {
	Err error
}

func (e *ReportedError) Error() string { return e.Err.Error() }

func (e *ReportedError) Unwrap() error { return e.Err }

// Env is the resolved configuration and workspace of one command.
type Env struct {
	Config config.Config
	// Workspace is the prepared workspace root, empty when disabled.
	Workspace string
	Output    bind.OutputOptions
	Stdout    io.Writer
	Stderr    io.Writer
}

// FromCommand resolves the Env of cmd. It fails when the root command did
// not load a configuration.
func FromCommand(cmd *cobra.Command) (*Env, error) {
	mgr, ok := appctx.Config(cmd.Context())
	if !ok {
		return nil, errors.New("configuration not loaded")
	}
	out, err := bind.BindOutputOptions(cmd)
	if err != nil {
		return nil, err
	}
	ws, _ := workspace.FromContext(cmd.Context())
	return &Env{
		Config:    mgr.Get(),
		Workspace: ws,
		Output:    out,
		Stdout:    cmd.OutOrStdout(),
		Stderr:    cmd.ErrOrStderr(),
	}, nil
}

// Formatter returns the output formatter selected by the global flags.
func (e *Env) Formatter() format.Formatter {
	return format.New(e.Stdout, e.Stderr, e.Output.Mode, e.Output.Quiet, !e.Output.NoColor && !color.NoColor)
}

// Endpoint returns the HTTP client of the model under test.
func (e *Env) Endpoint() (*endpoint.HTTPClient, error) {
	ep, err := endpoint.NewHTTPClient(e.Config.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	return ep, nil
}

// Embedder returns the embedding service, wrapped in the configured cache,
// and a closer for the cache connection. It returns a nil client when
// semantic comparison is disabled or no API key is available; sessions then
// fall back to heuristic scoring.
func (e *Env) Embedder() (embedding.Client, io.Closer, error) {
	cfg := e.Config.Embedding
	if !cfg.Enabled {
		return nil, nopCloser{}, nil
	}
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv(openAIKeyEnv)
	}
	if apiKey == "" {
		log.Warn().Msg("No embedding API key configured; semantic comparison unavailable")
		return nil, nopCloser{}, nil
	}

	inner, err := embedding.NewOpenAIClient(embedding.OpenAIConfig{
		BaseURL: cfg.BaseURL,
		APIKey:  apiKey,
		Model:   cfg.Model,
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: embedding: %v", config.ErrInvalid, err)
	}

	switch {
	case cfg.Cache.RedisURL != "":
		cache, err := embedding.NewRedisCache(cfg.Cache.RedisURL, cfg.Cache.TTL)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: embedding cache: %v", config.ErrInvalid, err)
		}
		return embedding.NewCachedClient(inner, cache, inner.Model()), cache, nil
	case cfg.Cache.MemorySize > 0:
		cache := embedding.NewMemoryCache(cfg.Cache.MemorySize)
		return embedding.NewCachedClient(inner, cache, inner.Model()), nopCloser{}, nil
	default:
		return inner, nopCloser{}, nil
	}
}

// Repository opens the fingerprint repository. The sqlite database defaults
// to the workspace fingerprints directory. A repository attached to ctx with
// storage.WithRepository is reused instead; closing it is left to its owner.
func (e *Env) Repository(ctx context.Context) (storage.Repository, error) {
	if repo, ok := storage.RepositoryFromContext(ctx); ok {
		return sharedRepository{repo}, nil
	}
	return storage.NewRepository(ctx, e.Config.StorageConfig(e.Workspace))
}

type sharedRepository struct {
	storage.Repository
}

func (sharedRepository) Close() error { return nil }

// Suite loads the identification prompt suite.
func (e *Env) Suite() (*suite.Suite, error) {
	return suite.Load(e.Config.Suite.Path)
}

// PentestSuite loads the pentest suite. path overrides the configured one.
func (e *Env) PentestSuite(path string) (*pentest.Suite, error) {
	if path == "" {
		path = e.Config.Suite.PentestPath
	}
	s, err := pentest.Load(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	return s, nil
}

// SessionConfig returns the orchestrator configuration.
func (e *Env) SessionConfig() (identify.Config, error) {
	return e.Config.SessionConfig()
}

// Events builds the event sink of a session: JSONL telemetry plus, unless
// quiet, a progress view on stderr. The returned closer flushes telemetry.
func (e *Env) Events(total int, verbose bool) (*report.EventStream, io.Closer, error) {
	tw, err := report.NewTelemetryWriter(e.TelemetryPath())
	if err != nil {
		return nil, nil, err
	}
	stream := report.NewEventStream(tw)
	if !e.Output.Quiet {
		stream.Subscribe(report.NewProgressSubscriber(e.Stderr, total, verbose))
	}
	return stream, tw, nil
}

// TelemetryPath is the configured telemetry file or, with a workspace,
// telemetry/sessions.jsonl inside it. Empty disables telemetry.
func (e *Env) TelemetryPath() string {
	if e.Config.Telemetry.File != "" {
		return e.Config.Telemetry.File
	}
	if e.Workspace == "" {
		return ""
	}
	return filepath.Join(e.Workspace, workspace.TelemetryDir, "sessions.jsonl")
}

// ReportPath resolves where a report named name is written. override wins,
// then the configured report directory, then the workspace reports
// directory. Empty means no report is written.
func (e *Env) ReportPath(override, name string) string {
	if override != "" {
		return override
	}
	dir := e.Config.Identify.ReportDir
	if dir == "" && e.Workspace != "" {
		dir = filepath.Join(e.Workspace, workspace.ReportsDir)
	}
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, name)
}

// ReportName builds a timestamped report file name.
func ReportName(kind, id string, now time.Time) string {
	return fmt.Sprintf("%s-%s-%s.json", kind, now.UTC().Format("20060102T150405Z"), id)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
