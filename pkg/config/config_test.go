package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmfinder/llmfinder/pkg/scoring"
	"github.com/llmfinder/llmfinder/pkg/storage"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestSourcePriorities(t *testing.T) {
	assert.Equal(t, 10, (&DefaultSource{}).Priority())
	assert.Equal(t, 20, (&FileSource{}).Priority())
	assert.Equal(t, 30, (&EnvSource{}).Priority())
	assert.Equal(t, 40, (&FlagSource{}).Priority())
	assert.Equal(t, "file:/tmp/x.yaml", (&FileSource{Path: "/tmp/x.yaml"}).Name())
}

func TestDefaultSource_Load(t *testing.T) {
	k := koanf.New(".")
	require.NoError(t, (&DefaultSource{}).Load(k))
	assert.Equal(t, "info", k.String("log.level"))
	assert.Equal(t, "hybrid", k.String("identify.mode"))
	assert.Equal(t, 0.5, k.Float64("identify.heuristic_weight"))
}

func TestFileSource_Load(t *testing.T) {
	t.Run("empty path", func(t *testing.T) {
		require.NoError(t, (&FileSource{}).Load(koanf.New(".")))
	})
	t.Run("missing optional file", func(t *testing.T) {
		require.NoError(t, (&FileSource{Path: "/nonexistent/config.yaml"}).Load(koanf.New(".")))
	})
	t.Run("missing required file", func(t *testing.T) {
		require.Error(t, (&FileSource{Path: "/nonexistent/config.yaml", Required: true}).Load(koanf.New(".")))
	})
	t.Run("valid file", func(t *testing.T) {
		k := koanf.New(".")
		path := writeConfig(t, "log:\n  level: warn\nidentify:\n  min_coverage: 0.8\n")
		require.NoError(t, (&FileSource{Path: path}).Load(k))
		assert.Equal(t, "warn", k.String("log.level"))
		assert.Equal(t, 0.8, k.Float64("identify.min_coverage"))
	})
	t.Run("malformed file", func(t *testing.T) {
		path := writeConfig(t, "log: [unterminated\n")
		require.Error(t, (&FileSource{Path: path}).Load(koanf.New(".")))
	})
}

func TestEnvSource_ResolvesUnderscoredKeys(t *testing.T) {
	t.Setenv("LLMFINDER_IDENTIFY_HEURISTIC_WEIGHT", "0.7")
	t.Setenv("LLMFINDER_LOG_LEVEL", "debug")
	t.Setenv("LLMFINDER_EMBEDDING_CACHE_REDIS_URL", "redis://localhost:6379/0")

	k := koanf.New(".")
	require.NoError(t, (&EnvSource{}).Load(k))
	assert.Equal(t, "0.7", k.String("identify.heuristic_weight"))
	assert.Equal(t, "debug", k.String("log.level"))
	assert.Equal(t, "redis://localhost:6379/0", k.String("embedding.cache.redis_url"))
}

func TestFlagSource_OnlyChangedFlags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Float64("alpha", 0.5, "")
	fs.String("mode", "hybrid", "")
	require.NoError(t, fs.Parse([]string{"--alpha", "0.9"}))

	k := koanf.New(".")
	require.NoError(t, (&DefaultSource{}).Load(k))
	require.NoError(t, k.Set("identify.mode", "semantic"))

	src := &FlagSource{Flags: fs, Keys: map[string]string{"alpha": "identify.heuristic_weight", "mode": "identify.mode"}, Debug: true}
	require.NoError(t, src.Load(k))
	assert.Equal(t, 0.9, k.Float64("identify.heuristic_weight"))
	assert.Equal(t, "semantic", k.String("identify.mode"), "unchanged flag must not override")
	assert.Equal(t, "debug", k.String("log.level"))
}

func TestManager_LoadPrecedence(t *testing.T) {
	path := writeConfig(t, `
identify:
  heuristic_weight: 0.2
  min_coverage: 0.75
  prompt_timeout: 30s
storage:
  embedding_retention: history
`)
	t.Setenv("LLMFINDER_IDENTIFY_HEURISTIC_WEIGHT", "0.4")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Int("concurrency", 4, "")
	require.NoError(t, fs.Parse([]string{"--concurrency", "8"}))

	m := NewManager()
	err := m.Load(DefaultSources(path, true, fs, map[string]string{"concurrency": "identify.concurrency"}, false)...)
	require.NoError(t, err)

	cfg := m.Get()
	assert.Equal(t, 0.4, cfg.Identify.HeuristicWeight, "env overrides file")
	assert.Equal(t, 0.75, cfg.Identify.MinCoverage)
	assert.Equal(t, 30*time.Second, cfg.Identify.PromptTimeout)
	assert.Equal(t, 8, cfg.Identify.Concurrency)
	assert.Equal(t, storage.RetentionHistory, cfg.Storage.Retention)
	assert.Equal(t, []string{"defaults", "file:" + path, "env", "flags"}, m.Sources())
	assert.Equal(t, "0.4", m.Value("identify.heuristic_weight"))

	session, err := cfg.SessionConfig()
	require.NoError(t, err)
	assert.Equal(t, scoring.ModeHybrid, session.Mode)
	assert.Equal(t, 0.4, session.Alpha)
	require.NoError(t, session.Validate())
}

func TestManager_LoadRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"weight out of range": "identify:\n  heuristic_weight: 1.5\n",
		"zero coverage":       "identify:\n  min_coverage: 0\n",
		"unknown mode":        "identify:\n  mode: magic\n",
		"bad retention":       "storage:\n  embedding_retention: forever\n",
		"bad log level":       "log:\n  level: loud\n",
		"bad retry":           "identify:\n  retry:\n    multiplier: 0.5\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			err := NewManager().Load(&DefaultSource{}, &FileSource{Path: writeConfig(t, doc)})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	sc := DefaultConfig().StorageConfig("/tmp/ws")
	assert.Equal(t, "/tmp/ws", sc.WorkspaceRoot)
}
