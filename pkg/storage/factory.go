package storage

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"net/url"
	"os"
	"path/filepath"

	_ "github.com/lib/pq"  // postgres driver
	_ "modernc.org/sqlite" // sqlite driver
)

// Repository is the fingerprint store consumed by profiling and
// identification.
type Repository interface {
	UpsertHeuristic(ctx context.Context, model string, features map[string]float64, runs int) error
	UpsertEmbedding(ctx context.Context, model, category string, vector []float64, sourceText string) error
	Upsert(ctx context.Context, fp Fingerprint) error
	LoadAllHeuristics(ctx context.Context) iter.Seq2[HeuristicFingerprint, error]
	LoadAllEmbeddings(ctx context.Context) iter.Seq2[EmbeddingFingerprint, error]
	GetHeuristic(ctx context.Context, model string) (HeuristicFingerprint, error)
	ListModels(ctx context.Context, opts ListOptions) (ModelPage, error)
	DeleteModel(ctx context.Context, model string) error
	Dimension(ctx context.Context) (int, error)
	Close() error
}

// Factory creates a Repository from configuration.
type Factory func(ctx context.Context, cfg *Config) (Repository, error)

// DefaultFactory is the factory used by NewRepository. Tests may replace it
// to inject an in-memory or mocked repository.
var DefaultFactory Factory = func(ctx context.Context, cfg *Config) (Repository, error) {
	return Open(ctx, cfg)
}

// NewRepository validates cfg and creates a repository through
// DefaultFactory.
//
// Example:
//
//	repo, err := storage.NewRepository(ctx, &storage.Config{
//	    WorkspaceRoot: "~/.local/share/llmfinder",
//	})
//	if err != nil {
//	    return err
//	}
//	defer repo.Close()
func NewRepository(ctx context.Context, cfg *Config) (Repository, error) {
	if cfg == nil {
		return nil, fmt.Errorf("invalid storage configuration: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid storage configuration: %w", err)
	}
	if DefaultFactory == nil {
		return nil, fmt.Errorf("no storage factory registered")
	}

	repo, err := DefaultFactory(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create repository: %w", err)
	}
	return repo, nil
}

// Open connects to the configured database, applies the schema and verifies
// its integrity.
func Open(ctx context.Context, cfg *Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d, err := dialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}

	var (
		dsn  string
		lock *fileLock
	)
	switch cfg.Driver {
	case DriverSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, wrap("open", fmt.Errorf("create store directory: %w", err))
		}
		dsn = sqliteDSN(cfg)
		lock = newFileLock(cfg.Path + ".lock")
	case DriverPostgres:
		dsn = cfg.DSN
	}

	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, wrap("open", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, wrap("open", err)
	}

	s := newStore(db, d, cfg.Retention)
	if lock != nil {
		release, err := lock.acquire(ctx)
		if err != nil {
			_ = db.Close()
			return nil, wrap("open", err)
		}
		defer release()
	}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.Check(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func sqliteDSN(cfg *Config) string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", cfg.BusyTimeout.Milliseconds()))
	q.Set("_txlock", "immediate")
	return "file:" + cfg.Path + "?" + q.Encode()
}
