package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"maps"
	"slices"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Store is the SQL-backed fingerprint repository. It is safe for concurrent
// use; writes to the same model are serialized in-process and by the
// database transaction.
type Store struct {
	db        *sql.DB
	dialect   dialect
	retention Retention
	locks     *keyedMutex
	closed    atomic.Bool
	now       func() time.Time
}

func newStore(db *sql.DB, d dialect, retention Retention) *Store {
	if retention == "" {
		retention = RetentionAverage
	}
	return &Store{
		db:        db,
		dialect:   d,
		retention: retention,
		locks:     newKeyedMutex(),
		now:       time.Now,
	}
}

// Close releases the database handle.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}

func (s *Store) q(query string) string {
	return s.dialect.rebind(query)
}

func (s *Store) ensureOpen() error {
	if s.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return wrap("migrate", err)
		}
	}

	var version string
	err := s.db.QueryRowContext(ctx, s.q(`SELECT meta_value FROM store_meta WHERE meta_key = ?`), "schema_version").Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := s.db.ExecContext(ctx, s.q(`INSERT INTO store_meta (meta_key, meta_value) VALUES (?, ?)`), "schema_version", schemaVersion); err != nil {
			return wrap("migrate", err)
		}
	case err != nil:
		return wrap("migrate", err)
	case version != schemaVersion:
		return &IntegrityError{Detail: fmt.Sprintf("unsupported schema version %q (want %s)", version, schemaVersion)}
	}
	return nil
}

// Check verifies that every expected table exists.
func (s *Store) Check(ctx context.Context) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	rows, err := s.db.QueryContext(ctx, s.dialect.tablesStmt)
	if err != nil {
		return wrap("check", err)
	}
	defer func() { _ = rows.Close() }()

	present := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return wrap("check", err)
		}
		present[name] = true
	}
	if err := rows.Err(); err != nil {
		return wrap("check", err)
	}
	for _, table := range requiredTables {
		if !present[table] {
			return &IntegrityError{Detail: "missing table " + table}
		}
	}
	return nil
}

// UpsertHeuristic merges a feature vector measured over runs samples into
// the model's running average.
func (s *Store) UpsertHeuristic(ctx context.Context, model string, features map[string]float64, runs int) error {
	return s.Upsert(ctx, Fingerprint{ModelIdentity: model, Features: features, Runs: runs})
}

// UpsertEmbedding stores a single-sample embedding for (model, category)
// under the configured retention policy. The model must already have a
// heuristic fingerprint.
func (s *Store) UpsertEmbedding(ctx context.Context, model, category string, vector []float64, sourceText string) error {
	return s.Upsert(ctx, Fingerprint{
		ModelIdentity: model,
		Runs:          1,
		Embeddings: []EmbeddingFingerprint{{
			Category:    category,
			Vector:      vector,
			SourceText:  sourceText,
			SampleCount: 1,
		}},
	})
}

// Upsert commits a heuristic vector and its embeddings atomically. Either
// every part is persisted or none is.
func (s *Store) Upsert(ctx context.Context, fp Fingerprint) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if err := validateModel(fp.ModelIdentity); err != nil {
		return err
	}
	if fp.Runs <= 0 {
		return NewInvalidInputError("runs", "sample count must be positive")
	}
	if len(fp.Features) == 0 && len(fp.Embeddings) == 0 {
		return NewInvalidInputError("features", "fingerprint carries no features and no embeddings")
	}
	if err := validateFeatures(fp.Features); err != nil {
		return err
	}
	for _, e := range fp.Embeddings {
		if e.Category == "" {
			return NewInvalidInputError("category", "embedding category is empty")
		}
		if err := validateVector(e.Vector); err != nil {
			return err
		}
	}

	release := s.locks.Lock(fp.ModelIdentity)
	defer release()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("upsert", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := formatTime(s.now())
	if err := s.upsertModelRow(ctx, tx, fp.ModelIdentity, fp.Runs, len(fp.Features) > 0, now); err != nil {
		return err
	}
	for _, name := range slices.Sorted(maps.Keys(fp.Features)) {
		weight := fp.Runs
		if c, ok := fp.FeatureCounts[name]; ok && c > 0 {
			weight = c
		}
		if err := s.upsertFeature(ctx, tx, fp.ModelIdentity, name, fp.Features[name], weight); err != nil {
			return err
		}
	}
	for _, e := range fp.Embeddings {
		weight := e.SampleCount
		if weight <= 0 {
			weight = 1
		}
		if err := s.upsertEmbedding(ctx, tx, fp.ModelIdentity, e, weight, now); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return wrap("upsert", err)
	}
	log.Debug().
		Str("component", "storage").
		Str("model", fp.ModelIdentity).
		Int("features", len(fp.Features)).
		Int("embeddings", len(fp.Embeddings)).
		Int("runs", fp.Runs).
		Msg("Fingerprint upserted")
	return nil
}

// upsertModelRow creates the model row or, when the write carries a
// heuristic vector, adds runs to its sample count. Embedding-only writes
// require the model to exist already.
func (s *Store) upsertModelRow(ctx context.Context, tx *sql.Tx, model string, runs int, heuristic bool, now string) error {
	if heuristic {
		res, err := tx.ExecContext(ctx, s.q(`INSERT INTO fingerprints (model_identity, sample_count, created_at, updated_at)
VALUES (?, ?, ?, ?) ON CONFLICT (model_identity) DO NOTHING`), model, runs, now, now)
		if err != nil {
			return wrap("upsert model", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 1 {
			return nil
		}
	}

	var count int
	err := tx.QueryRowContext(ctx, s.q(`SELECT sample_count FROM fingerprints WHERE model_identity = ?`+s.dialect.forUpdate), model).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return NewNotFoundError("model", model)
	}
	if err != nil {
		return wrap("upsert model", err)
	}
	if heuristic {
		count += runs
	}
	if _, err := tx.ExecContext(ctx, s.q(`UPDATE fingerprints SET sample_count = ?, updated_at = ? WHERE model_identity = ?`), count, now, model); err != nil {
		return wrap("upsert model", err)
	}
	return nil
}

func (s *Store) upsertFeature(ctx context.Context, tx *sql.Tx, model, feature string, score float64, weight int) error {
	var (
		old      float64
		oldCount int
	)
	err := tx.QueryRowContext(ctx, s.q(`SELECT score, sample_count FROM fingerprint_features WHERE model_identity = ? AND feature = ?`), model, feature).Scan(&old, &oldCount)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		oldCount = 0
	case err != nil:
		return wrap("upsert feature", err)
	}

	merged := runningMean(old, oldCount, score, weight)
	_, err = tx.ExecContext(ctx, s.q(`INSERT INTO fingerprint_features (model_identity, feature, score, sample_count)
VALUES (?, ?, ?, ?)
ON CONFLICT (model_identity, feature) DO UPDATE SET score = excluded.score, sample_count = excluded.sample_count`),
		model, feature, merged, oldCount+weight)
	if err != nil {
		return wrap("upsert feature", err)
	}
	return nil
}

func (s *Store) checkDimension(ctx context.Context, tx *sql.Tx, dim int) error {
	var raw string
	err := tx.QueryRowContext(ctx, s.q(`SELECT meta_value FROM store_meta WHERE meta_key = ?`+s.dialect.forUpdate), "embedding_dimension").Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err := tx.ExecContext(ctx, s.q(`INSERT INTO store_meta (meta_key, meta_value) VALUES (?, ?)`), "embedding_dimension", strconv.Itoa(dim))
		return wrap("record dimension", err)
	case err != nil:
		return wrap("read dimension", err)
	}

	stored, err := strconv.Atoi(raw)
	if err != nil || stored <= 0 {
		return &IntegrityError{Detail: fmt.Sprintf("stored embedding dimension %q is invalid", raw)}
	}
	if stored != dim {
		return &DimensionMismatchError{Expected: stored, Got: dim}
	}
	return nil
}

func (s *Store) upsertEmbedding(ctx context.Context, tx *sql.Tx, model string, e EmbeddingFingerprint, weight int, now string) error {
	if err := s.checkDimension(ctx, tx, len(e.Vector)); err != nil {
		return err
	}

	if s.retention == RetentionHistory {
		var next int
		err := tx.QueryRowContext(ctx, s.q(`SELECT COALESCE(MAX(run_index), -1) + 1 FROM embedding_fingerprints WHERE model_identity = ? AND category = ?`), model, e.Category).Scan(&next)
		if err != nil {
			return wrap("upsert embedding", err)
		}
		_, err = tx.ExecContext(ctx, s.q(`INSERT INTO embedding_fingerprints (model_identity, category, run_index, dimension, vector, source_text, sample_count, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`), model, e.Category, next, len(e.Vector), encodeVector(e.Vector), e.SourceText, weight, now)
		return wrap("upsert embedding", err)
	}

	vec := e.Vector
	count := weight
	if s.retention == RetentionAverage {
		var (
			blob     []byte
			dim      int
			oldCount int
		)
		err := tx.QueryRowContext(ctx, s.q(`SELECT vector, dimension, sample_count FROM embedding_fingerprints WHERE model_identity = ? AND category = ? AND run_index = 0`), model, e.Category).Scan(&blob, &dim, &oldCount)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return wrap("upsert embedding", err)
		default:
			old, err := decodeVector(blob, dim)
			if err != nil {
				return err
			}
			vec = make([]float64, len(e.Vector))
			for i := range vec {
				vec[i] = runningMean(old[i], oldCount, e.Vector[i], weight)
			}
			count = oldCount + weight
		}
	}

	_, err := tx.ExecContext(ctx, s.q(`INSERT INTO embedding_fingerprints (model_identity, category, run_index, dimension, vector, source_text, sample_count, updated_at)
VALUES (?, ?, 0, ?, ?, ?, ?, ?)
ON CONFLICT (model_identity, category, run_index) DO UPDATE SET
	dimension = excluded.dimension, vector = excluded.vector, source_text = excluded.source_text,
	sample_count = excluded.sample_count, updated_at = excluded.updated_at`),
		model, e.Category, len(vec), encodeVector(vec), e.SourceText, count, now)
	return wrap("upsert embedding", err)
}

const heuristicsQuery = `SELECT f.model_identity, f.sample_count, f.created_at, f.updated_at, ff.feature, ff.score, ff.sample_count
FROM fingerprints f
LEFT JOIN fingerprint_features ff ON ff.model_identity = f.model_identity`

// LoadAllHeuristics streams every stored heuristic fingerprint ordered by
// model identity. Rows are read lazily as the sequence is consumed.
func (s *Store) LoadAllHeuristics(ctx context.Context) iter.Seq2[HeuristicFingerprint, error] {
	return func(yield func(HeuristicFingerprint, error) bool) {
		if err := s.ensureOpen(); err != nil {
			yield(HeuristicFingerprint{}, err)
			return
		}
		rows, err := s.db.QueryContext(ctx, heuristicsQuery+` ORDER BY f.model_identity, ff.feature`)
		if err != nil {
			yield(HeuristicFingerprint{}, wrap("load heuristics", err))
			return
		}
		defer func() { _ = rows.Close() }()

		var cur *HeuristicFingerprint
		for rows.Next() {
			fp, feature, score, count, err := scanHeuristicRow(rows)
			if err != nil {
				yield(HeuristicFingerprint{}, err)
				return
			}
			if cur != nil && cur.ModelIdentity != fp.ModelIdentity {
				if !yield(*cur, nil) {
					return
				}
				cur = nil
			}
			if cur == nil {
				cur = &fp
			}
			if feature.Valid {
				cur.Features[feature.String] = score.Float64
				cur.FeatureCounts[feature.String] = int(count.Int64)
			}
		}
		if err := rows.Err(); err != nil {
			yield(HeuristicFingerprint{}, wrap("load heuristics", err))
			return
		}
		if cur != nil {
			yield(*cur, nil)
		}
	}
}

func scanHeuristicRow(rows *sql.Rows) (HeuristicFingerprint, sql.NullString, sql.NullFloat64, sql.NullInt64, error) {
	var (
		fp               HeuristicFingerprint
		created, updated string
		feature          sql.NullString
		score            sql.NullFloat64
		count            sql.NullInt64
	)
	if err := rows.Scan(&fp.ModelIdentity, &fp.SampleCount, &created, &updated, &feature, &score, &count); err != nil {
		return fp, feature, score, count, wrap("load heuristics", err)
	}
	if fp.SampleCount <= 0 {
		return fp, feature, score, count, &IntegrityError{Detail: fmt.Sprintf("model %q has sample count %d", fp.ModelIdentity, fp.SampleCount)}
	}
	if score.Valid && (score.Float64 < 0 || score.Float64 > 1) {
		return fp, feature, score, count, &IntegrityError{Detail: fmt.Sprintf("model %q feature %q score %v outside [0,1]", fp.ModelIdentity, feature.String, score.Float64)}
	}
	fp.CreatedAt = parseTime(created)
	fp.UpdatedAt = parseTime(updated)
	fp.Features = make(map[string]float64)
	fp.FeatureCounts = make(map[string]int)
	return fp, feature, score, count, nil
}

// LoadAllEmbeddings streams every stored embedding ordered by model,
// category and run.
func (s *Store) LoadAllEmbeddings(ctx context.Context) iter.Seq2[EmbeddingFingerprint, error] {
	return func(yield func(EmbeddingFingerprint, error) bool) {
		if err := s.ensureOpen(); err != nil {
			yield(EmbeddingFingerprint{}, err)
			return
		}
		rows, err := s.db.QueryContext(ctx, `SELECT model_identity, category, run_index, dimension, vector, source_text, sample_count, updated_at
FROM embedding_fingerprints ORDER BY model_identity, category, run_index`)
		if err != nil {
			yield(EmbeddingFingerprint{}, wrap("load embeddings", err))
			return
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			var (
				e       EmbeddingFingerprint
				dim     int
				blob    []byte
				updated string
			)
			if err := rows.Scan(&e.ModelIdentity, &e.Category, &e.RunIndex, &dim, &blob, &e.SourceText, &e.SampleCount, &updated); err != nil {
				yield(EmbeddingFingerprint{}, wrap("load embeddings", err))
				return
			}
			vec, err := decodeVector(blob, dim)
			if err != nil {
				yield(EmbeddingFingerprint{}, err)
				return
			}
			e.Vector = vec
			e.UpdatedAt = parseTime(updated)
			if !yield(e, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(EmbeddingFingerprint{}, wrap("load embeddings", err))
		}
	}
}

// GetHeuristic returns the stored heuristic fingerprint of one model.
func (s *Store) GetHeuristic(ctx context.Context, model string) (HeuristicFingerprint, error) {
	if err := s.ensureOpen(); err != nil {
		return HeuristicFingerprint{}, err
	}
	rows, err := s.db.QueryContext(ctx, s.q(heuristicsQuery+` WHERE f.model_identity = ? ORDER BY ff.feature`), model)
	if err != nil {
		return HeuristicFingerprint{}, wrap("get heuristic", err)
	}
	defer func() { _ = rows.Close() }()

	var cur *HeuristicFingerprint
	for rows.Next() {
		fp, feature, score, count, err := scanHeuristicRow(rows)
		if err != nil {
			return HeuristicFingerprint{}, err
		}
		if cur == nil {
			cur = &fp
		}
		if feature.Valid {
			cur.Features[feature.String] = score.Float64
			cur.FeatureCounts[feature.String] = int(count.Int64)
		}
	}
	if err := rows.Err(); err != nil {
		return HeuristicFingerprint{}, wrap("get heuristic", err)
	}
	if cur == nil {
		return HeuristicFingerprint{}, NewNotFoundError("model", model)
	}
	return *cur, nil
}

// ListModels returns one page of stored models ordered by identity.
func (s *Store) ListModels(ctx context.Context, opts ListOptions) (ModelPage, error) {
	if err := s.ensureOpen(); err != nil {
		return ModelPage{}, err
	}
	cursor, err := DecodeCursor(opts.Cursor)
	if err != nil {
		return ModelPage{}, NewInvalidInputError("cursor", err.Error())
	}
	after := ""
	if cursor != nil {
		after = cursor.LastModel
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, s.q(`SELECT f.model_identity, f.sample_count, f.updated_at,
	(SELECT COUNT(*) FROM fingerprint_features ff WHERE ff.model_identity = f.model_identity),
	(SELECT COUNT(*) FROM embedding_fingerprints e WHERE e.model_identity = f.model_identity)
FROM fingerprints f WHERE f.model_identity > ? ORDER BY f.model_identity LIMIT ?`), after, limit+1)
	if err != nil {
		return ModelPage{}, wrap("list models", err)
	}
	defer func() { _ = rows.Close() }()

	var page ModelPage
	for rows.Next() {
		var (
			m       ModelSummary
			updated string
		)
		if err := rows.Scan(&m.ModelIdentity, &m.SampleCount, &updated, &m.FeatureCount, &m.EmbeddingCount); err != nil {
			return ModelPage{}, wrap("list models", err)
		}
		m.UpdatedAt = parseTime(updated)
		page.Models = append(page.Models, m)
	}
	if err := rows.Err(); err != nil {
		return ModelPage{}, wrap("list models", err)
	}
	if len(page.Models) > limit {
		page.Models = page.Models[:limit]
		page.NextCursor = EncodeCursor(&Cursor{LastModel: page.Models[limit-1].ModelIdentity})
	}
	return page, nil
}

// DeleteModel removes a model and all of its embeddings. It returns a
// NotFoundError when the model is not stored.
func (s *Store) DeleteModel(ctx context.Context, model string) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	release := s.locks.Lock(model)
	defer release()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("delete model", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range []string{
		`DELETE FROM embedding_fingerprints WHERE model_identity = ?`,
		`DELETE FROM fingerprint_features WHERE model_identity = ?`,
	} {
		if _, err := tx.ExecContext(ctx, s.q(stmt), model); err != nil {
			return wrap("delete model", err)
		}
	}
	res, err := tx.ExecContext(ctx, s.q(`DELETE FROM fingerprints WHERE model_identity = ?`), model)
	if err != nil {
		return wrap("delete model", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrap("delete model", err)
	}
	if n == 0 {
		return NewNotFoundError("model", model)
	}
	if err := tx.Commit(); err != nil {
		return wrap("delete model", err)
	}
	log.Info().Str("component", "storage").Str("model", model).Msg("Model deleted")
	return nil
}

// Dimension returns the embedding dimensionality recorded for the store, or
// zero when no embedding has been stored yet.
func (s *Store) Dimension(ctx context.Context) (int, error) {
	if err := s.ensureOpen(); err != nil {
		return 0, err
	}
	var raw string
	err := s.db.QueryRowContext(ctx, s.q(`SELECT meta_value FROM store_meta WHERE meta_key = ?`), "embedding_dimension").Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, wrap("dimension", err)
	}
	dim, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &IntegrityError{Detail: fmt.Sprintf("stored embedding dimension %q is invalid", raw)}
	}
	return dim, nil
}
