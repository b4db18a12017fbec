package storage

import (
	"fmt"
	"strconv"
	"strings"
)

const schemaVersion = "1"

// dialect captures the SQL differences between the supported drivers.
type dialect struct {
	name       string
	idColumn   string
	realType   string
	blobType   string
	forUpdate  string
	tablesStmt string
	positional bool
}

var (
	sqliteDialect = dialect{
		name:       DriverSQLite,
		idColumn:   "INTEGER PRIMARY KEY AUTOINCREMENT",
		realType:   "REAL",
		blobType:   "BLOB",
		tablesStmt: "SELECT name FROM sqlite_master WHERE type = 'table'",
	}
	postgresDialect = dialect{
		name:       DriverPostgres,
		idColumn:   "BIGSERIAL PRIMARY KEY",
		realType:   "DOUBLE PRECISION",
		blobType:   "BYTEA",
		forUpdate:  " FOR UPDATE",
		tablesStmt: "SELECT table_name FROM information_schema.tables WHERE table_schema = current_schema()",
		positional: true,
	}
)

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case DriverSQLite:
		return sqliteDialect, nil
	case DriverPostgres:
		return postgresDialect, nil
	}
	return dialect{}, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
}

// rebind rewrites '?' placeholders into the driver's native form.
func (d dialect) rebind(query string) string {
	if !d.positional {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// requiredTables lists the tables a healthy store must contain.
var requiredTables = []string{
	"fingerprints",
	"fingerprint_features",
	"embedding_fingerprints",
	"store_meta",
}

func (d dialect) schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS fingerprints (
	model_identity TEXT PRIMARY KEY,
	sample_count   INTEGER NOT NULL CHECK (sample_count > 0),
	created_at     TEXT NOT NULL,
	updated_at     TEXT NOT NULL
)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS fingerprint_features (
	model_identity TEXT NOT NULL REFERENCES fingerprints(model_identity) ON DELETE CASCADE,
	feature        TEXT NOT NULL,
	score          %s NOT NULL CHECK (score >= 0 AND score <= 1),
	sample_count   INTEGER NOT NULL CHECK (sample_count > 0),
	PRIMARY KEY (model_identity, feature)
)`, d.realType),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS embedding_fingerprints (
	id             %s,
	model_identity TEXT NOT NULL REFERENCES fingerprints(model_identity) ON DELETE CASCADE,
	category       TEXT NOT NULL,
	run_index      INTEGER NOT NULL DEFAULT 0,
	dimension      INTEGER NOT NULL CHECK (dimension > 0),
	vector         %s NOT NULL,
	source_text    TEXT NOT NULL DEFAULT '',
	sample_count   INTEGER NOT NULL CHECK (sample_count > 0),
	updated_at     TEXT NOT NULL,
	UNIQUE (model_identity, category, run_index)
)`, d.idColumn, d.blobType),
		`CREATE INDEX IF NOT EXISTS idx_embedding_fingerprints_model ON embedding_fingerprints(model_identity)`,
		`CREATE TABLE IF NOT EXISTS store_meta (
	meta_key   TEXT PRIMARY KEY,
	meta_value TEXT NOT NULL
)`,
	}
}
