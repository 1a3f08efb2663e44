// Package store persists scored road condition records in SQLite and
// serves the bounding-box range lookups used by the query engine.
package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

type DB struct {
	*sql.DB
}

// NewDB opens (or creates) the SQLite database at path and ensures the
// schema exists. WAL mode keeps concurrent read queries from blocking
// the ingestion writer.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	return db, nil
}

// OpenDB opens the database with pragmas applied but without touching
// the schema. The migrate command uses this so golang-migrate owns the
// schema instead of the inline bootstrap.
func OpenDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	return &DB{db}, nil
}

// schema matches migrations/0001_init.up.sql; both use IF NOT EXISTS so
// a database bootstrapped either way converges on the same shape.
const schema = `
	CREATE TABLE IF NOT EXISTS road_conditions (
		id                TEXT PRIMARY KEY,
		session_id        TEXT NOT NULL,
		latitude          DOUBLE NOT NULL,
		longitude         DOUBLE NOT NULL,
		score             DOUBLE NOT NULL,
		category          TEXT NOT NULL,
		confidence        DOUBLE NOT NULL,
		features          TEXT NOT NULL,
		recorded_at_ms    BIGINT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_road_conditions_lat_lon
		ON road_conditions(latitude, longitude);
	CREATE INDEX IF NOT EXISTS idx_road_conditions_recorded_at
		ON road_conditions(recorded_at_ms);
	CREATE TABLE IF NOT EXISTS road_warnings (
		id                TEXT PRIMARY KEY,
		latitude          DOUBLE NOT NULL,
		longitude         DOUBLE NOT NULL,
		severity          TEXT NOT NULL,
		score             DOUBLE NOT NULL,
		created_at_ms     BIGINT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_road_warnings_created_at
		ON road_warnings(created_at_ms);
`
