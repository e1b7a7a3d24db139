package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite
)

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Open opens a DB and ensures schema exists.
func Open(ctx context.Context, driver Driver, dsn string) (*sql.DB, error) {
	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite" // modernc driver
		if dsn == "" {
			dsn = "file:pixelproof.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)"
		}
	case DriverPostgres:
		drvName = "pgx" // pgx stdlib driver
		if dsn == "" {
			dsn = "postgres://localhost:5432/pixelproof?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	if err := EnsureSchema(ctx, db, driver); err != nil {
		return nil, err
	}
	return db, nil
}

func EnsureSchema(ctx context.Context, db *sql.DB, driver Driver) error {
	var schema string
	switch driver {
	case DriverSQLite:
		schema = schemaSQLite
	case DriverPostgres:
		schema = schemaPostgres
	}
	_, err := db.ExecContext(ctx, schema)
	return err
}

const schemaSQLite = `
PRAGMA foreign_keys=ON;

CREATE TABLE IF NOT EXISTS takers (
  id TEXT PRIMARY KEY,
  employee_id TEXT NOT NULL,
  name TEXT NOT NULL,
  role TEXT NOT NULL DEFAULT 'user',
  can_retake BOOLEAN NOT NULL DEFAULT FALSE,
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_takers_identity ON takers (employee_id, name);

CREATE TABLE IF NOT EXISTS images (
  id TEXT PRIMARY KEY,
  file_url TEXT NOT NULL,
  label TEXT NOT NULL,
  reserved BOOLEAN NOT NULL DEFAULT FALSE,
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_images_pool ON images (label, reserved);

CREATE TABLE IF NOT EXISTS quiz_sessions (
  id TEXT PRIMARY KEY,
  taker_id TEXT NOT NULL REFERENCES takers(id),
  questions_json TEXT NOT NULL,
  state TEXT NOT NULL,
  score INTEGER,
  passed BOOLEAN NOT NULL DEFAULT FALSE,
  retest BOOLEAN NOT NULL DEFAULT FALSE,
  created_at INTEGER NOT NULL,
  submitted_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_sessions_taker ON quiz_sessions (taker_id, state);

CREATE TABLE IF NOT EXISTS settings (
  id INTEGER PRIMARY KEY CHECK (id = 1),
  num_questions INTEGER NOT NULL,
  num_options INTEGER NOT NULL,
  passing_score INTEGER NOT NULL
);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS takers (
  id TEXT PRIMARY KEY,
  employee_id TEXT NOT NULL,
  name TEXT NOT NULL,
  role TEXT NOT NULL DEFAULT 'user',
  can_retake BOOLEAN NOT NULL DEFAULT FALSE,
  created_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_takers_identity ON takers (employee_id, name);

CREATE TABLE IF NOT EXISTS images (
  id TEXT PRIMARY KEY,
  file_url TEXT NOT NULL,
  label TEXT NOT NULL,
  reserved BOOLEAN NOT NULL DEFAULT FALSE,
  created_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_images_pool ON images (label, reserved);

CREATE TABLE IF NOT EXISTS quiz_sessions (
  id TEXT PRIMARY KEY,
  taker_id TEXT NOT NULL REFERENCES takers(id),
  questions_json TEXT NOT NULL,
  state TEXT NOT NULL,
  score INTEGER,
  passed BOOLEAN NOT NULL DEFAULT FALSE,
  retest BOOLEAN NOT NULL DEFAULT FALSE,
  created_at BIGINT NOT NULL,
  submitted_at BIGINT
);
CREATE INDEX IF NOT EXISTS idx_sessions_taker ON quiz_sessions (taker_id, state);

CREATE TABLE IF NOT EXISTS settings (
  id INTEGER PRIMARY KEY CHECK (id = 1),
  num_questions INTEGER NOT NULL,
  num_options INTEGER NOT NULL,
  passing_score INTEGER NOT NULL
);
`
