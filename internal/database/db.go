// Package database wraps the SQLite connection used as the system's
// single relational store (spec: "a file-local SQL database suffices").
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // pure Go SQLite driver
)

// Profile selects a pragma/pool tuning preset for the connection.
type Profile int

const (
	// ProfileStandard balances durability and throughput; the default
	// for the orchestrator's own writes.
	ProfileStandard Profile = iota
	// ProfileLedger favors durability over speed: full synchronous
	// writes, used for any append-only audit-style table.
	ProfileLedger
	// ProfileCache favors speed over durability: relaxed synchronous
	// mode, used for read-heavy/rebuildable data.
	ProfileCache
)

// DB wraps a SQLite connection tuned for this service's access pattern.
type DB struct {
	conn *sql.DB
	path string
	log  zerolog.Logger
}

// New opens (creating if absent) the SQLite database at dbPath with the
// given tuning profile and returns a ready-to-use connection pool.
func New(dbPath string, profile Profile, log zerolog.Logger) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := dbPath + "?" + buildPragmaString(profile)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	configureConnectionPool(conn, profile)

	return &DB{
		conn: conn,
		path: dbPath,
		log:  log.With().Str("component", "database").Logger(),
	}, nil
}

func buildPragmaString(profile Profile) string {
	synchronous := "NORMAL"
	if profile == ProfileLedger {
		synchronous = "FULL"
	} else if profile == ProfileCache {
		synchronous = "OFF"
	}

	return fmt.Sprintf(
		"_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=synchronous(%s)&_pragma=busy_timeout(5000)",
		synchronous,
	)
}

func configureConnectionPool(conn *sql.DB, profile Profile) {
	switch profile {
	case ProfileCache:
		conn.SetMaxOpenConns(10)
		conn.SetMaxIdleConns(10)
	default:
		conn.SetMaxOpenConns(1) // SQLite writer serialization; WAL allows concurrent readers via separate conns in practice, but a single writer keeps this process simple and correct.
		conn.SetMaxIdleConns(1)
	}
	conn.SetConnMaxLifetime(time.Hour)
}

// Conn returns the underlying *sql.DB, for repositories to embed.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Migrate applies the embedded schema. It is idempotent and
// forward-only: every statement uses CREATE TABLE/INDEX IF NOT EXISTS.
func (db *DB) Migrate() error {
	if _, err := db.conn.Exec(Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	db.log.Info().Msg("schema migrated")
	return nil
}

// HealthCheck verifies the connection is alive and can execute a query.
func (db *DB) HealthCheck(ctx context.Context) error {
	var one int
	if err := db.conn.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	return nil
}

// WALCheckpoint forces a WAL checkpoint, useful before backups.
func (db *DB) WALCheckpoint(ctx context.Context) error {
	_, err := db.conn.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
	if err != nil {
		return fmt.Errorf("wal checkpoint: %w", err)
	}
	return nil
}

// Begin starts a new transaction.
func (db *DB) Begin() (*sql.Tx, error) {
	return db.conn.Begin()
}
