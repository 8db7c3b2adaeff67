// Package metricstore implements orchestrator.MetricSink against durable
// and outward-facing backends, adapted from the teacher's local cell
// database (pkg/gps/local_cell_database.go, itself a sqlite-backed
// observation store) and its MQTT client (pkg/mqtt/client.go).
package metricstore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/adaptivebreaker/breaker/pkg/breaker"
	"github.com/adaptivebreaker/breaker/pkg/logx"
)

// SQLiteConfig configures the on-disk snapshot store.
type SQLiteConfig struct {
	DatabasePath    string
	MaxRowsPerName  int
	RetentionPeriod time.Duration
}

// DefaultSQLiteConfig mirrors the teacher's local-database defaults, scaled
// to snapshot-sized rows instead of GPS observations.
func DefaultSQLiteConfig() SQLiteConfig {
	return SQLiteConfig{
		DatabasePath:    "/var/lib/adaptivebreaker/snapshots.db",
		MaxRowsPerName:  100_000,
		RetentionPeriod: 7 * 24 * time.Hour,
	}
}

// SQLiteStore is a durable orchestrator.MetricSink: every decision tick's
// snapshot is inserted as a row, and warm-start reads recent rows back as
// synthetic snapshots built from their aggregate fields.
type SQLiteStore struct {
	db     *sql.DB
	logger *logx.Logger
	config SQLiteConfig
}

// NewSQLiteStore opens (creating if necessary) the sqlite database at
// config.DatabasePath and ensures its schema exists.
func NewSQLiteStore(config SQLiteConfig, logger *logx.Logger) (*SQLiteStore, error) {
	defaults := DefaultSQLiteConfig()
	if config.DatabasePath == "" {
		config.DatabasePath = defaults.DatabasePath
	}
	if config.MaxRowsPerName <= 0 {
		config.MaxRowsPerName = defaults.MaxRowsPerName
	}
	if config.RetentionPeriod <= 0 {
		config.RetentionPeriod = defaults.RetentionPeriod
	}

	if dir := filepath.Dir(config.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("metricstore: create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", config.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("metricstore: open database: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger, config: config}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		breaker_name TEXT NOT NULL,
		observed_at DATETIME NOT NULL,
		p95_latency_ms REAL NOT NULL,
		error_rate REAL NOT NULL,
		success_rate REAL NOT NULL,
		concurrency REAL NOT NULL,
		system_load REAL NOT NULL,
		time_of_day REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_snapshots_name_time ON snapshots(breaker_name, observed_at);
	`
	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("metricstore: init schema: %w", err)
	}
	return nil
}

// Store persists one snapshot's aggregate fields for breakerName.
func (s *SQLiteStore) Store(snapshot *breaker.Snapshot, breakerName string) error {
	if snapshot == nil {
		return nil
	}
	_, err := s.db.Exec(
		`INSERT INTO snapshots (breaker_name, observed_at, p95_latency_ms, error_rate, success_rate, concurrency, system_load, time_of_day)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		breakerName, time.Now(),
		float64(snapshot.P95Latency())/float64(time.Millisecond),
		snapshot.ErrorRate(), snapshot.SuccessRate(), snapshot.Concurrency(), snapshot.SystemLoad(), snapshot.TimeOfDay(),
	)
	if err != nil {
		return fmt.Errorf("metricstore: insert snapshot: %w", err)
	}
	return nil
}

// LoadHistorical reads up to config.MaxRowsPerName rows for breakerName
// observed within lookback, oldest first, and rebuilds a synthetic
// aggregate-only Snapshot for each (the underlying per-call records are not
// retained, matching spec.md §6's "opaque persisted representation").
func (s *SQLiteStore) LoadHistorical(breakerName string, lookback time.Duration) ([]*breaker.Snapshot, error) {
	since := time.Now().Add(-lookback)
	rows, err := s.db.Query(
		`SELECT p95_latency_ms, error_rate, success_rate, concurrency, system_load, time_of_day
		 FROM snapshots WHERE breaker_name = ? AND observed_at >= ?
		 ORDER BY observed_at ASC LIMIT ?`,
		breakerName, since, s.config.MaxRowsPerName,
	)
	if err != nil {
		return nil, fmt.Errorf("metricstore: query history: %w", err)
	}
	defer rows.Close()

	var out []*breaker.Snapshot
	for rows.Next() {
		var p95ms, errRate, successRate, concurrency, load, tod float64
		if err := rows.Scan(&p95ms, &errRate, &successRate, &concurrency, &load, &tod); err != nil {
			return nil, fmt.Errorf("metricstore: scan history row: %w", err)
		}
		out = append(out, breaker.NewAggregateSnapshot(
			time.Duration(p95ms*float64(time.Millisecond)), errRate, successRate, concurrency, load, tod,
		))
	}
	return out, rows.Err()
}

// Shutdown prunes rows older than config.RetentionPeriod and closes the
// database.
func (s *SQLiteStore) Shutdown() error {
	if s.config.RetentionPeriod > 0 {
		cutoff := time.Now().Add(-s.config.RetentionPeriod)
		if _, err := s.db.Exec(`DELETE FROM snapshots WHERE observed_at < ?`, cutoff); err != nil {
			s.logger.Warn("metricstore retention prune failed", "error", err)
		}
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("metricstore: close: %w", err)
	}
	return nil
}
