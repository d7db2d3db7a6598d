// Package store persists usage history and limit overrides in SQLite.
// The process works fine without it; everything here is optional wiring.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/stockwatchdog/marketdata/internal/observ"
	"github.com/stockwatchdog/marketdata/internal/ratelimit"
	"github.com/stockwatchdog/marketdata/internal/usage"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS api_usage (
    id TEXT PRIMARY KEY,
    api_name TEXT NOT NULL,
    response_status INTEGER NOT NULL,
    symbol TEXT,
    request_type TEXT,
    processing_time_ms INTEGER,
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_api_usage_api_created ON api_usage(api_name, created_at);

CREATE TABLE IF NOT EXISTS api_limits (
    api_name TEXT PRIMARY KEY,
    requests_per_hour INTEGER NOT NULL,
    requests_per_minute INTEGER NOT NULL,
    burst_limit INTEGER NOT NULL,
    backoff_enabled INTEGER NOT NULL,
    base_delay_seconds REAL NOT NULL,
    max_delay_seconds REAL NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and ensures the
// schema exists.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
		dsn = path + "?_busy_timeout=5000&_journal_mode=WAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// LogUsage implements usage.Sink. Insert failures are logged and swallowed;
// usage recording never fails a fetch.
func (s *Store) LogUsage(e usage.Entry) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO api_usage (id, api_name, response_status, symbol, request_type, processing_time_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.API, e.ResponseStatus, e.Symbol, e.RequestType, e.ProcessingTimeMs, e.CreatedAt,
	)
	if err != nil {
		observ.Error("usage_insert_failed", map[string]any{"api": e.API, "error": err.Error()})
	}
}

// APIUsageStat aggregates one api's recorded requests.
type APIUsageStat struct {
	API             string    `json:"api_name"`
	Requests        int       `json:"requests"`
	Errors          int       `json:"errors"`
	AvgProcessingMs float64   `json:"avg_processing_ms"`
	LastRequestAt   time.Time `json:"last_request_at"`
}

// UsageStats aggregates recorded requests per api since the given time.
// Transport failures are recorded with status zero and count as errors,
// as does anything 400 and up.
func (s *Store) UsageStats(ctx context.Context, since time.Time) ([]APIUsageStat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT api_name,
		        COUNT(*),
		        SUM(CASE WHEN response_status >= 400 OR response_status = 0 THEN 1 ELSE 0 END),
		        COALESCE(AVG(processing_time_ms), 0),
		        MAX(created_at)
		 FROM api_usage
		 WHERE created_at >= ?
		 GROUP BY api_name
		 ORDER BY api_name`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage stats: %w", err)
	}
	defer rows.Close()

	var stats []APIUsageStat
	for rows.Next() {
		var st APIUsageStat
		if err := rows.Scan(&st.API, &st.Requests, &st.Errors, &st.AvgProcessingMs, &st.LastRequestAt); err != nil {
			return nil, fmt.Errorf("failed to scan usage stat: %w", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// RecentEntries returns the newest recorded requests, newest first.
func (s *Store) RecentEntries(ctx context.Context, limit int) ([]usage.Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, api_name, response_status, COALESCE(symbol, ''), COALESCE(request_type, ''), COALESCE(processing_time_ms, 0), created_at
		 FROM api_usage
		 ORDER BY created_at DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent usage: %w", err)
	}
	defer rows.Close()

	var entries []usage.Entry
	for rows.Next() {
		var e usage.Entry
		if err := rows.Scan(&e.ID, &e.API, &e.ResponseStatus, &e.Symbol, &e.RequestType, &e.ProcessingTimeMs, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan usage entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SaveLimits persists an api's limit configuration.
func (s *Store) SaveLimits(ctx context.Context, api string, l ratelimit.Limits) error {
	enabled := 0
	if l.BackoffEnabled {
		enabled = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO api_limits (api_name, requests_per_hour, requests_per_minute, burst_limit, backoff_enabled, base_delay_seconds, max_delay_seconds, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(api_name) DO UPDATE SET
		   requests_per_hour = excluded.requests_per_hour,
		   requests_per_minute = excluded.requests_per_minute,
		   burst_limit = excluded.burst_limit,
		   backoff_enabled = excluded.backoff_enabled,
		   base_delay_seconds = excluded.base_delay_seconds,
		   max_delay_seconds = excluded.max_delay_seconds,
		   updated_at = excluded.updated_at`,
		api, l.RequestsPerHour, l.RequestsPerMinute, l.BurstLimit, enabled,
		l.BaseDelay.Seconds(), l.MaxDelay.Seconds(), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save limits for %s: %w", api, err)
	}
	return nil
}

// LoadLimits returns every persisted limit configuration.
func (s *Store) LoadLimits(ctx context.Context) (map[string]ratelimit.Limits, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT api_name, requests_per_hour, requests_per_minute, burst_limit, backoff_enabled, base_delay_seconds, max_delay_seconds
		 FROM api_limits`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query limits: %w", err)
	}
	defer rows.Close()

	out := make(map[string]ratelimit.Limits)
	for rows.Next() {
		var api string
		var l ratelimit.Limits
		var enabled int
		var baseSec, maxSec float64
		if err := rows.Scan(&api, &l.RequestsPerHour, &l.RequestsPerMinute, &l.BurstLimit, &enabled, &baseSec, &maxSec); err != nil {
			return nil, fmt.Errorf("failed to scan limits: %w", err)
		}
		l.BackoffEnabled = enabled != 0
		l.BaseDelay = time.Duration(baseSec * float64(time.Second))
		l.MaxDelay = time.Duration(maxSec * float64(time.Second))
		out[api] = l
	}
	return out, rows.Err()
}
