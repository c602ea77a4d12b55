// Package postgres provides the Postgres-backed backfill audit trail.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/product-directory/internal/backfill"
)

// DefaultTable holds one row per processed record; run summaries go to DefaultTable + "_runs".
const DefaultTable = "backfill_outcomes"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for audit rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// OutcomeStore writes per-record outcomes and run summaries.
type OutcomeStore struct {
	pool  execCloser
	table string
}

// NewOutcomeStore connects to Postgres using cfg.
func NewOutcomeStore(ctx context.Context, cfg Config) (*OutcomeStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &OutcomeStore{pool: pool, table: table}, nil
}

// NewOutcomeStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewOutcomeStoreWithPool(pool execCloser, table string) (*OutcomeStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &OutcomeStore{pool: pool, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *OutcomeStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the outcome and run tables when they do not exist.
func (s *OutcomeStore) EnsureSchema(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id       TEXT        NOT NULL,
	record_id    TEXT        NOT NULL,
	domain       TEXT        NOT NULL DEFAULT '',
	stage        TEXT        NOT NULL,
	succeeded    BOOLEAN     NOT NULL,
	failure_kind TEXT        NOT NULL DEFAULT '',
	hosted_url   TEXT        NOT NULL DEFAULT '',
	error_text   TEXT        NOT NULL DEFAULT '',
	started_at   TIMESTAMPTZ NOT NULL,
	finished_at  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, record_id)
)`, s.table),
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s_runs (
	run_id      TEXT PRIMARY KEY,
	total       INTEGER     NOT NULL,
	skipped     INTEGER     NOT NULL,
	processed   INTEGER     NOT NULL,
	succeeded   INTEGER     NOT NULL,
	failed      INTEGER     NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL
)`, s.table),
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// RecordOutcome inserts one audit row for a processed record.
func (s *OutcomeStore) RecordOutcome(ctx context.Context, outcome backfill.Outcome) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("outcome store is not configured")
	}
	if outcome.RunID == "" || outcome.RecordID == "" {
		return fmt.Errorf("run id and record id are required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	record_id,
	domain,
	stage,
	succeeded,
	failure_kind,
	hosted_url,
	error_text,
	started_at,
	finished_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)
ON CONFLICT (run_id, record_id) DO NOTHING`, s.table)

	args := []any{
		outcome.RunID,
		outcome.RecordID,
		outcome.Domain,
		string(outcome.Stage),
		outcome.Succeeded,
		string(outcome.Failure),
		outcome.HostedURL,
		outcome.ErrorText(),
		outcome.StartedAt,
		outcome.FinishedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	return nil
}

// RecordSummary upserts the totals of a run.
func (s *OutcomeStore) RecordSummary(ctx context.Context, summary backfill.Summary) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("outcome store is not configured")
	}
	if summary.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s_runs (
	run_id,
	total,
	skipped,
	processed,
	succeeded,
	failed,
	started_at,
	finished_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8
)
ON CONFLICT (run_id) DO UPDATE SET
	total = EXCLUDED.total,
	skipped = EXCLUDED.skipped,
	processed = EXCLUDED.processed,
	succeeded = EXCLUDED.succeeded,
	failed = EXCLUDED.failed,
	finished_at = EXCLUDED.finished_at`, s.table)

	args := []any{
		summary.RunID,
		summary.Total,
		summary.Skipped,
		summary.Processed,
		summary.Succeeded,
		summary.Failed,
		summary.StartedAt,
		summary.FinishedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert run summary: %w", err)
	}
	return nil
}
