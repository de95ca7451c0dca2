package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is satisfied by *pgxpool.Pool and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS price_ticks (
		ts               TIMESTAMPTZ NOT NULL,
		commodity        TEXT        NOT NULL,
		market           TEXT        NOT NULL,
		state            TEXT        NOT NULL DEFAULT '',
		district         TEXT        NOT NULL DEFAULT '',
		price            INTEGER     NOT NULL,
		price_change     INTEGER     NOT NULL,
		price_change_pct DOUBLE PRECISION NOT NULL,
		volume           INTEGER     NOT NULL,
		trend            TEXT        NOT NULL,
		source           TEXT        NOT NULL,
		PRIMARY KEY (commodity, market, ts)
	)`,
	`CREATE TABLE IF NOT EXISTS market_alerts (
		id         TEXT        PRIMARY KEY,
		ts         TIMESTAMPTZ NOT NULL,
		commodity  TEXT        NOT NULL,
		market     TEXT        NOT NULL,
		alert_type TEXT        NOT NULL,
		priority   TEXT        NOT NULL,
		message    TEXT        NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS market_alerts_ts_idx ON market_alerts (ts DESC)`,
}

const hypertable = `SELECT create_hypertable('price_ticks', 'ts', if_not_exists => TRUE)`

// EnsureSchema creates the tables if they do not exist. Converting
// price_ticks to a hypertable needs the timescaledb extension; when that
// fails the plain table is kept and the error is logged.
func EnsureSchema(ctx context.Context, db Execer, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	for _, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}

	if _, err := db.Exec(ctx, hypertable); err != nil {
		logger.Warn("price_ticks left as plain table", "error", err)
	}
	return nil
}
