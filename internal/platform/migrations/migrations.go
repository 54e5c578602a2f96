// Package migrations creates the oracle layer's database schema. Statements
// are idempotent so Apply can run at every daemon start.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

var statements = []string{
	`CREATE TABLE IF NOT EXISTS oracle_nebulas (
		nebula_id     BIGINT PRIMARY KEY,
		name          TEXT NOT NULL,
		instance      TEXT NOT NULL,
		total_oracles BIGINT NOT NULL DEFAULT 0,
		created_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS oracle_records (
		instance            TEXT NOT NULL,
		oracle_id           BIGINT NOT NULL,
		initialized         BOOLEAN NOT NULL,
		deleted             BOOLEAN NOT NULL,
		display_name        TEXT NOT NULL DEFAULT '',
		underlying          TEXT NOT NULL DEFAULT '',
		pool_tokens         JSONB,
		pool_token_decimals JSONB,
		price_feeds         JSONB,
		price_feed_decimals JSONB,
		registered_at       TIMESTAMPTZ,
		PRIMARY KEY (instance, oracle_id)
	)`,
	`CREATE TABLE IF NOT EXISTS oracle_events (
		id          TEXT PRIMARY KEY,
		kind        TEXT NOT NULL,
		instance    TEXT NOT NULL DEFAULT '',
		subject     TEXT NOT NULL DEFAULT '',
		caller      TEXT NOT NULL DEFAULT '',
		record      JSONB,
		occurred_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS oracle_price_snapshots (
		id          TEXT PRIMARY KEY,
		token       TEXT NOT NULL,
		instance    TEXT NOT NULL,
		price       TEXT NOT NULL,
		observed_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_oracle_events_instance ON oracle_events (instance, occurred_at)`,
	`CREATE INDEX IF NOT EXISTS idx_oracle_snapshots_token ON oracle_price_snapshots (token, observed_at DESC)`,
}

// Apply executes every schema statement in order.
func Apply(ctx context.Context, db *sql.DB) error {
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
