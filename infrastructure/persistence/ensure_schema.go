package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id BIGSERIAL PRIMARY KEY,
		user_id TEXT NULL,
		platform TEXT NOT NULL,
		access_token TEXT NOT NULL DEFAULT '',
		refresh_token TEXT NOT NULL DEFAULT '',
		token_expires_at TIMESTAMPTZ NULL,
		metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
		auto_publish BOOLEAN NOT NULL DEFAULT FALSE,
		account_type TEXT NOT NULL DEFAULT 'personal',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS ix_accounts_auto_publish ON accounts (auto_publish, account_type, user_id)`,
	`CREATE TABLE IF NOT EXISTS publish_records (
		id BIGSERIAL PRIMARY KEY,
		platform TEXT NOT NULL,
		content_id TEXT NOT NULL,
		account_id BIGINT NULL REFERENCES accounts(id),
		account_key BIGINT GENERATED ALWAYS AS (COALESCE(account_id, 0)) STORED,
		status TEXT NOT NULL,
		platform_post_id TEXT NULL,
		public_url TEXT NULL,
		error_message TEXT NULL,
		views BIGINT NOT NULL DEFAULT 0,
		likes BIGINT NOT NULL DEFAULT 0,
		comments BIGINT NOT NULL DEFAULT 0,
		attempt_count INT NOT NULL DEFAULT 0,
		metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
		published_at TIMESTAMPTZ NULL,
		metrics_updated_at TIMESTAMPTZ NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_publish_records_pair ON publish_records (content_id, platform, account_key)`,
	`CREATE INDEX IF NOT EXISTS ix_publish_records_status ON publish_records (status, updated_at)`,
}

// EnsureSchema creates the account and publish record tables when missing. Safe to call at startup.
func EnsureSchema(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, ddl := range postgresSchema {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
