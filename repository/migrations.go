package repository

import (
	"context"
	"fmt"
)

// schema defines the three persisted collections. Tokens and audit logs
// cascade on account deletion; audit logs are otherwise append-only.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		api_key TEXT NOT NULL,
		api_secret_encrypted TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'never_authenticated',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_accounts_status ON accounts (status)`,
	`CREATE TABLE IF NOT EXISTS tokens (
		id UUID PRIMARY KEY,
		account_id UUID NOT NULL UNIQUE REFERENCES accounts(id) ON DELETE CASCADE,
		access_token_encrypted TEXT NOT NULL,
		user_id TEXT NOT NULL,
		issued_at TIMESTAMPTZ NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		is_valid BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tokens_overdue ON tokens (expires_at) WHERE is_valid`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id UUID PRIMARY KEY,
		account_id UUID NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		event TEXT NOT NULL,
		message TEXT NOT NULL DEFAULT '',
		metadata JSONB,
		timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_logs_account ON audit_logs (account_id, timestamp DESC)`,
}

// Migrate creates the schema if it does not exist. Statements are
// idempotent, so running at every startup is safe.
func (r *Repository) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return nil
}
