package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"token-vault/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TokenWithAccount is a token row joined with its account metadata
type TokenWithAccount struct {
	models.Token
	AccountName   string
	AccountStatus models.AccountStatus
}

// GetTokenForAccount retrieves the current token for an account.
// Returns ErrNotFound when the account has never been issued one.
func (r *Repository) GetTokenForAccount(ctx context.Context, accountID uuid.UUID) (*models.Token, error) {
	defer observe("select", "tokens", time.Now())

	query := `
		SELECT id, account_id, access_token_encrypted, user_id, issued_at, expires_at, is_valid, created_at
		FROM tokens
		WHERE account_id = $1
	`

	var t models.Token
	err := r.db.QueryRow(ctx, query, accountID).Scan(
		&t.ID,
		&t.AccountID,
		&t.AccessTokenEncrypted,
		&t.UserID,
		&t.IssuedAt,
		&t.ExpiresAt,
		&t.IsValid,
		&t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: token for account %s", ErrNotFound, accountID)
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	return &t, nil
}

// ReplaceToken atomically replaces any prior token for the account with
// the given one. Delete and insert run in a single transaction so the
// account never briefly holds two live tokens.
func (r *Repository) ReplaceToken(ctx context.Context, token *models.Token) error {
	defer observe("replace", "tokens", time.Now())

	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}

	tx, txRepo, err := r.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := txRepo.db.Exec(ctx, `DELETE FROM tokens WHERE account_id = $1`, token.AccountID); err != nil {
		return fmt.Errorf("failed to delete prior token: %w", err)
	}

	query := `
		INSERT INTO tokens (id, account_id, access_token_encrypted, user_id, issued_at, expires_at, is_valid, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING created_at
	`

	err = txRepo.db.QueryRow(ctx, query,
		token.ID,
		token.AccountID,
		token.AccessTokenEncrypted,
		token.UserID,
		token.IssuedAt,
		token.ExpiresAt,
		token.IsValid,
	).Scan(&token.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert token: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit token replacement: %w", err)
	}

	return nil
}

// InvalidateToken flips the token's validity flag off in a single atomic
// update. It reports whether a valid token was actually flipped, which
// makes the operation idempotent for callers.
func (r *Repository) InvalidateToken(ctx context.Context, accountID uuid.UUID) (bool, error) {
	defer observe("update", "tokens", time.Now())

	tag, err := r.db.Exec(ctx,
		`UPDATE tokens SET is_valid = FALSE WHERE account_id = $1 AND is_valid`,
		accountID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to invalidate token: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// ExpireAllValid flips every valid token to invalid and every active
// account to expired, returning the affected account ids for audit
// logging. The account flip is unconditional: an active account whose
// token is already invalid (a crash gap between the token and status
// writes) gets corrected here too. Both updates are single bulk
// statements inside one transaction.
func (r *Repository) ExpireAllValid(ctx context.Context) (models.ExpireResult, []uuid.UUID, error) {
	defer observe("expire_all", "tokens", time.Now())

	return r.expireWhere(ctx, true, `UPDATE tokens SET is_valid = FALSE WHERE is_valid RETURNING account_id`)
}

// ExpireOverdue flips tokens whose expiry has already passed but whose
// validity flag is still set, cascading the account status update. This
// backs the reconciliation job that bounds the staleness window after a
// missed cutoff run.
func (r *Repository) ExpireOverdue(ctx context.Context, now time.Time) (models.ExpireResult, []uuid.UUID, error) {
	defer observe("expire_overdue", "tokens", time.Now())

	return r.expireWhere(ctx, false,
		`UPDATE tokens SET is_valid = FALSE WHERE is_valid AND expires_at <= $1 RETURNING account_id`,
		now,
	)
}

// expireWhere runs a bulk token expiry pass. With allActive set, every
// active account flips to expired regardless of which token rows this
// pass touched; otherwise only the accounts behind the flipped tokens
// are updated.
func (r *Repository) expireWhere(ctx context.Context, allActive bool, tokenUpdate string, args ...any) (models.ExpireResult, []uuid.UUID, error) {
	var result models.ExpireResult

	tx, txRepo, err := r.BeginTx(ctx)
	if err != nil {
		return result, nil, err
	}
	defer tx.Rollback(ctx)

	rows, err := txRepo.db.Query(ctx, tokenUpdate, args...)
	if err != nil {
		return result, nil, fmt.Errorf("failed to expire tokens: %w", err)
	}

	var accountIDs []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return result, nil, fmt.Errorf("failed to scan expired account id: %w", err)
		}
		accountIDs = append(accountIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return result, nil, fmt.Errorf("error iterating expired tokens: %w", err)
	}

	result.TokensExpired = int64(len(accountIDs))

	if allActive {
		tag, err := txRepo.db.Exec(ctx,
			`UPDATE accounts SET status = 'expired', updated_at = NOW() WHERE status = 'active'`,
		)
		if err != nil {
			return result, nil, fmt.Errorf("failed to expire accounts: %w", err)
		}
		result.AccountsUpdated = tag.RowsAffected()
	} else if len(accountIDs) > 0 {
		tag, err := txRepo.db.Exec(ctx,
			`UPDATE accounts SET status = 'expired', updated_at = NOW() WHERE id = ANY($1) AND status = 'active'`,
			accountIDs,
		)
		if err != nil {
			return result, nil, fmt.Errorf("failed to expire accounts: %w", err)
		}
		result.AccountsUpdated = tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return result, nil, fmt.Errorf("failed to commit expiry: %w", err)
	}

	return result, accountIDs, nil
}

// ListTokensWithAccounts retrieves every token joined with its account
// metadata, newest first.
func (r *Repository) ListTokensWithAccounts(ctx context.Context) ([]TokenWithAccount, error) {
	defer observe("select", "tokens", time.Now())

	query := `
		SELECT t.id, t.account_id, t.access_token_encrypted, t.user_id, t.issued_at, t.expires_at, t.is_valid, t.created_at,
		       a.name, a.status
		FROM tokens t
		JOIN accounts a ON a.id = t.account_id
		ORDER BY t.created_at DESC
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query tokens: %w", err)
	}
	defer rows.Close()

	var results []TokenWithAccount
	for rows.Next() {
		var t TokenWithAccount
		err := rows.Scan(
			&t.ID,
			&t.AccountID,
			&t.AccessTokenEncrypted,
			&t.UserID,
			&t.IssuedAt,
			&t.ExpiresAt,
			&t.IsValid,
			&t.CreatedAt,
			&t.AccountName,
			&t.AccountStatus,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		results = append(results, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tokens: %w", err)
	}

	return results, nil
}
