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

// CreateAccount inserts a new account. The name must be unique; a
// duplicate returns ErrDuplicateName.
func (r *Repository) CreateAccount(ctx context.Context, account *models.Account) error {
	defer observe("insert", "accounts", time.Now())

	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	if account.Status == "" {
		account.Status = models.StatusNeverAuthenticated
	}

	query := `
		INSERT INTO accounts (id, name, api_key, api_secret_encrypted, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		account.ID,
		account.Name,
		account.APIKey,
		account.APISecretEncrypted,
		account.Status,
	).Scan(&account.CreatedAt, &account.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateName, account.Name)
		}
		return fmt.Errorf("failed to create account: %w", err)
	}

	return nil
}

// GetAccount retrieves an account by id
func (r *Repository) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	defer observe("select", "accounts", time.Now())

	query := `
		SELECT id, name, api_key, api_secret_encrypted, status, created_at, updated_at
		FROM accounts
		WHERE id = $1
	`

	return r.scanAccount(r.db.QueryRow(ctx, query, id))
}

// GetAccountByName retrieves an account by its unique name
func (r *Repository) GetAccountByName(ctx context.Context, name string) (*models.Account, error) {
	defer observe("select", "accounts", time.Now())

	query := `
		SELECT id, name, api_key, api_secret_encrypted, status, created_at, updated_at
		FROM accounts
		WHERE name = $1
	`

	return r.scanAccount(r.db.QueryRow(ctx, query, name))
}

// ListAccounts retrieves all accounts, newest first
func (r *Repository) ListAccounts(ctx context.Context) ([]models.Account, error) {
	defer observe("select", "accounts", time.Now())

	query := `
		SELECT id, name, api_key, api_secret_encrypted, status, created_at, updated_at
		FROM accounts
		ORDER BY created_at DESC
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		var a models.Account
		if err := rows.Scan(&a.ID, &a.Name, &a.APIKey, &a.APISecretEncrypted, &a.Status, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	return accounts, nil
}

// UpdateAccount updates an account's name, API key and encrypted secret
func (r *Repository) UpdateAccount(ctx context.Context, account *models.Account) error {
	defer observe("update", "accounts", time.Now())

	query := `
		UPDATE accounts
		SET name = $2, api_key = $3, api_secret_encrypted = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.QueryRow(ctx, query,
		account.ID,
		account.Name,
		account.APIKey,
		account.APISecretEncrypted,
	).Scan(&account.UpdatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: account %s", ErrNotFound, account.ID)
		}
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateName, account.Name)
		}
		return fmt.Errorf("failed to update account: %w", err)
	}

	return nil
}

// DeleteAccount deletes an account. The token and audit log rows cascade.
func (r *Repository) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	defer observe("delete", "accounts", time.Now())

	tag, err := r.db.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: account %s", ErrNotFound, id)
	}

	return nil
}

// SetAccountStatus unconditionally sets an account's status
func (r *Repository) SetAccountStatus(ctx context.Context, id uuid.UUID, status models.AccountStatus) error {
	defer observe("update", "accounts", time.Now())

	tag, err := r.db.Exec(ctx,
		`UPDATE accounts SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, status,
	)
	if err != nil {
		return fmt.Errorf("failed to set account status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: account %s", ErrNotFound, id)
	}

	return nil
}

// TransitionAccountStatus sets an account's status only when it currently
// holds the expected status. It reports whether the transition happened.
// The single UPDATE keeps the read-modify-write atomic against concurrent
// issuance and reconciliation.
func (r *Repository) TransitionAccountStatus(ctx context.Context, id uuid.UUID, from, to models.AccountStatus) (bool, error) {
	defer observe("update", "accounts", time.Now())

	tag, err := r.db.Exec(ctx,
		`UPDATE accounts SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`,
		id, from, to,
	)
	if err != nil {
		return false, fmt.Errorf("failed to transition account status: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

func (r *Repository) scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.Name, &a.APIKey, &a.APISecretEncrypted, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: account", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &a, nil
}
