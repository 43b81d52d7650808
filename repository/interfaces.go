package repository

import (
	"context"
	"time"

	"token-vault/models"

	"github.com/google/uuid"
)

// RepositoryInterface defines all repository operations
type RepositoryInterface interface {
	// Health and lifecycle
	Close()
	Health(ctx context.Context) error
	Migrate(ctx context.Context) error

	// Accounts
	CreateAccount(ctx context.Context, account *models.Account) error
	GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error)
	GetAccountByName(ctx context.Context, name string) (*models.Account, error)
	ListAccounts(ctx context.Context) ([]models.Account, error)
	UpdateAccount(ctx context.Context, account *models.Account) error
	DeleteAccount(ctx context.Context, id uuid.UUID) error
	SetAccountStatus(ctx context.Context, id uuid.UUID, status models.AccountStatus) error
	TransitionAccountStatus(ctx context.Context, id uuid.UUID, from, to models.AccountStatus) (bool, error)

	// Tokens
	GetTokenForAccount(ctx context.Context, accountID uuid.UUID) (*models.Token, error)
	ReplaceToken(ctx context.Context, token *models.Token) error
	InvalidateToken(ctx context.Context, accountID uuid.UUID) (bool, error)
	ExpireAllValid(ctx context.Context) (models.ExpireResult, []uuid.UUID, error)
	ExpireOverdue(ctx context.Context, now time.Time) (models.ExpireResult, []uuid.UUID, error)
	ListTokensWithAccounts(ctx context.Context) ([]TokenWithAccount, error)

	// Audit logs
	AppendAuditLog(ctx context.Context, entry *models.AuditLog) error
	GetAuditLogs(ctx context.Context, accountID uuid.UUID, limit int) ([]models.AuditLog, error)

	// Stats
	GetStats(ctx context.Context) (*models.VaultStats, error)
}

// Compile-time interface verification
var _ RepositoryInterface = (*Repository)(nil)
