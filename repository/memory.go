package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"token-vault/models"

	"github.com/google/uuid"
)

// MemoryRepository is an in-memory RepositoryInterface implementation.
// It backs unit tests and local development without PostgreSQL, with the
// same error semantics as the real repository.
type MemoryRepository struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]models.Account
	tokens   map[uuid.UUID]models.Token // keyed by account id
	audit    []models.AuditLog
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		accounts: make(map[uuid.UUID]models.Account),
		tokens:   make(map[uuid.UUID]models.Token),
	}
}

// Compile-time interface verification
var _ RepositoryInterface = (*MemoryRepository)(nil)

func (m *MemoryRepository) Close()                            {}
func (m *MemoryRepository) Health(ctx context.Context) error  { return nil }
func (m *MemoryRepository) Migrate(ctx context.Context) error { return nil }

func (m *MemoryRepository) CreateAccount(ctx context.Context, account *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.accounts {
		if existing.Name == account.Name {
			return fmt.Errorf("%w: %s", ErrDuplicateName, account.Name)
		}
	}

	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	if account.Status == "" {
		account.Status = models.StatusNeverAuthenticated
	}
	now := time.Now()
	account.CreatedAt = now
	account.UpdatedAt = now

	m.accounts[account.ID] = *account
	return nil
}

func (m *MemoryRepository) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.accounts[id]
	if !ok {
		return nil, fmt.Errorf("%w: account %s", ErrNotFound, id)
	}
	return &account, nil
}

func (m *MemoryRepository) GetAccountByName(ctx context.Context, name string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, account := range m.accounts {
		if account.Name == name {
			a := account
			return &a, nil
		}
	}
	return nil, fmt.Errorf("%w: account %q", ErrNotFound, name)
}

func (m *MemoryRepository) ListAccounts(ctx context.Context) ([]models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	accounts := make([]models.Account, 0, len(m.accounts))
	for _, account := range m.accounts {
		accounts = append(accounts, account)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].CreatedAt.After(accounts[j].CreatedAt)
	})
	return accounts, nil
}

func (m *MemoryRepository) UpdateAccount(ctx context.Context, account *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.accounts[account.ID]
	if !ok {
		return fmt.Errorf("%w: account %s", ErrNotFound, account.ID)
	}
	for id, other := range m.accounts {
		if id != account.ID && other.Name == account.Name {
			return fmt.Errorf("%w: %s", ErrDuplicateName, account.Name)
		}
	}

	account.CreatedAt = existing.CreatedAt
	account.Status = existing.Status
	account.UpdatedAt = time.Now()
	m.accounts[account.ID] = *account
	return nil
}

func (m *MemoryRepository) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[id]; !ok {
		return fmt.Errorf("%w: account %s", ErrNotFound, id)
	}

	delete(m.accounts, id)
	delete(m.tokens, id)

	kept := m.audit[:0]
	for _, entry := range m.audit {
		if entry.AccountID != id {
			kept = append(kept, entry)
		}
	}
	m.audit = kept
	return nil
}

func (m *MemoryRepository) SetAccountStatus(ctx context.Context, id uuid.UUID, status models.AccountStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.accounts[id]
	if !ok {
		return fmt.Errorf("%w: account %s", ErrNotFound, id)
	}
	account.Status = status
	account.UpdatedAt = time.Now()
	m.accounts[id] = account
	return nil
}

func (m *MemoryRepository) TransitionAccountStatus(ctx context.Context, id uuid.UUID, from, to models.AccountStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.accounts[id]
	if !ok || account.Status != from {
		return false, nil
	}
	account.Status = to
	account.UpdatedAt = time.Now()
	m.accounts[id] = account
	return true, nil
}

func (m *MemoryRepository) GetTokenForAccount(ctx context.Context, accountID uuid.UUID) (*models.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, ok := m.tokens[accountID]
	if !ok {
		return nil, fmt.Errorf("%w: token for account %s", ErrNotFound, accountID)
	}
	return &token, nil
}

func (m *MemoryRepository) ReplaceToken(ctx context.Context, token *models.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}
	token.CreatedAt = time.Now()
	m.tokens[token.AccountID] = *token
	return nil
}

func (m *MemoryRepository) InvalidateToken(ctx context.Context, accountID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, ok := m.tokens[accountID]
	if !ok || !token.IsValid {
		return false, nil
	}
	token.IsValid = false
	m.tokens[accountID] = token
	return true, nil
}

func (m *MemoryRepository) ExpireAllValid(ctx context.Context) (models.ExpireResult, []uuid.UUID, error) {
	return m.expireWhere(true, func(token models.Token) bool { return token.IsValid })
}

func (m *MemoryRepository) ExpireOverdue(ctx context.Context, now time.Time) (models.ExpireResult, []uuid.UUID, error) {
	return m.expireWhere(false, func(token models.Token) bool {
		return token.IsValid && !token.ExpiresAt.After(now)
	})
}

// expireWhere mirrors the database bulk expiry. With allActive set,
// every active account flips to expired regardless of which tokens this
// pass touched.
func (m *MemoryRepository) expireWhere(allActive bool, match func(models.Token) bool) (models.ExpireResult, []uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result models.ExpireResult
	var accountIDs []uuid.UUID

	flipped := make(map[uuid.UUID]bool)
	for accountID, token := range m.tokens {
		if !match(token) {
			continue
		}
		token.IsValid = false
		m.tokens[accountID] = token
		accountIDs = append(accountIDs, accountID)
		flipped[accountID] = true
		result.TokensExpired++
	}

	for accountID, account := range m.accounts {
		if account.Status != models.StatusActive {
			continue
		}
		if !allActive && !flipped[accountID] {
			continue
		}
		account.Status = models.StatusExpired
		account.UpdatedAt = time.Now()
		m.accounts[accountID] = account
		result.AccountsUpdated++
	}

	return result, accountIDs, nil
}

func (m *MemoryRepository) ListTokensWithAccounts(ctx context.Context) ([]TokenWithAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var results []TokenWithAccount
	for accountID, token := range m.tokens {
		account, ok := m.accounts[accountID]
		if !ok {
			continue
		}
		results = append(results, TokenWithAccount{
			Token:         token,
			AccountName:   account.Name,
			AccountStatus: account.Status,
		})
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
	return results, nil
}

func (m *MemoryRepository) AppendAuditLog(ctx context.Context, entry *models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	m.audit = append(m.audit, *entry)
	return nil
}

func (m *MemoryRepository) GetAuditLogs(ctx context.Context, accountID uuid.UUID, limit int) ([]models.AuditLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if limit <= 0 {
		limit = 100
	}

	var entries []models.AuditLog
	for i := len(m.audit) - 1; i >= 0 && len(entries) < limit; i-- {
		if m.audit[i].AccountID == accountID {
			entries = append(entries, m.audit[i])
		}
	}
	return entries, nil
}

func (m *MemoryRepository) GetStats(ctx context.Context) (*models.VaultStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := &models.VaultStats{}
	for _, account := range m.accounts {
		stats.TotalAccounts++
		switch account.Status {
		case models.StatusActive:
			stats.Active++
		case models.StatusExpired:
			stats.Expired++
		case models.StatusNeverAuthenticated:
			stats.NeverAuthenticated++
		}
	}
	for _, token := range m.tokens {
		stats.TotalTokens++
		if token.IsValid {
			stats.ValidTokens++
		}
	}
	return stats, nil
}
