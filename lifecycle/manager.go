// Package lifecycle drives the per-account token state machine:
// never_authenticated -> active on issuance, active -> expired on manual
// invalidation or scheduled expiry, expired -> active on re-issuance.
// Nothing ever transitions back to never_authenticated.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"token-vault/internal/secrets"
	"token-vault/models"
	"token-vault/observability"
	"token-vault/repository"
	"token-vault/services"

	"github.com/google/uuid"
)

// Manager orchestrates issuance, validity evaluation, decryption-on-read
// and manual invalidation. It is the sole writer of tokens and of
// success-path account status transitions.
type Manager struct {
	repo   repository.RepositoryInterface
	cipher *secrets.Cipher
	kite   services.SessionExchanger
	cutoff Cutoff
	now    func() time.Time
}

// NewManager creates a Manager. All collaborators are explicit; there is
// no hidden global state beyond the shared metrics registry.
func NewManager(repo repository.RepositoryInterface, cipher *secrets.Cipher, kite services.SessionExchanger, cutoff Cutoff) *Manager {
	return &Manager{
		repo:   repo,
		cipher: cipher,
		kite:   kite,
		cutoff: cutoff,
		now:    time.Now,
	}
}

// CreateAccount encrypts the API secret and persists a new account in
// the never_authenticated state.
func (m *Manager) CreateAccount(ctx context.Context, name, apiKey, apiSecret string) (*models.Account, error) {
	name = strings.TrimSpace(name)
	apiKey = strings.TrimSpace(apiKey)
	if name == "" || apiKey == "" || apiSecret == "" {
		return nil, fmt.Errorf("%w: name, api key and api secret are required", ErrInvalidInput)
	}

	encrypted, err := m.cipher.Encrypt(apiSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt api secret: %w", err)
	}

	account := &models.Account{
		Name:               name,
		APIKey:             apiKey,
		APISecretEncrypted: encrypted,
		Status:             models.StatusNeverAuthenticated,
	}
	if err := m.repo.CreateAccount(ctx, account); err != nil {
		return nil, err
	}

	observability.Info("account created", "account_id", account.ID, "name", account.Name)
	return account, nil
}

// UpdateAccount patches an account's name, API key and secret. Blank
// fields keep their current value; a new secret is re-encrypted.
func (m *Manager) UpdateAccount(ctx context.Context, id uuid.UUID, name, apiKey, apiSecret string) (*models.Account, error) {
	account, err := m.repo.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}

	if name = strings.TrimSpace(name); name != "" {
		account.Name = name
	}
	if apiKey = strings.TrimSpace(apiKey); apiKey != "" {
		account.APIKey = apiKey
	}
	if apiSecret != "" {
		encrypted, err := m.cipher.Encrypt(apiSecret)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt api secret: %w", err)
		}
		account.APISecretEncrypted = encrypted
	}

	if err := m.repo.UpdateAccount(ctx, account); err != nil {
		return nil, err
	}

	return account, nil
}

// DeleteAccount removes an account along with its token and audit trail
func (m *Manager) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	return m.repo.DeleteAccount(ctx, id)
}

// GetAccount returns an account joined with its current token status
func (m *Manager) GetAccount(ctx context.Context, id uuid.UUID) (*models.AccountSummary, error) {
	account, err := m.repo.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}

	status, err := m.GetTokenStatus(ctx, id)
	if err != nil {
		return nil, err
	}

	return &models.AccountSummary{Account: *account, Token: status}, nil
}

// ListAccounts returns every account joined with its token status
func (m *Manager) ListAccounts(ctx context.Context) ([]models.AccountSummary, error) {
	accounts, err := m.repo.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}

	tokens, err := m.repo.ListTokensWithAccounts(ctx)
	if err != nil {
		return nil, err
	}

	byAccount := make(map[uuid.UUID]*models.Token, len(tokens))
	for i := range tokens {
		byAccount[tokens[i].AccountID] = &tokens[i].Token
	}

	now := m.now()
	summaries := make([]models.AccountSummary, 0, len(accounts))
	for _, account := range accounts {
		summaries = append(summaries, models.AccountSummary{
			Account: account,
			Token:   StatusOf(byAccount[account.ID], now),
		})
	}

	return summaries, nil
}

// LoginURL returns the broker login URL for an account's API key
func (m *Manager) LoginURL(ctx context.Context, id uuid.UUID) (string, error) {
	account, err := m.repo.GetAccount(ctx, id)
	if err != nil {
		return "", err
	}
	return m.kite.LoginURL(account.APIKey), nil
}

// IssueToken exchanges a request token for an access credential and
// stores it. The write order is deliberate: the new token lands first,
// then the account flips to active, then the audit entry is appended. A
// crash mid-sequence leaves at worst a stale-but-harmless token row,
// never an active account without one.
func (m *Manager) IssueToken(ctx context.Context, accountID uuid.UUID, requestToken string) (models.TokenStatus, error) {
	start := m.now()
	metrics := observability.GetMetrics()

	account, err := m.repo.GetAccount(ctx, accountID)
	if err != nil {
		metrics.RecordIssueError("account_not_found")
		return models.TokenStatus{}, err
	}

	log := observability.WithAccount(accountID.String())

	apiSecret, err := m.cipher.Decrypt(account.APISecretEncrypted)
	if err != nil {
		metrics.RecordIssueError("corrupt_credential")
		wrapped := fmt.Errorf("%w: api secret for account %s: %w", ErrCorruptCredential, account.Name, err)
		m.auditFailure(ctx, accountID, wrapped)
		return models.TokenStatus{}, wrapped
	}

	session, err := m.kite.ExchangeSession(ctx, account.APIKey, apiSecret, requestToken)
	if err != nil {
		metrics.RecordIssueError("upstream")
		m.auditFailure(ctx, accountID, err)
		return models.TokenStatus{}, err
	}

	encryptedToken, err := m.cipher.Encrypt(session.AccessToken)
	if err != nil {
		metrics.RecordIssueError("encrypt")
		wrapped := fmt.Errorf("failed to encrypt access token: %w", err)
		m.auditFailure(ctx, accountID, wrapped)
		return models.TokenStatus{}, wrapped
	}

	// The choice between first-time and repeat authentication is made
	// before the replacement wipes the prior row.
	event := models.EventAuthenticated
	if _, err := m.repo.GetTokenForAccount(ctx, accountID); err == nil {
		event = models.EventReAuthenticated
	} else if account.Status != models.StatusNeverAuthenticated {
		event = models.EventReAuthenticated
	}

	now := m.now()
	token := &models.Token{
		AccountID:            accountID,
		AccessTokenEncrypted: encryptedToken,
		UserID:               session.UserID,
		IssuedAt:             now,
		ExpiresAt:            m.cutoff.Next(now),
		IsValid:              true,
	}

	if err := m.repo.ReplaceToken(ctx, token); err != nil {
		metrics.RecordIssueError("store")
		m.auditFailure(ctx, accountID, err)
		return models.TokenStatus{}, err
	}

	if err := m.repo.SetAccountStatus(ctx, accountID, models.StatusActive); err != nil {
		metrics.RecordIssueError("store")
		m.auditFailure(ctx, accountID, err)
		return models.TokenStatus{}, err
	}

	m.audit(ctx, &models.AuditLog{
		AccountID: accountID,
		Event:     event,
		Message:   fmt.Sprintf("token issued for user %s", session.UserID),
		Metadata: map[string]any{
			"user_id":    session.UserID,
			"expires_at": token.ExpiresAt,
		},
	})

	metrics.RecordTokenIssued(string(event), m.now().Sub(start))
	log.Info("token issued",
		"user_id", session.UserID,
		"event", string(event),
		"expires_at", token.ExpiresAt)

	return StatusOf(token, now), nil
}

// GetAccessToken decrypts and returns the live access credential. An
// invalid or missing token is never decrypted, even though the
// ciphertext would open fine; the caller gets a distinguishable signal
// to restart the login flow instead.
func (m *Manager) GetAccessToken(ctx context.Context, accountID uuid.UUID) (string, error) {
	token, err := m.repo.GetTokenForAccount(ctx, accountID)
	if err != nil {
		return "", err
	}

	if !IsTokenValid(token, m.now()) {
		return "", fmt.Errorf("%w: account %s", ErrTokenExpired, accountID)
	}

	accessToken, err := m.cipher.Decrypt(token.AccessTokenEncrypted)
	if err != nil {
		return "", fmt.Errorf("%w: access token for account %s: %w", ErrCorruptCredential, accountID, err)
	}

	return accessToken, nil
}

// GetTokenStatus returns the status summary for an account's token. It
// never touches the credential itself. An account with no token yields
// the "no token" summary rather than an error.
func (m *Manager) GetTokenStatus(ctx context.Context, accountID uuid.UUID) (models.TokenStatus, error) {
	token, err := m.repo.GetTokenForAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return StatusOf(nil, m.now()), nil
		}
		return models.TokenStatus{}, err
	}

	return StatusOf(token, m.now()), nil
}

// Invalidate force-expires an account's token. Idempotent: invalidating
// an already-expired account, or one that never had a token, succeeds
// without doing anything.
func (m *Manager) Invalidate(ctx context.Context, accountID uuid.UUID) error {
	if _, err := m.repo.GetAccount(ctx, accountID); err != nil {
		return err
	}

	flipped, err := m.repo.InvalidateToken(ctx, accountID)
	if err != nil {
		return err
	}

	// active -> expired only; never_authenticated stays put.
	if _, err := m.repo.TransitionAccountStatus(ctx, accountID, models.StatusActive, models.StatusExpired); err != nil {
		return err
	}

	if flipped {
		m.audit(ctx, &models.AuditLog{
			AccountID: accountID,
			Event:     models.EventExpired,
			Message:   "token manually invalidated",
			Metadata:  map[string]any{"reason": "manual"},
		})
		observability.GetMetrics().RecordTokensExpired("manual", 1)
		observability.WithAccount(accountID.String()).Info("token invalidated")
	}

	return nil
}

// ListTokenStatuses returns the status summary of every token joined
// with its account metadata.
func (m *Manager) ListTokenStatuses(ctx context.Context) ([]models.AccountTokenStatus, error) {
	tokens, err := m.repo.ListTokensWithAccounts(ctx)
	if err != nil {
		return nil, err
	}

	now := m.now()
	statuses := make([]models.AccountTokenStatus, 0, len(tokens))
	for i := range tokens {
		statuses = append(statuses, models.AccountTokenStatus{
			AccountID:     tokens[i].AccountID,
			AccountName:   tokens[i].AccountName,
			AccountStatus: tokens[i].AccountStatus,
			TokenStatus:   StatusOf(&tokens[i].Token, now),
		})
	}

	return statuses, nil
}

// audit appends an audit entry. Append failures are logged but never
// mask the operation's own outcome.
func (m *Manager) audit(ctx context.Context, entry *models.AuditLog) {
	if err := m.repo.AppendAuditLog(ctx, entry); err != nil {
		observability.Error("failed to append audit log",
			"account_id", entry.AccountID,
			"event", string(entry.Event),
			"error", err)
	}
}

// auditFailure records a failed issuance attempt with its reason
func (m *Manager) auditFailure(ctx context.Context, accountID uuid.UUID, cause error) {
	m.audit(ctx, &models.AuditLog{
		AccountID: accountID,
		Event:     models.EventError,
		Message:   fmt.Sprintf("failed to issue token: %v", cause),
	})
}
