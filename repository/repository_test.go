package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"token-vault/models"

	"github.com/google/uuid"
)

// getTestDB returns a repository connected to the test database.
// If DATABASE_URL is not set, the test is skipped.
func getTestDB(t *testing.T) *Repository {
	t.Helper()

	connString := os.Getenv("DATABASE_URL")
	if connString == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	repo, err := NewRepository(ctx, connString)
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}

	if err := repo.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return repo
}

// cleanupAccounts removes all test accounts; tokens and audit logs cascade
func cleanupAccounts(t *testing.T, repo *Repository) {
	t.Helper()
	ctx := context.Background()
	repo.pool.Exec(ctx, "DELETE FROM accounts WHERE name LIKE 'test-%'")
}

func testAccount(t *testing.T, repo *Repository, name string) *models.Account {
	t.Helper()

	account := &models.Account{
		Name:               name,
		APIKey:             "kite-api-key",
		APISecretEncrypted: "aa:bb:cc",
	}
	if err := repo.CreateAccount(context.Background(), account); err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}
	return account
}

func testToken(t *testing.T, repo *Repository, accountID uuid.UUID, expiresAt time.Time) *models.Token {
	t.Helper()

	token := &models.Token{
		AccountID:            accountID,
		AccessTokenEncrypted: "dd:ee:ff",
		UserID:               "AB1234",
		IssuedAt:             time.Now(),
		ExpiresAt:            expiresAt,
		IsValid:              true,
	}
	if err := repo.ReplaceToken(context.Background(), token); err != nil {
		t.Fatalf("ReplaceToken() error = %v", err)
	}
	return token
}

func TestCreateAccountDuplicateName(t *testing.T) {
	repo := getTestDB(t)
	defer repo.Close()
	defer cleanupAccounts(t, repo)
	ctx := context.Background()

	testAccount(t, repo, "test-dup")

	dup := &models.Account{
		Name:               "test-dup",
		APIKey:             "other-key",
		APISecretEncrypted: "aa:bb:cc",
	}
	if err := repo.CreateAccount(ctx, dup); !errors.Is(err, ErrDuplicateName) {
		t.Errorf("CreateAccount() duplicate error = %v, want ErrDuplicateName", err)
	}
}

func TestGetAccountNotFound(t *testing.T) {
	repo := getTestDB(t)
	defer repo.Close()

	_, err := repo.GetAccount(context.Background(), uuid.New())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetAccount() error = %v, want ErrNotFound", err)
	}
}

func TestReplaceTokenSupersedes(t *testing.T) {
	repo := getTestDB(t)
	defer repo.Close()
	defer cleanupAccounts(t, repo)
	ctx := context.Background()

	account := testAccount(t, repo, "test-supersede")
	first := testToken(t, repo, account.ID, time.Now().Add(time.Hour))
	second := testToken(t, repo, account.ID, time.Now().Add(2*time.Hour))

	got, err := repo.GetTokenForAccount(ctx, account.ID)
	if err != nil {
		t.Fatalf("GetTokenForAccount() error = %v", err)
	}
	if got.ID != second.ID {
		t.Errorf("current token = %s, want %s (the superseding one)", got.ID, second.ID)
	}
	if got.ID == first.ID {
		t.Error("prior token survived replacement")
	}

	var count int
	repo.pool.QueryRow(ctx, "SELECT COUNT(*) FROM tokens WHERE account_id = $1", account.ID).Scan(&count)
	if count != 1 {
		t.Errorf("token count = %d, want exactly 1 after replacement", count)
	}
}

func TestInvalidateTokenIdempotent(t *testing.T) {
	repo := getTestDB(t)
	defer repo.Close()
	defer cleanupAccounts(t, repo)
	ctx := context.Background()

	account := testAccount(t, repo, "test-invalidate")
	testToken(t, repo, account.ID, time.Now().Add(time.Hour))

	flipped, err := repo.InvalidateToken(ctx, account.ID)
	if err != nil {
		t.Fatalf("InvalidateToken() error = %v", err)
	}
	if !flipped {
		t.Error("InvalidateToken() flipped = false on first call, want true")
	}

	flipped, err = repo.InvalidateToken(ctx, account.ID)
	if err != nil {
		t.Fatalf("InvalidateToken() second call error = %v", err)
	}
	if flipped {
		t.Error("InvalidateToken() flipped = true on second call, want false")
	}

	// No token at all is also a clean no-op.
	other := testAccount(t, repo, "test-invalidate-empty")
	flipped, err = repo.InvalidateToken(ctx, other.ID)
	if err != nil {
		t.Fatalf("InvalidateToken() with no token error = %v", err)
	}
	if flipped {
		t.Error("InvalidateToken() flipped = true with no token, want false")
	}
}

func TestExpireAllValid(t *testing.T) {
	repo := getTestDB(t)
	defer repo.Close()
	defer cleanupAccounts(t, repo)
	ctx := context.Background()

	a1 := testAccount(t, repo, "test-expire-1")
	a2 := testAccount(t, repo, "test-expire-2")
	testToken(t, repo, a1.ID, time.Now().Add(time.Hour))
	testToken(t, repo, a2.ID, time.Now().Add(time.Hour))
	repo.SetAccountStatus(ctx, a1.ID, models.StatusActive)
	repo.SetAccountStatus(ctx, a2.ID, models.StatusActive)

	result, accountIDs, err := repo.ExpireAllValid(ctx)
	if err != nil {
		t.Fatalf("ExpireAllValid() error = %v", err)
	}
	if result.TokensExpired < 2 {
		t.Errorf("TokensExpired = %d, want at least 2", result.TokensExpired)
	}
	if len(accountIDs) != int(result.TokensExpired) {
		t.Errorf("returned %d account ids for %d expired tokens", len(accountIDs), result.TokensExpired)
	}

	for _, id := range []uuid.UUID{a1.ID, a2.ID} {
		account, err := repo.GetAccount(ctx, id)
		if err != nil {
			t.Fatalf("GetAccount() error = %v", err)
		}
		if account.Status != models.StatusExpired {
			t.Errorf("account %s status = %s, want expired", id, account.Status)
		}
	}

	// Second pass finds nothing left to expire.
	result, _, err = repo.ExpireAllValid(ctx)
	if err != nil {
		t.Fatalf("ExpireAllValid() second pass error = %v", err)
	}
	if result.TokensExpired != 0 {
		t.Errorf("second pass TokensExpired = %d, want 0", result.TokensExpired)
	}
}

func TestExpireAllValidCorrectsActiveAccountWithInvalidToken(t *testing.T) {
	repo := getTestDB(t)
	defer repo.Close()
	defer cleanupAccounts(t, repo)
	ctx := context.Background()

	// An active account whose token flip landed but whose status write
	// did not. The bulk pass must flip the account even though it
	// expires no token for it.
	stuck := testAccount(t, repo, "test-stuck")
	testToken(t, repo, stuck.ID, time.Now().Add(time.Hour))
	repo.SetAccountStatus(ctx, stuck.ID, models.StatusActive)
	if _, err := repo.InvalidateToken(ctx, stuck.ID); err != nil {
		t.Fatalf("InvalidateToken() error = %v", err)
	}

	result, _, err := repo.ExpireAllValid(ctx)
	if err != nil {
		t.Fatalf("ExpireAllValid() error = %v", err)
	}
	if result.AccountsUpdated < 1 {
		t.Errorf("AccountsUpdated = %d, want at least 1", result.AccountsUpdated)
	}

	account, err := repo.GetAccount(ctx, stuck.ID)
	if err != nil {
		t.Fatalf("GetAccount() error = %v", err)
	}
	if account.Status != models.StatusExpired {
		t.Errorf("account status = %s, want expired", account.Status)
	}
}

func TestExpireOverdue(t *testing.T) {
	repo := getTestDB(t)
	defer repo.Close()
	defer cleanupAccounts(t, repo)
	ctx := context.Background()

	overdue := testAccount(t, repo, "test-overdue")
	fresh := testAccount(t, repo, "test-fresh")
	testToken(t, repo, overdue.ID, time.Now().Add(-time.Hour))
	testToken(t, repo, fresh.ID, time.Now().Add(time.Hour))
	repo.SetAccountStatus(ctx, overdue.ID, models.StatusActive)
	repo.SetAccountStatus(ctx, fresh.ID, models.StatusActive)

	result, _, err := repo.ExpireOverdue(ctx, time.Now())
	if err != nil {
		t.Fatalf("ExpireOverdue() error = %v", err)
	}
	if result.TokensExpired < 1 {
		t.Errorf("TokensExpired = %d, want at least 1", result.TokensExpired)
	}

	freshToken, err := repo.GetTokenForAccount(ctx, fresh.ID)
	if err != nil {
		t.Fatalf("GetTokenForAccount() error = %v", err)
	}
	if !freshToken.IsValid {
		t.Error("unexpired token was flipped by ExpireOverdue")
	}

	overdueToken, err := repo.GetTokenForAccount(ctx, overdue.ID)
	if err != nil {
		t.Fatalf("GetTokenForAccount() error = %v", err)
	}
	if overdueToken.IsValid {
		t.Error("overdue token still valid after ExpireOverdue")
	}
}

func TestDeleteAccountCascades(t *testing.T) {
	repo := getTestDB(t)
	defer repo.Close()
	defer cleanupAccounts(t, repo)
	ctx := context.Background()

	account := testAccount(t, repo, "test-cascade")
	testToken(t, repo, account.ID, time.Now().Add(time.Hour))
	repo.AppendAuditLog(ctx, &models.AuditLog{
		AccountID: account.ID,
		Event:     models.EventAuthenticated,
		Message:   "test entry",
	})

	if err := repo.DeleteAccount(ctx, account.ID); err != nil {
		t.Fatalf("DeleteAccount() error = %v", err)
	}

	if _, err := repo.GetTokenForAccount(ctx, account.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("token survived account deletion, error = %v", err)
	}

	logs, err := repo.GetAuditLogs(ctx, account.ID, 10)
	if err != nil {
		t.Fatalf("GetAuditLogs() error = %v", err)
	}
	if len(logs) != 0 {
		t.Errorf("audit logs survived account deletion, got %d entries", len(logs))
	}
}

func TestAuditLogRoundTrip(t *testing.T) {
	repo := getTestDB(t)
	defer repo.Close()
	defer cleanupAccounts(t, repo)
	ctx := context.Background()

	account := testAccount(t, repo, "test-audit")

	entry := &models.AuditLog{
		AccountID: account.ID,
		Event:     models.EventError,
		Message:   "exchange failed",
		Metadata:  map[string]any{"reason": "timeout"},
	}
	if err := repo.AppendAuditLog(ctx, entry); err != nil {
		t.Fatalf("AppendAuditLog() error = %v", err)
	}

	logs, err := repo.GetAuditLogs(ctx, account.ID, 10)
	if err != nil {
		t.Fatalf("GetAuditLogs() error = %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("got %d audit entries, want 1", len(logs))
	}
	if logs[0].Event != models.EventError {
		t.Errorf("event = %s, want error", logs[0].Event)
	}
	if logs[0].Metadata["reason"] != "timeout" {
		t.Errorf("metadata = %v, want reason=timeout", logs[0].Metadata)
	}
}

func TestGetStats(t *testing.T) {
	repo := getTestDB(t)
	defer repo.Close()
	defer cleanupAccounts(t, repo)
	ctx := context.Background()

	before, err := repo.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}

	account := testAccount(t, repo, "test-stats")
	testToken(t, repo, account.ID, time.Now().Add(time.Hour))
	repo.SetAccountStatus(ctx, account.ID, models.StatusActive)

	after, err := repo.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}

	if after.TotalAccounts != before.TotalAccounts+1 {
		t.Errorf("TotalAccounts = %d, want %d", after.TotalAccounts, before.TotalAccounts+1)
	}
	if after.Active != before.Active+1 {
		t.Errorf("Active = %d, want %d", after.Active, before.Active+1)
	}
	if after.ValidTokens != before.ValidTokens+1 {
		t.Errorf("ValidTokens = %d, want %d", after.ValidTokens, before.ValidTokens+1)
	}
}

func TestTransitionAccountStatus(t *testing.T) {
	repo := getTestDB(t)
	defer repo.Close()
	defer cleanupAccounts(t, repo)
	ctx := context.Background()

	account := testAccount(t, repo, "test-transition")

	// never_authenticated -> expired is not a legal manual transition;
	// the guarded update must refuse it.
	moved, err := repo.TransitionAccountStatus(ctx, account.ID, models.StatusActive, models.StatusExpired)
	if err != nil {
		t.Fatalf("TransitionAccountStatus() error = %v", err)
	}
	if moved {
		t.Error("transition from wrong current status reported moved = true")
	}

	repo.SetAccountStatus(ctx, account.ID, models.StatusActive)

	moved, err = repo.TransitionAccountStatus(ctx, account.ID, models.StatusActive, models.StatusExpired)
	if err != nil {
		t.Fatalf("TransitionAccountStatus() error = %v", err)
	}
	if !moved {
		t.Error("transition from matching status reported moved = false")
	}
}
