package models

import (
	"time"

	"github.com/google/uuid"
)

// Token represents the broker-issued access credential for an account.
// At most one token exists per account; issuing a new one supersedes
// the prior row.
type Token struct {
	ID                   uuid.UUID `json:"id"`
	AccountID            uuid.UUID `json:"account_id"`
	AccessTokenEncrypted string    `json:"-"` // Never expose encrypted data in JSON
	UserID               string    `json:"user_id"`
	IssuedAt             time.Time `json:"issued_at"`
	ExpiresAt            time.Time `json:"expires_at"`
	IsValid              bool      `json:"is_valid"`
	CreatedAt            time.Time `json:"created_at"`
}

// TokenStatus is the read-only status summary for a token. It never
// carries the credential itself.
type TokenStatus struct {
	Exists      bool      `json:"exists"`
	IsValid     bool      `json:"is_valid"`
	UserID      string    `json:"user_id,omitempty"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	TimeLeft    string    `json:"time_left,omitempty"`
	HoursLeft   int       `json:"hours_left"`
	MinutesLeft int       `json:"minutes_left"`
}

// AccountTokenStatus pairs a token status with its account metadata,
// as returned by the list-statuses operation.
type AccountTokenStatus struct {
	AccountID     uuid.UUID     `json:"account_id"`
	AccountName   string        `json:"account_name"`
	AccountStatus AccountStatus `json:"account_status"`
	TokenStatus
}

// VaultStats holds aggregate account and token counts for reporting.
type VaultStats struct {
	TotalAccounts      int64 `json:"total_accounts"`
	Active             int64 `json:"active"`
	Expired            int64 `json:"expired"`
	NeverAuthenticated int64 `json:"never_authenticated"`
	TotalTokens        int64 `json:"total_tokens"`
	ValidTokens        int64 `json:"valid_tokens"`
}

// ExpireResult reports how many rows a bulk expiry pass touched.
type ExpireResult struct {
	TokensExpired   int64 `json:"tokens_expired"`
	AccountsUpdated int64 `json:"accounts_updated"`
}
