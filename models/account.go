package models

import (
	"time"

	"github.com/google/uuid"
)

// AccountStatus represents the authentication state of an account
type AccountStatus string

const (
	StatusNeverAuthenticated AccountStatus = "never_authenticated"
	StatusActive             AccountStatus = "active"
	StatusExpired            AccountStatus = "expired"
)

// Account represents a registered set of broker API credentials.
// The API secret is encrypted at rest and never serialized.
type Account struct {
	ID                 uuid.UUID     `json:"id"`
	Name               string        `json:"name"`
	APIKey             string        `json:"api_key"`
	APISecretEncrypted string        `json:"-"` // Never expose encrypted data in JSON
	Status             AccountStatus `json:"status"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// AccountSummary is an account joined with its current token status,
// as returned by list endpoints.
type AccountSummary struct {
	Account
	Token TokenStatus `json:"token"`
}
