package services

import "context"

// SessionExchanger is the broker collaborator that turns a short-lived
// request token into a long-lived access credential.
type SessionExchanger interface {
	ExchangeSession(ctx context.Context, apiKey, apiSecret, requestToken string) (*Session, error)
	LoginURL(apiKey string) string
}

// Session is the result of a successful broker session exchange
type Session struct {
	AccessToken string
	UserID      string
	UserName    string
	Email       string
}

// Compile-time interface verification
var _ SessionExchanger = (*KiteService)(nil)
