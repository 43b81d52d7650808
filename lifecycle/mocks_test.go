package lifecycle

import (
	"context"
	"sync"

	"token-vault/internal/secrets"
	"token-vault/services"

	"testing"
)

// fakeExchanger is a configurable stand-in for the broker session
// exchange.
type fakeExchanger struct {
	mu       sync.Mutex
	session  *services.Session
	err      error
	calls    int
	lastKey  string
	lastSec  string
	lastReq  string
	loginURL string
}

func (f *fakeExchanger) ExchangeSession(ctx context.Context, apiKey, apiSecret, requestToken string) (*services.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastKey = apiKey
	f.lastSec = apiSecret
	f.lastReq = requestToken
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}

func (f *fakeExchanger) LoginURL(apiKey string) string {
	if f.loginURL != "" {
		return f.loginURL
	}
	return "https://kite.example/connect/login?api_key=" + apiKey
}

func testCipher(t *testing.T) *secrets.Cipher {
	t.Helper()

	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	c, err := secrets.New(key)
	if err != nil {
		t.Fatalf("secrets.New() error = %v", err)
	}
	return c
}
