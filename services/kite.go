package services

import (
	"context"
	"errors"
	"time"

	"token-vault/observability"

	"github.com/sony/gobreaker/v2"
	kiteconnect "github.com/zerodha/gokiteconnect/v4"
)

// KiteService exchanges request tokens for sessions against the Kite
// Connect API. API keys vary per account, so a fresh SDK client is
// built per call; the circuit breaker and timeout are shared.
type KiteService struct {
	baseURL string
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker[*Session]
}

// NewKiteService creates a new KiteService. baseURL overrides the SDK
// default endpoint when non-empty (used by tests and mock servers).
func NewKiteService(baseURL string, timeout time.Duration) *KiteService {
	return &KiteService{
		baseURL: baseURL,
		timeout: timeout,
		breaker: NewBreaker[*Session](BreakerKite, DefaultCircuitBreakerConfig),
	}
}

// newClient builds a Kite Connect client for an account's API key
func (s *KiteService) newClient(apiKey string) *kiteconnect.Client {
	kc := kiteconnect.New(apiKey)
	kc.SetTimeout(s.timeout)
	if s.baseURL != "" {
		kc.SetBaseURI(s.baseURL)
	}
	return kc
}

// ExchangeSession calls the Kite token-exchange endpoint with the
// account's credentials and the request token from the login callback.
// The call is bounded by the configured timeout and routed through the
// circuit breaker; every failure mode, timeout included, surfaces as an
// UpstreamError. Exchanges are never retried: a request token is
// single-use, so the caller must restart the login flow instead.
func (s *KiteService) ExchangeSession(ctx context.Context, apiKey, apiSecret, requestToken string) (*Session, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	session, err := s.breaker.Execute(func() (*Session, error) {
		return s.generateSession(ctx, apiKey, apiSecret, requestToken)
	})
	if err != nil {
		errType := "exchange"
		if errors.Is(err, context.DeadlineExceeded) {
			errType = "timeout"
		} else if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			errType = "breaker_open"
		}
		observability.GetMetrics().RecordBrokerRequest("exchange_session", time.Since(start), errType)

		var upstream *UpstreamError
		if errors.As(err, &upstream) {
			return nil, err
		}
		return nil, &UpstreamError{Operation: "session exchange", Err: err}
	}

	observability.GetMetrics().RecordBrokerRequest("exchange_session", time.Since(start), "")
	return session, nil
}

// generateSession runs the SDK call in a goroutine so the context bound
// holds even if the underlying HTTP client stalls.
func (s *KiteService) generateSession(ctx context.Context, apiKey, apiSecret, requestToken string) (*Session, error) {
	type result struct {
		session kiteconnect.UserSession
		err     error
	}

	done := make(chan result, 1)
	go func() {
		kc := s.newClient(apiKey)
		sess, err := kc.GenerateSession(requestToken, apiSecret)
		done <- result{session: sess, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, &UpstreamError{Operation: "session exchange", Err: ctx.Err()}
	case res := <-done:
		if res.err != nil {
			return nil, &UpstreamError{Operation: "session exchange", Err: res.err}
		}
		return &Session{
			AccessToken: res.session.AccessToken,
			UserID:      res.session.UserID,
			UserName:    res.session.UserName,
			Email:       res.session.Email,
		}, nil
	}
}

// LoginURL returns the Kite login URL for an API key. Pure; no network
// call is made.
func (s *KiteService) LoginURL(apiKey string) string {
	return s.newClient(apiKey).GetLoginURL()
}
