package services

import (
	"sync"
	"time"

	"token-vault/observability"

	"github.com/sony/gobreaker/v2"
)

// CircuitBreakerConfig holds configuration for a circuit breaker
type CircuitBreakerConfig struct {
	MaxRequests uint32        // max requests allowed in half-open state
	Interval    time.Duration // cyclic period of the closed state to clear counts
	Timeout     time.Duration // period of the open state before transitioning to half-open
}

// DefaultCircuitBreakerConfig returns sensible defaults for the broker API
var DefaultCircuitBreakerConfig = CircuitBreakerConfig{
	MaxRequests: 5,
	Interval:    1 * time.Minute,
	Timeout:     30 * time.Second,
}

// BreakerKite is the circuit breaker name for the Kite Connect API
const BreakerKite = "kite"

// NewBreaker creates a circuit breaker for an external service. State
// changes are logged and exported as metrics.
func NewBreaker[T any](name string, config CircuitBreakerConfig) *gobreaker.CircuitBreaker[T] {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Trip the breaker if failure ratio exceeds 50% with at least 5 requests
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			observability.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String())

			metrics := observability.GetMetrics()
			metrics.SetCircuitBreakerState(name, stateToInt(to))
			if to == gobreaker.StateOpen {
				metrics.RecordCircuitBreakerTrip(name)
			}
		},
	}

	cb := gobreaker.NewCircuitBreaker[T](settings)
	globalRegistry.register(cb)
	return cb
}

// stateReporter is the common surface of generic circuit breakers
type stateReporter interface {
	Name() string
	State() gobreaker.State
}

// BreakerStatus is a snapshot of one circuit breaker's state
type BreakerStatus struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

// BreakerRegistry tracks every breaker created through NewBreaker so
// health checks can report their state.
type BreakerRegistry struct {
	mu       sync.Mutex
	breakers []stateReporter
}

var globalRegistry = &BreakerRegistry{}

// GetGlobalRegistry returns the process-wide breaker registry
func GetGlobalRegistry() *BreakerRegistry {
	return globalRegistry
}

func (r *BreakerRegistry) register(b stateReporter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.breakers = append(r.breakers, b)
}

// Status returns the current state of every registered breaker
func (r *BreakerRegistry) Status() []BreakerStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	statuses := make([]BreakerStatus, 0, len(r.breakers))
	for _, b := range r.breakers {
		statuses = append(statuses, BreakerStatus{
			Name:  b.Name(),
			State: b.State().String(),
		})
	}
	return statuses
}

// stateToInt converts a circuit breaker state to an integer for metrics
// 0=closed, 1=half-open, 2=open
func stateToInt(state gobreaker.State) int {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
