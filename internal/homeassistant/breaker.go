// Package homeassistant provides the REST client for Home Assistant
// gateways: entity state reads, history fetches, and service calls. All
// outbound calls go through a circuit breaker so a dead gateway cannot tie
// up request handlers.
package homeassistant

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned when the circuit breaker is open and rejects
// requests to prevent cascading failures.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerConfig holds the configuration for the circuit breaker.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures required to trip
	// the circuit. Default: 3
	MaxFailures uint32

	// Timeout is the duration the circuit stays open before transitioning
	// to half-open. Default: 30 seconds
	Timeout time.Duration

	// HalfOpenMaxSuccesses is the number of consecutive successes required
	// in half-open state to close the circuit again. Default: 2
	HalfOpenMaxSuccesses uint32
}

// BreakerMetrics holds counters about breaker-guarded calls.
type BreakerMetrics struct {
	TotalRequests  uint64
	TotalSuccesses uint64
	TotalFailures  uint64
}

// Breaker wraps gobreaker to protect gateway calls. When closed, requests
// pass through. After MaxFailures consecutive failures the circuit opens
// and rejects all requests; after Timeout it half-opens and allows test
// requests through.
type Breaker struct {
	breaker *gobreaker.CircuitBreaker
	mu      sync.RWMutex
	metrics BreakerMetrics
}

// NewBreaker creates a circuit breaker with default configuration:
// 3 consecutive failures to open, 30 second open timeout, 2 half-open
// successes to close.
func NewBreaker(name string) *Breaker {
	return NewBreakerWithConfig(name, BreakerConfig{
		MaxFailures:          3,
		Timeout:              30 * time.Second,
		HalfOpenMaxSuccesses: 2,
	})
}

// NewBreakerWithConfig creates a circuit breaker with custom configuration.
func NewBreakerWithConfig(name string, config BreakerConfig) *Breaker {
	b := &Breaker{}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: config.HalfOpenMaxSuccesses,
		Interval:    0,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.MaxFailures
		},
	}

	b.breaker = gobreaker.NewCircuitBreaker(settings)
	return b
}

// Execute runs the given function through the circuit breaker. If the
// circuit is open it returns ErrCircuitOpen immediately. There is no
// automatic retry: a failure is terminal for that attempt.
func (b *Breaker) Execute(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	select {
	case <-ctx.Done():
		b.record(false)
		return nil, ctx.Err()
	default:
	}

	result, err := b.breaker.Execute(func() (interface{}, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		return fn()
	})

	if err != nil {
		b.record(false)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrCircuitOpen
		}
		return nil, err
	}

	b.record(true)
	return result, nil
}

// State returns the current breaker state: "closed", "open", or
// "half-open".
func (b *Breaker) State() string {
	switch b.breaker.State() {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Metrics returns a snapshot of call counters.
func (b *Breaker) Metrics() BreakerMetrics {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.metrics
}

func (b *Breaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.metrics.TotalRequests++
	if success {
		b.metrics.TotalSuccesses++
	} else {
		b.metrics.TotalFailures++
	}
}
