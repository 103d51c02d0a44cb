package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hb-library/library-api/internal/metrics"
)

// BreakerState represents the current state of the store breaker
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

// Breaker guards DynamoDB calls. When the document store starts
// failing consecutively the breaker opens and store operations fail
// fast with ErrUnavailable instead of piling up on a sick backend.
// All stores share one breaker instance.
type Breaker struct {
	logger            *logrus.Logger
	state             BreakerState
	failureCount      int
	successCount      int
	lastFailureTime   time.Time
	mu                sync.RWMutex
	maxFailures       int           // Open circuit after N consecutive failures
	resetTimeout      time.Duration // Wait before trying half-open
	halfOpenSuccesses int           // Required successes to close circuit
}

// NewBreaker creates a breaker with defaults tuned for a single
// regional DynamoDB endpoint.
func NewBreaker(logger *logrus.Logger) *Breaker {
	return &Breaker{
		logger:            logger,
		state:             StateClosed,
		maxFailures:       5,
		resetTimeout:      10 * time.Second,
		halfOpenSuccesses: 3,
	}
}

// Execute runs a store call under breaker protection. Domain
// sentinels (not-found, conflicts) prove the backend is reachable and
// count as successes; only transport or service errors trip the
// breaker.
func (b *Breaker) Execute(ctx context.Context, fn func() error) error {
	b.mu.RLock()
	state := b.state
	b.mu.RUnlock()

	if state == StateOpen {
		b.mu.Lock()
		if time.Since(b.lastFailureTime) > b.resetTimeout {
			b.state = StateHalfOpen
			b.successCount = 0
			b.logger.Info("Store breaker: OPEN -> HALF_OPEN (retry attempt)")
			b.mu.Unlock()
		} else {
			b.mu.Unlock()
			return ErrUnavailable
		}
	}

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil && !isDomainError(err) {
		b.onFailure(err)
		return err
	}

	b.onSuccess()
	return err
}

// execObserved runs fn under the breaker and records the call in the
// store operation histogram. Domain sentinels count as success there
// for the same reason they do in the breaker.
func execObserved(ctx context.Context, b *Breaker, table, operation string, fn func() error) error {
	start := time.Now()
	err := b.Execute(ctx, fn)

	status := "success"
	if err != nil && !isDomainError(err) {
		status = "error"
	}
	metrics.RecordStoreOperation(table, operation, status, time.Since(start))

	return err
}

func isDomainError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrVersionConflict)
}

func (b *Breaker) onFailure(err error) {
	b.failureCount++
	b.lastFailureTime = time.Now()

	switch b.state {
	case StateClosed:
		if b.failureCount >= b.maxFailures {
			b.state = StateOpen
			b.logger.WithFields(logrus.Fields{
				"failure_count": b.failureCount,
				"error":         err.Error(),
			}).Error("Store breaker: CLOSED -> OPEN (document store unhealthy)")
		}

	case StateHalfOpen:
		b.state = StateOpen
		b.failureCount = 0
		b.logger.WithError(err).Error("Store breaker: HALF_OPEN -> OPEN (document store still unhealthy)")
	}
}

func (b *Breaker) onSuccess() {
	b.successCount++

	switch b.state {
	case StateClosed:
		if b.failureCount > 0 {
			b.failureCount = 0
		}

	case StateHalfOpen:
		if b.successCount >= b.halfOpenSuccesses {
			b.state = StateClosed
			b.failureCount = 0
			b.successCount = 0
			b.logger.Info("Store breaker: HALF_OPEN -> CLOSED (document store recovered)")
		}
	}
}

// State returns the current breaker state
func (b *Breaker) State() BreakerState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Stats returns current breaker statistics for the admin surface
func (b *Breaker) Stats() map[string]interface{} {
	b.mu.RLock()
	defer b.mu.RUnlock()

	stateStr := "CLOSED"
	switch b.state {
	case StateOpen:
		stateStr = "OPEN"
	case StateHalfOpen:
		stateStr = "HALF_OPEN"
	}

	return map[string]interface{}{
		"state":         stateStr,
		"failure_count": b.failureCount,
		"success_count": b.successCount,
		"max_failures":  b.maxFailures,
		"last_failure":  b.lastFailureTime,
		"reset_timeout": b.resetTimeout.String(),
	}
}
