package common

import (
	"context"
	stdliberrors "errors"
	"math"
	"math/rand"
	"sync/atomic"
	"time"
)

// ErrCircuitOpen is returned by CircuitBreaker.Execute while the breaker
// rejects calls.
var ErrCircuitOpen = stdliberrors.New("circuit breaker is open")

// ---------------------------------------------------------------------------
// RetryPolicy
// ---------------------------------------------------------------------------

// RetryPolicy governs how failed model calls and event deliveries are retried.
type RetryPolicy struct {
	MaxRetries        int           `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
	InitialBackoff    time.Duration `json:"initial_backoff" yaml:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff        time.Duration `json:"max_backoff" yaml:"max_backoff" mapstructure:"max_backoff"`
	BackoffMultiplier float64       `json:"backoff_multiplier" yaml:"backoff_multiplier" mapstructure:"backoff_multiplier"`

	// Retryable decides whether err deserves another attempt. Nil retries
	// every error except context cancellation and ErrCircuitOpen.
	Retryable func(err error) bool `json:"-" yaml:"-" mapstructure:"-"`
}

// DefaultRetryPolicy returns two retries starting at 100ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        2,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        2 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// ShouldRetry decides whether err is eligible for another attempt.
func (p *RetryPolicy) ShouldRetry(err error) bool {
	if p == nil || err == nil {
		return false
	}
	if stdliberrors.Is(err, context.Canceled) || stdliberrors.Is(err, ErrCircuitOpen) {
		return false
	}
	if p.Retryable == nil {
		return true
	}
	return p.Retryable(err)
}

// Backoff returns the delay before the attempt-th retry (0-based).
// Exponential with ±25 % jitter, capped at MaxBackoff.
func (p *RetryPolicy) Backoff(attempt int) time.Duration {
	if p == nil || p.InitialBackoff <= 0 {
		return 0
	}
	multiplier := p.BackoffMultiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}
	base := float64(p.InitialBackoff) * math.Pow(multiplier, float64(attempt))
	if p.MaxBackoff > 0 && base > float64(p.MaxBackoff) {
		base = float64(p.MaxBackoff)
	}
	jitter := base * 0.25 * (rand.Float64()*2 - 1)
	d := time.Duration(base + jitter)
	if d < 0 {
		d = 0
	}
	return d
}

// Retry runs fn until it succeeds, the policy gives up or ctx is done. The
// error of the last attempt is returned.
func Retry(ctx context.Context, policy *RetryPolicy, fn func(ctx context.Context) error) error {
	maxAttempts := 1
	if policy != nil && policy.MaxRetries > 0 {
		maxAttempts += policy.MaxRetries
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if delay := policy.Backoff(attempt - 1); delay > 0 {
				timer := time.NewTimer(delay)
				select {
				case <-ctx.Done():
					timer.Stop()
					return ctx.Err()
				case <-timer.C:
				}
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !policy.ShouldRetry(lastErr) || ctx.Err() != nil {
			break
		}
	}
	return lastErr
}

// ---------------------------------------------------------------------------
// CircuitBreaker
// ---------------------------------------------------------------------------

// Circuit breaker states as reported to logs and metrics.
const (
	CircuitClosed   = "closed"
	CircuitOpen     = "open"
	CircuitHalfOpen = "half_open"
)

const (
	cbStateClosed   int32 = 0
	cbStateOpen     int32 = 1
	cbStateHalfOpen int32 = 2
)

var cbStateNames = map[int32]string{
	cbStateClosed:   CircuitClosed,
	cbStateOpen:     CircuitOpen,
	cbStateHalfOpen: CircuitHalfOpen,
}

// CircuitBreaker guards one model backend. After Threshold consecutive
// failures it opens; after ResetTimeout it lets a single probe through and
// closes again when the probe succeeds. A zero threshold disables it.
type CircuitBreaker struct {
	name             string
	state            atomic.Int32
	consecutiveFails atomic.Int32
	threshold        int32
	resetTimeout     time.Duration
	lastOpenTime     atomic.Int64 // unix-nano
	halfOpenPermits  atomic.Int32
	logger           Logger
	metrics          ModelMetrics
	now              func() time.Time
}

// NewCircuitBreaker creates a closed breaker. Nil logger and metrics are
// replaced by no-op implementations.
func NewCircuitBreaker(name string, threshold int, resetTimeout time.Duration, logger Logger, metrics ModelMetrics) *CircuitBreaker {
	if logger == nil {
		logger = NewNoopLogger()
	}
	if metrics == nil {
		metrics = NewNoopModelMetrics()
	}
	cb := &CircuitBreaker{
		name:         name,
		threshold:    int32(threshold),
		resetTimeout: resetTimeout,
		logger:       logger,
		metrics:      metrics,
		now:          time.Now,
	}
	cb.state.Store(cbStateClosed)
	return cb
}

// Allow reports whether a call may go through the breaker.
func (cb *CircuitBreaker) Allow() bool {
	if cb == nil || cb.threshold <= 0 {
		return true
	}
	switch cb.state.Load() {
	case cbStateClosed:
		return true
	case cbStateOpen:
		openedAt := cb.lastOpenTime.Load()
		if cb.now().Sub(time.Unix(0, openedAt)) < cb.resetTimeout {
			return false
		}
		if cb.state.CompareAndSwap(cbStateOpen, cbStateHalfOpen) {
			cb.halfOpenPermits.Store(1)
			cb.stateChanged(cbStateOpen, cbStateHalfOpen)
		}
		return cb.halfOpenPermits.Add(-1) >= 0
	case cbStateHalfOpen:
		return cb.halfOpenPermits.Add(-1) >= 0
	}
	return false
}

// RecordSuccess resets the failure count and closes a half-open breaker.
func (cb *CircuitBreaker) RecordSuccess() {
	if cb == nil || cb.threshold <= 0 {
		return
	}
	cb.consecutiveFails.Store(0)
	if cb.state.CompareAndSwap(cbStateHalfOpen, cbStateClosed) {
		cb.stateChanged(cbStateHalfOpen, cbStateClosed)
	}
}

// RecordFailure counts a failure and may trip the breaker.
func (cb *CircuitBreaker) RecordFailure() {
	if cb == nil || cb.threshold <= 0 {
		return
	}
	fails := cb.consecutiveFails.Add(1)

	switch cb.state.Load() {
	case cbStateClosed:
		if fails >= cb.threshold && cb.state.CompareAndSwap(cbStateClosed, cbStateOpen) {
			cb.lastOpenTime.Store(cb.now().UnixNano())
			cb.stateChanged(cbStateClosed, cbStateOpen)
		}
	case cbStateHalfOpen:
		if cb.state.CompareAndSwap(cbStateHalfOpen, cbStateOpen) {
			cb.lastOpenTime.Store(cb.now().UnixNano())
			cb.stateChanged(cbStateHalfOpen, cbStateOpen)
		}
	}
}

// Execute runs fn through the breaker. Context cancellation by the caller is
// not counted as a backend failure.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if !cb.Allow() {
		return ErrCircuitOpen
	}
	err := fn(ctx)
	switch {
	case err == nil:
		cb.RecordSuccess()
	case stdliberrors.Is(err, context.Canceled):
	default:
		cb.RecordFailure()
	}
	return err
}

// State returns the current state name.
func (cb *CircuitBreaker) State() string {
	if cb == nil {
		return CircuitClosed
	}
	return cbStateNames[cb.state.Load()]
}

func (cb *CircuitBreaker) stateChanged(from, to int32) {
	cb.logger.Info("circuit-breaker state change", "breaker", cb.name, "from", cbStateNames[from], "to", cbStateNames[to])
	cb.metrics.RecordCircuitBreakerStateChange(context.Background(), cb.name, cbStateNames[from], cbStateNames[to])
}

//Personal.AI order the ending
