package client

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// =============================================================================
// Retry Configuration
// =============================================================================

// RetryConfig configures retry behavior.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts
	MaxRetries int
	// InitialBackoff is the initial backoff duration
	InitialBackoff time.Duration
	// MaxBackoff is the maximum backoff duration
	MaxBackoff time.Duration
	// BackoffMultiplier is the multiplier for exponential backoff
	BackoffMultiplier float64
	// Jitter adds randomness to backoff (0.0 to 1.0)
	Jitter float64
	// RetryableStatusCodes are retried for reads and other idempotent requests
	RetryableStatusCodes []int
	// UnprocessedStatusCodes mean the server did not act on the request, so
	// even inserts may be replayed
	UnprocessedStatusCodes []int
}

// DefaultRetryConfig returns defaults tuned for PostgREST.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
		RetryableStatusCodes: []int{
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		},
		UnprocessedStatusCodes: []int{
			http.StatusTooManyRequests,
			http.StatusServiceUnavailable,
		},
	}
}

// =============================================================================
// Circuit Breaker
// =============================================================================

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures circuit breaker behavior.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening
	FailureThreshold int
	// SuccessThreshold is the number of half-open successes needed to close
	SuccessThreshold int
	// Timeout is how long the circuit stays open before probing
	Timeout time.Duration
	// OnStateChange is called asynchronously when the state changes
	OnStateChange func(from, to CircuitState)
}

// DefaultCircuitBreakerConfig returns sensible defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}

// CircuitBreaker implements the circuit breaker pattern.
type CircuitBreaker struct {
	mu sync.RWMutex

	config CircuitBreakerConfig
	state  CircuitState

	failures  int
	successes int
	lastError error
	openedAt  time.Time
	now       func() time.Time
}

// NewCircuitBreaker creates a new circuit breaker.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 1
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 1
	}
	return &CircuitBreaker{
		config: config,
		state:  CircuitClosed,
		now:    time.Now,
	}
}

// ErrCircuitOpen is returned when the circuit is open.
var ErrCircuitOpen = errors.New("supabase circuit breaker is open")

// Allow checks if a request should be allowed.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen {
		if cb.now().Sub(cb.openedAt) < cb.config.Timeout {
			return ErrCircuitOpen
		}
		cb.transitionTo(CircuitHalfOpen)
	}
	return nil
}

// RecordSuccess records a successful request.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		cb.failures = 0
	case CircuitHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.transitionTo(CircuitClosed)
		}
	}
}

// RecordFailure records a failed request.
func (cb *CircuitBreaker) RecordFailure(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastError = err

	switch cb.state {
	case CircuitClosed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.transitionTo(CircuitOpen)
		}
	case CircuitHalfOpen:
		cb.transitionTo(CircuitOpen)
	}
}

func (cb *CircuitBreaker) transitionTo(newState CircuitState) {
	oldState := cb.state
	cb.state = newState

	switch newState {
	case CircuitClosed:
		cb.failures = 0
		cb.successes = 0
	case CircuitOpen:
		cb.openedAt = cb.now()
		cb.successes = 0
	case CircuitHalfOpen:
		cb.successes = 0
	}

	if cb.config.OnStateChange != nil && oldState != newState {
		go cb.config.OnStateChange(oldState, newState)
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// LastError returns the last recorded error.
func (cb *CircuitBreaker) LastError() error {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.lastError
}

// =============================================================================
// Resilient Transport
// =============================================================================

// ResilientTransport is an http.RoundTripper that retries transient
// failures and trips a circuit breaker when Supabase keeps failing.
type ResilientTransport struct {
	base           http.RoundTripper
	retryConfig    RetryConfig
	circuitBreaker *CircuitBreaker
	onRetry        func(method string, status int)

	totalRequests   int64
	successRequests int64
	failedRequests  int64
	retriedRequests int64
}

// ResilienceConfig configures the resilient transport.
type ResilienceConfig struct {
	Base                 http.RoundTripper
	RetryConfig          RetryConfig
	CircuitBreakerConfig CircuitBreakerConfig
	// OnRetry is called before each retry with the failed status (0 for
	// network errors).
	OnRetry func(method string, status int)
}

// NewResilientTransport wraps cfg.Base (or a TLS 1.2+ default transport).
func NewResilientTransport(cfg ResilienceConfig) *ResilientTransport {
	base := cfg.Base
	if base == nil {
		base = defaultTransport()
	}
	return &ResilientTransport{
		base:           base,
		retryConfig:    cfg.RetryConfig,
		circuitBreaker: NewCircuitBreaker(cfg.CircuitBreakerConfig),
		onRetry:        cfg.OnRetry,
	}
}

// RoundTrip executes req with retry and circuit breaking. Requests are only
// replayed when their body can be rewound through GetBody.
func (rt *ResilientTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	atomic.AddInt64(&rt.totalRequests, 1)

	if err := rt.circuitBreaker.Allow(); err != nil {
		atomic.AddInt64(&rt.failedRequests, 1)
		return nil, err
	}

	replayable := req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
	idempotent := isIdempotent(req)

	var (
		resp    *http.Response
		lastErr error
	)
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			select {
			case <-req.Context().Done():
				atomic.AddInt64(&rt.failedRequests, 1)
				return nil, req.Context().Err()
			case <-time.After(rt.backoff(attempt)):
			}
			atomic.AddInt64(&rt.retriedRequests, 1)

			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, err
				}
				req = req.Clone(req.Context())
				req.Body = body
			}
		}

		resp, lastErr = rt.base.RoundTrip(req)
		canRetry := replayable && attempt < rt.retryConfig.MaxRetries

		if lastErr != nil {
			if canRetry && idempotent && isRetryableError(lastErr) {
				rt.notifyRetry(req.Method, 0)
				continue
			}
			break
		}

		if canRetry && rt.shouldRetryStatus(resp.StatusCode, idempotent) {
			rt.notifyRetry(req.Method, resp.StatusCode)
			resp.Body.Close()
			continue
		}

		if resp.StatusCode >= http.StatusInternalServerError {
			lastErr = &HTTPError{StatusCode: resp.StatusCode}
			rt.circuitBreaker.RecordFailure(lastErr)
			atomic.AddInt64(&rt.failedRequests, 1)
			return resp, nil
		}

		rt.circuitBreaker.RecordSuccess()
		atomic.AddInt64(&rt.successRequests, 1)
		return resp, nil
	}

	rt.circuitBreaker.RecordFailure(lastErr)
	atomic.AddInt64(&rt.failedRequests, 1)
	return nil, lastErr
}

func (rt *ResilientTransport) notifyRetry(method string, status int) {
	if rt.onRetry != nil {
		rt.onRetry(method, status)
	}
}

func (rt *ResilientTransport) shouldRetryStatus(code int, idempotent bool) bool {
	codes := rt.retryConfig.UnprocessedStatusCodes
	if idempotent {
		codes = rt.retryConfig.RetryableStatusCodes
	}
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

func (rt *ResilientTransport) backoff(attempt int) time.Duration {
	cfg := rt.retryConfig
	multiplier := cfg.BackoffMultiplier
	if multiplier <= 0 {
		multiplier = 1
	}
	backoff := float64(cfg.InitialBackoff) * math.Pow(multiplier, float64(attempt-1))
	if cfg.MaxBackoff > 0 && backoff > float64(cfg.MaxBackoff) {
		backoff = float64(cfg.MaxBackoff)
	}
	if cfg.Jitter > 0 {
		backoff += backoff * cfg.Jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(backoff)
}

// isIdempotent treats reads, deletes and PostgREST upserts as safe to replay.
func isIdempotent(req *http.Request) bool {
	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return true
	case http.MethodPost:
		return req.URL.Query().Get("on_conflict") != ""
	}
	return false
}

func isRetryableError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// HTTPError represents an HTTP error.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return http.StatusText(e.StatusCode)
}

// Metrics returns transport counters.
func (rt *ResilientTransport) Metrics() map[string]int64 {
	return map[string]int64{
		"total_requests":   atomic.LoadInt64(&rt.totalRequests),
		"success_requests": atomic.LoadInt64(&rt.successRequests),
		"failed_requests":  atomic.LoadInt64(&rt.failedRequests),
		"retried_requests": atomic.LoadInt64(&rt.retriedRequests),
	}
}

// CircuitState returns the current circuit breaker state.
func (rt *ResilientTransport) CircuitState() CircuitState {
	return rt.circuitBreaker.State()
}

// NewResilient creates a Supabase client whose HTTP transport retries and
// circuit-breaks.
func NewResilient(cfg Config, resilience ResilienceConfig) (*Client, *ResilientTransport, error) {
	if cfg.HTTPClient != nil && resilience.Base == nil {
		resilience.Base = cfg.HTTPClient.Transport
	}
	transport := NewResilientTransport(resilience)
	cfg.HTTPClient = &http.Client{
		Transport: transport,
		Timeout:   30 * time.Second,
	}
	c, err := New(cfg)
	if err != nil {
		return nil, nil, err
	}
	return c, transport, nil
}
