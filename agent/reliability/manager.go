package reliability

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// CircuitBreakerPolicy configures a per-key CircuitBreaker.
type CircuitBreakerPolicy struct {
	// FailureThreshold is the number of consecutive failures that opens the breaker.
	FailureThreshold int
	// ResetTimeout is how long the breaker stays open before allowing a probe call.
	ResetTimeout time.Duration
}

// DefaultCircuitBreakerPolicy returns a conservative breaker policy matching
// the reference implementation's defaults.
func DefaultCircuitBreakerPolicy() CircuitBreakerPolicy {
	return CircuitBreakerPolicy{FailureThreshold: 3, ResetTimeout: 30 * time.Second}
}

// CircuitOpenError is returned by Manager.Execute when
// the breaker for a key is open and has not yet reached its reset timeout.
type CircuitOpenError struct {
	Key string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker open for %s", e.Key)
}

// CircuitBreaker tracks consecutive failures for a single key and opens after
// FailureThreshold consecutive failures, staying open until ResetTimeout has
// elapsed since it opened; the first Allow call after that closes it again.
type CircuitBreaker struct {
	mu        sync.Mutex
	policy    CircuitBreakerPolicy
	failures  int
	openedAt  time.Time
	isOpen    bool
}

// NewCircuitBreaker constructs a CircuitBreaker with the given policy.
func NewCircuitBreaker(policy CircuitBreakerPolicy) *CircuitBreaker {
	return &CircuitBreaker{policy: policy}
}

// Allow reports whether a call may proceed. It returns true when the breaker
// is closed, or when it has been open for at least ResetTimeout (in which case
// it closes the breaker and clears the failure count, so calls proceed until
// FailureThreshold new failures open it again).
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.isOpen {
		return true
	}
	if time.Since(b.openedAt) >= b.policy.ResetTimeout {
		b.isOpen = false
		b.failures = 0
		return true
	}
	return false
}

// RecordSuccess resets the failure counter and closes the breaker.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.isOpen = false
}

// RecordFailure increments the failure counter, opening the breaker once the
// configured threshold is reached.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	threshold := b.policy.FailureThreshold
	if threshold <= 0 {
		threshold = 1
	}
	if b.failures >= threshold {
		b.isOpen = true
		b.openedAt = time.Now()
	}
}

// ReplayStore records and replays step outputs keyed by an arbitrary step
// identifier, enabling deterministic test replay: when a key is present, the
// executor returns the stored value as a successful result instead of
// invoking the underlying tool.
type ReplayStore struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewReplayStore constructs an empty ReplayStore.
func NewReplayStore() *ReplayStore {
	return &ReplayStore{values: make(map[string]any)}
}

// Get returns the recorded value for key, if any.
func (s *ReplayStore) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Record stores value under key for later replay.
func (s *ReplayStore) Record(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Manager composes a RetryPolicy with a per-key CircuitBreaker so callers can
// wrap any fallible operation (tool call, LLM invocation) in both retry and
// circuit-breaking semantics keyed by an arbitrary string (e.g. a model name
// or tool identifier).
//
// Execute follows this control flow: check the breaker for
// key, fail fast with a *CircuitOpenError if open, otherwise retry fn with
// backoff, recording success/failure against the breaker around the whole
// retried call.
type Manager struct {
	mu            sync.Mutex
	retryPolicy   RetryPolicy
	breakerPolicy CircuitBreakerPolicy
	breakers      map[string]*CircuitBreaker
}

// NewManager constructs a ReliabilityManager with the given retry and circuit
// breaker policies. Breakers are created lazily per key on first use.
func NewManager(retryPolicy RetryPolicy, breakerPolicy CircuitBreakerPolicy) *Manager {
	return &Manager{
		retryPolicy:   retryPolicy,
		breakerPolicy: breakerPolicy,
		breakers:      make(map[string]*CircuitBreaker),
	}
}

func (m *Manager) breakerFor(key string) *CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.breakers[key]
	if !ok {
		b = NewCircuitBreaker(m.breakerPolicy)
		m.breakers[key] = b
	}
	return b
}

// Execute runs fn under the breaker and retry policy for key. It blocks for
// the duration of any backoff sleeps; pass a context with a deadline to bound
// total execution time.
func (m *Manager) Execute(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	breaker := m.breakerFor(key)
	if !breaker.Allow() {
		return &CircuitOpenError{Key: key}
	}
	err := doWithBackoff(ctx, m.retryPolicy, fn)
	if err != nil {
		breaker.RecordFailure()
		return err
	}
	breaker.RecordSuccess()
	return nil
}
