package llm

import (
	"sync"
	"time"
)

// BreakerState is the circuit position for one provider.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// CircuitBreaker guards one provider: consecutive failures open the
// circuit, a cool-off admits a single probe, and a probe success closes
// it again.
type CircuitBreaker struct {
	mu               sync.Mutex
	state            BreakerState
	failureThreshold int
	coolOff          time.Duration
	failures         int
	openedAt         time.Time
	now              func() time.Time
}

func NewCircuitBreaker(failureThreshold int, coolOff time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		state:            BreakerClosed,
		failureThreshold: failureThreshold,
		coolOff:          coolOff,
		now:              time.Now,
	}
}

// Allow reports whether a call may proceed. In the open state one probe
// per cool-off window is admitted (half-open).
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true
	case BreakerHalfOpen:
		return false
	default: // open
		if b.now().Sub(b.openedAt) >= b.coolOff {
			b.state = BreakerHalfOpen
			return true
		}
		return false
	}
}

// RecordSuccess closes the circuit.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = 0
}

// RecordFailure counts toward opening; a half-open probe failure
// re-opens immediately.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if b.state == BreakerHalfOpen || b.failures >= b.failureThreshold {
		b.state = BreakerOpen
		b.openedAt = b.now()
		b.failures = 0
	}
}

// State returns the current circuit position.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Registry holds one breaker per provider. This is the only process-wide
// singleton-shaped state the pipeline allows itself.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker

	failureThreshold int
	coolOff          time.Duration
}

func NewRegistry(failureThreshold int, coolOff time.Duration) *Registry {
	return &Registry{
		breakers:         make(map[string]*CircuitBreaker),
		failureThreshold: failureThreshold,
		coolOff:          coolOff,
	}
}

// For returns the provider's breaker, creating it on first use.
func (r *Registry) For(provider string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	breaker, ok := r.breakers[provider]
	if !ok {
		breaker = NewCircuitBreaker(r.failureThreshold, r.coolOff)
		r.breakers[provider] = breaker
	}
	return breaker
}
