package console

import (
	"sync"
	"time"
)

// BreakerState represents the current state of the circuit breaker.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half_open"
)

// Breaker is a consecutive-failure circuit breaker. After FailureThreshold
// failures in a row it opens and rejects calls until ResetTimeout has passed,
// then lets a single trial request through (half-open).
type Breaker struct {
	mu sync.Mutex

	state               BreakerState
	failureThreshold    int
	resetTimeout        time.Duration
	consecutiveFailures int
	lastFailureTime     time.Time
	probing             bool

	now           func() time.Time
	onStateChange func(state BreakerState)
}

// NewBreaker creates a circuit breaker. A threshold <= 0 disables it.
func NewBreaker(failureThreshold int, resetTimeout time.Duration, onStateChange func(BreakerState)) *Breaker {
	return &Breaker{
		state:            StateClosed,
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		now:              time.Now,
		onStateChange:    onStateChange,
	}
}

// State returns the current state of the circuit breaker.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentState()
}

func (b *Breaker) currentState() BreakerState {
	if b.state == StateOpen && b.now().Sub(b.lastFailureTime) >= b.resetTimeout {
		return StateHalfOpen
	}
	return b.state
}

// Do runs fn unless the circuit is open. Errors for which countable returns
// false pass through without affecting the breaker.
func (b *Breaker) Do(fn func() error, countable func(error) bool) error {
	if !b.acquire() {
		return ErrCircuitOpen
	}

	err := fn()
	if err != nil && (countable == nil || countable(err)) {
		b.failure()
		return err
	}
	b.success()
	return err
}

func (b *Breaker) acquire() bool {
	if b.failureThreshold <= 0 {
		return true
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.currentState() {
	case StateOpen:
		return false
	case StateHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		b.changeState(StateHalfOpen)
	}
	return true
}

func (b *Breaker) success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probing = false
	b.consecutiveFailures = 0
	b.changeState(StateClosed)
}

func (b *Breaker) failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probing = false
	b.consecutiveFailures++
	b.lastFailureTime = b.now()

	if b.failureThreshold <= 0 {
		return
	}
	if b.state == StateHalfOpen || b.consecutiveFailures >= b.failureThreshold {
		b.changeState(StateOpen)
	}
}

func (b *Breaker) changeState(newState BreakerState) {
	if b.state != newState {
		b.state = newState
		if b.onStateChange != nil {
			b.onStateChange(newState)
		}
	}
}
