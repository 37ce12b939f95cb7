// Package circuitbreaker provides per-provider fail-fast protection.
// Repeated transient failures open the breaker so no further calls reach a
// struggling provider until a cooldown elapses; a single successful
// half-open probe closes it again.
package circuitbreaker

import (
	"log/slog"
	"math/rand/v2"
	"sync/atomic"
	"time"

	llmerrors "github.com/ahrav/go-gauntlet/internal/llm/errors"
)

// jitterDivisor sizes cooldown jitter as a fraction of the open timeout.
const jitterDivisor = 10

// State represents the current state of a circuit breaker.
// The breaker operates as a state machine with three states that control
// request flow based on failure patterns.
type State int32

const (
	// StateClosed allows requests through.
	StateClosed State = iota
	// StateOpen blocks all requests.
	StateOpen
	// StateHalfOpen allows a bounded number of probe requests.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config controls breaker thresholds and recovery timing.
type Config struct {
	// FailureThreshold is the count of consecutive qualifying failures
	// that opens the breaker.
	FailureThreshold int

	// SuccessThreshold is the count of probe successes that closes a
	// half-open breaker.
	SuccessThreshold int

	// OpenTimeout is the cooldown before an open breaker admits a probe.
	OpenTimeout time.Duration

	// HalfOpenProbes bounds concurrent probe requests in half-open state.
	HalfOpenProbes int
}

// Breaker implements per-provider circuit breaking with failure detection.
// State transitions use atomic operations so the breaker can be shared
// across every worker targeting the same provider.
type Breaker struct {
	provider string
	logger   *slog.Logger

	state           atomic.Int32
	failures        atomic.Int32
	successes       atomic.Int32
	lastFailureTime atomic.Int64
	halfOpenProbes  atomic.Int32

	failureThreshold  int
	successThreshold  int
	openTimeout       time.Duration
	maxHalfOpenProbes int
}

// NewBreaker creates a closed breaker for the given provider.
func NewBreaker(provider string, cfg Config, logger *slog.Logger) *Breaker {
	b := &Breaker{
		provider:          provider,
		logger:            logger,
		failureThreshold:  cfg.FailureThreshold,
		successThreshold:  cfg.SuccessThreshold,
		openTimeout:       cfg.OpenTimeout,
		maxHalfOpenProbes: cfg.HalfOpenProbes,
	}
	b.state.Store(int32(StateClosed))
	return b
}

// State returns the breaker's current state.
func (b *Breaker) State() State {
	return State(b.state.Load())
}

func (b *Breaker) jitter() time.Duration {
	if b.openTimeout <= 0 {
		return 0
	}
	jit := b.openTimeout / jitterDivisor
	if jit <= 0 {
		return 0
	}
	return rand.N(jit) // #nosec G404 -- non-cryptographic jitter is appropriate here
}

// Allow checks whether a request may proceed under the current state.
// The returned release function must be called when the request completes
// so probe slots are returned in half-open state. Blocked requests receive
// a CircuitBreakerError with reset timing.
func (b *Breaker) Allow() (release func(), err error) {
	state := State(b.state.Load())

	switch state {
	case StateClosed:
		return func() {}, nil

	case StateOpen, StateHalfOpen:
		if state == StateOpen {
			lastFailure := time.Unix(0, b.lastFailureTime.Load())
			timeout := b.openTimeout + b.jitter()
			if time.Since(lastFailure) <= timeout {
				return func() {}, &llmerrors.CircuitBreakerError{
					Provider: b.provider,
					State:    StateOpen.String(),
					ResetAt:  lastFailure.Add(b.openTimeout).Unix(),
				}
			}
			b.transitionTo(StateHalfOpen)
		}
		return b.acquireProbe()

	default:
		return func() {}, &llmerrors.CircuitBreakerError{
			Provider: b.provider,
			State:    "unknown",
		}
	}
}

// acquireProbe claims a half-open probe slot via compare-and-swap.
func (b *Breaker) acquireProbe() (func(), error) {
	for {
		current := b.halfOpenProbes.Load()
		if int(current) >= b.maxHalfOpenProbes {
			return func() {}, &llmerrors.CircuitBreakerError{
				Provider: b.provider,
				State:    StateHalfOpen.String(),
			}
		}
		if b.halfOpenProbes.CompareAndSwap(current, current+1) {
			release := func() {
				// Saturate at 0 if a concurrent transition reset the counter.
				for {
					cur := b.halfOpenProbes.Load()
					if cur == 0 {
						return
					}
					if b.halfOpenProbes.CompareAndSwap(cur, cur-1) {
						return
					}
				}
			}
			return release, nil
		}
	}
}

// RecordSuccess records a successful request and manages state transitions.
// In half-open state it counts probe successes and closes the breaker when
// the success threshold is reached.
func (b *Breaker) RecordSuccess() {
	for {
		state := b.state.Load()
		switch State(state) {
		case StateClosed:
			b.failures.Store(0)
			return

		case StateHalfOpen:
			successes := b.successes.Add(1)
			if int(successes) >= b.successThreshold {
				if b.state.CompareAndSwap(state, int32(StateClosed)) {
					b.failures.Store(0)
					b.successes.Store(0)
					b.halfOpenProbes.Store(0)
					b.logger.Info("circuit breaker state transition",
						"provider", b.provider,
						"from", StateHalfOpen.String(),
						"to", StateClosed.String())
					return
				}
				b.successes.Add(-1)
				continue
			}
			return

		case StateOpen:
			// Stale success from a request admitted before the breaker
			// opened; it does not affect open state.
			return
		}
	}
}

// RecordFailure records a qualifying failure and manages state transitions.
// In closed state it counts consecutive failures toward the threshold; in
// half-open state a single failure re-opens the breaker and restarts the
// cooldown.
func (b *Breaker) RecordFailure() {
	b.lastFailureTime.Store(time.Now().UnixNano())

	for {
		state := b.state.Load()
		switch State(state) {
		case StateClosed:
			failures := b.failures.Add(1)
			if int(failures) >= b.failureThreshold {
				if b.state.CompareAndSwap(state, int32(StateOpen)) {
					b.failures.Store(0)
					b.successes.Store(0)
					b.logger.Info("circuit breaker state transition",
						"provider", b.provider,
						"from", StateClosed.String(),
						"to", StateOpen.String())
					return
				}
				continue
			}
			return

		case StateHalfOpen:
			if b.state.CompareAndSwap(state, int32(StateOpen)) {
				b.failures.Store(0)
				b.successes.Store(0)
				b.halfOpenProbes.Store(0)
				b.logger.Info("circuit breaker state transition",
					"provider", b.provider,
					"from", StateHalfOpen.String(),
					"to", StateOpen.String())
				return
			}
			continue

		case StateOpen:
			return
		}
	}
}

// transitionTo changes the breaker state directly, resetting counters.
func (b *Breaker) transitionTo(newState State) {
	oldState := State(b.state.Swap(int32(newState)))
	if oldState == newState {
		return
	}

	b.successes.Store(0)
	b.halfOpenProbes.Store(0)
	if newState != StateHalfOpen {
		b.failures.Store(0)
	}

	b.logger.Info("circuit breaker state transition",
		"provider", b.provider,
		"from", oldState.String(),
		"to", newState.String())
}
