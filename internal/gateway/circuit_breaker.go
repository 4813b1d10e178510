package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pitabwire/journeybff/internal/config"
)

// BreakerState is the state of a CircuitBreaker.
type BreakerState int

const (
	// BreakerClosed lets calls through and counts failures.
	BreakerClosed BreakerState = iota
	// BreakerOpen fails calls fast until the open period ends.
	BreakerOpen
	// BreakerHalfOpen lets a limited number of probe calls through.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// Gauge is the value exported on the breaker state gauge.
func (s BreakerState) Gauge() float64 {
	switch s {
	case BreakerHalfOpen:
		return 1
	case BreakerOpen:
		return 2
	}
	return 0
}

// Outcome classifies a finished call for the breaker.
type Outcome int

const (
	// Ignored calls do not move the breaker, e.g. a 4xx answer.
	Ignored Outcome = iota
	// Succeeded calls reached a healthy upstream.
	Succeeded
	// Failed calls hit a transport error or a 5xx answer.
	Failed
)

// ErrCircuitOpen is returned by Acquire while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// minRateSamples is the number of calls a window needs before its error
// rate can trip the breaker.
const minRateSamples = 10

// CircuitBreaker guards one upstream service. It opens on consecutive
// failures or on the error rate of a tumbling window and is safe for
// concurrent use. Outcomes reported for calls acquired before the last
// state change are dropped.
type CircuitBreaker struct {
	cfg      config.CircuitBreakerConfig
	onChange func(BreakerState)

	mu         sync.Mutex
	state      BreakerState
	generation uint64
	openedAt   time.Time
	consecFail int
	probes     int
	probeOK    int
	window     rateWindow
}

type rateWindow struct {
	start    time.Time
	total    int
	failures int
}

// NewCircuitBreaker builds a breaker. Zero thresholds fall back to 5
// failures, 2 probe successes and a 30s open period. onChange runs with the
// breaker locked on every state change.
func NewCircuitBreaker(cfg config.CircuitBreakerConfig, onChange func(BreakerState)) *CircuitBreaker {
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold < 1 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &CircuitBreaker{
		cfg:      cfg,
		onChange: onChange,
		window:   rateWindow{start: time.Now()},
	}
}

// Acquire admits one call. On success the caller must report the call's
// outcome through done exactly once.
func (cb *CircuitBreaker) Acquire() (done func(Outcome), err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.advance(time.Now())
	switch cb.state {
	case BreakerOpen:
		return nil, ErrCircuitOpen
	case BreakerHalfOpen:
		if cb.probes >= cb.cfg.SuccessThreshold {
			return nil, ErrCircuitOpen
		}
		cb.probes++
	}

	gen := cb.generation
	var once sync.Once
	return func(o Outcome) {
		once.Do(func() { cb.report(gen, o) })
	}, nil
}

func (cb *CircuitBreaker) report(gen uint64, o Outcome) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if gen != cb.generation {
		return
	}
	now := time.Now()
	switch cb.state {
	case BreakerClosed:
		switch o {
		case Succeeded:
			cb.consecFail = 0
			cb.countInWindow(now, false)
		case Failed:
			cb.consecFail++
			cb.countInWindow(now, true)
			if cb.consecFail >= cb.cfg.FailureThreshold || cb.rateExceeded() {
				cb.transition(BreakerOpen, now)
			}
		}
	case BreakerHalfOpen:
		cb.probes--
		switch o {
		case Succeeded:
			cb.probeOK++
			if cb.probeOK >= cb.cfg.SuccessThreshold {
				cb.transition(BreakerClosed, now)
			}
		case Failed:
			cb.transition(BreakerOpen, now)
		}
	}
}

// State returns the current state, moving an expired open breaker to
// half-open.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.advance(time.Now())
	return cb.state
}

// HealthCheck fails while the breaker is open.
func (cb *CircuitBreaker) HealthCheck(context.Context) error {
	if cb.State() == BreakerOpen {
		return ErrCircuitOpen
	}
	return nil
}

// ErrorRate returns the failure ratio and call count of the current window.
func (cb *CircuitBreaker) ErrorRate() (rate float64, total int) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.rollWindow(time.Now())
	if cb.window.total == 0 {
		return 0, 0
	}
	return float64(cb.window.failures) / float64(cb.window.total), cb.window.total
}

// advance ends an expired open period. Lock held.
func (cb *CircuitBreaker) advance(now time.Time) {
	if cb.state == BreakerOpen && now.Sub(cb.openedAt) > cb.cfg.Timeout {
		cb.transition(BreakerHalfOpen, now)
	}
}

// transition enters s and starts a new generation. Lock held.
func (cb *CircuitBreaker) transition(s BreakerState, now time.Time) {
	if cb.state == s {
		return
	}
	cb.state = s
	cb.generation++
	cb.consecFail, cb.probes, cb.probeOK = 0, 0, 0
	switch s {
	case BreakerOpen:
		cb.openedAt = now
		cb.window = rateWindow{start: now}
	case BreakerClosed:
		cb.window = rateWindow{start: now}
	}
	if cb.onChange != nil {
		cb.onChange(s)
	}
}

func (cb *CircuitBreaker) rateEnabled() bool {
	return cb.cfg.ErrorRateThreshold > 0 && cb.cfg.ErrorRateWindow > 0
}

// Lock held.
func (cb *CircuitBreaker) rollWindow(now time.Time) {
	if cb.cfg.ErrorRateWindow > 0 && now.Sub(cb.window.start) > cb.cfg.ErrorRateWindow {
		cb.window = rateWindow{start: now}
	}
}

// Lock held.
func (cb *CircuitBreaker) countInWindow(now time.Time, failed bool) {
	if cb.cfg.ErrorRateWindow <= 0 {
		return
	}
	cb.rollWindow(now)
	cb.window.total++
	if failed {
		cb.window.failures++
	}
}

// Lock held.
func (cb *CircuitBreaker) rateExceeded() bool {
	if !cb.rateEnabled() || cb.window.total < minRateSamples {
		return false
	}
	return float64(cb.window.failures)/float64(cb.window.total) >= cb.cfg.ErrorRateThreshold
}
