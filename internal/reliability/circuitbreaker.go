package reliability

import (
	"errors"
	"sync"
	"time"

	"github.com/therealutkarshpriyadarshi/edjournal/internal/metrics"
)

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests")
)

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

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

// CircuitBreakerConfig holds configuration for the circuit breaker
type CircuitBreakerConfig struct {
	// Name labels the breaker's metrics, usually the extension name.
	Name string

	// MaxRequests is how many trial calls a half-open breaker lets through,
	// and how many of them must succeed to close it again.
	MaxRequests uint32
	// Interval clears the closed-state counts periodically. Zero never clears.
	Interval time.Duration
	// Timeout is how long the breaker stays open.
	Timeout time.Duration

	// ReadyToTrip decides from the closed-state counts whether to open.
	// Five consecutive failures by default.
	ReadyToTrip   func(counts Counts) bool
	OnStateChange func(name string, from State, to State)

	Metrics *metrics.Collector
}

// Counts holds the circuit breaker statistics
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// Snapshot is the breaker as seen at one instant.
type Snapshot struct {
	Name    string
	State   State
	Counts  Counts
	RetryIn time.Duration
}

// CircuitBreaker stops calling an extension's backend after repeated
// failures, so one dead broker does not stall the consumer loop on every
// event. Errors marked Permanent count as successes: the backend answered.
type CircuitBreaker struct {
	config CircuitBreakerConfig
	now    func() time.Time

	mu     sync.Mutex
	state  State
	counts Counts
	// until is when an open breaker half-opens, or when a closed breaker's
	// counts are cleared. Zero means never.
	until time.Time
	// epoch changes on every state change and count reset, so a call that
	// started before one does not count after it.
	epoch uint64
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.MaxRequests == 0 {
		config.MaxRequests = 1
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.ReadyToTrip == nil {
		config.ReadyToTrip = func(c Counts) bool { return c.ConsecutiveFailures >= 5 }
	}

	cb := &CircuitBreaker{config: config, now: time.Now}
	cb.restart(cb.now())
	cb.publish()
	return cb
}

// Name returns the breaker's name.
func (cb *CircuitBreaker) Name() string {
	return cb.config.Name
}

// Execute runs fn if the breaker admits it and records the outcome. A
// panicking fn counts as a failure.
func (cb *CircuitBreaker) Execute(fn func() error) (err error) {
	epoch, err := cb.admit()
	if err != nil {
		return err
	}

	ok := false
	defer func() { cb.settle(epoch, ok) }()

	err = fn()
	ok = err == nil || IsPermanent(err)
	return err
}

// State returns the current state of the circuit breaker
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.advance(cb.now())
	return cb.state
}

// Counts returns the counts of the current state.
func (cb *CircuitBreaker) Counts() Counts {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.counts
}

// RetryIn is how long an open breaker keeps refusing calls. It is zero in
// the other states.
func (cb *CircuitBreaker) RetryIn() time.Duration {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.retryIn(cb.now())
}

// Snapshot returns state, counts and RetryIn together.
func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	cb.advance(now)
	return Snapshot{
		Name:    cb.config.Name,
		State:   cb.state,
		Counts:  cb.counts,
		RetryIn: cb.retryIn(now),
	}
}

// Reset closes the breaker and clears its counts.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transition(StateClosed, cb.now())
	cb.restart(cb.now())
	cb.publish()
}

func (cb *CircuitBreaker) retryIn(now time.Time) time.Duration {
	cb.advance(now)
	if cb.state != StateOpen {
		return 0
	}
	return cb.until.Sub(now)
}

func (cb *CircuitBreaker) admit() (uint64, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.advance(cb.now())
	switch {
	case cb.state == StateOpen:
		return cb.epoch, ErrCircuitOpen
	case cb.state == StateHalfOpen && cb.counts.Requests >= cb.config.MaxRequests:
		return cb.epoch, ErrTooManyRequests
	}
	cb.counts.Requests++
	return cb.epoch, nil
}

func (cb *CircuitBreaker) settle(epoch uint64, ok bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	cb.advance(now)
	if epoch != cb.epoch {
		return
	}

	c := &cb.counts
	if ok {
		c.TotalSuccesses++
		c.ConsecutiveSuccesses++
		c.ConsecutiveFailures = 0
		if cb.state == StateHalfOpen && c.ConsecutiveSuccesses >= cb.config.MaxRequests {
			cb.transition(StateClosed, now)
		}
	} else {
		c.TotalFailures++
		c.ConsecutiveFailures++
		c.ConsecutiveSuccesses = 0
		if cb.state == StateHalfOpen || cb.config.ReadyToTrip(*c) {
			cb.transition(StateOpen, now)
		}
	}
	cb.publish()
}

// advance applies the time-driven changes: an open breaker half-opens after
// Timeout and a closed breaker's counts clear every Interval.
func (cb *CircuitBreaker) advance(now time.Time) {
	if cb.until.IsZero() || now.Before(cb.until) {
		return
	}
	switch cb.state {
	case StateOpen:
		cb.transition(StateHalfOpen, now)
		cb.publish()
	case StateClosed:
		cb.restart(now)
	}
}

func (cb *CircuitBreaker) transition(to State, now time.Time) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.restart(now)
	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.config.Name, from, to)
	}
}

// restart clears the counts and sets the deadline for the current state.
func (cb *CircuitBreaker) restart(now time.Time) {
	cb.epoch++
	cb.counts = Counts{}
	cb.until = time.Time{}
	switch cb.state {
	case StateOpen:
		cb.until = now.Add(cb.config.Timeout)
	case StateClosed:
		if cb.config.Interval > 0 {
			cb.until = now.Add(cb.config.Interval)
		}
	}
}

func (cb *CircuitBreaker) publish() {
	if cb.config.Metrics == nil {
		return
	}
	cb.config.Metrics.CircuitBreakerState.WithLabelValues(cb.config.Name).Set(float64(cb.state))
	cb.config.Metrics.CircuitBreakerConsecutive.WithLabelValues(cb.config.Name).Set(float64(cb.counts.ConsecutiveFailures))
}
