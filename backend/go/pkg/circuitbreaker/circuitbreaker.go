package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State represents the state of the circuit breaker.
type State int

const (
	// Closed is the initial state where requests are allowed.
	Closed State = iota
	// Open state is when the circuit has tripped and requests are blocked.
	Open
	// HalfOpen allows a limited number of trial requests to test recovery.
	HalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case Closed:
		return "Closed"
	case Open:
		return "Open"
	case HalfOpen:
		return "Half-Open"
	default:
		return "Unknown"
	}
}

var (
	// ErrCircuitOpen is returned when the circuit breaker is in the Open state.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyTrials is returned when the half-open trial budget is exhausted.
	ErrTooManyTrials = errors.New("circuit breaker is half-open and busy")
)

// CircuitBreaker is the interface used by callers that only need to run guarded calls.
type CircuitBreaker interface {
	Execute(req func() (interface{}, error)) (interface{}, error)
	State() State
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithName sets a name reported to the state change callback.
func WithName(name string) Option {
	return func(b *Breaker) { b.name = name }
}

// WithStateChange registers a callback invoked (outside the lock) on every transition.
func WithStateChange(fn func(name string, from, to State)) Option {
	return func(b *Breaker) { b.onStateChange = fn }
}

// WithClock replaces time.Now, used in tests.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// Breaker is a consecutive-failure circuit breaker.
type Breaker struct {
	name             string
	failureThreshold uint32
	successThreshold uint32
	timeout          time.Duration
	onStateChange    func(name string, from, to State)
	now              func() time.Time

	mutex                sync.Mutex
	state                State
	consecutiveFailures  uint32
	consecutiveSuccesses uint32
	halfOpenInFlight     uint32
	openedAt             time.Time
}

// New creates a Breaker.
// failureThreshold consecutive failures open the circuit; after timeout it turns half-open and
// successThreshold consecutive trial successes close it again.
func New(failureThreshold, successThreshold uint32, timeout time.Duration, opts ...Option) *Breaker {
	if failureThreshold == 0 {
		failureThreshold = 1
	}
	if successThreshold == 0 {
		successThreshold = 1
	}
	b := &Breaker{
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		timeout:          timeout,
		now:              time.Now,
		state:            Closed,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// State returns the current state, applying the Open -> HalfOpen timeout.
func (b *Breaker) State() State {
	b.mutex.Lock()
	s, transition := b.currentState()
	b.mutex.Unlock()
	b.notify(transition)
	return s
}

type stateTransition struct {
	from, to State
	changed  bool
}

// currentState assumes the lock is held.
func (b *Breaker) currentState() (State, stateTransition) {
	if b.state == Open && b.now().Sub(b.openedAt) >= b.timeout {
		return HalfOpen, b.setState(HalfOpen)
	}
	return b.state, stateTransition{}
}

// setState assumes the lock is held.
func (b *Breaker) setState(to State) stateTransition {
	from := b.state
	if from == to {
		return stateTransition{}
	}
	b.state = to
	b.consecutiveFailures = 0
	b.consecutiveSuccesses = 0
	b.halfOpenInFlight = 0
	if to == Open {
		b.openedAt = b.now()
	}
	return stateTransition{from: from, to: to, changed: true}
}

func (b *Breaker) notify(t stateTransition) {
	if t.changed && b.onStateChange != nil {
		b.onStateChange(b.name, t.from, t.to)
	}
}

func (b *Breaker) before() error {
	b.mutex.Lock()
	state, transition := b.currentState()
	var err error
	switch state {
	case Open:
		err = ErrCircuitOpen
	case HalfOpen:
		if b.halfOpenInFlight >= b.successThreshold {
			err = ErrTooManyTrials
		} else {
			b.halfOpenInFlight++
		}
	}
	b.mutex.Unlock()
	b.notify(transition)
	return err
}

func (b *Breaker) after(failed bool) {
	b.mutex.Lock()
	var transition stateTransition
	switch b.state {
	case HalfOpen:
		if b.halfOpenInFlight > 0 {
			b.halfOpenInFlight--
		}
		if failed {
			transition = b.setState(Open)
		} else {
			b.consecutiveSuccesses++
			if b.consecutiveSuccesses >= b.successThreshold {
				transition = b.setState(Closed)
			}
		}
	case Closed:
		if failed {
			b.consecutiveFailures++
			if b.consecutiveFailures >= b.failureThreshold {
				transition = b.setState(Open)
			}
		} else {
			b.consecutiveFailures = 0
		}
	}
	b.mutex.Unlock()
	b.notify(transition)
}

// Execute runs req if the circuit allows it and records the outcome.
func (b *Breaker) Execute(req func() (interface{}, error)) (interface{}, error) {
	if err := b.before(); err != nil {
		return nil, err
	}
	res, err := req()
	b.after(err != nil)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Do runs fn under the breaker. A context that is already done is returned as is and not counted.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := b.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	return err
}
