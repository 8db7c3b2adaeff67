package breaker

import (
	"errors"
	"sync"
	"time"
)

// State is one of the three admission phases of spec.md §4.8.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned by Admit when the breaker denies admission. The
// orchestrator surfaces this verbatim as spec.md §7's BreakerOpen.
var ErrOpen = errors.New("breaker: open")

// Machine is the count-based admission state machine (C9). Ownership is
// exclusive to a single orchestrator; every transition is serialized by mu.
// The fast admission path still takes the lock, since admission decisions
// mutate half-open trial counters — spec.md §5 permits a mutex-guarded
// approach as long as the aggregate path doesn't block writers for longer
// than one pass, which a single admit/record call satisfies.
type Machine struct {
	mu     sync.Mutex
	config Config
	state  State

	outcomes *outcomeBuffer

	deadline time.Time // valid while state == Open

	halfOpenPermits   int // total trial slots granted for this half-open episode
	halfOpenInFlight  int
	halfOpenCompleted []bool
}

// NewMachine creates a Machine in the Closed state with an empty buffer.
func NewMachine(cfg Config) *Machine {
	return &Machine{
		config:   cfg,
		state:    Closed,
		outcomes: newOutcomeBuffer(cfg.WindowSize),
	}
}

// State returns the current admission phase.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Config returns the config this machine was built with.
func (m *Machine) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config
}

// Admit decides whether a call may proceed. It returns ErrOpen when the
// call must be rejected without invoking the protected operation.
func (m *Machine) Admit(now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case Closed:
		return nil

	case Open:
		if now.Before(m.deadline) {
			return ErrOpen
		}
		// Deadline has passed: the first call to observe this transitions
		// the breaker into HalfOpen and becomes trial #1.
		m.enterHalfOpenLocked()
		return m.admitHalfOpenLocked()

	case HalfOpen:
		return m.admitHalfOpenLocked()

	default:
		return nil
	}
}

func (m *Machine) admitHalfOpenLocked() error {
	if m.halfOpenInFlight >= m.halfOpenPermits {
		return ErrOpen
	}
	m.halfOpenInFlight++
	return nil
}

func (m *Machine) enterHalfOpenLocked() {
	m.state = HalfOpen
	m.halfOpenPermits = m.config.HalfOpenPermittedCall
	m.halfOpenInFlight = 0
	m.halfOpenCompleted = m.halfOpenCompleted[:0]
}

// RecordOutcome tells the machine how a previously-admitted call completed.
func (m *Machine) RecordOutcome(success bool, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case Closed:
		m.outcomes.push(success)
		if m.outcomes.total() >= m.config.MinCallsBeforeEval && m.outcomes.failureRate() >= m.config.FailureRateThreshold {
			m.tripLocked(now)
		}

	case HalfOpen:
		m.halfOpenInFlight--
		if m.halfOpenInFlight < 0 {
			m.halfOpenInFlight = 0
		}
		m.halfOpenCompleted = append(m.halfOpenCompleted, success)
		if len(m.halfOpenCompleted) >= m.halfOpenPermits {
			m.resolveHalfOpenLocked(now)
		}

	case Open:
		// A call recorded while Open can only happen if the caller ignored
		// ErrOpen; there is nothing meaningful to update.
	}
}

// resolveHalfOpenLocked decides the outcome of a completed half-open trial
// batch. All trials succeeding closes the circuit and clears the sliding
// buffer; any failure re-opens it (spec.md §9 resolves the ambiguity this
// way: "all succeed -> CLOSED; otherwise -> OPEN").
func (m *Machine) resolveHalfOpenLocked(now time.Time) {
	allSucceeded := true
	for _, ok := range m.halfOpenCompleted {
		if !ok {
			allSucceeded = false
			break
		}
	}
	if allSucceeded {
		m.state = Closed
		m.outcomes = newOutcomeBuffer(m.config.WindowSize)
	} else {
		m.tripLocked(now)
	}
}

func (m *Machine) tripLocked(now time.Time) {
	m.state = Open
	m.deadline = now.Add(m.config.OpenStateWait)
}

// Deadline returns the wall-clock time an Open breaker will next admit a
// probe. The zero value means the breaker is not Open.
func (m *Machine) Deadline() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deadline
}

// stateSnapshot captures everything needed to build a replacement
// Machine that preserves the current phase (spec.md §4.8 "Config
// replacement").
type stateSnapshot struct {
	state             State
	deadline          time.Time
	outcomes          *outcomeBuffer
	halfOpenPermits   int
	halfOpenInFlight  int
	halfOpenCompleted []bool
}

func (m *Machine) snapshotState() stateSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return stateSnapshot{
		state:             m.state,
		deadline:          m.deadline,
		outcomes:          m.outcomes.clone(),
		halfOpenPermits:   m.halfOpenPermits,
		halfOpenInFlight:  m.halfOpenInFlight,
		halfOpenCompleted: append([]bool(nil), m.halfOpenCompleted...),
	}
}

// Replace builds a new Machine with newConfig, preserving this machine's
// current phase:
//   - Open re-enters Open with the same deadline (the cooldown already in
//     progress is not restarted by a knob change).
//   - HalfOpen re-enters HalfOpen with a fresh trial counter, per spec.md
//     §4.8.
//   - Closed carries its sliding buffer forward unless its capacity
//     changed, in which case an empty buffer of the new capacity is
//     started (the same holds for Open and HalfOpen; the buffer is only guaranteed reset on an
//     Open/HalfOpen -> Closed transition, per spec.md §9).
func (m *Machine) Replace(newConfig Config) *Machine {
	prior := m.snapshotState()

	next := &Machine{config: newConfig}
	switch prior.state {
	case Open:
		next.state = Open
		next.deadline = prior.deadline
		next.outcomes = prior.outcomes.resized(newConfig.WindowSize)

	case HalfOpen:
		next.state = HalfOpen
		next.halfOpenPermits = newConfig.HalfOpenPermittedCall
		next.halfOpenInFlight = 0
		next.halfOpenCompleted = nil
		next.outcomes = prior.outcomes.resized(newConfig.WindowSize)

	default:
		next.state = Closed
		next.outcomes = prior.outcomes.resized(newConfig.WindowSize)
	}
	return next
}
