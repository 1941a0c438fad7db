package salesync

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// DefaultMaxRetries bounds how many consecutive failures a Supervisor
// tolerates before turning terminal.
const DefaultMaxRetries = 3

// ErrTerminal rejects runs on a supervisor whose retry budget is spent. Only
// an explicit Reset re-arms it.
var ErrTerminal = errors.New("salesync: retry budget exhausted, reset required")

// Operation is the guarded unit of work a Supervisor re-invokes from
// scratch; it must not rely on partial progress between attempts.
type Operation func(ctx context.Context) error

// SupervisorOptions configures a Supervisor.
type SupervisorOptions struct {
	// MaxRetries bounds consecutive failures; DefaultMaxRetries when <= 0.
	MaxRetries int
	Recorder   Recorder
}

// Supervisor is a recoverable-failure boundary around an operation. Each Run
// clears the previous error and re-invokes the operation; once MaxRetries
// consecutive runs have failed the supervisor reports a terminal state
// distinct from an ordinary failure and refuses further runs until Reset.
type Supervisor struct {
	op         Operation
	maxRetries int
	recorder   Recorder

	mu       sync.Mutex
	failures int
	lastErr  error
	terminal bool
}

// NewSupervisor wraps the operation with a bounded retry budget.
func NewSupervisor(op Operation, opts SupervisorOptions) *Supervisor {
	max := opts.MaxRetries
	if max <= 0 {
		max = DefaultMaxRetries
	}
	return &Supervisor{
		op:         op,
		maxRetries: max,
		recorder:   normalizeRecorder(opts.Recorder),
	}
}

// Run invokes the guarded operation. A run against a terminal supervisor is
// refused with a KindExhaustedRetries error and does not touch the
// operation.
func (s *Supervisor) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.op == nil {
		s.mu.Unlock()
		return errors.New("salesync: supervisor requires an operation")
	}
	if s.terminal {
		attempts := s.failures
		last := s.lastErr
		s.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrTerminal, ExhaustedError(attempts, last))
	}
	s.lastErr = nil
	s.mu.Unlock()

	err := s.op(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		s.failures = 0
		return nil
	}
	s.failures++
	s.lastErr = err
	if s.failures >= s.maxRetries {
		s.terminal = true
		s.recorder.Record(ctx, "salesync.supervisor.terminal", map[string]any{
			"failures": s.failures,
		})
	} else {
		s.recorder.Record(ctx, "salesync.supervisor.failure", map[string]any{
			"failures":  s.failures,
			"remaining": s.maxRetries - s.failures,
		})
	}
	return err
}

// Terminal reports whether the retry budget is spent.
func (s *Supervisor) Terminal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminal
}

// Err returns the most recent failure, or nil.
func (s *Supervisor) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Remaining returns how many failed runs are left before terminal state.
func (s *Supervisor) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminal {
		return 0
	}
	return s.maxRetries - s.failures
}

// Reset fully re-arms the supervisor, the equivalent of navigating away and
// back. It clears the failure count, the last error, and the terminal flag.
func (s *Supervisor) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = 0
	s.lastErr = nil
	s.terminal = false
}
