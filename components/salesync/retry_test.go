package salesync

import (
	"context"
	"errors"
	"testing"
)

func TestSupervisorTurnsTerminalAfterBudget(t *testing.T) {
	calls := 0
	op := func(context.Context) error {
		calls++
		return UnreachableError(errors.New("connection refused"))
	}
	supervisor := NewSupervisor(op, SupervisorOptions{MaxRetries: 3})

	for i := 0; i < 3; i++ {
		if err := supervisor.Run(context.Background()); err == nil {
			t.Fatalf("run %d should fail", i+1)
		}
	}
	if !supervisor.Terminal() {
		t.Fatalf("expected terminal after 3 consecutive failures")
	}

	err := supervisor.Run(context.Background())
	if !errors.Is(err, ErrTerminal) {
		t.Fatalf("expected ErrTerminal, got %v", err)
	}
	if !IsKind(err, KindExhaustedRetries) {
		t.Fatalf("expected exhausted kind, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("terminal run must not invoke the operation, got %d calls", calls)
	}
}

func TestSupervisorSuccessResetsFailureCount(t *testing.T) {
	var fail bool
	op := func(context.Context) error {
		if fail {
			return UnreachableError(errors.New("down"))
		}
		return nil
	}
	supervisor := NewSupervisor(op, SupervisorOptions{MaxRetries: 3})

	fail = true
	supervisor.Run(context.Background())
	supervisor.Run(context.Background())
	if supervisor.Remaining() != 1 {
		t.Fatalf("expected 1 attempt remaining, got %d", supervisor.Remaining())
	}

	fail = false
	if err := supervisor.Run(context.Background()); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if supervisor.Remaining() != 3 {
		t.Fatalf("success must reset the budget, got %d", supervisor.Remaining())
	}
	if supervisor.Err() != nil {
		t.Fatalf("expected cleared error, got %v", supervisor.Err())
	}
}

func TestSupervisorResetRearms(t *testing.T) {
	op := func(context.Context) error {
		return TimeoutError(errors.New("deadline"))
	}
	supervisor := NewSupervisor(op, SupervisorOptions{MaxRetries: 2})

	supervisor.Run(context.Background())
	supervisor.Run(context.Background())
	if !supervisor.Terminal() {
		t.Fatalf("expected terminal")
	}

	supervisor.Reset()
	if supervisor.Terminal() {
		t.Fatalf("reset must clear terminal state")
	}
	if supervisor.Remaining() != 2 {
		t.Fatalf("reset must restore the budget, got %d", supervisor.Remaining())
	}
	if err := supervisor.Run(context.Background()); errors.Is(err, ErrTerminal) {
		t.Fatalf("run after reset must reach the operation, got %v", err)
	}
}

func TestSupervisorDefaultBudget(t *testing.T) {
	supervisor := NewSupervisor(func(context.Context) error { return nil }, SupervisorOptions{})
	if supervisor.Remaining() != DefaultMaxRetries {
		t.Fatalf("expected default budget %d, got %d", DefaultMaxRetries, supervisor.Remaining())
	}
}
