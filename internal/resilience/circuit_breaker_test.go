package resilience

import (
	"errors"
	"testing"
	"time"
)

func TestCircuitBreaker_StaysClosedOnSuccess(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, time.Second)

	for i := 0; i < 10; i++ {
		if err := cb.Call(func() error { return nil }); err != nil {
			t.Fatalf("Call %d failed: %v", i, err)
		}
	}

	if cb.GetState() != StateClosed {
		t.Errorf("Expected closed state, got %v", cb.GetState())
	}
}

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, time.Minute)
	fail := func() error { return errors.New("backend down") }

	for i := 0; i < 3; i++ {
		_ = cb.Call(fail)
	}

	if cb.GetState() != StateOpen {
		t.Fatalf("Expected open state after 3 failures, got %v", cb.GetState())
	}

	// Subsequent calls fail fast without invoking the function
	called := false
	err := cb.Call(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Error("Function must not be invoked while circuit is open")
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, time.Minute)
	fail := func() error { return errors.New("boom") }

	_ = cb.Call(fail)
	_ = cb.Call(fail)
	_ = cb.Call(func() error { return nil })
	_ = cb.Call(fail)
	_ = cb.Call(fail)

	if cb.GetState() != StateClosed {
		t.Errorf("Expected closed state (failures interleaved with success), got %v", cb.GetState())
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, 10*time.Millisecond)

	_ = cb.Call(func() error { return errors.New("boom") })
	if cb.GetState() != StateOpen {
		t.Fatalf("Expected open state, got %v", cb.GetState())
	}

	time.Sleep(20 * time.Millisecond)

	// Enough successful probes close the circuit again
	for i := 0; i < 3; i++ {
		if err := cb.Call(func() error { return nil }); err != nil {
			t.Fatalf("Probe call %d failed: %v", i, err)
		}
	}

	if cb.GetState() != StateClosed {
		t.Errorf("Expected closed state after successful probes, got %v", cb.GetState())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, 10*time.Millisecond)

	_ = cb.Call(func() error { return errors.New("boom") })
	time.Sleep(20 * time.Millisecond)

	_ = cb.Call(func() error { return errors.New("still down") })

	if cb.GetState() != StateOpen {
		t.Errorf("Expected reopened circuit after probe failure, got %v", cb.GetState())
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, time.Minute)
	_ = cb.Call(func() error { return errors.New("boom") })

	cb.Reset()

	if cb.GetState() != StateClosed {
		t.Errorf("Expected closed state after Reset, got %v", cb.GetState())
	}
	if err := cb.Call(func() error { return nil }); err != nil {
		t.Errorf("Expected call to succeed after Reset, got %v", err)
	}
}
