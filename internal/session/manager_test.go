package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/voicedform/whisper-gateway/internal/protocol"
)

func newTestManager(maxSessions int) *Manager {
	cfg := testConfig()
	cfg.MaxSessions = maxSessions
	return NewManager(cfg, stubAdapter(cfg))
}

func TestManager_RefusesAtCapacity(t *testing.T) {
	m := newTestManager(2)
	ctx := context.Background()

	s1, err := m.Open(ctx)
	if err != nil {
		t.Fatalf("First Open failed: %v", err)
	}
	s2, err := m.Open(ctx)
	if err != nil {
		t.Fatalf("Second Open failed: %v", err)
	}

	if _, err := m.Open(ctx); !errors.Is(err, ErrAtCapacity) {
		t.Errorf("Expected ErrAtCapacity, got %v", err)
	}
	if got := m.ActiveSessions(); got != 2 {
		t.Errorf("Expected 2 active sessions, got %d", got)
	}

	s1.End()
	s2.End()
}

func TestManager_SlotFreedAfterClose(t *testing.T) {
	m := newTestManager(1)
	ctx := context.Background()

	s, err := m.Open(ctx)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	s.End()
	<-s.Done()

	// Removal happens after the run loop exits; give it a moment.
	deadline := time.Now().Add(2 * time.Second)
	for m.ActiveSessions() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	s2, err := m.Open(ctx)
	if err != nil {
		t.Fatalf("Open after slot freed failed: %v", err)
	}
	s2.End()
}

func TestManager_AtCapacityFor(t *testing.T) {
	m := newTestManager(1)
	ctx := context.Background()

	if d := m.AtCapacityFor(); d != 0 {
		t.Errorf("Expected zero duration below capacity, got %v", d)
	}

	s, err := m.Open(ctx)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	time.Sleep(10 * time.Millisecond)
	if d := m.AtCapacityFor(); d <= 0 {
		t.Errorf("Expected positive duration at capacity, got %v", d)
	}

	s.End()
	<-s.Done()
	deadline := time.Now().Add(2 * time.Second)
	for m.AtCapacityFor() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if d := m.AtCapacityFor(); d != 0 {
		t.Errorf("Expected zero duration after slot freed, got %v", d)
	}
}

func TestManager_SessionIsolation(t *testing.T) {
	m := newTestManager(4)
	ctx := context.Background()

	failing, err := m.Open(ctx)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	healthy, err := m.Open(ctx)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	// Kill one session with a protocol fault; the other keeps streaming.
	if err := failing.Feed(protocol.Inbound{Samples: make([]float32, 1024)}); err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	failing.Fail(protocol.CodeProcessingError, "malformed audio frame")

	if err := healthy.Feed(protocol.Inbound{Samples: make([]float32, 16000)}); err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	healthy.End()

	failMsgs := collect(t, failing)
	_, _, errs := countTypes(failMsgs)
	if errs != 1 {
		t.Errorf("Expected failing session to get one error, got %v", failMsgs)
	}

	healthyMsgs := collect(t, healthy)
	_, finals, errs := countTypes(healthyMsgs)
	if finals != 1 || errs != 0 {
		t.Errorf("Expected healthy session unaffected, got %v", healthyMsgs)
	}
}

func TestManager_UniqueSessionIDs(t *testing.T) {
	m := newTestManager(4)
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 4; i++ {
		s, err := m.Open(ctx)
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		if s.ID == "" || seen[s.ID] {
			t.Errorf("Expected unique non-empty session ID, got %q", s.ID)
		}
		seen[s.ID] = true
		s.End()
	}
}

func TestManager_Shutdown(t *testing.T) {
	m := newTestManager(4)
	ctx := context.Background()

	s, err := m.Open(ctx)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := s.Feed(protocol.Inbound{Samples: make([]float32, 8000)}); err != nil {
		t.Fatalf("Feed failed: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	// The session still got its terminal final on the way out.
	var sawFinal bool
	for data := range s.Out() {
		var msg map[string]any
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("Invalid outbound JSON: %v", err)
		}
		if msg["type"] == protocol.TypeFinal {
			sawFinal = true
		}
	}
	if !sawFinal {
		t.Error("Expected terminal final during shutdown")
	}

	if got := m.ActiveSessions(); got != 0 {
		t.Errorf("Expected no sessions after shutdown, got %d", got)
	}
}
