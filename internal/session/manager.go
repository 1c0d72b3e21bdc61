package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/voicedform/whisper-gateway/internal/config"
	"github.com/voicedform/whisper-gateway/internal/engine"
	"github.com/voicedform/whisper-gateway/internal/observability"
)

// ErrAtCapacity is returned by Open when the session limit is reached. The
// gateway refuses new work outright rather than queueing it; the transport
// translates this into a MAX_CONNECTIONS error on the wire.
var ErrAtCapacity = errors.New("session: at capacity")

// Manager admits and tracks sessions against a fixed capacity. Admission is
// checked and the session registered under one lock acquisition, so the
// active count can never exceed the configured maximum.
type Manager struct {
	cfg    *config.Config
	eng    *engine.Adapter
	logger zerolog.Logger

	mu              sync.Mutex
	sessions        map[string]*Session
	atCapacitySince time.Time // zero while below capacity

	wg sync.WaitGroup
}

// NewManager creates a session manager backed by the shared engine adapter.
func NewManager(cfg *config.Config, eng *engine.Adapter) *Manager {
	return &Manager{
		cfg:      cfg,
		eng:      eng,
		logger:   observability.WithComponent("session-manager"),
		sessions: make(map[string]*Session),
	}
}

// Open admits one new session and starts its run loop, or returns
// ErrAtCapacity. The session is removed from the manager automatically when
// its loop exits.
func (m *Manager) Open(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	if len(m.sessions) >= m.cfg.MaxSessions {
		m.mu.Unlock()
		observability.RecordAdmissionRejection()
		m.logger.Warn().
			Int("max_sessions", m.cfg.MaxSessions).
			Msg("refusing session, capacity reached")
		return nil, ErrAtCapacity
	}

	s := newSession(uuid.NewString(), m.cfg, m.eng)
	m.sessions[s.ID] = s
	if len(m.sessions) == m.cfg.MaxSessions {
		m.atCapacitySince = time.Now()
	}
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		s.Run(ctx)
		m.remove(s.ID)
	}()

	return s, nil
}

func (m *Manager) remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return
	}
	delete(m.sessions, id)
	if len(m.sessions) < m.cfg.MaxSessions {
		m.atCapacitySince = time.Time{}
	}
}

// ActiveSessions returns the number of sessions currently registered.
func (m *Manager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// AtCapacityFor implements observability.CapacityReporter. It reports how
// long the manager has been continuously pinned at its session limit, or
// zero when capacity is available.
func (m *Manager) AtCapacityFor() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.atCapacitySince.IsZero() {
		return 0
	}
	return time.Since(m.atCapacitySince)
}

// Shutdown asks every live session to finalize and waits for their loops to
// exit or ctx to expire. Each session still emits its terminal message on
// the way out.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	live := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.mu.Unlock()

	m.logger.Info().Int("sessions", len(live)).Msg("shutting down session manager")
	for _, s := range live {
		s.End()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
