package engine

import (
	"fmt"
	"time"

	"github.com/voicedform/whisper-gateway/internal/config"
	"github.com/voicedform/whisper-gateway/internal/resilience"
)

// New builds the configured backend wrapped in a serialized Adapter.
func New(cfg *config.Config) (*Adapter, error) {
	var backend Transcriber

	retryCfg := &resilience.RetryConfig{
		MaxAttempts:       cfg.RetryMaxAttempts,
		InitialBackoff:    time.Duration(cfg.RetryInitialBackoff) * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
	}

	switch cfg.EngineBackend {
	case config.BackendWhisper:
		backend = NewWhisperClient(cfg.WhisperAPIURL, cfg.SampleRate, retryCfg)
	case config.BackendDeepgram:
		backend = NewDeepgramClient(cfg.DeepgramAPIKey, cfg.DeepgramModel, cfg.SampleRate)
	case config.BackendStub:
		backend = NewStubClient(cfg.SampleRate)
	default:
		return nil, fmt.Errorf("engine: unknown backend %q", cfg.EngineBackend)
	}

	breaker := resilience.NewCircuitBreaker(
		backend.Name(),
		cfg.CircuitBreakerMaxFailures,
		time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
	)

	return NewAdapter(backend, cfg.InferenceTimeout, breaker), nil
}
