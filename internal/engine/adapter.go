package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/voicedform/whisper-gateway/internal/observability"
	"github.com/voicedform/whisper-gateway/internal/resilience"
)

// Adapter serializes access to a shared Transcriber and enforces a per-call
// timeout. The underlying model is assumed non-reentrant (and possibly
// GPU-bound), so all sessions funnel through the adapter's single mutex
// slot; queuing delay under concurrent load is an accepted trade-off.
//
// Backend failures surface as *BackendError and timeouts as
// ErrInferenceTimeout; nothing the backend does can take down the caller.
type Adapter struct {
	backend Transcriber
	timeout time.Duration
	breaker *resilience.CircuitBreaker
	logger  zerolog.Logger

	// mu is the process-wide serialization boundary for the shared model.
	mu sync.Mutex
}

// NewAdapter wraps backend with serialization, timeout, and circuit breaker
// protection. A zero timeout disables the per-call ceiling.
func NewAdapter(backend Transcriber, timeout time.Duration, breaker *resilience.CircuitBreaker) *Adapter {
	return &Adapter{
		backend: backend,
		timeout: timeout,
		breaker: breaker,
		logger:  observability.WithComponent("engine"),
	}
}

// Backend returns the name of the wrapped backend.
func (a *Adapter) Backend() string {
	return a.backend.Name()
}

// Timeout returns the per-call inference ceiling.
func (a *Adapter) Timeout() time.Duration {
	return a.timeout
}

// Infer runs one serialized inference call over samples. Concurrent callers
// block until the slot frees; the wait is recorded separately from the
// inference latency so queuing pressure is visible in metrics.
func (a *Adapter) Infer(ctx context.Context, samples []float32, hints Hints) (Result, error) {
	if len(samples) == 0 {
		return Result{}, ErrNoAudio
	}

	waitStart := time.Now()
	a.mu.Lock()
	defer a.mu.Unlock()
	observability.RecordInferenceQueueWait(time.Since(waitStart))

	callCtx := ctx
	if a.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	var result Result
	start := time.Now()
	err := a.call(callCtx, samples, hints, &result)
	latency := time.Since(start)
	observability.RecordInference(a.backend.Name(), latency, err == nil)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || callCtx.Err() == context.DeadlineExceeded {
			a.logger.Warn().
				Dur("latency", latency).
				Dur("ceiling", a.timeout).
				Msg("inference call exceeded timeout ceiling")
			return Result{}, ErrInferenceTimeout
		}
		var backendErr *BackendError
		if !errors.As(err, &backendErr) {
			err = &BackendError{Backend: a.backend.Name(), Err: err}
		}
		return Result{}, err
	}

	a.logger.Debug().
		Int("samples", len(samples)).
		Dur("latency", latency).
		Msg("inference call completed")
	return result, nil
}

func (a *Adapter) call(ctx context.Context, samples []float32, hints Hints, out *Result) error {
	run := func() error {
		res, err := a.backend.Transcribe(ctx, samples, hints)
		if err != nil {
			return err
		}
		*out = res
		return nil
	}

	if a.breaker == nil {
		return run()
	}

	err := a.breaker.Call(run)
	observability.UpdateCircuitBreakerState(a.backend.Name(), int(a.breaker.GetState()))
	if err != nil {
		observability.IncrementCircuitBreakerFailures(a.backend.Name())
	}
	return err
}
