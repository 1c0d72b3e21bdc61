// Package engine wraps the opaque speech-to-text inference primitive behind
// a uniform interface. Backends are stateless between calls; serialization
// of access to the shared model is the Adapter's job, not the backend's.
package engine

import (
	"context"
	"errors"
	"fmt"
)

// Hints carries per-session recognition hints, fixed at session creation.
type Hints struct {
	Language  string
	ModelSize string
}

// Result is the outcome of one inference call.
type Result struct {
	Text       string
	Confidence float64
}

// Transcriber is the boundary to a speech-to-text backend. Implementations
// transcribe the full sample buffer in one shot; there is no incremental
// decoder state between calls.
type Transcriber interface {
	// Transcribe runs recognition over samples (mono float32 at the
	// configured sample rate) and returns the recognized text.
	Transcribe(ctx context.Context, samples []float32, hints Hints) (Result, error)

	// Name identifies the backend in logs and metrics.
	Name() string
}

// ErrInferenceTimeout is returned when one inference call exceeds the
// configured ceiling. Only that call fails; the session and its siblings
// keep running.
var ErrInferenceTimeout = errors.New("engine: inference call timed out")

// ErrNoAudio is returned when an inference call is attempted with an empty
// sample buffer.
var ErrNoAudio = errors.New("engine: no audio samples to transcribe")

// BackendError wraps a failure inside a backend so callers can report it as
// a session-scoped processing error instead of letting it propagate as an
// unclassified fault.
type BackendError struct {
	Backend string
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("engine: backend %s: %v", e.Backend, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }
