package engine

import (
	"context"
	"fmt"
)

// StubClient is a deterministic Transcriber used in tests and in deployments
// without an inference backend. The text it produces encodes how much audio
// it was given, so callers can assert on buffer semantics.
type StubClient struct {
	sampleRate int
}

// NewStubClient creates a stub Transcriber.
func NewStubClient(sampleRate int) *StubClient {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	return &StubClient{sampleRate: sampleRate}
}

// Name implements Transcriber.
func (s *StubClient) Name() string { return "stub" }

// Transcribe implements Transcriber.
func (s *StubClient) Transcribe(ctx context.Context, samples []float32, hints Hints) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if len(samples) == 0 {
		return Result{}, ErrNoAudio
	}

	seconds := float64(len(samples)) / float64(s.sampleRate)
	return Result{
		Text:       fmt.Sprintf("transcribed %.1fs of audio", seconds),
		Confidence: 1.0,
	}, nil
}
