// Package session implements the lifecycle of one streaming transcription
// session and the manager that admits, tracks, and closes sessions.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/voicedform/whisper-gateway/internal/audio"
	"github.com/voicedform/whisper-gateway/internal/config"
	"github.com/voicedform/whisper-gateway/internal/engine"
	"github.com/voicedform/whisper-gateway/internal/observability"
	"github.com/voicedform/whisper-gateway/internal/protocol"
)

// Phase is a session's lifecycle stage. Transitions are strictly monotonic:
// Active -> Finalizing -> Closed, never backwards.
type Phase int32

const (
	PhaseActive Phase = iota
	PhaseFinalizing
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseActive:
		return "active"
	case PhaseFinalizing:
		return "finalizing"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ErrSessionClosed is returned by Feed once the session no longer accepts
// input.
var ErrSessionClosed = errors.New("session: closed")

// fault is a session-scoped failure injected into the event stream. It
// produces the session's terminal error message.
type fault struct {
	code    string
	message string
}

// event is one unit of inbound work for the session loop: an audio chunk, a
// control message, or a fault. Exactly one field is set.
type event struct {
	samples []float32
	ctrl    *protocol.Control
	fault   *fault
}

// Session is one caller's streaming transcription session. All session state
// (aggregator, hints, phase) is confined to the goroutine running the Run
// loop; the only concurrent surfaces are the events channel in and the
// outbound channel out.
//
// Outbound carries encoded wire messages: zero or more partials, then at
// most one terminal final or error. The channel is closed when the session
// reaches PhaseClosed, which is the transport's signal to hang up.
type Session struct {
	ID string

	agg    *audio.Aggregator
	eng    *engine.Adapter
	codec  *protocol.Codec
	hints  engine.Hints
	logger zerolog.Logger

	idleTimeout time.Duration

	events chan event
	out    chan []byte
	done   chan struct{}

	phase        atomic.Int32
	terminalSent bool
	metrics      *observability.SessionMetrics
}

func newSession(id string, cfg *config.Config, eng *engine.Adapter) *Session {
	return &Session{
		ID:  id,
		agg: audio.NewAggregator(cfg.PartialChunkThreshold),
		eng: eng,
		hints: engine.Hints{
			Language:  cfg.DefaultLanguage,
			ModelSize: cfg.DefaultModelSize,
		},
		codec:       protocol.NewCodec(),
		logger:      observability.WithSession(id),
		idleTimeout: cfg.IdleTimeout,
		events:      make(chan event, 32),
		out:         make(chan []byte, 16),
		done:        make(chan struct{}),
		metrics:     observability.NewSessionMetrics(),
	}
}

// Phase returns the session's current lifecycle phase.
func (s *Session) Phase() Phase {
	return Phase(s.phase.Load())
}

// advance moves the phase forward. Backward transitions are ignored, which
// makes racing finalization triggers (caller end, idle timeout, shutdown)
// naturally idempotent.
func (s *Session) advance(to Phase) bool {
	for {
		cur := s.phase.Load()
		if cur >= int32(to) {
			return false
		}
		if s.phase.CompareAndSwap(cur, int32(to)) {
			return true
		}
	}
}

// Out is the stream of encoded outbound messages. It is closed when the
// session is fully closed.
func (s *Session) Out() <-chan []byte {
	return s.out
}

// Done is closed when the session has reached PhaseClosed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Feed hands one decoded inbound message to the session loop. It returns
// ErrSessionClosed once the session has stopped consuming input.
func (s *Session) Feed(in protocol.Inbound) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case s.events <- event{samples: in.Samples, ctrl: in.Control}:
		return nil
	case <-s.done:
		return ErrSessionClosed
	}
}

// Fail injects a session-scoped failure, typically a malformed inbound
// frame. The session emits a terminal error message and closes.
func (s *Session) Fail(code, message string) {
	select {
	case s.events <- event{fault: &fault{code: code, message: message}}:
	case <-s.done:
	}
}

// End requests finalization, as if the caller had sent an end-of-stream
// control message.
func (s *Session) End() {
	_ = s.Feed(protocol.Inbound{Control: &protocol.Control{Type: protocol.TypeEnd}})
}

// Run drives the session until it closes. It owns all session state and is
// the only goroutine that touches the aggregator. A panic anywhere in the
// loop is converted into a terminal INTERNAL_ERROR so the caller is never
// left hanging and no other session is affected.
func (s *Session) Run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("session loop panicked")
			s.sendTerminalError(protocol.CodeInternalError, "internal server error")
		}
		s.close()
	}()

	s.logger.Info().Msg("session started")

	idle := time.NewTimer(s.idleTimeout)
	defer idle.Stop()

	for s.Phase() == PhaseActive {
		select {
		case ev := <-s.events:
			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(s.idleTimeout)
			s.handle(ctx, ev)

		case <-idle.C:
			s.logger.Warn().
				Dur("idle_timeout", s.idleTimeout).
				Msg("idle timeout reached, finalizing session")
			s.advance(PhaseFinalizing)

		case <-ctx.Done():
			s.logger.Info().Msg("shutdown requested, finalizing session")
			s.advance(PhaseFinalizing)
		}
	}

	if s.Phase() == PhaseFinalizing {
		s.finalize()
	}
}

func (s *Session) handle(ctx context.Context, ev event) {
	switch {
	case ev.fault != nil:
		s.advance(PhaseFinalizing)
		s.sendTerminalError(ev.fault.code, ev.fault.message)
		s.advance(PhaseClosed)

	case ev.ctrl != nil:
		s.handleControl(ev.ctrl)

	case len(ev.samples) > 0:
		s.agg.Append(ev.samples)
		s.metrics.RecordAudioSamples(len(ev.samples))
		if s.agg.ShouldEmit() {
			s.emitPartial(ctx)
		}
	}
}

// handleControl applies start/end control messages. Recognition hints may
// only be set before the first audio chunk; once audio has arrived the
// hints are immutable for the rest of the session.
func (s *Session) handleControl(ctrl *protocol.Control) {
	switch ctrl.Type {
	case protocol.TypeStart:
		if s.agg.HasAudio() {
			s.logger.Warn().Msg("ignoring start message after audio already received")
			return
		}
		if ctrl.ModelSize != "" && !config.IsValidModelSize(ctrl.ModelSize) {
			s.advance(PhaseFinalizing)
			s.sendTerminalError(protocol.CodeProcessingError,
				fmt.Sprintf("invalid model size %q", ctrl.ModelSize))
			s.advance(PhaseClosed)
			return
		}
		if ctrl.Language != "" {
			s.hints.Language = ctrl.Language
		}
		if ctrl.ModelSize != "" {
			s.hints.ModelSize = ctrl.ModelSize
		}
		s.logger.Debug().
			Str("language", s.hints.Language).
			Str("model_size", s.hints.ModelSize).
			Msg("recognition hints set")

	case protocol.TypeEnd:
		s.advance(PhaseFinalizing)
	}
}

// emitPartial runs one inference pass over the full sample history and sends
// an interim transcript. A failed partial is logged and skipped; only the
// terminal message decides the session's outcome.
func (s *Session) emitPartial(ctx context.Context) {
	samples := s.agg.DrainForInference()

	res, err := s.eng.Infer(ctx, samples, s.hints)
	if err != nil {
		s.logger.Warn().Err(err).Msg("partial inference failed, skipping partial")
		return
	}
	if res.Text == "" {
		return
	}

	data, err := s.codec.EncodePartial(res.Text)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to encode partial transcript")
		return
	}
	s.send(data, protocol.TypePartial)
}

// finalize runs the terminal inference pass and emits the session's one
// terminal message. Sessions that never sent audio close silently.
func (s *Session) finalize() {
	defer s.advance(PhaseClosed)

	if !s.agg.HasAudio() {
		s.logger.Info().Msg("session ended without audio")
		return
	}

	// The terminal pass must complete even when the connection context has
	// already been cancelled (client hangup, server shutdown), so it always
	// runs on its own deadline detached from the run context.
	finalCtx := context.Background()
	if s.eng.Timeout() > 0 {
		var cancel context.CancelFunc
		finalCtx, cancel = context.WithTimeout(finalCtx, s.eng.Timeout())
		defer cancel()
	}

	samples := s.agg.DrainForInference()
	res, err := s.eng.Infer(finalCtx, samples, s.hints)
	if err != nil {
		s.logger.Error().Err(err).Msg("final inference failed")
		s.sendTerminalError(protocol.CodeInternalError, "transcription failed")
		return
	}

	data, err := s.codec.EncodeFinal(res.Text, res.Confidence)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to encode final transcript")
		s.sendTerminalError(protocol.CodeInternalError, "internal server error")
		return
	}
	s.terminalSent = true
	s.send(data, protocol.TypeFinal)
	s.logger.Info().
		Int64("total_samples", s.agg.TotalSamples()).
		Msg("session finalized")
}

// sendTerminalError emits the session's terminal error message. It is a
// no-op when a terminal message has already been sent.
func (s *Session) sendTerminalError(code, message string) {
	if s.terminalSent {
		return
	}
	data, err := s.codec.EncodeError(code, message)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to encode error message")
		return
	}
	s.terminalSent = true
	s.send(data, protocol.TypeError)
	observability.RecordErrorCode(code)
}

func (s *Session) send(data []byte, msgType string) {
	select {
	case s.out <- data:
		observability.RecordMessage(msgType)
	case <-s.done:
	}
}

// close is idempotent and runs exactly once from the Run loop's defer.
func (s *Session) close() {
	s.advance(PhaseClosed)
	select {
	case <-s.done:
		return
	default:
	}
	close(s.done)
	close(s.out)
	s.metrics.RecordEnd()
	s.logger.Info().Msg("session closed")
}
