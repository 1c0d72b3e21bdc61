// Package protocol implements the wire messages exchanged over a streaming
// transcription session.
//
// Inbound, callers send binary frames of raw little-endian float32 mono
// samples plus occasional JSON control messages ("start" to set recognition
// hints, "end" to close the stream). Outbound, the service sends UTF-8 JSON
// objects: any number of "partial" transcripts followed by exactly one
// terminal "final" or "error" per session that sent audio.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/voicedform/whisper-gateway/internal/audio"
)

// Outbound message types
const (
	TypePartial = "partial"
	TypeFinal   = "final"
	TypeError   = "error"
)

// Inbound control message types
const (
	TypeStart = "start"
	TypeEnd   = "end"
)

// Error codes carried on outbound error messages
const (
	CodeMaxConnections  = "MAX_CONNECTIONS"
	CodeProcessingError = "PROCESSING_ERROR"
	CodeInternalError   = "INTERNAL_ERROR"
)

// FrameKind distinguishes transport frame types without tying this package
// to a particular WebSocket library.
type FrameKind int

const (
	FrameBinary FrameKind = iota
	FrameText
)

// Partial is an interim transcript covering the audio heard so far.
type Partial struct {
	Type      string `json:"type"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// Final is the last transcript of a session, emitted exactly once.
type Final struct {
	Type       string  `json:"type"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Timestamp  string  `json:"timestamp"`
}

// Error reports a session-scoped failure to the caller.
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Control is an inbound JSON control message.
type Control struct {
	Type      string `json:"type"`
	Language  string `json:"language,omitempty"`
	ModelSize string `json:"model_size,omitempty"`
}

// Inbound is a decoded caller message: either one chunk of audio samples or
// a control message, never both.
type Inbound struct {
	Samples []float32
	Control *Control
}

// DecodeError is returned for malformed inbound frames. It is deliberately a
// distinct type so the session manager can translate it into a session-scoped
// PROCESSING_ERROR message instead of treating it as an internal fault.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol: %s: %v", e.Reason, e.Err)
	}
	return "protocol: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Codec serializes and deserializes wire messages. The zero value is usable;
// now is overridable for tests.
type Codec struct {
	now func() time.Time
}

// NewCodec returns a Codec stamping messages with the current UTC time.
func NewCodec() *Codec {
	return &Codec{now: time.Now}
}

func (c *Codec) timestamp() string {
	now := time.Now
	if c.now != nil {
		now = c.now
	}
	return now().UTC().Format(time.RFC3339)
}

// EncodePartial encodes a partial transcript message.
func (c *Codec) EncodePartial(text string) ([]byte, error) {
	return json.Marshal(Partial{
		Type:      TypePartial,
		Text:      text,
		Timestamp: c.timestamp(),
	})
}

// EncodeFinal encodes the terminal transcript message.
func (c *Codec) EncodeFinal(text string, confidence float64) ([]byte, error) {
	return json.Marshal(Final{
		Type:       TypeFinal,
		Text:       text,
		Confidence: confidence,
		Timestamp:  c.timestamp(),
	})
}

// EncodeError encodes a session-scoped error message.
func (c *Codec) EncodeError(code, message string) ([]byte, error) {
	return json.Marshal(Error{
		Type:    TypeError,
		Message: message,
		Code:    code,
	})
}

// Decode parses one inbound frame. Binary frames carry raw float32 samples;
// text frames carry JSON control messages. Malformed payloads surface as a
// *DecodeError rather than a generic error.
func (c *Codec) Decode(kind FrameKind, data []byte) (Inbound, error) {
	switch kind {
	case FrameBinary:
		samples, err := audio.DecodeFloat32LE(data)
		if err != nil {
			return Inbound{}, &DecodeError{Reason: "malformed audio frame", Err: err}
		}
		return Inbound{Samples: samples}, nil

	case FrameText:
		var ctrl Control
		if err := json.Unmarshal(data, &ctrl); err != nil {
			return Inbound{}, &DecodeError{Reason: "malformed control message", Err: err}
		}
		switch ctrl.Type {
		case TypeStart, TypeEnd:
			return Inbound{Control: &ctrl}, nil
		default:
			return Inbound{}, &DecodeError{Reason: fmt.Sprintf("unknown control message type %q", ctrl.Type)}
		}

	default:
		return Inbound{}, &DecodeError{Reason: "unsupported frame kind"}
	}
}
