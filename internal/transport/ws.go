// Package transport binds streaming transcription sessions to WebSocket
// connections. It owns the framing concerns (upgrade, read/write pumps,
// close handshakes) and leaves all session semantics to the session package.
package transport

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/voicedform/whisper-gateway/internal/observability"
	"github.com/voicedform/whisper-gateway/internal/protocol"
	"github.com/voicedform/whisper-gateway/internal/session"
)

const (
	writeWait      = 5 * time.Second
	maxMessageSize = 1 << 20 // 1 MiB per frame, far above any sane audio chunk
)

// Handler upgrades HTTP requests to WebSocket transcription sessions.
type Handler struct {
	manager  *session.Manager
	codec    *protocol.Codec
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	// readTimeout bounds each socket read. It sits above the session's own
	// idle timeout so idle finalization fires first and the caller still
	// gets its terminal message before the socket dies.
	readTimeout time.Duration
}

// NewHandler creates the WebSocket endpoint handler backed by manager.
// idleTimeout should match the session idle timeout.
func NewHandler(manager *session.Manager, idleTimeout time.Duration) *Handler {
	return &Handler{
		manager:     manager,
		readTimeout: idleTimeout + writeWait,
		codec:       protocol.NewCodec(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: observability.WithComponent("transport"),
	}
}

// ServeHTTP upgrades the connection and runs the session to completion.
// Admission happens after the upgrade so a refused caller still gets a
// proper MAX_CONNECTIONS error on the socket instead of a bare HTTP error.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxMessageSize)

	s, err := h.manager.Open(r.Context())
	if err != nil {
		if errors.Is(err, session.ErrAtCapacity) {
			h.refuse(conn)
			return
		}
		h.logger.Error().Err(err).Msg("failed to open session")
		conn.Close()
		return
	}

	logger := h.logger.With().Str("session_id", s.ID).Logger()
	logger.Info().Str("remote_addr", r.RemoteAddr).Msg("websocket connection established")

	// A close frame from the caller is a normal end-of-stream, not an abort:
	// the default handler would echo the close immediately and block any
	// further writes, losing the terminal message. The write pump sends the
	// close once the session's outbound stream is drained.
	conn.SetCloseHandler(func(code int, text string) error { return nil })

	go h.writePump(conn, s, logger)
	h.readPump(conn, s, logger)
}

// refuse sends the MAX_CONNECTIONS error and closes the socket. Callers are
// always told why they were turned away; the connection is never dropped
// silently.
func (h *Handler) refuse(conn *websocket.Conn) {
	defer conn.Close()

	data, err := h.codec.EncodeError(protocol.CodeMaxConnections, "maximum concurrent sessions reached")
	if err == nil {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteMessage(websocket.TextMessage, data)
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "at capacity"),
		time.Now().Add(writeWait))
}

// readPump decodes inbound frames and feeds them to the session. A client
// hangup is treated as end-of-stream, exactly like an explicit end message.
func (h *Handler) readPump(conn *websocket.Conn, s *session.Session, logger zerolog.Logger) {
	for {
		conn.SetReadDeadline(time.Now().Add(h.readTimeout))
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug().Err(err).Msg("websocket read error")
			}
			s.End()
			return
		}

		var kind protocol.FrameKind
		switch msgType {
		case websocket.BinaryMessage:
			kind = protocol.FrameBinary
		case websocket.TextMessage:
			kind = protocol.FrameText
		default:
			continue
		}

		in, err := h.codec.Decode(kind, data)
		if err != nil {
			var decodeErr *protocol.DecodeError
			if errors.As(err, &decodeErr) {
				logger.Warn().Err(err).Msg("malformed inbound frame")
				s.Fail(protocol.CodeProcessingError, decodeErr.Reason)
			} else {
				logger.Error().Err(err).Msg("frame decode failed")
				s.Fail(protocol.CodeInternalError, "internal server error")
			}
			return
		}

		if err := s.Feed(in); err != nil {
			return
		}
	}
}

// writePump relays the session's outbound messages to the socket and closes
// the connection once the session is fully closed. Closing the connection
// also unblocks the read pump.
func (h *Handler) writePump(conn *websocket.Conn, s *session.Session, logger zerolog.Logger) {
	defer conn.Close()

	for data := range s.Out() {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			logger.Debug().Err(err).Msg("websocket write failed")
			// Keep draining so the session loop is never blocked on a
			// dead socket.
			continue
		}
	}

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	logger.Info().Msg("websocket connection closed")
}
