package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ParcMagScene/Exo/internal/metrics"
	"github.com/ParcMagScene/Exo/internal/protocol"
	"github.com/ParcMagScene/Exo/internal/session"
)

// Submitter accepts completed utterances for processing.
type Submitter interface {
	Submit(u *session.PendingUtterance)
}

// WSServer accepts satellite WebSocket connections and drives the frame
// protocol for each of them.
type WSServer struct {
	server   *http.Server
	upgrader websocket.Upgrader

	registry  *session.Registry
	submitter Submitter
	conns     *ConnTable
	readLimit int64

	logger  *slog.Logger
	metrics *metrics.Metrics

	// Statistics
	framesReceived  uint64
	framesRejected  uint64
	sessionsStarted uint64
	frameMismatches uint64
	mu              sync.RWMutex
}

// WSServerConfig contains WebSocket server configuration
type WSServerConfig struct {
	Address   string
	Port      int
	ReadLimit int64
}

// NewWSServer creates a new satellite-facing WebSocket server
func NewWSServer(cfg WSServerConfig, logger *slog.Logger, registry *session.Registry,
	submitter Submitter, conns *ConnTable, m *metrics.Metrics) *WSServer {

	s := &WSServer{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		registry:  registry,
		submitter: submitter,
		conns:     conns,
		readLimit: cfg.ReadLimit,
		logger:    logger,
		metrics:   m,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)

	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler: mux,
	}

	return s
}

// Start starts accepting satellite connections
func (s *WSServer) Start() error {
	s.logger.Info("Starting satellite WebSocket server",
		slog.String("address", s.server.Addr),
	)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("WebSocket server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the server
func (s *WSServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping satellite WebSocket server...")

	return s.server.Shutdown(ctx)
}

// Statistics reports satellite link counters.
type Statistics struct {
	FramesReceived  uint64 `json:"frames_received"`
	FramesRejected  uint64 `json:"frames_rejected"`
	SessionsStarted uint64 `json:"sessions_started"`
	FrameMismatches uint64 `json:"frame_mismatches"`
	ConnectedRooms  int    `json:"connected_rooms"`
}

// GetStatistics returns current server statistics
func (s *WSServer) GetStatistics() Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Statistics{
		FramesReceived:  s.framesReceived,
		FramesRejected:  s.framesRejected,
		SessionsStarted: s.sessionsStarted,
		FrameMismatches: s.frameMismatches,
		ConnectedRooms:  s.conns.Count(),
	}
}

func (s *WSServer) countFrame(rejected bool) {
	s.mu.Lock()
	s.framesReceived++
	if rejected {
		s.framesRejected++
	}
	s.mu.Unlock()
}

func (s *WSServer) countRejected() {
	s.mu.Lock()
	s.framesRejected++
	s.mu.Unlock()
}

func (s *WSServer) countMismatch() {
	s.mu.Lock()
	s.frameMismatches++
	s.mu.Unlock()
}

func (s *WSServer) countSession() {
	s.mu.Lock()
	s.sessionsStarted++
	s.mu.Unlock()
}

// handleWS upgrades the HTTP request and runs the connection loop.
func (s *WSServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed",
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("error", err.Error()),
		)
		return
	}

	if s.readLimit > 0 {
		conn.SetReadLimit(s.readLimit)
	}

	s.serveConn(conn, r.RemoteAddr)
}

// serveConn reads frames from one satellite until the connection drops.
// The first frame must be a session-start; it binds the connection to its
// room. Protocol violations inside a session abort that session and are
// reported with an error frame, but the connection itself stays usable.
func (s *WSServer) serveConn(conn *websocket.Conn, remoteAddr string) {
	defer conn.Close()

	var rc *roomConn
	var currentSession string

	defer func() {
		if rc != nil {
			// Abort only the session this connection owns; a reconnect may
			// already have opened a fresh one for the room.
			if currentSession != "" {
				s.registry.Abort(currentSession)
			}
			s.conns.unregister(rc)
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("Satellite connection error",
					slog.String("remote_addr", remoteAddr),
					slog.String("error", err.Error()),
				)
			}
			return
		}

		frame, err := protocol.Decode(data)
		if err != nil {
			s.countFrame(true)
			s.metrics.RecordMalformedFrame()
			s.logger.Warn("Malformed frame",
				slog.String("remote_addr", remoteAddr),
				slog.String("error", err.Error()),
			)
			if rc == nil {
				// Cannot even identify the room, give up on the link.
				return
			}
			s.sendError(rc, currentSession, "malformed frame: "+err.Error())
			continue
		}

		s.countFrame(false)
		s.metrics.RecordFrameReceived()

		if rc == nil {
			if frame.Kind != protocol.KindSessionStart {
				s.logger.Warn("First frame was not a session start, closing",
					slog.String("remote_addr", remoteAddr),
					slog.String("kind", frame.Kind),
				)
				return
			}
			rc = &roomConn{
				roomID:     frame.RoomID,
				label:      frame.Label,
				sampleRate: frame.SampleRate,
				conn:       conn,
				remoteAddr: remoteAddr,
				openedAt:   time.Now(),
			}
			if prev := s.conns.register(rc); prev != nil {
				// A reconnecting satellite abandons whatever the old link
				// was capturing.
				s.registry.AbortRoom(rc.roomID)
				prev.conn.Close()
			}
		}

		currentSession = s.handleFrame(rc, currentSession, frame)
	}
}

// handleFrame dispatches one decoded frame and returns the connection's
// active session ID afterwards.
func (s *WSServer) handleFrame(rc *roomConn, current string, frame *protocol.Frame) string {
	switch frame.Kind {
	case protocol.KindSessionStart:
		return s.handleSessionStart(rc, current, frame)

	case protocol.KindAudioChunk:
		return s.handleAudioChunk(rc, current, frame)

	case protocol.KindSessionEnd:
		return s.handleSessionEnd(rc, current, frame)

	default:
		s.countRejected()
		s.sendError(rc, current, "unexpected frame kind: "+frame.Kind)
		return current
	}
}

func (s *WSServer) handleSessionStart(rc *roomConn, current string, frame *protocol.Frame) string {
	if frame.RoomID != rc.roomID {
		s.sendError(rc, current, "room mismatch: connection belongs to "+rc.roomID)
		return current
	}

	if current != "" {
		// One capture at a time per connection. The satellite must end or
		// let the old session expire before starting anew.
		s.sendError(rc, current, "session already active")
		return current
	}

	sess, err := s.registry.Open(frame.RoomID, frame.Label, frame.SampleRate)
	if err != nil {
		s.sendError(rc, "", "failed to open session: "+err.Error())
		return ""
	}

	s.countSession()

	ack := &protocol.Frame{
		Header: protocol.Header{
			Kind:      protocol.KindReadyAck,
			RoomID:    rc.roomID,
			SessionID: sess.ID,
		},
	}
	if err := s.writeFrame(rc, ack); err != nil {
		s.registry.Abort(sess.ID)
		return ""
	}

	return sess.ID
}

func (s *WSServer) handleAudioChunk(rc *roomConn, current string, frame *protocol.Frame) string {
	if current == "" || frame.SessionID != current {
		s.sendError(rc, frame.SessionID, "no such active session")
		return current
	}

	if err := s.registry.Append(current, frame.Seq, frame.Payload); err != nil {
		s.registry.Abort(current)
		s.sendError(rc, current, "session aborted: "+err.Error())
		return ""
	}

	return current
}

func (s *WSServer) handleSessionEnd(rc *roomConn, current string, frame *protocol.Frame) string {
	if current == "" || frame.SessionID != current {
		s.sendError(rc, frame.SessionID, "no such active session")
		return current
	}

	pending, err := s.registry.Complete(current)
	if err != nil {
		if errors.Is(err, session.ErrEmptyUtterance) {
			// Too short to carry speech. The session stays open and keeps
			// accumulating so the satellite can stream more audio and end
			// the capture again.
			s.sendError(rc, current, "utterance too short")
			return current
		}
		s.sendError(rc, current, "failed to complete session: "+err.Error())
		return ""
	}

	if frame.FramesSent > 0 && frame.FramesSent != pending.Frames {
		s.countMismatch()
		s.logger.Warn("Frame count mismatch, audio may be incomplete",
			slog.String("session_id", current),
			slog.Uint64("announced", frame.FramesSent),
			slog.Uint64("received", pending.Frames),
		)
	}

	s.submitter.Submit(pending)
	return ""
}

// writeFrame sends a frame, logging delivery failures.
func (s *WSServer) writeFrame(rc *roomConn, frame *protocol.Frame) error {
	if err := rc.writeFrame(frame); err != nil {
		s.logger.Warn("Failed to write frame",
			slog.String("room_id", rc.roomID),
			slog.String("kind", frame.Kind),
			slog.String("error", err.Error()),
		)
		return err
	}
	s.metrics.RecordFrameSent()
	return nil
}

// sendError reports a protocol problem to the satellite.
func (s *WSServer) sendError(rc *roomConn, sessionID, message string) {
	frame := &protocol.Frame{
		Header: protocol.Header{
			Kind:      protocol.KindError,
			RoomID:    rc.roomID,
			SessionID: sessionID,
			Message:   message,
		},
	}
	s.writeFrame(rc, frame)
}
