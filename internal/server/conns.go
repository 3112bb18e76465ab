package server

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ParcMagScene/Exo/internal/metrics"
	"github.com/ParcMagScene/Exo/internal/protocol"
)

// ErrRoomNotConnected indicates no satellite connection is registered for
// the target room.
var ErrRoomNotConnected = errors.New("room not connected")

const writeTimeout = 10 * time.Second

// roomConn wraps one satellite WebSocket connection. Writes are serialized
// through the mutex because responses and error frames can race.
type roomConn struct {
	roomID     string
	label      string
	sampleRate int
	conn       *websocket.Conn
	remoteAddr string
	openedAt   time.Time

	writeMu sync.Mutex
}

// writeFrame encodes and sends one frame on the connection.
func (rc *roomConn) writeFrame(f *protocol.Frame) error {
	data, err := protocol.Encode(f)
	if err != nil {
		return err
	}

	rc.writeMu.Lock()
	defer rc.writeMu.Unlock()

	rc.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return rc.conn.WriteMessage(websocket.BinaryMessage, data)
}

// ConnTable maps rooms to their live connections and dispatches response
// audio. A room has at most one connection; a reconnect replaces the
// previous entry so responses always reach the newest link.
type ConnTable struct {
	mu      sync.RWMutex
	byRoom  map[string]*roomConn
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewConnTable creates an empty connection table.
func NewConnTable(logger *slog.Logger, m *metrics.Metrics) *ConnTable {
	return &ConnTable{
		byRoom:  make(map[string]*roomConn),
		logger:  logger,
		metrics: m,
	}
}

// register installs rc as the room's connection, returning the connection
// it displaced, if any.
func (t *ConnTable) register(rc *roomConn) *roomConn {
	t.mu.Lock()
	prev := t.byRoom[rc.roomID]
	t.byRoom[rc.roomID] = rc
	count := len(t.byRoom)
	t.mu.Unlock()

	t.metrics.AddConnections(1)
	if prev != nil {
		t.logger.Info("Room reconnected, displacing previous connection",
			slog.String("room_id", rc.roomID),
			slog.String("remote_addr", rc.remoteAddr),
		)
	} else {
		t.logger.Info("Room connected",
			slog.String("room_id", rc.roomID),
			slog.String("room_label", rc.label),
			slog.String("remote_addr", rc.remoteAddr),
			slog.Int("connected_rooms", count),
		)
	}
	return prev
}

// unregister removes rc if it is still the room's current connection.
// A displaced connection unregistering late must not evict its successor.
func (t *ConnTable) unregister(rc *roomConn) {
	t.mu.Lock()
	if t.byRoom[rc.roomID] == rc {
		delete(t.byRoom, rc.roomID)
	}
	t.mu.Unlock()

	t.metrics.AddConnections(-1)
	t.logger.Info("Room disconnected",
		slog.String("room_id", rc.roomID),
		slog.String("remote_addr", rc.remoteAddr),
	)
}

// lookup returns the room's current connection.
func (t *ConnTable) lookup(roomID string) (*roomConn, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rc, ok := t.byRoom[roomID]
	return rc, ok
}

// Send delivers response audio to the room's current connection. The frame
// echoes the session the audio answers so the satellite can correlate it.
func (t *ConnTable) Send(roomID, sessionID string, pcm []byte) error {
	rc, ok := t.lookup(roomID)
	if !ok {
		return ErrRoomNotConnected
	}

	frame := &protocol.Frame{
		Header: protocol.Header{
			Kind:      protocol.KindResponseAudio,
			RoomID:    roomID,
			SessionID: sessionID,
		},
		Payload: pcm,
	}

	if err := rc.writeFrame(frame); err != nil {
		return err
	}

	t.metrics.RecordFrameSent()
	return nil
}

// RoomInfo describes one connected room for the monitoring API.
type RoomInfo struct {
	RoomID     string    `json:"room_id"`
	Label      string    `json:"label,omitempty"`
	SampleRate int       `json:"sample_rate"`
	RemoteAddr string    `json:"remote_addr"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Rooms returns a snapshot of all connected rooms.
func (t *ConnTable) Rooms() []RoomInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rooms := make([]RoomInfo, 0, len(t.byRoom))
	for _, rc := range t.byRoom {
		rooms = append(rooms, RoomInfo{
			RoomID:      rc.roomID,
			Label:       rc.label,
			SampleRate:  rc.sampleRate,
			RemoteAddr:  rc.remoteAddr,
			ConnectedAt: rc.openedAt,
		})
	}
	return rooms
}

// Count returns the number of connected rooms.
func (t *ConnTable) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byRoom)
}
