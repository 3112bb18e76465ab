package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ParcMagScene/Exo/internal/audio"
	"github.com/ParcMagScene/Exo/internal/metrics"
)

// Lifecycle and capacity errors surfaced to connection handlers.
var (
	// ErrSessionAlreadyActive is returned when a room tries to open a second
	// session while one is still accumulating. The caller must explicitly end
	// the prior session first; a silent override would interleave audio from
	// a single physical microphone.
	ErrSessionAlreadyActive = errors.New("session already active for room")

	// ErrUnknownSession is returned for frames referencing a session id the
	// registry does not track (never opened, or already terminal).
	ErrUnknownSession = errors.New("unknown session")

	// ErrSessionNotAccumulating is returned when audio arrives for a session
	// that is no longer accepting chunks.
	ErrSessionNotAccumulating = errors.New("session not accumulating")

	// ErrEmptyUtterance is returned by Complete when the accumulated audio is
	// below the configured minimum duration. The session stays accumulating.
	ErrEmptyUtterance = errors.New("utterance below minimum duration")

	// ErrSequenceGap is returned when an audio chunk arrives out of
	// sequence-number order. No reordering buffer is kept; the caller treats
	// this as a protocol error and terminates the session.
	ErrSequenceGap = errors.New("out-of-order sequence number")
)

// State is the lifecycle state of a session.
type State int

const (
	StateAccumulating State = iota
	StateCompleted
	StateAborted
	StateExpired
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateAccumulating:
		return "accumulating"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	case StateExpired:
		return "expired"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Session is one capture-to-response cycle for a single room.
type Session struct {
	ID        string
	RoomID    string
	RoomLabel string

	state       State
	startTime   time.Time
	lastFrame   time.Time
	expectedSeq uint64
	buffer      *audio.Buffer

	mu sync.Mutex
}

// PendingUtterance is an immutable snapshot of a completed session's audio,
// enqueued for processing. Ownership transfers to the arbiter at enqueue
// time; the originating room is simultaneously freed for a new session.
type PendingUtterance struct {
	RoomID     string
	RoomLabel  string
	SessionID  string
	PCM        []byte
	SampleRate int
	Frames     uint64
	ReceivedAt time.Time
}

// Duration returns the audio duration of the utterance.
func (u *PendingUtterance) Duration() time.Duration {
	if u.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(u.PCM)/2) * time.Second / time.Duration(u.SampleRate)
}

// Registry tracks at most one non-terminal session per room.
// The registry map is guarded by an RWMutex for lookups; all per-session
// state is guarded by the session's own mutex, so operations on distinct
// rooms proceed fully concurrently.
type Registry struct {
	byRoom    map[string]*Session
	bySession map[string]*Session
	mu        sync.RWMutex

	logger       *slog.Logger
	metrics      *metrics.Metrics
	minUtterance time.Duration
	idleTimeout  time.Duration
}

// NewRegistry creates a session registry.
func NewRegistry(logger *slog.Logger, m *metrics.Metrics, minUtterance, idleTimeout time.Duration) *Registry {
	return &Registry{
		byRoom:       make(map[string]*Session),
		bySession:    make(map[string]*Session),
		logger:       logger,
		metrics:      m,
		minUtterance: minUtterance,
		idleTimeout:  idleTimeout,
	}
}

// Open starts a new session for the room. Session ids derive from the room
// id and a monotonic start timestamp and are never reused.
func (r *Registry) Open(roomID, label string, sampleRate int) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byRoom[roomID]; ok {
		return nil, fmt.Errorf("%w: room %s has session %s", ErrSessionAlreadyActive, roomID, existing.ID)
	}

	now := time.Now()
	s := &Session{
		ID:        fmt.Sprintf("%s-%d", roomID, now.UnixNano()),
		RoomID:    roomID,
		RoomLabel: label,
		state:     StateAccumulating,
		startTime: now,
		lastFrame: now,
		buffer:    audio.NewBuffer(sampleRate),
	}

	r.byRoom[roomID] = s
	r.bySession[s.ID] = s

	r.metrics.RecordSessionOpened()
	r.metrics.SetActiveSessions(len(r.byRoom))

	r.logger.Info("Session opened",
		slog.String("session_id", s.ID),
		slog.String("room_id", roomID),
		slog.String("room_label", label),
		slog.Int("sample_rate", sampleRate),
	)

	return s, nil
}

// Append adds an audio chunk to an accumulating session. Sequence numbers
// must increase strictly by one from zero; any gap, repeat or regression is
// rejected without touching the accumulated buffer.
func (r *Registry) Append(sessionID string, seq uint64, pcm []byte) error {
	s, ok := r.lookup(sessionID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateAccumulating {
		return fmt.Errorf("%w: %s is %s", ErrSessionNotAccumulating, sessionID, s.state)
	}

	if seq != s.expectedSeq {
		return fmt.Errorf("%w: session %s expected seq %d, got %d",
			ErrSequenceGap, sessionID, s.expectedSeq, seq)
	}

	// Copy: the caller's slice is backed by the transport read buffer.
	chunk := make([]byte, len(pcm))
	copy(chunk, pcm)

	if err := s.buffer.Append(chunk); err != nil {
		return fmt.Errorf("failed to buffer audio for session %s: %w", sessionID, err)
	}

	s.expectedSeq = seq + 1
	s.lastFrame = time.Now()

	return nil
}

// Complete freezes the session's buffer and returns the pending utterance.
// A sub-minimum buffer yields ErrEmptyUtterance and the session returns to
// accumulating, still able to receive further chunks.
func (r *Registry) Complete(sessionID string) (*PendingUtterance, error) {
	s, ok := r.lookup(sessionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}

	s.mu.Lock()
	if s.state != StateAccumulating {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s is %s", ErrSessionNotAccumulating, sessionID, s.state)
	}

	if s.buffer.Duration() < r.minUtterance {
		dur := s.buffer.Duration()
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s captured %v, minimum %v",
			ErrEmptyUtterance, sessionID, dur, r.minUtterance)
	}

	utterance := &PendingUtterance{
		RoomID:     s.RoomID,
		RoomLabel:  s.RoomLabel,
		SessionID:  s.ID,
		PCM:        s.buffer.Snapshot(),
		SampleRate: s.buffer.SampleRate(),
		Frames:     s.buffer.Frames(),
		ReceivedAt: time.Now(),
	}
	s.state = StateCompleted
	started := s.startTime
	s.mu.Unlock()

	r.remove(s)
	r.metrics.RecordSessionCompleted(time.Since(started).Seconds())

	r.logger.Info("Session completed",
		slog.String("session_id", s.ID),
		slog.String("room_id", s.RoomID),
		slog.Uint64("frames", utterance.Frames),
		slog.Duration("audio_duration", utterance.Duration()),
	)

	return utterance, nil
}

// Abort force-terminates a session without producing an utterance, used on
// transport loss and protocol errors. It reports whether a session was
// actually terminated.
func (r *Registry) Abort(sessionID string) bool {
	s, ok := r.lookup(sessionID)
	if !ok {
		return false
	}

	s.mu.Lock()
	if s.state != StateAccumulating {
		s.mu.Unlock()
		return false
	}
	s.state = StateAborted
	s.mu.Unlock()

	r.remove(s)
	r.metrics.RecordSessionAborted()

	r.logger.Info("Session aborted",
		slog.String("session_id", s.ID),
		slog.String("room_id", s.RoomID),
	)

	return true
}

// AbortRoom aborts whatever non-terminal session the room currently has.
func (r *Registry) AbortRoom(roomID string) bool {
	r.mu.RLock()
	s, ok := r.byRoom[roomID]
	r.mu.RUnlock()

	if !ok {
		return false
	}
	return r.Abort(s.ID)
}

// ExpireStale sweeps sessions whose last-frame time exceeds the idle
// timeout. A stale session with enough audio is force-completed (synthetic
// session-end) and its utterance returned; one below the minimum is
// discarded. Running the sweep twice in succession terminates each stale
// session exactly once.
func (r *Registry) ExpireStale(now time.Time) []*PendingUtterance {
	r.mu.RLock()
	stale := make([]*Session, 0)
	for _, s := range r.byRoom {
		s.mu.Lock()
		idle := now.Sub(s.lastFrame)
		s.mu.Unlock()
		if idle > r.idleTimeout {
			stale = append(stale, s)
		}
	}
	r.mu.RUnlock()

	var completed []*PendingUtterance
	for _, s := range stale {
		s.mu.Lock()
		if s.state != StateAccumulating {
			s.mu.Unlock()
			continue
		}

		if s.buffer.Duration() >= r.minUtterance {
			utterance := &PendingUtterance{
				RoomID:     s.RoomID,
				RoomLabel:  s.RoomLabel,
				SessionID:  s.ID,
				PCM:        s.buffer.Snapshot(),
				SampleRate: s.buffer.SampleRate(),
				Frames:     s.buffer.Frames(),
				ReceivedAt: now,
			}
			s.state = StateCompleted
			s.mu.Unlock()

			r.remove(s)
			completed = append(completed, utterance)

			r.logger.Warn("Stale session force-completed",
				slog.String("session_id", s.ID),
				slog.String("room_id", s.RoomID),
				slog.Duration("audio_duration", utterance.Duration()),
			)
		} else {
			s.state = StateExpired
			s.mu.Unlock()

			r.remove(s)

			r.logger.Warn("Stale session discarded as empty",
				slog.String("session_id", s.ID),
				slog.String("room_id", s.RoomID),
			)
		}
		r.metrics.RecordSessionExpired()
	}

	return completed
}

// RunSweeper periodically expires stale sessions until ctx is done,
// submitting force-completed utterances through submit.
func (r *Registry) RunSweeper(ctx context.Context, interval time.Duration, submit func(*PendingUtterance)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("Session sweeper started",
		slog.Duration("idle_timeout", r.idleTimeout),
		slog.Duration("check_interval", interval),
	)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Session sweeper stopping")
			return
		case now := <-ticker.C:
			for _, utterance := range r.ExpireStale(now) {
				submit(utterance)
			}
		}
	}
}

// lookup finds a session by id under the registry read lock.
func (r *Registry) lookup(sessionID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.bySession[sessionID]
	return s, ok
}

// remove drops a terminal session from both indexes.
func (r *Registry) remove(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Only unmap the room if it still points at this session; the room may
	// already have opened a fresh one.
	if current, ok := r.byRoom[s.RoomID]; ok && current.ID == s.ID {
		delete(r.byRoom, s.RoomID)
	}
	delete(r.bySession, s.ID)

	r.metrics.SetActiveSessions(len(r.byRoom))
}

// ActiveCount returns the number of accumulating sessions.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byRoom)
}

// Info is a point-in-time view of a session for monitoring endpoints.
type Info struct {
	SessionID  string        `json:"session_id"`
	RoomID     string        `json:"room_id"`
	RoomLabel  string        `json:"room_label"`
	State      string        `json:"state"`
	StartTime  time.Time     `json:"start_time"`
	LastFrame  time.Time     `json:"last_frame"`
	Frames     uint64        `json:"frames"`
	AudioBytes int           `json:"audio_bytes"`
	Duration   time.Duration `json:"audio_duration"`
}

// Sessions returns a snapshot of all active sessions.
func (r *Registry) Sessions() []Info {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.byRoom))
	for _, s := range r.byRoom {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	infos := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		s.mu.Lock()
		infos = append(infos, Info{
			SessionID:  s.ID,
			RoomID:     s.RoomID,
			RoomLabel:  s.RoomLabel,
			State:      s.state.String(),
			StartTime:  s.startTime,
			LastFrame:  s.lastFrame,
			Frames:     s.buffer.Frames(),
			AudioBytes: s.buffer.Len(),
			Duration:   s.buffer.Duration(),
		})
		s.mu.Unlock()
	}

	return infos
}
