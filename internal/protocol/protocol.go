package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Frame kinds recognized on the wire.
const (
	KindSessionStart  = "session-start"
	KindAudioChunk    = "audio-chunk"
	KindSessionEnd    = "session-end"
	KindReadyAck      = "ready-ack"
	KindResponseAudio = "response-audio"
	KindError         = "error"
)

// Delimiter separates the JSON header from the binary payload.
// The header is UTF-8 JSON and can never contain a NUL byte, so the first
// NUL in a message is always the boundary.
const Delimiter byte = 0x00

// MaxHeaderSize bounds the JSON header portion of a frame.
const MaxHeaderSize = 1024

// ErrMalformedFrame is the sentinel for any protocol-level decode failure.
// Callers terminate the offending session (not the connection) when a
// decode returns an error wrapping it.
var ErrMalformedFrame = errors.New("malformed frame")

// Header is the structured record preceding the delimiter.
// Layout on the wire: {"kind":...,"room_id":...,"session_id":...,"seq":...}
// plus kind-specific fields.
type Header struct {
	Kind      string `json:"kind"`
	RoomID    string `json:"room_id"`
	SessionID string `json:"session_id,omitempty"` // absent for session-start
	Seq       uint64 `json:"seq"`

	// Kind-specific fields.
	Label      string `json:"label,omitempty"`       // session-start: human room label
	SampleRate int    `json:"sample_rate,omitempty"` // session-start, response-audio
	FramesSent uint64 `json:"frames_sent,omitempty"` // session-end
	Message    string `json:"message,omitempty"`     // error frames
}

// Frame is a fully decoded protocol message. Payload is non-nil only for
// the payload-bearing kinds (audio-chunk, response-audio).
type Frame struct {
	Header
	Payload []byte
}

// Decode parses a complete transport message into a Frame.
// All failures wrap ErrMalformedFrame.
func Decode(data []byte) (*Frame, error) {
	idx := bytes.IndexByte(data, Delimiter)
	if idx < 0 {
		return nil, fmt.Errorf("%w: missing header delimiter", ErrMalformedFrame)
	}

	if idx > MaxHeaderSize {
		return nil, fmt.Errorf("%w: header exceeds %d bytes", ErrMalformedFrame, MaxHeaderSize)
	}

	var header Header
	if err := json.Unmarshal(data[:idx], &header); err != nil {
		return nil, fmt.Errorf("%w: invalid header JSON: %v", ErrMalformedFrame, err)
	}

	frame := &Frame{Header: header}
	if payload := data[idx+1:]; len(payload) > 0 {
		frame.Payload = payload
	}

	if err := frame.Validate(); err != nil {
		return nil, err
	}

	return frame, nil
}

// Encode serializes a Frame into a single transport message.
func Encode(f *Frame) ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	header, err := json.Marshal(f.Header)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal frame header: %w", err)
	}

	msg := make([]byte, 0, len(header)+1+len(f.Payload))
	msg = append(msg, header...)
	msg = append(msg, Delimiter)
	msg = append(msg, f.Payload...)

	return msg, nil
}

// Validate checks the kind-specific field requirements of a frame.
// Violations wrap ErrMalformedFrame.
func (f *Frame) Validate() error {
	if !IsValidKind(f.Kind) {
		return fmt.Errorf("%w: unknown kind %q", ErrMalformedFrame, f.Kind)
	}

	if f.RoomID == "" {
		return fmt.Errorf("%w: missing room_id", ErrMalformedFrame)
	}

	switch f.Kind {
	case KindSessionStart:
		if f.SessionID != "" {
			return fmt.Errorf("%w: session-start must not carry a session_id", ErrMalformedFrame)
		}
		if f.SampleRate <= 0 {
			return fmt.Errorf("%w: session-start requires a positive sample_rate", ErrMalformedFrame)
		}
	case KindError:
		if f.Message == "" {
			return fmt.Errorf("%w: error frame requires a message", ErrMalformedFrame)
		}
	default:
		if f.SessionID == "" {
			return fmt.Errorf("%w: %s requires a session_id", ErrMalformedFrame, f.Kind)
		}
	}

	if HasPayload(f.Kind) {
		if len(f.Payload) == 0 {
			return fmt.Errorf("%w: %s requires a payload", ErrMalformedFrame, f.Kind)
		}
		if len(f.Payload)%2 != 0 {
			return fmt.Errorf("%w: PCM-16 payload length must be even, got %d", ErrMalformedFrame, len(f.Payload))
		}
	} else if len(f.Payload) > 0 {
		return fmt.Errorf("%w: %s must not carry a payload", ErrMalformedFrame, f.Kind)
	}

	return nil
}

// IsValidKind reports whether kind is a recognized frame kind.
func IsValidKind(kind string) bool {
	switch kind {
	case KindSessionStart, KindAudioChunk, KindSessionEnd,
		KindReadyAck, KindResponseAudio, KindError:
		return true
	}
	return false
}

// HasPayload reports whether frames of the given kind carry a binary payload.
func HasPayload(kind string) bool {
	return kind == KindAudioChunk || kind == KindResponseAudio
}

// String returns a human-readable representation of the frame.
func (f *Frame) String() string {
	return fmt.Sprintf("Frame{Kind:%s, Room:%s, Session:%s, Seq:%d, PayloadLen:%d}",
		f.Kind, f.RoomID, f.SessionID, f.Seq, len(f.Payload))
}
