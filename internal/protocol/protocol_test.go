package protocol

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name        string
		data        []byte
		expected    *Frame
		expectError bool
		errorMsg    string
	}{
		{
			name: "valid session start",
			data: []byte(`{"kind":"session-start","room_id":"salon","label":"Salon","sample_rate":16000}` + "\x00"),
			expected: &Frame{
				Header: Header{
					Kind:       KindSessionStart,
					RoomID:     "salon",
					Label:      "Salon",
					SampleRate: 16000,
				},
			},
			expectError: false,
		},
		{
			name: "valid audio chunk",
			data: append([]byte(`{"kind":"audio-chunk","room_id":"salon","session_id":"salon-123","seq":7}`+"\x00"), 0x01, 0x02, 0x03, 0x04),
			expected: &Frame{
				Header: Header{
					Kind:      KindAudioChunk,
					RoomID:    "salon",
					SessionID: "salon-123",
					Seq:       7,
				},
				Payload: []byte{0x01, 0x02, 0x03, 0x04},
			},
			expectError: false,
		},
		{
			name: "valid session end",
			data: []byte(`{"kind":"session-end","room_id":"chambre","session_id":"chambre-9","frames_sent":40}` + "\x00"),
			expected: &Frame{
				Header: Header{
					Kind:       KindSessionEnd,
					RoomID:     "chambre",
					SessionID:  "chambre-9",
					FramesSent: 40,
				},
			},
			expectError: false,
		},
		{
			name: "valid error frame",
			data: []byte(`{"kind":"error","room_id":"salon","message":"session aborted"}` + "\x00"),
			expected: &Frame{
				Header: Header{
					Kind:    KindError,
					RoomID:  "salon",
					Message: "session aborted",
				},
			},
			expectError: false,
		},
		{
			name:        "missing delimiter",
			data:        []byte(`{"kind":"session-end","room_id":"salon","session_id":"salon-1"}`),
			expectError: true,
			errorMsg:    "missing header delimiter",
		},
		{
			name:        "invalid header JSON",
			data:        []byte("not json at all\x00"),
			expectError: true,
			errorMsg:    "invalid header JSON",
		},
		{
			name:        "unknown kind",
			data:        []byte(`{"kind":"ping","room_id":"salon"}` + "\x00"),
			expectError: true,
			errorMsg:    "unknown kind",
		},
		{
			name:        "missing room id",
			data:        []byte(`{"kind":"session-start","sample_rate":16000}` + "\x00"),
			expectError: true,
			errorMsg:    "missing room_id",
		},
		{
			name:        "session start with session id",
			data:        []byte(`{"kind":"session-start","room_id":"salon","session_id":"salon-1","sample_rate":16000}` + "\x00"),
			expectError: true,
			errorMsg:    "must not carry a session_id",
		},
		{
			name:        "session start without sample rate",
			data:        []byte(`{"kind":"session-start","room_id":"salon"}` + "\x00"),
			expectError: true,
			errorMsg:    "positive sample_rate",
		},
		{
			name:        "audio chunk without session id",
			data:        append([]byte(`{"kind":"audio-chunk","room_id":"salon","seq":0}`+"\x00"), 0x01, 0x02),
			expectError: true,
			errorMsg:    "requires a session_id",
		},
		{
			name:        "audio chunk without payload",
			data:        []byte(`{"kind":"audio-chunk","room_id":"salon","session_id":"salon-1","seq":0}` + "\x00"),
			expectError: true,
			errorMsg:    "requires a payload",
		},
		{
			name:        "audio chunk with odd payload",
			data:        append([]byte(`{"kind":"audio-chunk","room_id":"salon","session_id":"salon-1","seq":0}`+"\x00"), 0x01, 0x02, 0x03),
			expectError: true,
			errorMsg:    "must be even",
		},
		{
			name:        "session end with payload",
			data:        append([]byte(`{"kind":"session-end","room_id":"salon","session_id":"salon-1"}`+"\x00"), 0x01, 0x02),
			expectError: true,
			errorMsg:    "must not carry a payload",
		},
		{
			name:        "error frame without message",
			data:        []byte(`{"kind":"error","room_id":"salon"}` + "\x00"),
			expectError: true,
			errorMsg:    "requires a message",
		},
		{
			name:        "oversized header",
			data:        append(bytes.Repeat([]byte("x"), MaxHeaderSize+1), Delimiter),
			expectError: true,
			errorMsg:    "header exceeds",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Decode(tt.data)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
					return
				}
				if !errors.Is(err, ErrMalformedFrame) {
					t.Errorf("Expected error to wrap ErrMalformedFrame, got %v", err)
				}
				if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
				return
			}

			if err != nil {
				t.Errorf("Expected no error but got: %v", err)
				return
			}
			if result.Header != tt.expected.Header {
				t.Errorf("Expected header %+v, got %+v", tt.expected.Header, result.Header)
			}
			if !bytes.Equal(result.Payload, tt.expected.Payload) {
				t.Errorf("Expected payload %v, got %v", tt.expected.Payload, result.Payload)
			}
		})
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	frames := []*Frame{
		{
			Header: Header{
				Kind:       KindSessionStart,
				RoomID:     "cuisine",
				Label:      "Cuisine",
				SampleRate: 16000,
			},
		},
		{
			Header: Header{
				Kind:      KindAudioChunk,
				RoomID:    "cuisine",
				SessionID: "cuisine-42",
				Seq:       3,
			},
			Payload: []byte{0xDE, 0xAD, 0xBE, 0xEF},
		},
		{
			Header: Header{
				Kind:      KindReadyAck,
				RoomID:    "cuisine",
				SessionID: "cuisine-42",
			},
		},
		{
			Header: Header{
				Kind:      KindResponseAudio,
				RoomID:    "cuisine",
				SessionID: "cuisine-42",
			},
			Payload: []byte{0x00, 0x01},
		},
	}

	for _, original := range frames {
		t.Run(original.Kind, func(t *testing.T) {
			data, err := Encode(original)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}

			decoded, err := Decode(data)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}

			if decoded.Header != original.Header {
				t.Errorf("Header mismatch: expected %+v, got %+v", original.Header, decoded.Header)
			}
			if !bytes.Equal(decoded.Payload, original.Payload) {
				t.Errorf("Payload mismatch: expected %v, got %v", original.Payload, decoded.Payload)
			}
		})
	}
}

func TestEncodeRejectsInvalidFrame(t *testing.T) {
	frame := &Frame{
		Header: Header{
			Kind:   KindAudioChunk,
			RoomID: "salon",
		},
	}

	if _, err := Encode(frame); err == nil {
		t.Error("Expected error encoding invalid frame, got none")
	}
}

func TestPayloadNeverContainsDelimiterConfusion(t *testing.T) {
	// Payload bytes may legitimately contain NUL; only the first NUL in the
	// message is the header boundary.
	payload := []byte{0x00, 0x00, 0x01, 0x00}
	frame := &Frame{
		Header: Header{
			Kind:      KindAudioChunk,
			RoomID:    "salon",
			SessionID: "salon-1",
		},
		Payload: payload,
	}

	data, err := Encode(frame)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if !bytes.Equal(decoded.Payload, payload) {
		t.Errorf("Expected payload %v, got %v", payload, decoded.Payload)
	}
}

func TestHasPayload(t *testing.T) {
	tests := []struct {
		kind     string
		expected bool
	}{
		{KindSessionStart, false},
		{KindAudioChunk, true},
		{KindSessionEnd, false},
		{KindReadyAck, false},
		{KindResponseAudio, true},
		{KindError, false},
	}

	for _, tt := range tests {
		if got := HasPayload(tt.kind); got != tt.expected {
			t.Errorf("HasPayload(%s) = %v, expected %v", tt.kind, got, tt.expected)
		}
	}
}
