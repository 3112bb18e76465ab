package audio

import (
	"bytes"
	"testing"
)

func TestEncodeWAV(t *testing.T) {
	tests := []struct {
		name        string
		pcm         []byte
		sampleRate  int
		expectError bool
	}{
		{name: "valid audio", pcm: make([]byte, 3200), sampleRate: 16000},
		{name: "empty audio", pcm: nil, sampleRate: 16000, expectError: true},
		{name: "odd length", pcm: make([]byte, 321), sampleRate: 16000, expectError: true},
		{name: "zero sample rate", pcm: make([]byte, 320), sampleRate: 0, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeWAV(tt.pcm, tt.sampleRate)

			if tt.expectError {
				if err == nil {
					t.Error("Expected error but got none")
				}
				return
			}

			if err != nil {
				t.Fatalf("EncodeWAV failed: %v", err)
			}
			if len(data) != 44+len(tt.pcm) {
				t.Errorf("Expected %d bytes, got %d", 44+len(tt.pcm), len(data))
			}
			if !bytes.Equal(data[:4], []byte("RIFF")) {
				t.Errorf("Expected RIFF magic, got %v", data[:4])
			}
			if !bytes.Equal(data[8:12], []byte("WAVE")) {
				t.Errorf("Expected WAVE format, got %v", data[8:12])
			}
		})
	}
}

func TestDecodeWAVRoundTrip(t *testing.T) {
	pcm := make([]byte, 1600)
	for i := range pcm {
		pcm[i] = byte(i)
	}

	data, err := EncodeWAV(pcm, 22050)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	decoded, rate, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}

	if rate != 22050 {
		t.Errorf("Expected sample rate 22050, got %d", rate)
	}
	if !bytes.Equal(decoded, pcm) {
		t.Error("Decoded PCM does not match original")
	}
}

func TestDecodeWAVRejectsBadInput(t *testing.T) {
	valid, err := EncodeWAV(make([]byte, 320), 16000)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	stereo := append([]byte(nil), valid...)
	stereo[22] = 2 // NumChannels

	tests := []struct {
		name     string
		data     []byte
		errorMsg string
	}{
		{name: "too short", data: make([]byte, 10), errorMsg: "too short"},
		{name: "not RIFF", data: append([]byte("JUNK"), valid[4:]...), errorMsg: "RIFF"},
		{name: "stereo rejected", data: stereo, errorMsg: "channel"},
		{name: "truncated data", data: valid[:50], errorMsg: "truncated"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeWAV(tt.data)
			if err == nil {
				t.Error("Expected error but got none")
			}
		})
	}
}
