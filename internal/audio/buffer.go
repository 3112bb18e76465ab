package audio

import (
	"fmt"
	"time"
)

// Buffer accumulates raw PCM-16 mono audio for a single capture cycle.
// It is not safe for concurrent use; the session registry serializes all
// access per session.
type Buffer struct {
	sampleRate int
	pcm        []byte
	frames     uint64
}

// NewBuffer creates an accumulator for the given sample rate.
func NewBuffer(sampleRate int) *Buffer {
	return &Buffer{
		sampleRate: sampleRate,
		pcm:        make([]byte, 0, sampleRate*2), // room for one second up front
	}
}

// Append adds one audio chunk to the buffer.
func (b *Buffer) Append(pcm []byte) error {
	if len(pcm) == 0 {
		return fmt.Errorf("cannot append empty audio chunk")
	}
	if len(pcm)%2 != 0 {
		return fmt.Errorf("audio chunk length must be even (got %d bytes)", len(pcm))
	}

	b.pcm = append(b.pcm, pcm...)
	b.frames++
	return nil
}

// Snapshot returns an independent copy of the accumulated PCM.
func (b *Buffer) Snapshot() []byte {
	out := make([]byte, len(b.pcm))
	copy(out, b.pcm)
	return out
}

// Duration returns the audio duration represented by the buffer.
func (b *Buffer) Duration() time.Duration {
	if b.sampleRate <= 0 {
		return 0
	}
	samples := len(b.pcm) / 2
	return time.Duration(samples) * time.Second / time.Duration(b.sampleRate)
}

// SampleRate returns the buffer's sample rate in Hz.
func (b *Buffer) SampleRate() int { return b.sampleRate }

// Frames returns the number of chunks appended so far.
func (b *Buffer) Frames() uint64 { return b.frames }

// Len returns the accumulated size in bytes.
func (b *Buffer) Len() int { return len(b.pcm) }
