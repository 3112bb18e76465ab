// Package synthesis implements the HTTP client for the text-to-speech
// backend. Replies come back as raw PCM16 mono audio.
package synthesis
