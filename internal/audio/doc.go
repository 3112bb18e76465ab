// Package audio provides PCM utterance accumulation and WAV framing.
// Utterances arrive as pre-bounded PCM-16 chunks; the accumulator grows an
// append-only buffer per capture cycle and the WAV codec wraps the result
// for upload to the transcription collaborator.
package audio
