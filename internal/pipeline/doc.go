// Package pipeline orchestrates the utterance cycle: transcription,
// reasoning, synthesis and response dispatch, one utterance at a time.
package pipeline
