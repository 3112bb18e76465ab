// Package transcription implements the HTTP client for the speech-to-text
// backend. Utterances are uploaded as WAV files in multipart form requests.
package transcription
