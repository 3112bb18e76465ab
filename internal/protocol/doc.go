// Package protocol implements the satellite wire protocol codec.
// Each transport message carries exactly one frame: a compact JSON header,
// a single NUL delimiter, and an optional raw PCM payload. The codec
// validates header fields per message kind so downstream consumers only
// ever see well-formed frames.
package protocol
