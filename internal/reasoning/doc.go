// Package reasoning implements the HTTP client for the language-model
// backend that turns transcripts into spoken replies and structured actions.
package reasoning
