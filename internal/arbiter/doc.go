// Package arbiter decides processing order among completed utterances.
// Ordering is strict arrival order across rooms; a newer utterance from a
// room supersedes that room's queued-but-not-started entry, so at most one
// utterance per room is ever pending. Many producers enqueue; a single
// consumer (the pipeline) blocks on Next.
package arbiter
