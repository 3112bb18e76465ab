// Package session tracks one capture session per connected room.
// The registry owns session identity, lifecycle timestamps and the
// accumulated audio; completed sessions are snapshotted into immutable
// PendingUtterance values handed to the arbiter. Inactive sessions are
// force-terminated by a periodic sweep.
package session
