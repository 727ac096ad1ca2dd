// Package session owns node session persistence and reconnect pacing.
//
// Ownership boundary:
// - Store: resumable session ids keyed by node host:port
// - MemoryStore and SQLiteStore implementations
// - reconnect/backoff defaults
package session
