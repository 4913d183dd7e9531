// Package session provides the per-session conversation buffer: a bounded
// rolling window of recent chat turns keyed by session id.
//
// The store is an explicitly constructed value owned by its caller. A single
// mutex guards the session map so inserts and eviction sweeps are atomic with
// respect to each other.
package session
