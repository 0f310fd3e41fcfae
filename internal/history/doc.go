// Package history retains recently delivered notifications per subscriber
// and tracks which of them have been acknowledged.
//
// The in-memory store keeps a bounded window (50 entries by default) per
// subscriber, evicting the oldest entry when the window is full. The
// Postgres-backed store mirrors the same interface without the bound and
// additionally records booking status transitions for auditing.
package history
