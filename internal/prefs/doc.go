// Package prefs stores per-subscriber notification channel preferences.
//
// Subscribers without a saved record default to everything enabled, so
// the gate fails open for channels that were never configured. Updates
// are partial merges: only the fields present in a Patch change.
package prefs
