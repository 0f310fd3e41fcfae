// Package api exposes the notifier over HTTP: an NDJSON streaming endpoint
// for live pushes, a direct booking status-update call, acknowledgement and
// preference management, notification listing, and the signed provider
// webhook intake.
//
// The streaming endpoint owns the delivery channel lifecycle: it registers
// the channel (replacing any previous connection for the same subscriber),
// emits a connected frame, then interleaves notifications with periodic
// ping frames until the client goes away.
package api
