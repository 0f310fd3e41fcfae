// Package bus bridges the collaborator store's change notifications into
// the event adapter over Redis pub/sub.
//
// Envelopes are tagged JSON: row-level booking changes and new-message
// triggers. The subscriber reconnects on dropped subscriptions and never
// stops on malformed payloads, so one bad envelope cannot stall ingestion.
// Delivery is fire-and-forget pub/sub: subscribers that are down miss
// messages, which matches the push layer's best-effort contract.
package bus
