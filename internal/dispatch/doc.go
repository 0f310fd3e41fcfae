// Package dispatch fans normalized domain events out to subscribers.
//
// For each event the dispatcher resolves the interested (subscriber, role)
// pairs from metadata embedded in the event payload, gates each recipient
// through their channel preferences, retains the resulting notification in
// history, pushes it to the subscriber's live channel when one is open, and
// triggers opted-in side channels asynchronously.
//
// Per-kind resolution and message templating live in a strategy table, so
// supporting a new event kind is a single table entry. Per-subscriber
// delivery failures are contained: a dead channel or a failing side channel
// never aborts the dispatch of an event.
package dispatch
