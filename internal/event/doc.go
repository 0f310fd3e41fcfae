// Package event normalizes heterogeneous upstream triggers (direct status
// update requests, row-level change notifications from the booking store,
// and authenticated provider webhooks) into canonical DomainEvents and
// feeds them to the dispatcher.
//
// Emission is serialized per subject id so two concurrent updates for the
// same booking never produce interleaved notifications. Cross-subject
// ordering is not guaranteed.
package event
