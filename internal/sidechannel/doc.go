// Package sidechannel implements best-effort delivery pathways beyond the
// live push stream: transactional email through Postmark and pings to the
// externally hosted conversational-messaging service.
//
// Senders plug into the dispatcher and are always invoked asynchronously;
// their failures are logged and never affect push delivery or history
// retention. The chat sender retries with jittered backoff and stops
// calling an endpoint that keeps failing until a cooldown passes.
package sidechannel
