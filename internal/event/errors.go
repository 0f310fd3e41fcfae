package event

import "errors"

var (
	// ErrValidation indicates bad caller input. Never retried.
	ErrValidation = errors.New("missing or invalid event fields")

	// ErrAuthentication indicates a webhook signature failure. The event is
	// dropped; the provider is expected to retry on its own schedule.
	ErrAuthentication = errors.New("webhook authentication failed")

	// ErrMalformedEvent indicates the event payload violates an internal
	// invariant during subscriber resolution. Fatal for that one event only.
	ErrMalformedEvent = errors.New("malformed event payload")

	// ErrTimeout indicates event processing exceeded its bound. Surfaced to
	// the caller as retryable.
	ErrTimeout = errors.New("event processing timed out")

	// ErrUnknownProvider indicates a webhook arrived for a provider the
	// adapter has no secret configured for.
	ErrUnknownProvider = errors.New("unknown webhook provider")
)
