package sidechannel

import "errors"

var (
	// ErrInvalidConfig indicates the sender was constructed without the
	// settings it needs to operate.
	ErrInvalidConfig = errors.New("invalid side-channel configuration")

	// ErrSendFailed indicates the side-channel delivery did not succeed
	// after any retries.
	ErrSendFailed = errors.New("side-channel send failed")

	// ErrCircuitOpen indicates the endpoint is in cooldown after repeated
	// failures and the send was not attempted.
	ErrCircuitOpen = errors.New("side-channel circuit open")

	// ErrNoAddress indicates the subscriber has no address on the channel.
	ErrNoAddress = errors.New("no address for subscriber")
)
