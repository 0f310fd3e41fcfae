package registry

import "errors"

var (
	// ErrChannelClosed is returned when pushing to a channel that is not
	// open, or whose buffer overflowed and forced a self-close.
	ErrChannelClosed = errors.New("delivery channel is closed")

	// ErrInvalidTransition is returned for a lifecycle transition the state
	// graph does not allow.
	ErrInvalidTransition = errors.New("invalid channel state transition")
)
