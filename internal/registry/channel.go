package registry

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Iridium40/roam-services-sub004/internal/event"
)

// State is a delivery channel lifecycle state. closed is terminal; a
// reconnect always constructs a new Channel with a new id.
type State string

const (
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateClosing    State = "closing"
	StateClosed     State = "closed"
)

// transitions is the allowed lifecycle graph.
var transitions = map[State][]State{
	StateConnecting: {StateOpen, StateClosing},
	StateOpen:       {StateClosing},
	StateClosing:    {StateClosed},
	StateClosed:     {},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Channel is a live, single-direction push session bound to one subscriber.
// Pushes are non-blocking: a full buffer means the consumer stalled, and the
// channel degrades by closing itself rather than blocking the dispatcher.
type Channel[T any] struct {
	id           uuid.UUID
	subscriberID string
	role         event.Role
	openedAt     time.Time

	mu             sync.Mutex
	state          State
	lastLivenessAt time.Time
	out            chan T
}

// NewChannel creates a channel in the connecting state.
func NewChannel[T any](subscriberID string, role event.Role, bufferSize int) *Channel[T] {
	return &Channel[T]{
		id:           uuid.New(),
		subscriberID: subscriberID,
		role:         role,
		openedAt:     time.Now(),
		state:        StateConnecting,
		out:          make(chan T, max(bufferSize, 1)),
	}
}

func (c *Channel[T]) ID() uuid.UUID        { return c.id }
func (c *Channel[T]) SubscriberID() string { return c.subscriberID }
func (c *Channel[T]) Role() event.Role     { return c.role }
func (c *Channel[T]) OpenedAt() time.Time  { return c.openedAt }

// State returns the current lifecycle state.
func (c *Channel[T]) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Open transitions connecting -> open, marking the handshake complete
// (first liveness frame sent).
func (c *Channel[T]) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !canTransition(c.state, StateOpen) {
		return ErrInvalidTransition
	}
	c.state = StateOpen
	c.lastLivenessAt = time.Now()
	return nil
}

// Push delivers a message without blocking. Returns ErrChannelClosed if the
// channel is not open, or if the write buffer is full (in which case the
// channel tears itself down).
func (c *Channel[T]) Push(msg T) error {
	c.mu.Lock()
	if c.state != StateOpen {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	select {
	case c.out <- msg:
		c.mu.Unlock()
		return nil
	default:
		// Slow consumer: degrade by closing instead of blocking dispatch.
		c.closeLocked()
		c.mu.Unlock()
		return ErrChannelClosed
	}
}

// Receive returns the message stream. The transport layer drains it and is
// signalled by its closure when the channel dies or is replaced.
func (c *Channel[T]) Receive() <-chan T {
	return c.out
}

// MarkLiveness records a successfully written liveness frame.
func (c *Channel[T]) MarkLiveness() {
	c.mu.Lock()
	c.lastLivenessAt = time.Now()
	c.mu.Unlock()
}

// Expired reports whether more than two liveness intervals passed since the
// last successful frame, i.e. the transport is presumed dead.
func (c *Channel[T]) Expired(interval time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateOpen {
		return false
	}
	return time.Since(c.lastLivenessAt) > 2*interval
}

// Close tears the channel down: open/connecting -> closing -> closed.
// Idempotent; the out channel is closed exactly once.
func (c *Channel[T]) Close() {
	c.mu.Lock()
	c.closeLocked()
	c.mu.Unlock()
}

func (c *Channel[T]) closeLocked() {
	if c.state == StateClosing || c.state == StateClosed {
		return
	}
	c.state = StateClosing
	// Best-effort flush happens on the consumer side; all in-flight pushes
	// already sit in the buffered out channel and remain readable after close.
	close(c.out)
	c.state = StateClosed
}
