package registry

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/Iridium40/roam-services-sub004/pkg/logger"
)

// Registry tracks at most one live delivery channel per subscriber.
// All operations are safe for concurrent use; contention is only possible on
// the same subscriber (the replace-on-reconnect race), resolved by the
// matching-id check in Unregister.
type Registry[T any] struct {
	mu       sync.RWMutex
	channels map[string]*Channel[T]
	log      *slog.Logger
	closed   bool
}

// Option configures a Registry.
type Option[T any] func(*Registry[T])

func WithLogger[T any](log *slog.Logger) Option[T] {
	return func(r *Registry[T]) { r.log = log }
}

// New creates an empty Registry.
func New[T any](opts ...Option[T]) *Registry[T] {
	r := &Registry[T]{
		channels: make(map[string]*Channel[T]),
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register installs ch as the subscriber's current channel, closing any
// previous one (replace-on-reconnect). Returns the now-current channel.
func (r *Registry[T]) Register(subscriberID string, ch *Channel[T]) *Channel[T] {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		ch.Close()
		return ch
	}
	old := r.channels[subscriberID]
	r.channels[subscriberID] = ch
	r.mu.Unlock()

	if old != nil {
		old.Close()
		r.log.Debug("replaced live channel",
			logger.SubscriberID(subscriberID),
			logger.ChannelID(old.ID().String()),
		)
	}

	return ch
}

// Lookup returns the subscriber's live channel, if any. Never blocks.
func (r *Registry[T]) Lookup(subscriberID string) (*Channel[T], bool) {
	r.mu.RLock()
	ch, ok := r.channels[subscriberID]
	r.mu.RUnlock()
	if !ok || ch.State() != StateOpen {
		return nil, false
	}
	return ch, true
}

// Unregister removes the mapping only if the stored channel's id matches,
// so a stale unregister from a just-replaced channel cannot clobber its
// replacement. Reports whether a mapping was removed.
func (r *Registry[T]) Unregister(subscriberID string, channelID uuid.UUID) bool {
	r.mu.Lock()
	ch, ok := r.channels[subscriberID]
	if !ok || ch.ID() != channelID {
		r.mu.Unlock()
		return false
	}
	delete(r.channels, subscriberID)
	r.mu.Unlock()

	ch.Close()
	return true
}

// Len returns the number of registered channels.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}

// Close tears down every channel and rejects further registrations.
func (r *Registry[T]) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	channels := make([]*Channel[T], 0, len(r.channels))
	for _, ch := range r.channels {
		channels = append(channels, ch)
	}
	clear(r.channels)
	r.mu.Unlock()

	for _, ch := range channels {
		ch.Close()
	}
}
