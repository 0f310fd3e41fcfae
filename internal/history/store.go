package history

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotificationNotFound is returned when a notification is not retained.
var ErrNotificationNotFound = errors.New("notification not found")

// ListOptions filters notification listing.
type ListOptions struct {
	Limit      int  // Maximum number of notifications to return (0 = no limit)
	OnlyUnread bool // When true, only return unread notifications
}

// Store records dispatched notifications and their read state, so a
// reconnecting client can reconcile what it missed. Read-state mutation is
// idempotent throughout: marking an evicted or already-read notification is
// a no-op, not an error.
type Store interface {
	// Add records a notification for its subscriber. Implementations with a
	// bounded retention window evict oldest-first on overflow.
	Add(ctx context.Context, notif Notification) error

	// List returns the subscriber's retained notifications, newest first.
	List(ctx context.Context, subscriberID string, opts ListOptions) ([]Notification, error)

	// MarkRead sets read=true on a retained notification.
	MarkRead(ctx context.Context, subscriberID string, notifID uuid.UUID) error

	// MarkAllRead sets read=true on every retained notification.
	MarkAllRead(ctx context.Context, subscriberID string) error

	// CountUnread returns the number of retained unread notifications.
	CountUnread(ctx context.Context, subscriberID string) (int, error)
}
