package history

import (
	"time"

	"github.com/google/uuid"

	"github.com/Iridium40/roam-services-sub004/internal/event"
)

// Notification is the unit pushed to a subscriber and retained in their
// bounded history list.
type Notification struct {
	ID           uuid.UUID      `json:"id"`
	SubscriberID string         `json:"subscriber_id"`
	Role         event.Role     `json:"role"`
	Kind         event.Kind     `json:"kind"`
	Message      string         `json:"message"`
	Data         map[string]any `json:"data,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	Read         bool           `json:"read"`
	ReadAt       *time.Time     `json:"read_at,omitempty"`
}

// MarkAsRead marks the notification as read with the current timestamp.
// Idempotent: a second call keeps the original read timestamp.
func (n *Notification) MarkAsRead() {
	if n.Read {
		return
	}
	n.Read = true
	now := time.Now()
	n.ReadAt = &now
}
