package history

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// DefaultCapacity is the per-subscriber retention window.
const DefaultCapacity = 50

// MemoryStore is the in-process session tracker: a bounded per-subscriber
// list, oldest evicted first. It is the authoritative store for the
// reconnect window; durable mirroring belongs to a database-backed Store.
type MemoryStore struct {
	capacity      int
	mu            sync.RWMutex
	notifications map[string][]Notification // subscriberID -> oldest..newest
}

// NewMemoryStore creates a memory store retaining up to capacity
// notifications per subscriber. A non-positive capacity falls back to
// DefaultCapacity.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryStore{
		capacity:      capacity,
		notifications: make(map[string][]Notification),
	}
}

func (s *MemoryStore) Add(ctx context.Context, notif Notification) error {
	if notif.SubscriberID == "" {
		return errors.New("notification has no subscriber")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list := append(s.notifications[notif.SubscriberID], notif)
	if len(list) > s.capacity {
		list = list[len(list)-s.capacity:]
	}
	s.notifications[notif.SubscriberID] = list
	return nil
}

func (s *MemoryStore) List(ctx context.Context, subscriberID string, opts ListOptions) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.notifications[subscriberID]
	out := make([]Notification, 0, len(list))
	// Stored oldest..newest; returned newest first.
	for i := len(list) - 1; i >= 0; i-- {
		if opts.OnlyUnread && list[i].Read {
			continue
		}
		out = append(out, list[i])
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) MarkRead(ctx context.Context, subscriberID string, notifID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.notifications[subscriberID]
	for i := range list {
		if list[i].ID == notifID {
			list[i].MarkAsRead()
			return nil
		}
	}
	// Evicted or never existed: deliberately a no-op.
	return nil
}

func (s *MemoryStore) MarkAllRead(ctx context.Context, subscriberID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.notifications[subscriberID]
	for i := range list {
		list[i].MarkAsRead()
	}
	return nil
}

func (s *MemoryStore) CountUnread(ctx context.Context, subscriberID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, n := range s.notifications[subscriberID] {
		if !n.Read {
			count++
		}
	}
	return count, nil
}
