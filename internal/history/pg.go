package history

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Iridium40/roam-services-sub004/internal/event"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrations returns the embedded schema migrations for the durable store.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// PGStore mirrors notifications into Postgres so reconnecting clients can
// page beyond the in-memory retention window, and records booking status
// transitions as an audit trail.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a Postgres-backed store on the given pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) Add(ctx context.Context, notif Notification) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO notifications (id, subscriber_id, role, kind, message, data, created_at, read)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		notif.ID, notif.SubscriberID, string(notif.Role), string(notif.Kind),
		notif.Message, notif.Data, notif.CreatedAt, notif.Read,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *PGStore) List(ctx context.Context, subscriberID string, opts ListOptions) ([]Notification, error) {
	query := `SELECT id, subscriber_id, role, kind, message, data, created_at, read, read_at
		FROM notifications WHERE subscriber_id = $1`
	args := []any{subscriberID}
	if opts.OnlyUnread {
		query += ` AND read = false`
	}
	query += ` ORDER BY created_at DESC`
	if opts.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, len(args)+1)
		args = append(args, opts.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	notifications := []Notification{}
	for rows.Next() {
		var n Notification
		var role, kind string
		if err := rows.Scan(&n.ID, &n.SubscriberID, &role, &kind, &n.Message, &n.Data, &n.CreatedAt, &n.Read, &n.ReadAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Role = event.Role(role)
		n.Kind = event.Kind(kind)
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

func (s *PGStore) MarkRead(ctx context.Context, subscriberID string, notifID uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE notifications SET read = true, read_at = now()
		 WHERE id = $1 AND subscriber_id = $2 AND read = false`,
		notifID, subscriberID,
	)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}

func (s *PGStore) MarkAllRead(ctx context.Context, subscriberID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE notifications SET read = true, read_at = now()
		 WHERE subscriber_id = $1 AND read = false`,
		subscriberID,
	)
	if err != nil {
		return fmt.Errorf("mark all notifications read: %w", err)
	}
	return nil
}

func (s *PGStore) CountUnread(ctx context.Context, subscriberID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM notifications WHERE subscriber_id = $1 AND read = false`,
		subscriberID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

// Get retrieves a single retained notification.
func (s *PGStore) Get(ctx context.Context, subscriberID string, notifID uuid.UUID) (*Notification, error) {
	var n Notification
	var role, kind string
	err := s.pool.QueryRow(ctx,
		`SELECT id, subscriber_id, role, kind, message, data, created_at, read, read_at
		 FROM notifications WHERE id = $1 AND subscriber_id = $2`,
		notifID, subscriberID,
	).Scan(&n.ID, &n.SubscriberID, &role, &kind, &n.Message, &n.Data, &n.CreatedAt, &n.Read, &n.ReadAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotificationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}
	n.Role = event.Role(role)
	n.Kind = event.Kind(kind)
	return &n, nil
}

// RecordStatusChange persists a booking status transition. Invoked by the
// event adapter as a best-effort side task.
func (s *PGStore) RecordStatusChange(ctx context.Context, ev event.DomainEvent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO booking_status_history (id, booking_id, kind, previous_status, new_status, changed_by, reason, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		ev.ID, ev.SubjectID, string(ev.Kind), ev.PreviousState, ev.NewState,
		ev.Actor, ev.Payload.Reason, ev.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert status history: %w", err)
	}
	return nil
}
