package sidechannel

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGDirectory resolves subscriber email addresses from the durable store.
// Subscribers without a stored address are skipped, not failed.
type PGDirectory struct {
	pool *pgxpool.Pool
}

func NewPGDirectory(pool *pgxpool.Pool) *PGDirectory {
	return &PGDirectory{pool: pool}
}

func (d *PGDirectory) EmailFor(ctx context.Context, subscriberID string) (string, error) {
	var addr string
	err := d.pool.QueryRow(ctx,
		`SELECT email FROM subscriber_emails WHERE subscriber_id = $1`,
		subscriberID,
	).Scan(&addr)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNoAddress
	}
	if err != nil {
		return "", fmt.Errorf("lookup subscriber email: %w", err)
	}
	return addr, nil
}
