package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "notifier:prefs:"

// RedisStore shares preferences across instances through Redis. Writes are
// last-write-wins: concurrent updates to the same subscriber resolve to
// whichever Set lands last.
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, subscriberID string) (Preferences, error) {
	raw, err := s.client.Get(ctx, keyPrefix+subscriberID).Bytes()
	if errors.Is(err, redis.Nil) {
		return DefaultPreferences(), nil
	}
	if err != nil {
		return Preferences{}, errors.Join(ErrStoreUnavailable, err)
	}

	var p Preferences
	if err := json.Unmarshal(raw, &p); err != nil {
		return Preferences{}, fmt.Errorf("decode preferences: %w", err)
	}
	return p, nil
}

func (s *RedisStore) Set(ctx context.Context, subscriberID string, prefs Preferences) error {
	raw, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+subscriberID, raw, 0).Err(); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}
