package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// EventCache is a read-through cache of event snapshots. Writers invalidate the
// key after every status change.
type EventCache struct {
	R   *redis.Client
	TTL time.Duration
}

// New returns a cache whose entries expire after ttl.
func New(r *redis.Client, ttl time.Duration) *EventCache { return &EventCache{R: r, TTL: ttl} }

func keyEvent(eventID string) string { return "wager:event:" + eventID }

func (c *EventCache) GetEvent(ctx context.Context, eventID string, dst any) (bool, error) {
	b, err := c.R.Get(ctx, keyEvent(eventID)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(b, dst)
}

func (c *EventCache) SetEvent(ctx context.Context, eventID string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.R.Set(ctx, keyEvent(eventID), b, c.TTL).Err()
}

func (c *EventCache) Invalidate(ctx context.Context, eventID string) error {
	return c.R.Del(ctx, keyEvent(eventID)).Err()
}
