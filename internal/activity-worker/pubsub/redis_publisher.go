package pubsub

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/friendsbet/pkg/contracts/events"
)

// DefaultChannel is where the wager-service websocket hub listens.
const DefaultChannel = "wager_activity_broadcast"

// RedisBroadcaster publishes activity updates as JSON on a Redis channel.
type RedisBroadcaster struct {
	r       *redis.Client
	channel string
}

// NewRedisBroadcaster falls back to DefaultChannel when channel is empty.
func NewRedisBroadcaster(r *redis.Client, channel string) *RedisBroadcaster {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBroadcaster{r: r, channel: channel}
}

func (b *RedisBroadcaster) Broadcast(ctx context.Context, a events.ActivityUpdate) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return b.r.Publish(ctx, b.channel, payload).Err()
}
