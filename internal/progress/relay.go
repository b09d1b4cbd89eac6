package progress

import (
	"context"
	"encoding/json"
	"fmt"

	commonredis "github.com/lyzr/orchestrator/common/redis"
)

// Relay forwards progress events to an out-of-process transport, letting a
// separate fanout process (cmd/fanout) serve them to websocket clients
// without holding a reference to the in-process Bus. Optional: an Engine
// without a Relay still serves Subscribe() to same-process callers.
type Relay interface {
	Publish(ctx context.Context, userID string, event Event) error
}

// RedisRelay publishes events to "progress:events:{userID}", the channel
// convention cmd/fanout's subscriber expects (spec §7: cross-process
// delivery is optional infrastructure, not a correctness requirement).
// Built on the teacher's common/redis.Client wrapper rather than a bare
// *redis.Client, for the same logged PublishEvent path other Redis-backed
// components use.
type RedisRelay struct {
	client *commonredis.Client
}

func NewRedisRelay(client *commonredis.Client) *RedisRelay {
	return &RedisRelay{client: client}
}

func (r *RedisRelay) Publish(ctx context.Context, userID string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal progress event: %w", err)
	}
	channel := fmt.Sprintf("progress:events:%s", userID)
	return r.client.PublishEvent(ctx, channel, string(payload))
}
