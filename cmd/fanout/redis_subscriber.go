package main

import (
	"context"
	"log"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisSubscriber listens to Redis PubSub and forwards messages to Hub.
type RedisSubscriber struct {
	redis *redis.Client
	hub   *Hub
}

func NewRedisSubscriber(redisClient *redis.Client, hub *Hub) *RedisSubscriber {
	return &RedisSubscriber{
		redis: redisClient,
		hub:   hub,
	}
}

// Start begins listening to the channel pattern internal/progress.RedisRelay
// publishes to: "progress:events:{user_id}".
func (s *RedisSubscriber) Start(ctx context.Context) {
	pubsub := s.redis.PSubscribe(ctx, "progress:events:*")
	defer pubsub.Close()

	log.Println("Redis subscriber started, listening to: progress:events:*")

	if _, err := pubsub.Receive(ctx); err != nil {
		log.Fatalf("Failed to subscribe to Redis: %v", err)
	}
	log.Println("Redis subscription confirmed")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			log.Println("Redis subscriber stopping")
			return

		case msg := <-ch:
			if msg == nil {
				continue
			}

			userID := extractUserIDFromChannel(msg.Channel)
			if userID == "" {
				log.Printf("Invalid channel format: %s", msg.Channel)
				continue
			}

			s.hub.broadcast <- &Message{
				UserID: userID,
				Data:   []byte(msg.Payload),
			}
		}
	}
}

// extractUserIDFromChannel extracts the user id from a channel name.
// Example: "progress:events:user-42" → "user-42"
func extractUserIDFromChannel(channel string) string {
	parts := strings.SplitN(channel, ":", 3)
	if len(parts) != 3 || parts[0] != "progress" || parts[1] != "events" {
		return ""
	}
	return parts[2]
}
