// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/danielhkuo/real-hero/models"
)

// DefaultStream is the stream the delivery worker reads from.
const DefaultStream = "notifications"

// RedisStream appends notifications to a Redis stream with XADD.
type RedisStream struct {
	client *redis.Client
	stream string
	// MaxLen caps the stream length when positive.
	MaxLen int64
}

func NewRedisStream(client *redis.Client, stream string) *RedisStream {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisStream{client: client, stream: stream}
}

func (r *RedisStream) Notify(ctx context.Context, n models.Notification) error {
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	err = r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		MaxLen: r.MaxLen,
		Values: map[string]any{
			"template":   n.Template,
			"user_id":    n.UserID,
			"email":      n.Email,
			"payload":    string(payload),
			"created_at": time.Now().Unix(),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}
