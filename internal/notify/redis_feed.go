package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Topic names the collection whose content changed.
type Topic string

const (
	TopicProfile      Topic = "profile"
	TopicApplications Topic = "applications"
)

const channelPrefix = "robot_notify:"

// ChangeNotice 是通过 Redis Pub/Sub 广播的变更通知，只携带变更的集合，订阅方自行重新加载。
type ChangeNotice struct {
	Topic    Topic  `json:"topic"`
	Identity string `json:"identity"`
}

// Channel returns the Pub/Sub channel for an identity.
func Channel(identity string) string {
	return channelPrefix + identity
}

// RedisFeed 基于 Redis Pub/Sub 的变更通知通道。
type RedisFeed struct {
	client redis.UniversalClient
	logger *slog.Logger
}

// NewRedisFeed constructs the feed.
func NewRedisFeed(client redis.UniversalClient, logger *slog.Logger) *RedisFeed {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisFeed{client: client, logger: logger}
}

// Publish 广播一条变更通知。
func (f *RedisFeed) Publish(ctx context.Context, identity string, topic Topic) error {
	data, err := json.Marshal(ChangeNotice{Topic: topic, Identity: identity})
	if err != nil {
		return fmt.Errorf("marshal change notice: %w", err)
	}
	channel := Channel(identity)
	if err := f.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish change notice to %q: %w", channel, err)
	}
	return nil
}

// Subscribe 订阅身份的变更通知。返回的通道在 ctx 结束或订阅断开时关闭。
// 订阅在返回前已确认，之后发布的通知不会丢失。
func (f *RedisFeed) Subscribe(ctx context.Context, identity string) (<-chan ChangeNotice, error) {
	channel := Channel(identity)
	pubsub := f.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %q: %w", channel, err)
	}

	out := make(chan ChangeNotice, 16)
	go func() {
		defer close(out)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					f.logger.Warn("change feed subscription closed", slog.String("channel", channel))
					return
				}
				var notice ChangeNotice
				if err := json.Unmarshal([]byte(msg.Payload), &notice); err != nil {
					f.logger.Warn("discarding malformed change notice",
						slog.String("channel", channel),
						slog.Any("error", err),
					)
					continue
				}
				select {
				case out <- notice:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
