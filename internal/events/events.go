// Package events is a thin Redis pub/sub wrapper carrying the
// "tee:availability" diff-summary event described in §4.5: an
// additive wake-up signal for the Digest Worker's incremental scan,
// not a load-bearing transport (the 10-minute ticker remains
// authoritative on its own).
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/edevardHvide/golf-availability-bot/internal/logging"
)

const availabilityChannel = "tee:availability"

// DiffSummary is the payload the Scheduler publishes once per changed
// (course, date) each cycle, right after computing the diff.
type DiffSummary struct {
	CourseKey string `json:"course_key"`
	Date      string `json:"date"`
	Added     int    `json:"added"`
	Removed   int    `json:"removed"`
	Increased int    `json:"increased"`
}

// Publisher publishes DiffSummary events to the availability channel.
type Publisher struct {
	client *redis.Client
	log    *logging.Logger
}

// NewPublisher wraps an already-connected Redis client.
func NewPublisher(client *redis.Client, log *logging.Logger) *Publisher {
	return &Publisher{client: client, log: log}
}

// Publish sends one DiffSummary. Failures are logged and swallowed:
// this channel is an optimization, never a correctness dependency.
func (p *Publisher) Publish(ctx context.Context, summary DiffSummary) {
	payload, err := json.Marshal(summary)
	if err != nil {
		p.log.Warn("failed to marshal diff summary", map[string]interface{}{"error": err.Error()})
		return
	}
	if err := p.client.Publish(ctx, availabilityChannel, payload).Err(); err != nil {
		p.log.Warn("failed to publish diff summary", map[string]interface{}{"error": err.Error()})
	}
}

// Subscriber receives DiffSummary events.
type Subscriber struct {
	pubsub *redis.PubSub
}

// NewSubscriber subscribes to the availability channel.
func NewSubscriber(ctx context.Context, client *redis.Client) *Subscriber {
	return &Subscriber{pubsub: client.Subscribe(ctx, availabilityChannel)}
}

// Close unsubscribes and releases the underlying connection.
func (s *Subscriber) Close() error {
	return s.pubsub.Close()
}

// Channel returns a channel of decoded DiffSummary events; malformed
// payloads are dropped silently (logged by the caller if desired).
func (s *Subscriber) Channel(ctx context.Context) <-chan DiffSummary {
	out := make(chan DiffSummary)
	raw := s.pubsub.Channel()

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-raw:
				if !ok {
					return
				}
				var summary DiffSummary
				if err := json.Unmarshal([]byte(msg.Payload), &summary); err != nil {
					continue
				}
				select {
				case out <- summary:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

// SubscriberCount reports how many subscribers currently listen on the
// availability channel, mirroring the teacher's GetSubscriberCount.
func SubscriberCount(ctx context.Context, client *redis.Client) (int64, error) {
	result, err := client.PubSubNumSub(ctx, availabilityChannel).Result()
	if err != nil {
		return 0, fmt.Errorf("counting subscribers: %w", err)
	}
	return result[availabilityChannel], nil
}
