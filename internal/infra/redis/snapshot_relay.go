package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

// SnapshotRelay fans quiz snapshots out across service instances over Redis pub/sub.
// The quiz service publishes to the relay; every instance runs Run to forward what it
// receives to its local subscribers (realtime hub, long-poll feed), including its own
// messages.
type SnapshotRelay struct {
	client  *redis.Client
	channel string
	log     *slog.Logger
}

func NewSnapshotRelay(client *redis.Client, channel string, log *slog.Logger) *SnapshotRelay {
	if channel == "" {
		channel = "quiz:snapshots"
	}
	if log == nil {
		log = slog.Default()
	}
	return &SnapshotRelay{client: client, channel: channel, log: log.With("component", "relay")}
}

func (r *SnapshotRelay) Publish(ctx context.Context, snapshot domain.QuizSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("relay snapshot: %w", err)
	}
	return nil
}

// Run forwards relayed snapshots to sink until ctx is cancelled. ready, if not nil,
// is closed once the subscription is confirmed.
func (r *SnapshotRelay) Run(ctx context.Context, sink app.Notifier, ready chan<- struct{}) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	if ready != nil {
		close(ready)
	}

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			var snap domain.QuizSnapshot
			if err := json.Unmarshal([]byte(msg.Payload), &snap); err != nil {
				r.log.Warn("drop malformed snapshot", "error", err)
				continue
			}
			if err := sink.Publish(ctx, snap); err != nil {
				r.log.Warn("forward snapshot", "version", snap.Version, "error", err)
			}
		}
	}
}
