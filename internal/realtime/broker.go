package realtime

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const channelPrefix = "sparklink:live:"

// Publisher sends an event to whatever stream the user has open, on any instance.
type Publisher interface {
	Publish(ctx context.Context, userID string, event any) error
}

// LocalBroker delivers straight to this instance's registry.
type LocalBroker struct {
	registry *Registry
}

func NewLocalBroker(registry *Registry) *LocalBroker {
	return &LocalBroker{registry: registry}
}

func (b *LocalBroker) Publish(_ context.Context, userID string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	b.registry.Deliver(userID, data)
	return nil
}

// RedisBroker publishes to a per-user Redis channel. Every instance runs one
// pattern subscriber that hands events to its local registry.
type RedisBroker struct {
	client   *redis.Client
	registry *Registry
	log      *zap.SugaredLogger
	started  sync.Once
}

func NewRedisBroker(client *redis.Client, registry *Registry, log *zap.SugaredLogger) *RedisBroker {
	return &RedisBroker{client: client, registry: registry, log: log}
}

// Channel returns the Redis channel carrying events for userID.
func Channel(userID string) string {
	return channelPrefix + userID
}

func (b *RedisBroker) Publish(ctx context.Context, userID string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, Channel(userID), data).Err()
}

// Start launches the shared subscriber once per instance.
func (b *RedisBroker) Start(ctx context.Context) {
	b.started.Do(func() {
		go b.run(ctx)
	})
}

func (b *RedisBroker) run(ctx context.Context) {
	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		func() {
			pubsub := b.client.PSubscribe(ctx, channelPrefix+"*")
			defer pubsub.Close()

			b.log.Infow("live subscriber started", "pattern", channelPrefix+"*")

			for {
				msg, err := pubsub.ReceiveMessage(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					b.log.Warnw("live subscriber error", "error", err, "retry_in", backoff)
					select {
					case <-ctx.Done():
					case <-time.After(backoff):
					}
					backoff *= 2
					if backoff > 30*time.Second {
						backoff = 30 * time.Second
					}
					return
				}

				backoff = time.Second
				userID := strings.TrimPrefix(msg.Channel, channelPrefix)
				b.registry.Deliver(userID, []byte(msg.Payload))
			}
		}()
	}
}
