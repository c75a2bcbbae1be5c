package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds Redis connection configuration for the feed bus.
type RedisConfig struct {
	Address      string        `mapstructure:"address"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// busChannel returns the pub/sub channel name for one table and channel.
// The gateway bridge pattern-subscribes busPattern to see every channel.
func busChannel(table, channelID string) string {
	return fmt.Sprintf("feed:%s:%s", table, channelID)
}

func busPattern(table string) string {
	return fmt.Sprintf("feed:%s:*", table)
}

// RedisBus implements Bus over Redis pub/sub.
type RedisBus struct {
	client *redis.Client
	mu     sync.Mutex
	subs   map[*redisSub]struct{}
}

// NewRedisBus connects to Redis and verifies the connection.
func NewRedisBus(cfg RedisConfig) (*RedisBus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisBus{
		client: client,
		subs:   make(map[*redisSub]struct{}),
	}, nil
}

// Publish publishes the event to its table/channel pub/sub channel.
func (r *RedisBus) Publish(ctx context.Context, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return r.client.Publish(ctx, busChannel(event.Table, event.ChannelID), data).Err()
}

// Subscribe opens a filtered subscription. An empty channelID subscribes
// to the table's wildcard pattern.
func (r *RedisBus) Subscribe(ctx context.Context, table string, mask Mask, channelID string) (Subscription, error) {
	var pubsub *redis.PubSub
	if channelID == "" {
		pubsub = r.client.PSubscribe(ctx, busPattern(table))
	} else {
		pubsub = r.client.Subscribe(ctx, busChannel(table, channelID))
	}

	sub := &redisSub{
		bus:    r,
		pubsub: pubsub,
		mask:   mask,
		ch:     make(chan *Event, subscriptionBuffer),
	}

	r.mu.Lock()
	r.subs[sub] = struct{}{}
	r.mu.Unlock()

	go sub.processMessages(ctx)

	return sub, nil
}

// Close cancels all subscriptions and closes the Redis client.
func (r *RedisBus) Close() error {
	r.mu.Lock()
	subs := make([]*redisSub, 0, len(r.subs))
	for s := range r.subs {
		subs = append(subs, s)
	}
	r.mu.Unlock()

	for _, s := range subs {
		s.Cancel()
	}
	return r.client.Close()
}

type redisSub struct {
	bus    *RedisBus
	pubsub *redis.PubSub
	mask   Mask
	ch     chan *Event
	once   sync.Once
}

func (s *redisSub) Events() <-chan *Event { return s.ch }

func (s *redisSub) Cancel() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s)
		s.bus.mu.Unlock()
		// Closing the pubsub ends processMessages, which closes s.ch.
		_ = s.pubsub.Close()
	})
}

func (s *redisSub) processMessages(ctx context.Context) {
	defer close(s.ch)

	ch := s.pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				continue
			}
			if !s.mask.Matches(event.Action) {
				continue
			}

			select {
			case s.ch <- &event:
			case <-ctx.Done():
				return
			default:
				// Subscriber not keeping up, drop.
			}
		}
	}
}
