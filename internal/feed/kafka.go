package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/google/uuid"

	"github.com/specterchat/specter/pkg/log"
)

// KafkaConfig holds Kafka configuration for the feed bus.
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	GroupID string `mapstructure:"group_id"`
}

// feedTopic maps a record table to its Kafka topic. The message key is the
// channel id, so per-channel filtering happens client-side on the key.
func feedTopic(table string) string {
	return "feed-" + table
}

// KafkaBus implements Bus over Kafka. Every subscription gets its own
// consumer group so each subscriber observes the full event stream.
type KafkaBus struct {
	producer *kafka.Producer
	config   KafkaConfig
	mu       sync.Mutex
	subs     map[*kafkaSub]struct{}
}

// NewKafkaBus creates a Kafka-backed feed bus.
func NewKafkaBus(cfg KafkaConfig) (*KafkaBus, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.Brokers,
		"acks":              "1",
		"linger.ms":         5,
		"compression.type":  "snappy",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	b := &KafkaBus{
		producer: p,
		config:   cfg,
		subs:     make(map[*kafkaSub]struct{}),
	}

	go b.deliveryReportLoop()

	return b, nil
}

func (b *KafkaBus) deliveryReportLoop() {
	for e := range b.producer.Events() {
		if m, ok := e.(*kafka.Message); ok && m.TopicPartition.Error != nil {
			l := log.L()
			l.Warn().Err(m.TopicPartition.Error).Msg("kafka delivery failed")
		}
	}
}

// Publish produces the event to its table topic keyed by channel id.
func (b *KafkaBus) Publish(_ context.Context, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	topic := feedTopic(event.Table)
	return b.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(event.ChannelID),
		Value:          data,
	}, nil)
}

// Subscribe opens a consumer on the table topic, filtered by channel id
// and mask on the consumer side.
func (b *KafkaBus) Subscribe(ctx context.Context, table string, mask Mask, channelID string) (Subscription, error) {
	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  b.config.Brokers,
		"group.id":           fmt.Sprintf("%s-%s", b.config.GroupID, uuid.New().String()),
		"auto.offset.reset":  "latest",
		"enable.auto.commit": true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}

	if err := c.Subscribe(feedTopic(table), nil); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to subscribe to topic %s: %w", feedTopic(table), err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &kafkaSub{
		bus:       b,
		consumer:  c,
		cancel:    cancel,
		mask:      mask,
		channelID: channelID,
		ch:        make(chan *Event, subscriptionBuffer),
	}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	go sub.consumeLoop(subCtx)

	return sub, nil
}

// Close cancels all subscriptions and flushes the producer.
func (b *KafkaBus) Close() error {
	b.mu.Lock()
	subs := make([]*kafkaSub, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.Cancel()
	}

	b.producer.Flush(5000)
	b.producer.Close()
	return nil
}

type kafkaSub struct {
	bus       *KafkaBus
	consumer  *kafka.Consumer
	cancel    context.CancelFunc
	mask      Mask
	channelID string
	ch        chan *Event
	once      sync.Once
}

func (s *kafkaSub) Events() <-chan *Event { return s.ch }

func (s *kafkaSub) Cancel() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s)
		s.bus.mu.Unlock()
		s.cancel()
	})
}

func (s *kafkaSub) consumeLoop(ctx context.Context) {
	defer func() {
		s.consumer.Close()
		close(s.ch)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			msg, err := s.consumer.ReadMessage(100 * time.Millisecond)
			if err != nil {
				// Timeout is expected, keep polling.
				if kerr, ok := err.(kafka.Error); ok && kerr.Code() == kafka.ErrTimedOut {
					continue
				}
				l := log.L()
				l.Warn().Err(err).Msg("kafka consumer error")
				continue
			}

			if s.channelID != "" && string(msg.Key) != s.channelID {
				continue
			}

			var event Event
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				continue
			}
			if !s.mask.Matches(event.Action) {
				continue
			}

			select {
			case s.ch <- &event:
			case <-ctx.Done():
				return
			}
		}
	}
}
