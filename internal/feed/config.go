package feed

import (
	"fmt"
	"time"
)

// Config holds feed bus configuration.
type Config struct {
	Driver  string      `mapstructure:"driver"` // "memory", "redis", "kafka", "ws"
	Redis   RedisConfig `mapstructure:"redis"`
	Kafka   KafkaConfig `mapstructure:"kafka"`
	Gateway WSConfig    `mapstructure:"gateway"`
}

// DefaultConfig returns the default feed configuration.
func DefaultConfig() Config {
	return Config{
		Driver: "redis",
		Redis: RedisConfig{
			Address:      "localhost:6379",
			PoolSize:     10,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers: "localhost:9092",
			GroupID: "specter-feed",
		},
		Gateway: WSConfig{
			URL: "ws://localhost:8090/ws",
		},
	}
}

// New creates a Feed based on the configured driver. The memory driver is
// not constructible here: a Broker must be shared with the store that
// publishes into it, so demo wiring builds it directly.
func New(cfg Config) (Feed, error) {
	switch cfg.Driver {
	case "redis":
		return NewRedisBus(cfg.Redis)
	case "kafka":
		return NewKafkaBus(cfg.Kafka)
	case "ws":
		return NewWSFeed(cfg.Gateway), nil
	default:
		return nil, fmt.Errorf("unsupported feed driver: %s", cfg.Driver)
	}
}

// NewBus creates a Bus (publisher side included) based on the configured
// driver. The ws driver publishes by forwarding through the gateway.
func NewBus(cfg Config) (Bus, error) {
	switch cfg.Driver {
	case "redis":
		return NewRedisBus(cfg.Redis)
	case "kafka":
		return NewKafkaBus(cfg.Kafka)
	case "ws":
		return NewWSFeed(cfg.Gateway), nil
	default:
		return nil, fmt.Errorf("unsupported bus driver: %s", cfg.Driver)
	}
}
