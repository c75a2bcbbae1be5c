package config

import (
	"time"

	"github.com/specterchat/specter/internal/feed"
	pkgconfig "github.com/specterchat/specter/pkg/config"
	"github.com/specterchat/specter/pkg/database"
)

type Config struct {
	Database DatabaseConfig
	Feed     feed.Config
	Gateway  GatewayConfig
	Client   ClientConfig
	Log      LogConfig
}

type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"` // postgres, mysql, sqlite, memory
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	FilePath        string `mapstructure:"file_path"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

// ToDatabase converts to the pkg/database connection config.
func (c DatabaseConfig) ToDatabase() *database.Config {
	return &database.Config{
		Driver:          c.Driver,
		Host:            c.Host,
		Port:            c.Port,
		User:            c.User,
		Password:        c.Password,
		DBName:          c.DBName,
		SSLMode:         c.SSLMode,
		FilePath:        c.FilePath,
		MaxIdleConns:    c.MaxIdleConns,
		MaxOpenConns:    c.MaxOpenConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
	}
}

type GatewayConfig struct {
	Host      string
	Port      int
	WebSocket WebSocketConfig `mapstructure:"websocket"`
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
}

type ClientConfig struct {
	BacklogLimit int           `mapstructure:"backlog_limit"`
	RetentionTTL time.Duration `mapstructure:"retention_ttl"`
}

type LogConfig struct {
	Level  string
	Pretty bool
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "specter")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.file_path", "./data/specter.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", 60)
	v.SetDefault("feed.driver", "redis")
	v.SetDefault("feed.redis.address", "localhost:6379")
	v.SetDefault("feed.redis.db", 0)
	v.SetDefault("feed.redis.pool_size", 10)
	v.SetDefault("feed.redis.read_timeout", 3*time.Second)
	v.SetDefault("feed.redis.write_timeout", 3*time.Second)
	v.SetDefault("feed.kafka.brokers", "localhost:9092")
	v.SetDefault("feed.kafka.group_id", "specter-feed")
	v.SetDefault("feed.gateway.url", "ws://localhost:8090/ws")
	v.SetDefault("gateway.host", "0.0.0.0")
	v.SetDefault("gateway.port", 8090)
	v.SetDefault("gateway.websocket.ping_interval", 30*time.Second)
	v.SetDefault("gateway.websocket.pong_wait", 60*time.Second)
	v.SetDefault("gateway.websocket.write_wait", 10*time.Second)
	v.SetDefault("gateway.websocket.max_message_size", 4096)
	v.SetDefault("client.backlog_limit", 50)
	v.SetDefault("client.retention_ttl", 24*time.Hour)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// Bind environment variables
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.dbname", "DB_NAME")
	v.BindEnv("database.sslmode", "DB_SSLMODE")
	v.BindEnv("database.file_path", "DB_FILE_PATH")
	v.BindEnv("feed.driver", "FEED_DRIVER")
	v.BindEnv("feed.redis.address", "REDIS_ADDRESS")
	v.BindEnv("feed.redis.password", "REDIS_PASSWORD")
	v.BindEnv("feed.kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("feed.gateway.url", "FEED_GATEWAY_URL")
	v.BindEnv("gateway.port", "GATEWAY_PORT")
	v.BindEnv("client.backlog_limit", "BACKLOG_LIMIT")
	v.BindEnv("log.level", "LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
