package config

import (
	"os"
	"strings"
	"time"

	"github.com/huijing/sgtechonline/pkg/database"
	pkgconfig "github.com/huijing/sgtechonline/pkg/config"
	"github.com/huijing/sgtechonline/pkg/pubsub"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Gateway   ServerConfig
	WebSocket WebSocketConfig
	Backend   BackendConfig
	Session   SessionConfig
	PubSub    pubsub.Config
	Kafka     KafkaConfig
	Chat      ChatConfig
	Database  database.Config
	Redis     RedisConfig
	Cassandra CassandraConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer"`
}

// BackendConfig points at the OpenTok-compatible broadcast REST API.
type BackendConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	APISecret string        `mapstructure:"api_secret"`
	Timeout   time.Duration `mapstructure:"timeout"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type SessionConfig struct {
	// DefaultID is the binding session used when a client does not name one.
	DefaultID string `mapstructure:"default_id"`
}

type KafkaConfig struct {
	Enabled    bool
	Brokers    string
	Topic      string
	Partitions int
}

type ChatConfig struct {
	Store     string        `mapstructure:"store"` // memory, redis, database, cassandra
	KeyPrefix string        `mapstructure:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type CassandraConfig struct {
	Hosts          []string      `mapstructure:"hosts"`
	Keyspace       string        `mapstructure:"keyspace"`
	Consistency    string        `mapstructure:"consistency"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

type LogConfig struct {
	Level string
}

// Load reads ./config/config.yaml and the environment. The returned viper
// instance can be handed to pkgconfig.Watch.
func Load() (*Config, *viper.Viper, error) {
	return LoadFrom("./config")
}

// LoadFrom reads config.yaml from dir and the environment.
func LoadFrom(dir string) (*Config, *viper.Viper, error) {
	v, err := pkgconfig.Load(dir, "config")
	if err != nil {
		return nil, nil, err
	}

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("gateway.host", "0.0.0.0")
	v.SetDefault("gateway.port", 8084)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 65536)
	v.SetDefault("websocket.send_buffer", 256)
	v.SetDefault("backend.base_url", "https://api.opentok.com")
	v.SetDefault("backend.timeout", "10s")
	v.SetDefault("backend.token_ttl", "1m")
	v.SetDefault("session.default_id", "")
	v.SetDefault("pubsub.driver", pubsub.DriverMemory)
	v.SetDefault("pubsub.redis.address", "localhost:6379")
	v.SetDefault("pubsub.redis.password", "")
	v.SetDefault("pubsub.redis.db", 0)
	v.SetDefault("pubsub.redis.pool_size", 10)
	v.SetDefault("pubsub.redis.read_timeout", "3s")
	v.SetDefault("pubsub.redis.write_timeout", "3s")
	v.SetDefault("pubsub.kafka.brokers", "localhost:9092")
	v.SetDefault("pubsub.kafka.group_id", "spotlight")
	v.SetDefault("pubsub.kafka.partitions", 4)
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.topic", "broadcast-events")
	v.SetDefault("kafka.partitions", 4)
	v.SetDefault("chat.store", "memory")
	v.SetDefault("chat.key_prefix", "spotlight:chat")
	v.SetDefault("chat.ttl", "24h")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "spotlight")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.file_path", "./data/chat.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", 60)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("cassandra.hosts", []string{"localhost:9042"})
	v.SetDefault("cassandra.keyspace", "spotlight")
	v.SetDefault("cassandra.consistency", "LOCAL_ONE")
	v.SetDefault("cassandra.connect_timeout", "10s")
	v.SetDefault("cassandra.timeout", "5s")
	v.SetDefault("log.level", "info")

	// Override from environment
	v.BindEnv("server.port", "PORT")
	v.BindEnv("gateway.port", "GATEWAY_PORT")
	v.BindEnv("backend.base_url", "BACKEND_BASE_URL")
	v.BindEnv("backend.api_key", "API_KEY")
	v.BindEnv("backend.api_secret", "API_SECRET")
	v.BindEnv("backend.timeout", "BACKEND_TIMEOUT")
	v.BindEnv("session.default_id", "SESSION_ID")
	v.BindEnv("pubsub.driver", "PUBSUB_DRIVER")
	v.BindEnv("pubsub.redis.address", "REDIS_ADDRESS")
	v.BindEnv("pubsub.redis.password", "REDIS_PASSWORD")
	v.BindEnv("pubsub.kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("pubsub.kafka.group_id", "KAFKA_PUBSUB_GROUP_ID")
	v.BindEnv("pubsub.kafka.instance_id", "INSTANCE_ID")
	v.BindEnv("kafka.enabled", "KAFKA_ENABLED")
	v.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("kafka.topic", "KAFKA_BROADCAST_TOPIC")
	v.BindEnv("kafka.partitions", "KAFKA_BROADCAST_PARTITIONS")
	v.BindEnv("chat.store", "CHAT_STORE")
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.dbname", "DB_NAME")
	v.BindEnv("database.file_path", "DB_FILE_PATH")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("cassandra.keyspace", "CASSANDRA_KEYSPACE")
	v.BindEnv("log.level", "LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, err
	}

	// Parse durations
	cfg.WebSocket.PingInterval = parseDuration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = parseDuration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = parseDuration(v, "websocket.write_wait", 10*time.Second)
	cfg.Backend.Timeout = parseDuration(v, "backend.timeout", 10*time.Second)
	cfg.Backend.TokenTTL = parseDuration(v, "backend.token_ttl", time.Minute)
	cfg.Chat.TTL = parseDuration(v, "chat.ttl", 24*time.Hour)

	// CASSANDRA_HOSTS: comma-separated, e.g. "cassandra:9042,host2:9042"
	if hosts := os.Getenv("CASSANDRA_HOSTS"); hosts != "" {
		cfg.Cassandra.Hosts = strings.Split(strings.TrimSpace(hosts), ",")
		for i, h := range cfg.Cassandra.Hosts {
			cfg.Cassandra.Hosts[i] = strings.TrimSpace(h)
		}
	}

	return &cfg, v, nil
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	str := v.GetString(key)
	d, err := time.ParseDuration(str)
	if err != nil {
		return defaultVal
	}
	return d
}
