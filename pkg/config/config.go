// Package config loads service settings from the environment, optionally
// seeded from a .env file in the working directory.
package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

type Config struct {
	GatewayAddr string `envconfig:"GATEWAY_ADDR" default:":8080"`
	APIAddr     string `envconfig:"API_ADDR" default:":8081"`

	JWTSecret string        `envconfig:"JWT_SECRET" default:"my_secret_key"`
	TokenTTL  time.Duration `envconfig:"TOKEN_TTL" default:"24h"`

	StoreDriver    string   `envconfig:"STORE_DRIVER" default:"memory"`
	ScyllaHosts    []string `envconfig:"SCYLLA_HOSTS" default:"localhost:9042"`
	ScyllaKeyspace string   `envconfig:"SCYLLA_KEYSPACE" default:"chat"`
	MongoURI       string   `envconfig:"MONGO_URI" default:"mongodb://localhost:27017"`
	MongoDatabase  string   `envconfig:"MONGO_DATABASE" default:"chat"`
	PostgresURL    string   `envconfig:"POSTGRES_URL" default:"postgres://localhost:5432/chat"`
	BadgerPath     string   `envconfig:"BADGER_PATH" default:"./data/badger"`

	// Empty disables the presence mirror.
	RedisAddr string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	// Empty disables the event log.
	KafkaBrokers []string `envconfig:"KAFKA_BROKERS" default:"localhost:19092"`
	KafkaTopic   string   `envconfig:"KAFKA_TOPIC" default:"chat-messages"`
	KafkaGroupID string   `envconfig:"KAFKA_GROUP_ID" default:"messaging-service-group"`

	SnowflakeNode    int64         `envconfig:"SNOWFLAKE_NODE" default:"1"`
	SendQueueSize    int           `envconfig:"SEND_QUEUE_SIZE" default:"256"`
	MaxContentLength int           `envconfig:"MAX_CONTENT_LENGTH" default:"2000"`
	PersistTimeout   time.Duration `envconfig:"PERSIST_TIMEOUT" default:"5s"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	LogFile  string `envconfig:"LOG_FILE"`
}

// Load reads .env (if present) and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, errors.Wrap(err, "load .env")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, errors.Wrap(err, "process env")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.StoreDriver {
	case "memory", "badger", "scylla", "mongo", "postgres":
	default:
		return errors.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.SendQueueSize <= 0 {
		return errors.New("SEND_QUEUE_SIZE must be positive")
	}
	if c.MaxContentLength <= 0 {
		return errors.New("MAX_CONTENT_LENGTH must be positive")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	return nil
}

// KafkaEnabled reports whether at least one broker is configured.
func (c Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0 && c.KafkaBrokers[0] != ""
}
