// Package config resolves runtime configuration in priority order:
// defaults, then the YAML file, then STAYTRUST_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/avstrong/staytrust/internal/apperr"
)

const EnvPrefix = "STAYTRUST"

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"

	LockLocal = "local"
	LockRedis = "redis"

	EventsLog      = "log"
	EventsRabbitMQ = "rabbitmq"
	EventsKafka    = "kafka"
)

type HTTP struct {
	Addr              string        `yaml:"addr"                envconfig:"ADDR"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" envconfig:"READ_HEADER_TIMEOUT"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"    envconfig:"SHUTDOWN_TIMEOUT"`
}

type Auth struct {
	JWTSecret string `yaml:"jwt_secret" envconfig:"JWT_SECRET"`
}

type Storage struct {
	Driver      string `yaml:"driver"       envconfig:"DRIVER"`
	PostgresDSN string `yaml:"postgres_dsn" envconfig:"POSTGRES_DSN"`
}

type Lock struct {
	Driver   string        `yaml:"driver"    envconfig:"DRIVER"`
	MaxWait  time.Duration `yaml:"max_wait"  envconfig:"MAX_WAIT"`
	RedisURL string        `yaml:"redis_url" envconfig:"REDIS_URL"`
	TTL      time.Duration `yaml:"ttl"       envconfig:"TTL"`
}

type Events struct {
	Driver       string   `yaml:"driver"        envconfig:"DRIVER"`
	RabbitURL    string   `yaml:"rabbit_url"    envconfig:"RABBIT_URL"`
	Exchange     string   `yaml:"exchange"      envconfig:"EXCHANGE"`
	KafkaBrokers []string `yaml:"kafka_brokers" envconfig:"KAFKA_BROKERS"`
	KafkaTopic   string   `yaml:"kafka_topic"   envconfig:"KAFKA_TOPIC"`
}

type Pricing struct {
	ServiceFee int64 `yaml:"service_fee" envconfig:"SERVICE_FEE"`
}

type Scheduler struct {
	Interval time.Duration `yaml:"interval" envconfig:"INTERVAL"`
}

type Tracing struct {
	Endpoint    string `yaml:"endpoint"     envconfig:"ENDPOINT"`
	ServiceName string `yaml:"service_name" envconfig:"SERVICE_NAME"`
	Environment string `yaml:"environment"  envconfig:"ENVIRONMENT"`
}

type Config struct {
	HTTP      HTTP      `yaml:"http"      envconfig:"HTTP"`
	Auth      Auth      `yaml:"auth"      envconfig:"AUTH"`
	Storage   Storage   `yaml:"storage"   envconfig:"STORAGE"`
	Lock      Lock      `yaml:"lock"      envconfig:"LOCK"`
	Events    Events    `yaml:"events"    envconfig:"EVENTS"`
	Pricing   Pricing   `yaml:"pricing"   envconfig:"PRICING"`
	Scheduler Scheduler `yaml:"scheduler" envconfig:"SCHEDULER"`
	Tracing   Tracing   `yaml:"tracing"   envconfig:"TRACING"`
	LogLevel  string    `yaml:"log_level" envconfig:"LOG_LEVEL"`
	SeedDemo  bool      `yaml:"seed_demo" envconfig:"SEED_DEMO"`
}

func Default() Config {
	//nolint:exhaustruct,gomnd
	return Config{
		HTTP: HTTP{
			Addr:              ":8080",
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
		Storage: Storage{Driver: StorageMemory},
		Lock: Lock{
			Driver:  LockLocal,
			MaxWait: 2 * time.Second,
			TTL:     10 * time.Second,
		},
		Events: Events{
			Driver:     EventsLog,
			Exchange:   "staytrust.bookings",
			KafkaTopic: "staytrust.bookings",
		},
		Pricing:   Pricing{ServiceFee: 2000},
		Scheduler: Scheduler{Interval: time.Minute},
		Tracing: Tracing{
			ServiceName: "staytrust",
			Environment: "dev",
		},
		LogLevel: "info",
		SeedDemo: true,
	}
}

// LoadEnvFiles reads .env style files into the process environment. Missing
// files are skipped; variables already set are kept.
func LoadEnvFiles(paths ...string) error {
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}

			return fmt.Errorf("load env file %s: %w", path, err)
		}
	}

	return nil
}

// Load resolves the configuration. An empty path skips the YAML layer.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}

		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

//nolint:cyclop
func (c Config) Validate() error {
	inputErr := apperr.NewInputError()

	if strings.TrimSpace(c.HTTP.Addr) == "" {
		inputErr.AddError("http.addr", "provide a listen address")
	}

	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		inputErr.AddError("auth.jwt_secret", "provide a signing secret")
	}

	switch c.Storage.Driver {
	case StorageMemory:
	case StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			inputErr.AddError("storage.postgres_dsn", "postgres storage needs a DSN")
		}
	default:
		inputErr.AddError("storage.driver", fmt.Sprintf("unknown driver '%s'", c.Storage.Driver))
	}

	switch c.Lock.Driver {
	case LockLocal:
	case LockRedis:
		if c.Lock.RedisURL == "" {
			inputErr.AddError("lock.redis_url", "redis locks need a URL")
		}
	default:
		inputErr.AddError("lock.driver", fmt.Sprintf("unknown driver '%s'", c.Lock.Driver))
	}

	if c.Lock.MaxWait <= 0 {
		inputErr.AddError("lock.max_wait", "must be positive")
	}

	switch c.Events.Driver {
	case EventsLog:
	case EventsRabbitMQ:
		if c.Events.RabbitURL == "" {
			inputErr.AddError("events.rabbit_url", "rabbitmq events need a URL")
		}
	case EventsKafka:
		if len(c.Events.KafkaBrokers) == 0 {
			inputErr.AddError("events.kafka_brokers", "kafka events need at least one broker")
		}
	default:
		inputErr.AddError("events.driver", fmt.Sprintf("unknown driver '%s'", c.Events.Driver))
	}

	if c.Pricing.ServiceFee < 0 {
		inputErr.AddError("pricing.service_fee", "must not be negative")
	}

	return inputErr.OrNil()
}
