package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/avstrong/staytrust/internal/apperr"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}

	return path
}

func TestLoadLayersFileAndEnvironment(t *testing.T) {
	path := writeFile(t, "staytrust.yaml", `
http:
  addr: ":9000"
auth:
  jwt_secret: from-file
lock:
  max_wait: 750ms
events:
  driver: kafka
  kafka_brokers: ["kafka-1:9092"]
pricing:
  service_fee: 3000
`)

	t.Setenv("STAYTRUST_HTTP_ADDR", ":9100")
	t.Setenv("STAYTRUST_EVENTS_KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("STAYTRUST_SCHEDULER_INTERVAL", "30s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.HTTP.Addr != ":9100" {
		t.Errorf("http.addr = %s, want the environment override", cfg.HTTP.Addr)
	}

	if cfg.Auth.JWTSecret != "from-file" {
		t.Errorf("auth.jwt_secret = %s, want the file value", cfg.Auth.JWTSecret)
	}

	if cfg.Lock.MaxWait != 750*time.Millisecond {
		t.Errorf("lock.max_wait = %v, want 750ms", cfg.Lock.MaxWait)
	}

	if len(cfg.Events.KafkaBrokers) != 2 {
		t.Errorf("events.kafka_brokers = %v, want two brokers", cfg.Events.KafkaBrokers)
	}

	if cfg.Scheduler.Interval != 30*time.Second {
		t.Errorf("scheduler.interval = %v, want 30s", cfg.Scheduler.Interval)
	}

	if cfg.Pricing.ServiceFee != 3000 {
		t.Errorf("pricing.service_fee = %d, want 3000", cfg.Pricing.ServiceFee)
	}

	if cfg.Storage.Driver != StorageMemory || cfg.HTTP.ShutdownTimeout != 10*time.Second {
		t.Errorf("defaults lost: storage %s, shutdown %v", cfg.Storage.Driver, cfg.HTTP.ShutdownTimeout)
	}
}

func TestLoadWithoutFile(t *testing.T) {
	t.Setenv("STAYTRUST_AUTH_JWT_SECRET", "secret")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Events.Driver != EventsLog || cfg.Lock.Driver != LockLocal {
		t.Fatalf("drivers = %s/%s, want log/local", cfg.Events.Driver, cfg.Lock.Driver)
	}
}

func TestValidateNamesOffendingKeys(t *testing.T) {
	cfg := Default()
	cfg.Storage.Driver = StoragePostgres
	cfg.Lock.Driver = "zookeeper"
	cfg.Events.Driver = EventsRabbitMQ

	err := cfg.Validate()
	if !errors.Is(err, apperr.ErrValidationFailed) {
		t.Fatalf("Validate() error = %v, want ValidationFailed", err)
	}

	fields := apperr.IsInputError(err).Fields()
	for _, key := range []string{"auth.jwt_secret", "storage.postgres_dsn", "lock.driver", "events.rabbit_url"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("Validate() did not report %s: %v", key, err)
		}
	}
}

func TestLoadEnvFilesSkipsMissingFiles(t *testing.T) {
	path := writeFile(t, ".env", "STAYTRUST_TEST_FROM_DOTENV=yes\n")

	t.Cleanup(func() { os.Unsetenv("STAYTRUST_TEST_FROM_DOTENV") })

	if err := LoadEnvFiles(filepath.Join(t.TempDir(), "missing.env"), path); err != nil {
		t.Fatalf("LoadEnvFiles() error = %v", err)
	}

	if got := os.Getenv("STAYTRUST_TEST_FROM_DOTENV"); got != "yes" {
		t.Fatalf("env = %q, want yes", got)
	}
}
