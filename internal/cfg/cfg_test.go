package cfg

import (
	"testing"
	"time"
)

type noopLogger struct{}

func (noopLogger) Debugf(format string, args ...interface{})            {}
func (noopLogger) Infof(format string, args ...interface{})             {}
func (noopLogger) Warnf(format string, args ...interface{})             {}
func (noopLogger) Errorf(err error, format string, args ...interface{}) {}

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("POSTGRES_USER", "catalog")
	t.Setenv("POSTGRES_PASSWORD", "secret")
	t.Setenv("POSTGRES_DB", "catalog")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load(noopLogger{})
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Http.Port != "8080" {
		t.Errorf("http port = %s, want 8080", cfg.Http.Port)
	}
	if cfg.Http.ApiPrefix != "/api/v1" {
		t.Errorf("api prefix = %s, want /api/v1", cfg.Http.ApiPrefix)
	}
	if cfg.Kafka.Topic != "product-events" {
		t.Errorf("topic = %s, want product-events", cfg.Kafka.Topic)
	}
	if cfg.Kafka.ClientID != "product-service" {
		t.Errorf("client id = %s, want product-service", cfg.Kafka.ClientID)
	}
	if len(cfg.Kafka.Brokers) != 1 || cfg.Kafka.Brokers[0] != "localhost:9092" {
		t.Errorf("brokers = %v, want [localhost:9092]", cfg.Kafka.Brokers)
	}
	if cfg.Outbox.DispatchInterval != 500*time.Millisecond {
		t.Errorf("dispatch interval = %v, want 500ms", cfg.Outbox.DispatchInterval)
	}
	if cfg.Outbox.MaxAttempts != 8 {
		t.Errorf("max attempts = %d, want 8", cfg.Outbox.MaxAttempts)
	}
	if cfg.Conn.ProbeInterval != 15*time.Second {
		t.Errorf("probe interval = %v, want 15s", cfg.Conn.ProbeInterval)
	}
	if cfg.Db.SSLMode != "disable" {
		t.Errorf("ssl mode = %s, want disable", cfg.Db.SSLMode)
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("API_PREFIX", "catalog/")
	t.Setenv("KAFKA_BOOTSTRAP_SERVERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("OUTBOX_DISPATCH_INTERVAL", "2s")
	t.Setenv("OUTBOX_BATCH_SIZE", "25")
	t.Setenv("HEALTH_PROBE_TIMEOUT", "1s")

	cfg, err := Load(noopLogger{})
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	// Префикс нормализуется: ведущий слэш добавляется, хвостовой убирается
	if cfg.Http.ApiPrefix != "/catalog" {
		t.Errorf("api prefix = %s, want /catalog", cfg.Http.ApiPrefix)
	}
	if len(cfg.Kafka.Brokers) != 2 {
		t.Errorf("brokers = %v, want two entries", cfg.Kafka.Brokers)
	}
	if cfg.Outbox.DispatchInterval != 2*time.Second {
		t.Errorf("dispatch interval = %v, want 2s", cfg.Outbox.DispatchInterval)
	}
	if cfg.Outbox.BatchSize != 25 {
		t.Errorf("batch size = %d, want 25", cfg.Outbox.BatchSize)
	}
	if cfg.Conn.ProbeTimeout != time.Second {
		t.Errorf("probe timeout = %v, want 1s", cfg.Conn.ProbeTimeout)
	}
}

func TestLoadMissingPostgresUser(t *testing.T) {
	t.Setenv("POSTGRES_USER", "")
	t.Setenv("POSTGRES_PASSWORD", "secret")
	t.Setenv("POSTGRES_DB", "catalog")

	if _, err := Load(noopLogger{}); err == nil {
		t.Fatal("Load() must fail without POSTGRES_USER")
	}
}

func TestLoadInvalidDuration(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("OUTBOX_DISPATCH_INTERVAL", "not-a-duration")

	if _, err := Load(noopLogger{}); err == nil {
		t.Fatal("Load() must fail on malformed duration")
	}
}

func TestLoadInvalidInt(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("OUTBOX_BATCH_SIZE", "ten")

	if _, err := Load(noopLogger{}); err == nil {
		t.Fatal("Load() must fail on malformed integer")
	}
}
