package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"field-history/internal/domain"
)

const (
	BackendPostgres = "postgres"
	BackendBadger   = "badger"
	BackendMemory   = "memory"
)

type DB struct {
	URL             string        `env:"DATABASE_URL"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"16"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"8"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"1h"`
	ConnMaxIdleTime time.Duration `env:"DB_CONN_MAX_IDLE_TIME" envDefault:"15m"`
	MigrationsPath  string        `env:"MIGRATIONS_PATH" envDefault:"file://db/migrations"`
}

type Badger struct {
	Path     string `env:"BADGER_PATH" envDefault:"data/field-history"`
	InMemory bool   `env:"BADGER_IN_MEMORY" envDefault:"false"`
}

type Kafka struct {
	BootstrapServers string `env:"KAFKA_BOOTSTRAP_SERVERS"`
	HistoryTopic     string `env:"KAFKA_HISTORY_TOPIC" envDefault:"field-history"`
}

type History struct {
	SerializerName string `env:"FIELD_HISTORY_SERIALIZER_NAME" envDefault:"json"`
	Backend        string `env:"FIELD_HISTORY_BACKEND" envDefault:"postgres"`
}

type Config struct {
	DB      DB
	Badger  Badger
	Kafka   Kafka
	History History
	Port    string `env:"PORT" envDefault:"8080"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that depend on each other.
func (c *Config) Validate() error {
	switch c.History.Backend {
	case BackendPostgres:
		if c.DB.URL == "" {
			return domain.NewConfigurationError("config", "DATABASE_URL is required for the %s backend", BackendPostgres)
		}
	case BackendBadger:
		if !c.Badger.InMemory && c.Badger.Path == "" {
			return domain.NewConfigurationError("config", "BADGER_PATH is required unless BADGER_IN_MEMORY is set")
		}
	case BackendMemory:
	default:
		return domain.NewConfigurationError("config", "unknown FIELD_HISTORY_BACKEND %q", c.History.Backend)
	}
	if c.History.SerializerName == "" {
		return domain.NewConfigurationError("config", "FIELD_HISTORY_SERIALIZER_NAME must not be empty")
	}
	return nil
}

// PublishingEnabled reports whether history records are sent to Kafka.
func (c *Config) PublishingEnabled() bool {
	return c.Kafka.BootstrapServers != ""
}

func (c *Config) String() string {
	return fmt.Sprintf("backend=%s serializer=%s port=%s publishing=%t",
		c.History.Backend, c.History.SerializerName, c.Port, c.PublishingEnabled())
}
