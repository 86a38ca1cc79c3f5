package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"field-history/internal/domain"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("FIELD_HISTORY_BACKEND", "memory")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.History.SerializerName)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "field-history", cfg.Kafka.HistoryTopic)
	assert.Equal(t, "file://db/migrations", cfg.DB.MigrationsPath)
	assert.Equal(t, 16, cfg.DB.MaxOpenConns)
	assert.False(t, cfg.PublishingEnabled())
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("FIELD_HISTORY_BACKEND", "badger")
	t.Setenv("BADGER_IN_MEMORY", "true")
	t.Setenv("FIELD_HISTORY_SERIALIZER_NAME", "json_nested")
	t.Setenv("KAFKA_BOOTSTRAP_SERVERS", "localhost:9092")
	t.Setenv("PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendBadger, cfg.History.Backend)
	assert.True(t, cfg.Badger.InMemory)
	assert.Equal(t, "json_nested", cfg.History.SerializerName)
	assert.True(t, cfg.PublishingEnabled())
	assert.Equal(t, "9090", cfg.Port)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	t.Run("postgres without url", func(t *testing.T) {
		t.Setenv("FIELD_HISTORY_BACKEND", "postgres")
		t.Setenv("DATABASE_URL", "")
		_, err := Load()
		assert.True(t, domain.IsConfigurationError(err))
	})

	t.Run("unknown backend", func(t *testing.T) {
		t.Setenv("FIELD_HISTORY_BACKEND", "mongo")
		_, err := Load()
		assert.True(t, domain.IsConfigurationError(err))
	})

	t.Run("bad duration", func(t *testing.T) {
		t.Setenv("FIELD_HISTORY_BACKEND", "memory")
		t.Setenv("DB_CONN_MAX_LIFETIME", "forever")
		_, err := Load()
		assert.Error(t, err)
	})
}
