package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_FromRepositoryConfigFile(t *testing.T) {
	t.Setenv("ENV", "test")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, 20*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "oracle", cfg.DB.Driver)
	assert.Equal(t, time.Hour, cfg.Cache.ExamTTL)
	assert.Equal(t, DefaultGradingTopic, cfg.Queue.Topic)
	assert.Equal(t, 5.0, cfg.Grading.PassThreshold)
	assert.Equal(t, 4, cfg.Grading.Concurrency)
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv("ENV", "test")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("GRADING_PROVIDER", "remote")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.DB.Host)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, "remote", cfg.Grading.Provider)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Queue.Brokers)
}

func TestGetDSN(t *testing.T) {
	cfg := &Config{DB: DBConfig{User: "u", Password: "p", Host: "h", Port: 1521, DBName: "S"}}
	assert.Equal(t, "oracle://u:p@h:1521/S", cfg.GetDSN())
}
