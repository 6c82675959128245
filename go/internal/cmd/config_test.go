package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mcdev12/spotmix/go/internal/party"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, key := range []string{
		"PORT", "STORE_BACKEND", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
		"PARTY_WRITE_MODE", "PARTY_REJECT_DUPLICATE_VOTES", "PARTY_AWAIT_WRITES",
		"NATS_URL", "SPOTIFY_BASE_URL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)

	config, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "8080", config.Server.Port)
	assert.Equal(t, StoreMemory, config.Store.Backend)
	assert.Equal(t, party.WriteAtomic, config.Party.WriteMode)
	assert.True(t, config.Party.AwaitWrites)
	assert.Empty(t, config.Events.JetStream.URL)
	assert.Equal(t, "SPOTMIX_PARTY", config.Events.JetStream.StreamName)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9000"
store:
  backend: redis
  redis_addr: cache:6379
party:
  write_mode: overwrite
  reject_duplicate_votes: true
events:
  relay:
    max_retries: 7
    retry_delay: 250ms
`), 0o600))

	t.Setenv("REDIS_DB", "3")
	t.Setenv("NATS_URL", "nats://bus:4222")
	t.Setenv("PARTY_AWAIT_WRITES", "false")

	config, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "9000", config.Server.Port)
	assert.Equal(t, StoreRedis, config.Store.Backend)
	assert.Equal(t, "cache:6379", config.Store.RedisAddr)
	assert.Equal(t, 3, config.Store.RedisDB)
	assert.Equal(t, party.WriteOverwrite, config.Party.WriteMode)
	assert.True(t, config.Party.RejectDuplicateVotes)
	assert.False(t, config.Party.AwaitWrites)
	assert.Equal(t, "nats://bus:4222", config.Events.JetStream.URL)
	assert.Equal(t, 7, config.Events.Relay.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, config.Events.Relay.RetryDelay)
	// Untouched nested defaults survive the file.
	assert.Equal(t, 5*time.Second, config.Events.Relay.PublishTimeout)
}

func TestLoadConfigRejectsUnknownBackend(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_BACKEND", "cassandra")

	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "unknown store backend")
}
