package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/mcdev12/spotmix/go/clients/spotify_client"
	"github.com/mcdev12/spotmix/go/internal/events"
	"github.com/mcdev12/spotmix/go/internal/gateway"
	"github.com/mcdev12/spotmix/go/internal/party"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

type Config struct {
	Server struct {
		Port            string        `yaml:"port"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Store struct {
		Backend       string        `yaml:"backend"`
		MaxRetries    int           `yaml:"max_retries"`
		LoadTimeout   time.Duration `yaml:"load_timeout"`
		RedisAddr     string        `yaml:"redis_addr"`
		RedisPassword string        `yaml:"redis_password"`
		RedisDB       int           `yaml:"redis_db"`
	} `yaml:"store"`

	Party   party.Config   `yaml:"party"`
	Gateway gateway.Config `yaml:"gateway"`

	Events struct {
		JetStream events.JetStreamConfig `yaml:"jetstream"`
		Relay     events.RelayConfig     `yaml:"relay"`
	} `yaml:"events"`

	Spotify struct {
		BaseURL      string        `yaml:"base_url"`
		PollInterval time.Duration `yaml:"poll_interval"`
	} `yaml:"spotify"`
}

func defaultConfig() *Config {
	var cfg Config
	cfg.Server.Port = "8080"
	cfg.Server.ShutdownTimeout = 10 * time.Second
	cfg.Store.Backend = StoreMemory
	cfg.Store.MaxRetries = 25
	cfg.Store.LoadTimeout = 10 * time.Second
	cfg.Store.RedisAddr = "localhost:6379"
	cfg.Party = party.DefaultConfig()
	cfg.Gateway = gateway.DefaultConfig()
	cfg.Events.JetStream = events.DefaultJetStreamConfig()
	// Empty URL disables the relay unless NATS_URL or the file sets one.
	cfg.Events.JetStream.URL = ""
	cfg.Events.Relay = events.DefaultRelayConfig()
	cfg.Spotify.BaseURL = spotify_client.BaseURL
	cfg.Spotify.PollInterval = spotify_client.DefaultPollInterval
	return &cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// loadConfig reads the YAML file at path over the defaults, then applies
// environment overrides. A missing file is not an error.
func loadConfig(path string) (*Config, error) {
	config := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Info().Str("path", path).Msg("no config file, using defaults")
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyEnv(config)
	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func applyEnv(c *Config) {
	c.Server.Port = getEnv("PORT", c.Server.Port)

	c.Store.Backend = getEnv("STORE_BACKEND", c.Store.Backend)
	c.Store.RedisAddr = getEnv("REDIS_ADDR", c.Store.RedisAddr)
	c.Store.RedisPassword = getEnv("REDIS_PASSWORD", c.Store.RedisPassword)
	c.Store.RedisDB = getEnvAsInt("REDIS_DB", c.Store.RedisDB)

	c.Party.WriteMode = party.WriteMode(getEnv("PARTY_WRITE_MODE", string(c.Party.WriteMode)))
	c.Party.RejectDuplicateVotes = getEnvAsBool("PARTY_REJECT_DUPLICATE_VOTES", c.Party.RejectDuplicateVotes)
	c.Party.AwaitWrites = getEnvAsBool("PARTY_AWAIT_WRITES", c.Party.AwaitWrites)

	c.Events.JetStream.URL = getEnv("NATS_URL", c.Events.JetStream.URL)
	c.Spotify.BaseURL = getEnv("SPOTIFY_BASE_URL", c.Spotify.BaseURL)
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case StoreMemory, StoreRedis, StorePostgres:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	switch c.Party.WriteMode {
	case party.WriteAtomic, party.WriteOverwrite:
	default:
		return fmt.Errorf("unknown party write mode %q", c.Party.WriteMode)
	}
	return nil
}
