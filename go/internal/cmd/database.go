package main

import (
	"context"
	"fmt"

	"github.com/mcdev12/spotmix/go/internal/dbconfig"
	"github.com/mcdev12/spotmix/go/internal/store"
	"github.com/mcdev12/spotmix/go/internal/store/pgstore"
	"github.com/mcdev12/spotmix/go/internal/store/redisstore"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// setupStore opens the configured backend and starts an engine on it. The
// caller closes the backend after the engine.
func setupStore(ctx context.Context, config *Config) (*store.Engine, store.Backend, error) {
	backend, err := openBackend(ctx, config)
	if err != nil {
		return nil, nil, err
	}

	engine, err := store.NewEngine(backend,
		store.WithMaxRetries(config.Store.MaxRetries),
		store.WithLoadTimeout(config.Store.LoadTimeout),
	)
	if err != nil {
		_ = backend.Close()
		return nil, nil, fmt.Errorf("failed to start store engine: %w", err)
	}
	log.Info().Str("backend", config.Store.Backend).Msg("store engine started")
	return engine, backend, nil
}

func openBackend(ctx context.Context, config *Config) (store.Backend, error) {
	switch config.Store.Backend {
	case StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     config.Store.RedisAddr,
			Password: config.Store.RedisPassword,
			DB:       config.Store.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		log.Info().Str("addr", config.Store.RedisAddr).Int("db", config.Store.RedisDB).Msg("connected to redis")
		return redisstore.New(client, redisstore.DefaultConfig()), nil

	case StorePostgres:
		dbConfig := dbconfig.NewConfigFromEnv()
		pool, err := dbConfig.OpenPool(ctx)
		if err != nil {
			return nil, err
		}
		if err := pgstore.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		log.Info().
			Str("host", dbConfig.Host).
			Int("port", dbConfig.Port).
			Str("database", dbConfig.Database).
			Msg("connected to database")

		pgConfig := pgstore.DefaultConfig()
		pgConfig.DatabaseURL = dbConfig.DSN()
		return &pooledBackend{Backend: pgstore.New(pool, pgConfig), close: pool.Close}, nil

	default:
		return store.NewMemoryBackend(), nil
	}
}

// pooledBackend closes the pool after the backend.
type pooledBackend struct {
	*pgstore.Backend
	close func()
}

func (b *pooledBackend) Close() error {
	err := b.Backend.Close()
	b.close()
	return err
}
