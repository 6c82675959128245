package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mcdev12/spotmix/go/internal/store"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	fieldDoc     = "doc"
	fieldVersion = "ver"
)

// Config holds the key layout used in Redis. A zero TombstoneTTL takes the
// default; a negative one keeps tombstones forever.
type Config struct {
	KeyPrefix    string
	Channel      string
	TombstoneTTL time.Duration
}

// DefaultConfig returns the key layout used by the server.
func DefaultConfig() Config {
	return Config{
		KeyPrefix:    "spotmix:doc:",
		Channel:      "spotmix:changes",
		TombstoneTTL: 24 * time.Hour,
	}
}

// Backend stores each root as a hash holding the JSON document and its
// version. Writers announce the changed root on a pub/sub channel.
type Backend struct {
	client *redis.Client
	cfg    Config
}

var _ store.Backend = (*Backend)(nil)

// New wraps an existing client. Close closes the client.
func New(client *redis.Client, cfg Config) *Backend {
	def := DefaultConfig()
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = def.KeyPrefix
	}
	if cfg.Channel == "" {
		cfg.Channel = def.Channel
	}
	if cfg.TombstoneTTL == 0 {
		cfg.TombstoneTTL = def.TombstoneTTL
	}
	return &Backend{client: client, cfg: cfg}
}

func (b *Backend) key(root string) string {
	return b.cfg.KeyPrefix + root
}

func (b *Backend) Load(ctx context.Context, root string) (store.Document, error) {
	vals, err := b.client.HMGet(ctx, b.key(root), fieldDoc, fieldVersion).Result()
	if err != nil {
		return store.Document{}, fmt.Errorf("failed to read document: %w", err)
	}
	return parseDocument(vals)
}

func parseDocument(vals []interface{}) (store.Document, error) {
	var doc store.Document
	if len(vals) != 2 {
		return doc, fmt.Errorf("unexpected reply length %d", len(vals))
	}
	if s, ok := vals[0].(string); ok {
		doc.Data = []byte(s)
	}
	if s, ok := vals[1].(string); ok {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return doc, fmt.Errorf("corrupt version %q: %w", s, err)
		}
		doc.Version = v
	}
	return doc, nil
}

func (b *Backend) Swap(ctx context.Context, root string, expected int64, data []byte) (int64, error) {
	key := b.key(root)
	var next int64

	err := b.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, key, fieldVersion).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != expected {
			return store.ErrConflict
		}
		next = current + 1

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if data == nil {
				pipe.HDel(ctx, key, fieldDoc)
				pipe.HSet(ctx, key, fieldVersion, next)
				if b.cfg.TombstoneTTL > 0 {
					pipe.Expire(ctx, key, b.cfg.TombstoneTTL)
				}
			} else {
				pipe.HSet(ctx, key, fieldDoc, data, fieldVersion, next)
				pipe.Persist(ctx, key)
			}
			pipe.Publish(ctx, b.cfg.Channel, root)
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		return next, nil
	case errors.Is(err, redis.TxFailedErr), errors.Is(err, store.ErrConflict):
		return 0, store.ErrConflict
	default:
		return 0, fmt.Errorf("failed to swap document: %w", err)
	}
}

func (b *Backend) Watch(ctx context.Context, notify func(root string)) (<-chan error, error) {
	pubsub := b.client.Subscribe(ctx, b.cfg.Channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", b.cfg.Channel, err)
	}
	log.Info().Str("channel", b.cfg.Channel).Msg("watching redis change channel")

	done := make(chan error, 1)
	go func() {
		defer close(done)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				done <- nil
				return
			case msg, ok := <-ch:
				if !ok {
					done <- errors.New("redis change channel closed")
					return
				}
				notify(msg.Payload)
			}
		}
	}()
	return done, nil
}

func (b *Backend) Close() error {
	return b.client.Close()
}
