package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mcdev12/spotmix/go/internal/sqlutil"
	"github.com/mcdev12/spotmix/go/internal/store"
)

// DB is satisfied by *pgxpool.Pool and pgxmock pools.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Config struct {
	DatabaseURL      string        // Postgres DSN for LISTEN/NOTIFY
	NotifyChannel    string        // Channel name to LISTEN on
	FallbackInterval time.Duration // How often to refresh everything in case a notification was missed
	PingInterval     time.Duration
}

func DefaultConfig() Config {
	return Config{
		NotifyChannel:    "spotmix_document_changes",
		FallbackInterval: 30 * time.Second,
		PingInterval:     90 * time.Second,
	}
}

// Backend keeps one row per root in spotmix_documents. Writes are guarded
// by the row version and announce the root with pg_notify in the same
// transaction.
type Backend struct {
	db  DB
	cfg Config
}

var _ store.Backend = (*Backend)(nil)

func New(db DB, cfg Config) *Backend {
	def := DefaultConfig()
	if cfg.NotifyChannel == "" {
		cfg.NotifyChannel = def.NotifyChannel
	}
	if cfg.FallbackInterval <= 0 {
		cfg.FallbackInterval = def.FallbackInterval
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	return &Backend{db: db, cfg: cfg}
}

// Migrate creates the documents table if it does not exist.
func Migrate(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("failed to create documents table: %w", err)
	}
	return nil
}

func (b *Backend) Load(ctx context.Context, root string) (store.Document, error) {
	doc, err := (&queries{db: b.db}).loadDocument(ctx, root)
	if err != nil {
		return store.Document{}, fmt.Errorf("failed to load document: %w", err)
	}
	return doc, nil
}

func (b *Backend) Swap(ctx context.Context, root string, expected int64, data []byte) (int64, error) {
	err := sqlutil.Run(ctx, b.db, newQueries, func(q *queries) error {
		n, err := q.updateDocument(ctx, root, data, expected)
		if err != nil {
			return fmt.Errorf("failed to update document: %w", err)
		}
		if n == 0 {
			if expected != 0 {
				return store.ErrConflict
			}
			n, err = q.insertDocument(ctx, root, data)
			if err != nil {
				return fmt.Errorf("failed to insert document: %w", err)
			}
			if n == 0 {
				return store.ErrConflict
			}
		}
		if err := q.notify(ctx, b.cfg.NotifyChannel, root); err != nil {
			return fmt.Errorf("failed to notify: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return expected + 1, nil
}

// Close is a no-op; the pool belongs to the caller.
func (b *Backend) Close() error {
	return nil
}
