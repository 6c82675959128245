package pgstore

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mcdev12/spotmix/go/internal/store"
)

const (
	createTableSQL = `CREATE TABLE IF NOT EXISTS spotmix_documents (
	root       TEXT PRIMARY KEY,
	doc        JSONB,
	version    BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

	loadDocumentSQL = `SELECT doc, version FROM spotmix_documents WHERE root = $1`

	updateDocumentSQL = `UPDATE spotmix_documents
SET doc = $2::jsonb, version = version + 1, updated_at = now()
WHERE root = $1 AND version = $3`

	insertDocumentSQL = `INSERT INTO spotmix_documents (root, doc, version)
VALUES ($1, $2::jsonb, 1)
ON CONFLICT (root) DO NOTHING`

	notifySQL = `SELECT pg_notify($1, $2)`
)

// executor is the part of a pool or transaction the queries need.
type executor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type queries struct {
	db executor
}

func newQueries(tx pgx.Tx) *queries {
	return &queries{db: tx}
}

func (q *queries) loadDocument(ctx context.Context, root string) (store.Document, error) {
	var doc store.Document
	err := q.db.QueryRow(ctx, loadDocumentSQL, root).Scan(&doc.Data, &doc.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Document{}, nil
	}
	return doc, err
}

func (q *queries) updateDocument(ctx context.Context, root string, data []byte, expected int64) (int64, error) {
	tag, err := q.db.Exec(ctx, updateDocumentSQL, root, docParam(data), expected)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (q *queries) insertDocument(ctx context.Context, root string, data []byte) (int64, error) {
	tag, err := q.db.Exec(ctx, insertDocumentSQL, root, docParam(data))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (q *queries) notify(ctx context.Context, channel, root string) error {
	_, err := q.db.Exec(ctx, notifySQL, channel, root)
	return err
}

// docParam maps a deleted document to SQL NULL.
func docParam(data []byte) any {
	if data == nil {
		return nil
	}
	return string(data)
}
