package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"partflow/m/internal/metrics"
)

// Collection names held in the records table.
const (
	Customers        = "customers"
	Items            = "items"
	Orders           = "orders"
	StockAdjustments = "stock_adjustments"
)

// Keys held in the kv table.
const (
	KeySettings    = "settings"
	KeyLastSync    = "last_sync"
	KeyCurrentUser = "current_user"
	KeyInitialized = "initialized"
)

// Store persists JSON documents in SQLite. Collections keep insertion order
// through the seq column; single values live in kv.
type Store struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Record is one document of a collection.
type Record struct {
	ID  string
	Doc any
}

// Load decodes every document of a collection in insertion order.
func Load[T any](ctx context.Context, s *Store, collection string) ([]T, error) {
	defer metrics.TrackStoreOperation("load_" + collection)(time.Now())

	var docs []string
	err := s.db.SelectContext(ctx, &docs, `SELECT doc FROM records WHERE collection = ? ORDER BY seq`, collection)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", collection, err)
	}
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		var v T
		if err := json.Unmarshal([]byte(doc), &v); err != nil {
			return nil, fmt.Errorf("decode %s record: %w", collection, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// GetValue decodes the value stored under key into dest. It reports false
// when the key has never been written.
func (s *Store) GetValue(ctx context.Context, key string, dest any) (bool, error) {
	var raw string
	err := s.db.GetContext(ctx, &raw, `SELECT value FROM kv WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// Tx runs fn inside one database transaction. Nothing fn writes is visible
// unless it returns nil and the commit succeeds.
func (s *Store) Tx(ctx context.Context, op string, fn func(tx *Tx) error) error {
	defer metrics.TrackStoreOperation(op)(time.Now())

	dbtx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}
	defer dbtx.Rollback()

	if err := fn(&Tx{ctx: ctx, tx: dbtx}); err != nil {
		return err
	}
	if err := dbtx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	return nil
}

type Tx struct {
	ctx context.Context
	tx  *sqlx.Tx
}

// PutRecord inserts or updates a document. Updates keep the original
// position in the collection.
func (t *Tx) PutRecord(collection, id string, doc any) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	_, err = t.tx.ExecContext(t.ctx, `INSERT INTO records (collection, id, seq, doc)
        VALUES (?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM records WHERE collection = ?), ?)
        ON CONFLICT (collection, id) DO UPDATE SET doc = excluded.doc`,
		collection, id, collection, string(b))
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", collection, id, err)
	}
	return nil
}

func (t *Tx) DeleteRecord(collection, id string) error {
	if _, err := t.tx.ExecContext(t.ctx, `DELETE FROM records WHERE collection = ? AND id = ?`, collection, id); err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}

// ReplaceCollection drops every document of the collection and writes recs
// in the given order.
func (t *Tx) ReplaceCollection(collection string, recs []Record) error {
	if _, err := t.tx.ExecContext(t.ctx, `DELETE FROM records WHERE collection = ?`, collection); err != nil {
		return fmt.Errorf("clear %s: %w", collection, err)
	}
	stmt, err := t.tx.PreparexContext(t.ctx, `INSERT INTO records (collection, id, seq, doc) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare %s insert: %w", collection, err)
	}
	defer stmt.Close()

	for i, rec := range recs {
		b, err := json.Marshal(rec.Doc)
		if err != nil {
			return fmt.Errorf("encode %s/%s: %w", collection, rec.ID, err)
		}
		if _, err := stmt.ExecContext(t.ctx, collection, rec.ID, i+1, string(b)); err != nil {
			return fmt.Errorf("insert %s/%s: %w", collection, rec.ID, err)
		}
	}
	return nil
}

func (t *Tx) PutValue(key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	_, err = t.tx.ExecContext(t.ctx, `INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
        ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`, key, string(b))
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (t *Tx) DeleteValue(key string) error {
	if _, err := t.tx.ExecContext(t.ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
