// Package sqldoc stores JSON documents in a single SQL table. The sqlite and
// postgres backends share it and differ only in their Dialect.
//
// Filters are evaluated in Go with store.Matches so every backend agrees on
// equality; an integer id in the filter is pushed down to SQL to narrow the
// candidate rows.
package sqldoc

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"

	errspkg "github.com/drblury/crudflow/internal/runtime/errors"
	"github.com/drblury/crudflow/internal/runtime/ids"
	"github.com/drblury/crudflow/internal/runtime/jsoncodec"
	"github.com/drblury/crudflow/internal/runtime/logging"
	"github.com/drblury/crudflow/internal/runtime/store"
)

// Dialect holds the backend-specific statements. Every SELECT returns
// (seq, storage_id, document) ordered by seq.
type Dialect struct {
	Name string
	// Schema is executed once on open and must be idempotent.
	Schema string
	// SelectCollection takes (collection).
	SelectCollection string
	// SelectByID takes (collection, id).
	SelectByID string
	// LockSuffix is appended to selects issued inside write transactions.
	LockSuffix string
	// Insert takes (storage_id, collection, document).
	Insert string
	// UpdateDocument takes (document, seq).
	UpdateDocument string
	// Delete takes (seq).
	Delete string
	// MaxID takes (collection) and returns one integer.
	MaxID string
}

// Store implements store.ObjectStore on database/sql.
type Store struct {
	db      *sql.DB
	dialect Dialect
	log     logging.ServiceLogger
	closed  atomic.Bool
}

// New applies the dialect schema and wraps db. The store owns db from here on.
func New(ctx context.Context, db *sql.DB, dialect Dialect, log logging.ServiceLogger) (*Store, error) {
	if log == nil {
		log = logging.NewNopLogger()
	}
	if _, err := db.ExecContext(ctx, dialect.Schema); err != nil {
		return nil, fmt.Errorf("%s: apply schema: %w", dialect.Name, err)
	}
	return &Store{db: db, dialect: dialect, log: logging.Component(log, dialect.Name+"-store")}, nil
}

// DB exposes the underlying pool for tests and maintenance.
func (s *Store) DB() *sql.DB {
	return s.db
}

type row struct {
	seq int64
	key string
	doc store.Record
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) selectRows(ctx context.Context, q querier, collection string, filter store.Filter, lock bool) ([]row, error) {
	query, args := s.dialect.SelectCollection, []any{collection}
	if raw, ok := filter[store.IDField]; ok {
		if id, ok := store.IntID(raw); ok {
			query, args = s.dialect.SelectByID, []any{collection, id}
		}
	}
	if lock {
		query += s.dialect.LockSuffix
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: select %s: %w", s.dialect.Name, collection, err)
	}
	defer rows.Close()

	var out []row
	for rows.Next() {
		var (
			r   row
			raw []byte
		)
		if err := rows.Scan(&r.seq, &r.key, &raw); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", s.dialect.Name, err)
		}
		doc, err := jsoncodec.UnmarshalDocument(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: decode document %s: %w", s.dialect.Name, r.key, err)
		}
		if !store.Matches(doc, filter) {
			continue
		}
		r.doc = doc
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) Find(ctx context.Context, collection string, filter store.Filter) ([]store.Record, error) {
	if s.closed.Load() {
		return nil, errspkg.ErrStoreClosed
	}
	rows, err := s.selectRows(ctx, s.db, collection, filter, false)
	if err != nil {
		return nil, err
	}
	out := make([]store.Record, 0, len(rows))
	for _, r := range rows {
		r.doc[store.StorageKey] = r.key
		out = append(out, r.doc)
	}
	return out, nil
}

func (s *Store) Insert(ctx context.Context, collection string, rec store.Record) (string, error) {
	if s.closed.Load() {
		return "", errspkg.ErrStoreClosed
	}
	doc, err := jsoncodec.Marshal(store.Strip(rec))
	if err != nil {
		return "", fmt.Errorf("%s: encode document: %w", s.dialect.Name, err)
	}
	key := ids.CreateULID()
	if _, err := s.db.ExecContext(ctx, s.dialect.Insert, key, collection, string(doc)); err != nil {
		return "", fmt.Errorf("%s: insert into %s: %w", s.dialect.Name, collection, err)
	}
	return key, nil
}

// Update is a read-modify-write inside one transaction.
func (s *Store) Update(ctx context.Context, collection string, filter store.Filter, patch store.Record) (int64, error) {
	if s.closed.Load() {
		return 0, errspkg.ErrStoreClosed
	}
	fields := store.Strip(patch)

	var matched int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		rows, err := s.selectRows(ctx, tx, collection, filter, true)
		if err != nil {
			return err
		}
		for _, r := range rows {
			for k, v := range fields {
				r.doc[k] = v
			}
			doc, err := jsoncodec.Marshal(r.doc)
			if err != nil {
				return fmt.Errorf("%s: encode document: %w", s.dialect.Name, err)
			}
			if _, err := tx.ExecContext(ctx, s.dialect.UpdateDocument, string(doc), r.seq); err != nil {
				return fmt.Errorf("%s: update %s: %w", s.dialect.Name, r.key, err)
			}
			matched++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return matched, nil
}

func (s *Store) Remove(ctx context.Context, collection string, filter store.Filter) (int64, error) {
	if s.closed.Load() {
		return 0, errspkg.ErrStoreClosed
	}

	var removed int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		rows, err := s.selectRows(ctx, tx, collection, filter, true)
		if err != nil {
			return err
		}
		for _, r := range rows {
			res, err := tx.ExecContext(ctx, s.dialect.Delete, r.seq)
			if err != nil {
				return fmt.Errorf("%s: delete %s: %w", s.dialect.Name, r.key, err)
			}
			n, _ := res.RowsAffected()
			removed += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func (s *Store) MaxID(ctx context.Context, collection string) (int64, error) {
	if s.closed.Load() {
		return 0, errspkg.ErrStoreClosed
	}
	var max sql.NullInt64
	if err := s.db.QueryRowContext(ctx, s.dialect.MaxID, collection).Scan(&max); err != nil {
		return 0, fmt.Errorf("%s: max id of %s: %w", s.dialect.Name, collection, err)
	}
	return max.Int64, nil
}

func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", s.dialect.Name, err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.log.Error("Rollback failed", rbErr, nil)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", s.dialect.Name, err)
	}
	return nil
}
