// Package sqlite stores crudflow documents in SQLite through mattn/go-sqlite3.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/drblury/crudflow/internal/runtime/logging"
	"github.com/drblury/crudflow/internal/runtime/store"
	"github.com/drblury/crudflow/internal/runtime/store/sqldoc"
)

const BackendName = "sqlite"

//go:embed schema.sql
var schemaSQL string

var dialect = sqldoc.Dialect{
	Name:   BackendName,
	Schema: schemaSQL,
	SelectCollection: `SELECT seq, storage_id, document FROM documents
		WHERE collection = ? ORDER BY seq`,
	SelectByID: `SELECT seq, storage_id, document FROM documents
		WHERE collection = ? AND json_type(document, '$.id') = 'integer'
		AND json_extract(document, '$.id') = ? ORDER BY seq`,
	Insert:         `INSERT INTO documents (storage_id, collection, document) VALUES (?, ?, ?)`,
	UpdateDocument: `UPDATE documents SET document = ? WHERE seq = ?`,
	Delete:         `DELETE FROM documents WHERE seq = ?`,
	MaxID: `SELECT MAX(json_extract(document, '$.id')) FROM documents
		WHERE collection = ? AND json_type(document, '$.id') = 'integer'`,
}

var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA busy_timeout = 5000",
}

func init() {
	store.Register(BackendName, func(ctx context.Context, opts store.Options) (store.ObjectStore, error) {
		return Open(ctx, opts.SQLiteFile, opts.Logger)
	})
}

// Open creates or opens the database at path. ":memory:" gives a private
// in-memory database.
func Open(ctx context.Context, path string, log logging.ServiceLogger) (*sqldoc.Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: file is required")
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// one connection: SQLite has a single writer and ":memory:" is per connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: connect %s: %w", path, err)
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %q: %w", pragma, err)
		}
	}

	s, err := sqldoc.New(ctx, db, dialect, log)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}
