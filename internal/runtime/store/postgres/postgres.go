// Package postgres stores crudflow documents as JSONB rows through lib/pq.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/drblury/crudflow/internal/runtime/logging"
	"github.com/drblury/crudflow/internal/runtime/store"
	"github.com/drblury/crudflow/internal/runtime/store/sqldoc"
)

const BackendName = "postgres"

//go:embed schema.sql
var schemaSQL string

var dialect = sqldoc.Dialect{
	Name:   BackendName,
	Schema: schemaSQL,
	SelectCollection: `SELECT seq, storage_id, document FROM crudflow_documents
		WHERE collection = $1 ORDER BY seq`,
	SelectByID: `SELECT seq, storage_id, document FROM crudflow_documents
		WHERE collection = $1 AND document -> 'id' = to_jsonb($2::bigint) ORDER BY seq`,
	LockSuffix:     ` FOR UPDATE`,
	Insert:         `INSERT INTO crudflow_documents (storage_id, collection, document) VALUES ($1, $2, $3::jsonb)`,
	UpdateDocument: `UPDATE crudflow_documents SET document = $1::jsonb WHERE seq = $2`,
	Delete:         `DELETE FROM crudflow_documents WHERE seq = $1`,
	MaxID: `SELECT MAX((document ->> 'id')::bigint) FROM crudflow_documents
		WHERE collection = $1 AND jsonb_typeof(document -> 'id') = 'number'
		AND (document ->> 'id') ~ '^-?[0-9]+$'`,
}

// Pool settings applied to every connection pool the backend opens.
const (
	MaxOpenConns    = 10
	MaxIdleConns    = 5
	ConnMaxLifetime = 30 * time.Minute
)

func init() {
	store.Register(BackendName, func(ctx context.Context, opts store.Options) (store.ObjectStore, error) {
		return Open(ctx, opts.PostgresURL, opts.Logger)
	})
}

// Open connects to dsn and creates the documents table when missing.
func Open(ctx context.Context, dsn string, log logging.ServiceLogger) (*sqldoc.Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres: URL is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	db.SetMaxOpenConns(MaxOpenConns)
	db.SetMaxIdleConns(MaxIdleConns)
	db.SetConnMaxLifetime(ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}

	s, err := sqldoc.New(ctx, db, dialect, log)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}
