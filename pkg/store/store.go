// SPDX-License-Identifier: Apache-2.0

// Package store owns postgate's control-plane metadata: the set of
// registered tenant databases and the bearer tokens authorized against
// them. It is the only package that talks to the control-plane Postgres
// connection; pkg/executor talks to tenant databases instead.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/openworkers/postgate/internal/db"
	"github.com/openworkers/postgate/internal/identifier"
	"github.com/openworkers/postgate/internal/logging"
	"github.com/openworkers/postgate/pkg/token"
	"github.com/openworkers/postgate/pkg/validator"
)

// sqlInit creates the control-plane schema if it does not already exist.
// It is idempotent and safe to run on every startup, guarded by an
// advisory lock so that multiple gateway instances starting concurrently
// don't race each other creating the same objects.
const sqlInit = `
CREATE TABLE IF NOT EXISTS postgate_databases (
	id          UUID PRIMARY KEY,
	name        TEXT NOT NULL UNIQUE,
	backend     TEXT NOT NULL CHECK (backend IN ('schema', 'dedicated')),
	schema_name TEXT,
	conn_str    TEXT,
	max_rows    INTEGER NOT NULL DEFAULT 1000,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),

	CHECK (
		(backend = 'schema' AND schema_name IS NOT NULL AND conn_str IS NULL) OR
		(backend = 'dedicated' AND conn_str IS NOT NULL AND schema_name IS NULL)
	)
);

CREATE TABLE IF NOT EXISTS postgate_tokens (
	id                 UUID PRIMARY KEY,
	database_id        UUID NOT NULL REFERENCES postgate_databases(id) ON DELETE CASCADE,
	token_hash         TEXT NOT NULL UNIQUE,
	token_prefix       TEXT NOT NULL,
	allowed_operations TEXT[] NOT NULL DEFAULT '{}',
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_used_at       TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS postgate_tokens_database_id_idx ON postgate_tokens(database_id);
`

const advisoryLockKey int64 = 0x706f7374676174 // "postgat" in hex, arbitrary but stable

// Store is the control-plane metadata store.
type Store struct {
	conn *db.RDB
	log  logging.Logger
}

// New opens a connection to the control-plane database. Call Init once
// before using the store against a fresh cluster.
func New(ctx context.Context, controlPlaneURL string, log logging.Logger) (*Store, error) {
	conn, err := sql.Open("postgres", controlPlaneURL)
	if err != nil {
		return nil, fmt.Errorf("opening control-plane connection: %w", err)
	}

	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging control-plane database: %w", err)
	}

	conn.SetMaxOpenConns(10)

	return &Store{conn: &db.RDB{DB: conn}, log: log}, nil
}

// Init creates the control-plane schema if it doesn't already exist.
func (s *Store) Init(ctx context.Context) error {
	return s.conn.WithRetryableTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, sqlInit)
		return err
	})
}

// Close closes the control-plane connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// CreateDatabase registers a new tenant database. For BackendSchema, it
// also creates the backing schema on the control-plane cluster.
func (s *Store) CreateDatabase(ctx context.Context, cfg DatabaseConfig) (*DatabaseConfig, error) {
	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}

	var schemaName, connStr *string
	switch cfg.Backend {
	case BackendSchema:
		if err := identifier.Validate(cfg.Schema); err != nil {
			return nil, err
		}
		schemaName = &cfg.Schema
	case BackendDedicated:
		connStr = &cfg.ConnStr
	default:
		return nil, fmt.Errorf("unknown backend kind %q", cfg.Backend)
	}

	err := s.conn.WithRetryableTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO postgate_databases (id, name, backend, schema_name, conn_str, max_rows) VALUES ($1, $2, $3, $4, $5, $6)`,
			cfg.ID, cfg.Name, string(cfg.Backend), schemaName, connStr, cfg.MaxRows)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == "23505" {
				return &DuplicateDatabaseNameError{Name: cfg.Name}
			}
			return err
		}

		if cfg.Backend == BackendSchema {
			quoted, err := identifier.Quote(cfg.Schema)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", quoted)); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.GetDatabase(ctx, cfg.ID)
}

// GetDatabase fetches a database by ID.
func (s *Store) GetDatabase(ctx context.Context, id uuid.UUID) (*DatabaseConfig, error) {
	row := s.conn.DB.QueryRowContext(ctx,
		`SELECT id, name, backend, schema_name, conn_str, max_rows, created_at FROM postgate_databases WHERE id = $1`, id)
	return scanDatabase(row, &DatabaseNotFoundError{ID: id})
}

// GetDatabaseByName fetches a database by its unique name.
func (s *Store) GetDatabaseByName(ctx context.Context, name string) (*DatabaseConfig, error) {
	row := s.conn.DB.QueryRowContext(ctx,
		`SELECT id, name, backend, schema_name, conn_str, max_rows, created_at FROM postgate_databases WHERE name = $1`, name)
	return scanDatabase(row, &DatabaseNotFoundError{Name: name})
}

func scanDatabase(row *sql.Row, notFound error) (*DatabaseConfig, error) {
	var cfg DatabaseConfig
	var backend string
	var schemaName, connStr sql.NullString

	err := row.Scan(&cfg.ID, &cfg.Name, &backend, &schemaName, &connStr, &cfg.MaxRows, &cfg.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound
	}
	if err != nil {
		return nil, err
	}

	cfg.Backend = BackendKind(backend)
	cfg.Schema = schemaName.String
	cfg.ConnStr = connStr.String

	return &cfg, nil
}

// ListDatabases returns every registered database, most recently created first.
func (s *Store) ListDatabases(ctx context.Context) ([]DatabaseConfig, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, name, backend, schema_name, conn_str, max_rows, created_at FROM postgate_databases ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DatabaseConfig
	for rows.Next() {
		var cfg DatabaseConfig
		var backend string
		var schemaName, connStr sql.NullString

		if err := rows.Scan(&cfg.ID, &cfg.Name, &backend, &schemaName, &connStr, &cfg.MaxRows, &cfg.CreatedAt); err != nil {
			return nil, err
		}
		cfg.Backend = BackendKind(backend)
		cfg.Schema = schemaName.String
		cfg.ConnStr = connStr.String
		out = append(out, cfg)
	}

	return out, rows.Err()
}

// DeleteDatabase removes a database's metadata (and, via the foreign key,
// its tokens). For BackendSchema it also drops the backing schema.
func (s *Store) DeleteDatabase(ctx context.Context, id uuid.UUID) error {
	cfg, err := s.GetDatabase(ctx, id)
	if err != nil {
		return err
	}

	return s.conn.WithRetryableTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM postgate_databases WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return &DatabaseNotFoundError{ID: id}
		}

		if cfg.Backend == BackendSchema {
			quoted, err := identifier.Quote(cfg.Schema)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", quoted)); err != nil {
				return err
			}
		}

		return nil
	})
}

// SuggestSchemaName proposes a schema name for a new schema-backend
// database, for admin tooling convenience. Callers still validate the
// name they actually pass to CreateDatabase.
func SuggestSchemaName(dbName string) string {
	return "tenant_" + identifier.Slug(dbName)
}

// CreateToken mints a new token for a database and stores its hash. The
// plaintext token is returned once and never stored.
func (s *Store) CreateToken(ctx context.Context, databaseID uuid.UUID, allowed map[validator.Operation]bool) (plaintext string, info *TokenInfo, err error) {
	plaintext, err = token.Mint()
	if err != nil {
		return "", nil, err
	}

	id := uuid.New()
	ops := make([]string, 0, len(allowed))
	for op, ok := range allowed {
		if ok {
			ops = append(ops, string(op))
		}
	}

	_, err = s.conn.ExecContext(ctx,
		`INSERT INTO postgate_tokens (id, database_id, token_hash, token_prefix, allowed_operations)
		 VALUES ($1, $2, $3, $4, $5)`,
		id, databaseID, token.Hash(plaintext), token.DisplayPrefix(plaintext), pq.Array(ops))
	if err != nil {
		return "", nil, err
	}

	return plaintext, &TokenInfo{
		ID:                id,
		DatabaseID:        databaseID,
		Prefix:            token.DisplayPrefix(plaintext),
		AllowedOperations: allowed,
	}, nil
}

// ValidateToken resolves a plaintext bearer token to its TokenInfo,
// touching last_used_at in the background. It returns InvalidTokenError
// for anything that isn't a live, well-formed token.
func (s *Store) ValidateToken(ctx context.Context, plaintext string) (*TokenInfo, error) {
	if !token.FormatValid(plaintext) {
		return nil, &InvalidTokenError{}
	}

	row := s.conn.DB.QueryRowContext(ctx,
		`SELECT id, database_id, token_prefix, allowed_operations, created_at, last_used_at
		 FROM postgate_tokens WHERE token_hash = $1`, token.Hash(plaintext))

	info, err := scanToken(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &InvalidTokenError{}
	}
	if err != nil {
		return nil, err
	}

	s.touchLastUsed(info.ID)

	return info, nil
}

func scanToken(row *sql.Row) (*TokenInfo, error) {
	var info TokenInfo
	var ops []string

	err := row.Scan(&info.ID, &info.DatabaseID, &info.Prefix, pq.Array(&ops),
		&info.CreatedAt, &info.LastUsedAt)
	if err != nil {
		return nil, err
	}

	info.AllowedOperations = make(map[validator.Operation]bool, len(ops))
	for _, op := range ops {
		switch o := validator.Operation(op); o {
		case validator.OpSelect, validator.OpInsert, validator.OpUpdate, validator.OpDelete,
			validator.OpCreate, validator.OpAlter, validator.OpDrop:
			info.AllowedOperations[o] = true
		}
	}

	return &info, nil
}

// touchLastUsed updates a token's last_used_at without making the
// caller's request wait on it. Failures are logged, not surfaced: a
// missed usage timestamp should never turn a valid query into an error.
func (s *Store) touchLastUsed(id uuid.UUID) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if _, err := s.conn.DB.ExecContext(ctx, `UPDATE postgate_tokens SET last_used_at = now() WHERE id = $1`, id); err != nil {
			s.log.Error("failed to update token last_used_at", []any{"token_id", id, "error", err})
		}
	}()
}

// DeleteToken revokes a token immediately.
func (s *Store) DeleteToken(ctx context.Context, id uuid.UUID) error {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM postgate_tokens WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &TokenNotFoundError{ID: id}
	}
	return nil
}

// ListTokens returns every token registered for a database. Secrets are
// never included; only the stored prefix is.
func (s *Store) ListTokens(ctx context.Context, databaseID uuid.UUID) ([]TokenSummary, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, database_id, token_prefix, allowed_operations, created_at, last_used_at
		 FROM postgate_tokens WHERE database_id = $1 ORDER BY created_at DESC`, databaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TokenSummary
	for rows.Next() {
		var t TokenSummary
		var ops []string
		if err := rows.Scan(&t.ID, &t.DatabaseID, &t.Prefix, pq.Array(&ops), &t.CreatedAt, &t.LastUsedAt); err != nil {
			return nil, err
		}
		for _, op := range ops {
			t.AllowedOperations = append(t.AllowedOperations, validator.Operation(op))
		}
		out = append(out, t)
	}

	return out, rows.Err()
}
