// SPDX-License-Identifier: Apache-2.0

// Package executor runs validated statements against tenant databases: a
// shared cluster scoped by search_path for BackendSchema databases, or a
// dedicated connection pool for BackendDedicated ones.
package executor

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/openworkers/postgate/internal/identifier"
	"github.com/openworkers/postgate/pkg/store"
	"github.com/openworkers/postgate/pkg/validator"
)

const (
	sharedMaxOpenConns    = 50
	dedicatedMaxOpenConns = 10
)

// Result is what a query returns to the gateway: the rows (nil for
// statements that don't return any) and the number of rows affected.
type Result struct {
	Rows         []map[string]any
	RowsAffected int64
}

// Pool executes statements against tenant databases.
type Pool struct {
	shared *sql.DB

	mu        sync.RWMutex
	dedicated map[uuid.UUID]*sql.DB
}

// New opens the shared pool against sharedURL, used for every
// BackendSchema database.
func New(sharedURL string) (*Pool, error) {
	db, err := sql.Open("postgres", sharedURL)
	if err != nil {
		return nil, fmt.Errorf("opening shared pool: %w", err)
	}
	db.SetMaxOpenConns(sharedMaxOpenConns)

	return &Pool{
		shared:    db,
		dedicated: make(map[uuid.UUID]*sql.DB),
	}, nil
}

// Close closes the shared pool and every dedicated pool that has been
// opened so far.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for _, db := range p.dedicated {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := p.shared.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// poolFor returns the *sql.DB to use for a database, lazily opening and
// caching a dedicated pool the first time it's needed.
func (p *Pool) poolFor(cfg *store.DatabaseConfig) (*sql.DB, error) {
	if cfg.Backend == store.BackendSchema {
		return p.shared, nil
	}

	p.mu.RLock()
	db, ok := p.dedicated[cfg.ID]
	p.mu.RUnlock()
	if ok {
		return db, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if db, ok := p.dedicated[cfg.ID]; ok {
		return db, nil
	}

	db, err := sql.Open("postgres", cfg.ConnStr)
	if err != nil {
		return nil, fmt.Errorf("opening dedicated pool for database %s: %w", cfg.ID, err)
	}
	db.SetMaxOpenConns(dedicatedMaxOpenConns)

	p.dedicated[cfg.ID] = db
	return db, nil
}

// Execute runs query against cfg's backend, binding params positionally,
// enforcing maxRows on any returned rows, and cancelling the attempt if
// it outlives ctx's deadline.
func (p *Pool) Execute(ctx context.Context, cfg *store.DatabaseConfig, query *validator.ParsedQuery, params []json.RawMessage, maxRows int) (*Result, error) {
	args, err := bindParams(params)
	if err != nil {
		return nil, fmt.Errorf("binding query parameters: %w", err)
	}

	db, err := p.poolFor(cfg)
	if err != nil {
		return nil, err
	}

	var result *Result
	if cfg.Backend == store.BackendSchema {
		result, err = p.executeScoped(ctx, db, cfg.Schema, query, args, maxRows)
	} else {
		result, err = p.executeDirect(ctx, db, query, args, maxRows)
	}

	if err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)) {
		return nil, &TimeoutError{}
	}
	return result, err
}

// executeScoped runs query in a transaction with search_path set to
// schema for its duration, so unqualified table names in the statement
// resolve to the tenant's own tables on the shared cluster.
func (p *Pool) executeScoped(ctx context.Context, db *sql.DB, schema string, query *validator.ParsedQuery, args []any, maxRows int) (*Result, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck

	quotedSchema, err := identifier.Quote(schema)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL search_path TO %s", quotedSchema)); err != nil {
		return nil, err
	}

	result, err := runStatement(ctx, tx, query, args, maxRows)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return result, nil
}

// executeDirect runs query directly against a dedicated pool, with no
// search_path scoping since the connection string already names the
// tenant's own database.
func (p *Pool) executeDirect(ctx context.Context, db *sql.DB, query *validator.ParsedQuery, args []any, maxRows int) (*Result, error) {
	return runStatement(ctx, db, query, args, maxRows)
}

// statementRunner is satisfied by both *sql.DB and *sql.Tx.
type statementRunner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func runStatement(ctx context.Context, runner statementRunner, query *validator.ParsedQuery, args []any, maxRows int) (*Result, error) {
	if !query.ReturnsRows {
		res, err := runner.ExecContext(ctx, query.SQL, args...)
		if err != nil {
			return nil, wrapExecError(err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			affected = 0
		}
		return &Result{RowsAffected: affected}, nil
	}

	rows, err := runner.QueryContext(ctx, query.SQL, args...)
	if err != nil {
		return nil, wrapExecError(err)
	}
	defer rows.Close()

	parsed, err := rowsToJSON(rows, maxRows)
	if err != nil {
		var limitErr *RowLimitExceededError
		if errors.As(err, &limitErr) {
			return nil, err
		}
		return nil, wrapExecError(err)
	}

	return &Result{Rows: parsed, RowsAffected: int64(len(parsed))}, nil
}

func wrapExecError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return &ExecutionError{Err: pqErr}
	}
	return &ExecutionError{Err: err}
}
