// SPDX-License-Identifier: Apache-2.0

package executor_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openworkers/postgate/pkg/executor"
	"github.com/openworkers/postgate/pkg/store"
	"github.com/openworkers/postgate/pkg/testutils"
	"github.com/openworkers/postgate/pkg/validator"
)

func TestMain(m *testing.M) {
	testutils.SharedTestMain(m)
}

func rawParams(values ...string) []json.RawMessage {
	out := make([]json.RawMessage, len(values))
	for i, v := range values {
		out[i] = json.RawMessage(v)
	}
	return out
}

func TestExecuteAgainstSchemaBackend(t *testing.T) {
	testutils.WithConnectionToContainer(t, func(db *sql.DB, connStr string) {
		ctx := context.Background()

		_, err := db.ExecContext(ctx, "CREATE SCHEMA tenant_a")
		require.NoError(t, err)
		_, err = db.ExecContext(ctx, "CREATE TABLE tenant_a.widgets (id serial primary key, name text not null)")
		require.NoError(t, err)

		pool, err := executor.New(connStr)
		require.NoError(t, err)
		t.Cleanup(func() { pool.Close() })

		cfg := &store.DatabaseConfig{Backend: store.BackendSchema, Schema: "tenant_a"}

		insert, err := validator.Validate("INSERT INTO widgets (name) VALUES ($1)", map[validator.Operation]bool{validator.OpInsert: true})
		require.NoError(t, err)

		res, err := pool.Execute(ctx, cfg, insert, rawParams(`"sprocket"`), 100)
		require.NoError(t, err)
		assert.EqualValues(t, 1, res.RowsAffected)

		sel, err := validator.Validate("SELECT id, name FROM widgets", map[validator.Operation]bool{validator.OpSelect: true})
		require.NoError(t, err)

		res, err = pool.Execute(ctx, cfg, sel, nil, 100)
		require.NoError(t, err)
		require.Len(t, res.Rows, 1)
		assert.Equal(t, "sprocket", res.Rows[0]["name"])
	})
}

func TestExecuteEnforcesRowLimit(t *testing.T) {
	testutils.WithConnectionToContainer(t, func(db *sql.DB, connStr string) {
		ctx := context.Background()

		_, err := db.ExecContext(ctx, "CREATE SCHEMA tenant_b")
		require.NoError(t, err)
		_, err = db.ExecContext(ctx, "CREATE TABLE tenant_b.items (id serial primary key)")
		require.NoError(t, err)
		_, err = db.ExecContext(ctx, "INSERT INTO tenant_b.items DEFAULT VALUES")
		require.NoError(t, err)
		_, err = db.ExecContext(ctx, "INSERT INTO tenant_b.items DEFAULT VALUES")
		require.NoError(t, err)

		pool, err := executor.New(connStr)
		require.NoError(t, err)
		t.Cleanup(func() { pool.Close() })

		cfg := &store.DatabaseConfig{Backend: store.BackendSchema, Schema: "tenant_b"}

		sel, err := validator.Validate("SELECT id FROM items", map[validator.Operation]bool{validator.OpSelect: true})
		require.NoError(t, err)

		_, err = pool.Execute(ctx, cfg, sel, nil, 1)
		var limitErr *executor.RowLimitExceededError
		assert.ErrorAs(t, err, &limitErr)
	})
}

func TestExecuteWrapsConstraintViolations(t *testing.T) {
	testutils.WithConnectionToContainer(t, func(db *sql.DB, connStr string) {
		ctx := context.Background()

		_, err := db.ExecContext(ctx, "CREATE SCHEMA tenant_c")
		require.NoError(t, err)
		_, err = db.ExecContext(ctx, "CREATE TABLE tenant_c.uniques (id int primary key)")
		require.NoError(t, err)
		_, err = db.ExecContext(ctx, "INSERT INTO tenant_c.uniques VALUES (1)")
		require.NoError(t, err)

		pool, err := executor.New(connStr)
		require.NoError(t, err)
		t.Cleanup(func() { pool.Close() })

		cfg := &store.DatabaseConfig{Backend: store.BackendSchema, Schema: "tenant_c"}

		insert, err := validator.Validate("INSERT INTO uniques (id) VALUES ($1)", map[validator.Operation]bool{validator.OpInsert: true})
		require.NoError(t, err)

		_, err = pool.Execute(ctx, cfg, insert, rawParams("1"), 100)
		var execErr *executor.ExecutionError
		assert.ErrorAs(t, err, &execErr)
	})
}
