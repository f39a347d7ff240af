// SPDX-License-Identifier: Apache-2.0

package store_test

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openworkers/postgate/pkg/store"
	"github.com/openworkers/postgate/pkg/testutils"
	"github.com/openworkers/postgate/pkg/validator"
)

func TestMain(m *testing.M) {
	testutils.SharedTestMain(m)
}

func TestCreateAndGetDatabaseSchemaBackend(t *testing.T) {
	testutils.WithStoreAndConnectionToContainer(t, func(st *store.Store, db *sql.DB) {
		ctx := context.Background()

		cfg, err := st.CreateDatabase(ctx, store.DatabaseConfig{
			Name:    "acme",
			Backend: store.BackendSchema,
			Schema:  "acme_schema",
		})
		require.NoError(t, err)
		assert.Equal(t, "acme", cfg.Name)
		assert.Equal(t, store.BackendSchema, cfg.Backend)
		assert.Equal(t, "acme_schema", cfg.Schema)

		fetched, err := st.GetDatabase(ctx, cfg.ID)
		require.NoError(t, err)
		assert.Equal(t, cfg.ID, fetched.ID)
		assert.Equal(t, cfg.Schema, fetched.Schema)
	})
}

func TestCreateDatabaseRejectsDuplicateName(t *testing.T) {
	testutils.WithStoreAndConnectionToContainer(t, func(st *store.Store, db *sql.DB) {
		ctx := context.Background()

		_, err := st.CreateDatabase(ctx, store.DatabaseConfig{
			Name:    "dup",
			Backend: store.BackendSchema,
			Schema:  "dup_schema",
		})
		require.NoError(t, err)

		_, err = st.CreateDatabase(ctx, store.DatabaseConfig{
			Name:    "dup",
			Backend: store.BackendSchema,
			Schema:  "dup_schema_2",
		})

		var dupErr *store.DuplicateDatabaseNameError
		require.ErrorAs(t, err, &dupErr)
	})
}

func TestGetDatabaseNotFound(t *testing.T) {
	testutils.WithStoreAndConnectionToContainer(t, func(st *store.Store, db *sql.DB) {
		_, err := st.GetDatabase(context.Background(), uuid.New())

		var notFound *store.DatabaseNotFoundError
		require.ErrorAs(t, err, &notFound)
	})
}

func TestDeleteDatabaseDropsSchema(t *testing.T) {
	testutils.WithStoreAndConnectionToContainer(t, func(st *store.Store, db *sql.DB) {
		ctx := context.Background()

		cfg, err := st.CreateDatabase(ctx, store.DatabaseConfig{
			Name:    "to-delete",
			Backend: store.BackendSchema,
			Schema:  "to_delete_schema",
		})
		require.NoError(t, err)

		require.NoError(t, st.DeleteDatabase(ctx, cfg.ID))

		_, err = st.GetDatabase(ctx, cfg.ID)
		var notFound *store.DatabaseNotFoundError
		assert.ErrorAs(t, err, &notFound)

		var schemaExists bool
		err = db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM information_schema.schemata WHERE schema_name = $1)`,
			"to_delete_schema").Scan(&schemaExists)
		require.NoError(t, err)
		assert.False(t, schemaExists)
	})
}

func TestListDatabasesOrdersByCreatedAtDesc(t *testing.T) {
	testutils.WithStoreAndConnectionToContainer(t, func(st *store.Store, db *sql.DB) {
		ctx := context.Background()

		first, err := st.CreateDatabase(ctx, store.DatabaseConfig{Name: "first", Backend: store.BackendSchema, Schema: "first_schema"})
		require.NoError(t, err)
		second, err := st.CreateDatabase(ctx, store.DatabaseConfig{Name: "second", Backend: store.BackendSchema, Schema: "second_schema"})
		require.NoError(t, err)

		dbs, err := st.ListDatabases(ctx)
		require.NoError(t, err)
		require.Len(t, dbs, 2)
		assert.Equal(t, second.ID, dbs[0].ID)
		assert.Equal(t, first.ID, dbs[1].ID)
	})
}

func TestCreateAndValidateToken(t *testing.T) {
	testutils.WithStoreAndConnectionToContainer(t, func(st *store.Store, db *sql.DB) {
		ctx := context.Background()

		cfg, err := st.CreateDatabase(ctx, store.DatabaseConfig{Name: "withtoken", Backend: store.BackendSchema, Schema: "withtoken_schema"})
		require.NoError(t, err)

		allowed := map[validator.Operation]bool{validator.OpSelect: true}
		plaintext, info, err := st.CreateToken(ctx, cfg.ID, allowed)
		require.NoError(t, err)
		assert.NotEmpty(t, plaintext)
		assert.True(t, info.AllowedOperations[validator.OpSelect])

		resolved, err := st.ValidateToken(ctx, plaintext)
		require.NoError(t, err)
		assert.Equal(t, info.ID, resolved.ID)
		assert.Equal(t, cfg.ID, resolved.DatabaseID)
		assert.True(t, resolved.AllowedOperations[validator.OpSelect])
	})
}

func TestValidateTokenRejectsMalformedToken(t *testing.T) {
	testutils.WithStoreAndConnectionToContainer(t, func(st *store.Store, db *sql.DB) {
		_, err := st.ValidateToken(context.Background(), "not-a-token")

		var invalid *store.InvalidTokenError
		assert.ErrorAs(t, err, &invalid)
	})
}

func TestValidateTokenRejectsUnknownToken(t *testing.T) {
	testutils.WithStoreAndConnectionToContainer(t, func(st *store.Store, db *sql.DB) {
		_, err := st.ValidateToken(context.Background(), "pg_"+strings.Repeat("0", 64))

		var invalid *store.InvalidTokenError
		assert.ErrorAs(t, err, &invalid)
	})
}

func TestDeleteTokenRevokesIt(t *testing.T) {
	testutils.WithStoreAndConnectionToContainer(t, func(st *store.Store, db *sql.DB) {
		ctx := context.Background()

		cfg, err := st.CreateDatabase(ctx, store.DatabaseConfig{Name: "revoke", Backend: store.BackendSchema, Schema: "revoke_schema"})
		require.NoError(t, err)

		plaintext, info, err := st.CreateToken(ctx, cfg.ID, map[validator.Operation]bool{validator.OpSelect: true})
		require.NoError(t, err)

		require.NoError(t, st.DeleteToken(ctx, info.ID))

		_, err = st.ValidateToken(ctx, plaintext)
		var invalid *store.InvalidTokenError
		assert.ErrorAs(t, err, &invalid)
	})
}

func TestListTokensNeverReturnsSecret(t *testing.T) {
	testutils.WithStoreAndConnectionToContainer(t, func(st *store.Store, db *sql.DB) {
		ctx := context.Background()

		cfg, err := st.CreateDatabase(ctx, store.DatabaseConfig{Name: "listtokens", Backend: store.BackendSchema, Schema: "listtokens_schema"})
		require.NoError(t, err)

		_, _, err = st.CreateToken(ctx, cfg.ID, map[validator.Operation]bool{validator.OpSelect: true})
		require.NoError(t, err)

		summaries, err := st.ListTokens(ctx, cfg.ID)
		require.NoError(t, err)
		require.Len(t, summaries, 1)
		assert.NotEmpty(t, summaries[0].Prefix)
		assert.Contains(t, summaries[0].AllowedOperations, validator.OpSelect)
	})
}
