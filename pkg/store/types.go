// SPDX-License-Identifier: Apache-2.0

package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/openworkers/postgate/pkg/validator"
)

// BackendKind selects how a database's queries are executed.
type BackendKind string

const (
	// BackendSchema runs queries against the shared cluster, scoped to
	// a dedicated schema via a transaction-local search_path.
	BackendSchema BackendKind = "schema"
	// BackendDedicated runs queries against a database reached through
	// its own connection string and connection pool.
	BackendDedicated BackendKind = "dedicated"
)

// DatabaseConfig describes one tenant database registered with postgate.
type DatabaseConfig struct {
	ID        uuid.UUID   `json:"id"`
	Name      string      `json:"name"`
	Backend   BackendKind `json:"backend"`
	Schema    string      `json:"schema,omitempty"`   // set when Backend == BackendSchema
	ConnStr   string      `json:"conn_str,omitempty"` // set when Backend == BackendDedicated
	MaxRows   int         `json:"max_rows"`
	CreatedAt time.Time   `json:"created_at"`
}

// TokenInfo is the principal resolved from a bearer token: what database
// it may reach and what it is allowed to do there.
type TokenInfo struct {
	ID                uuid.UUID                    `json:"id"`
	DatabaseID        uuid.UUID                    `json:"database_id"`
	Prefix            string                       `json:"prefix"`
	AllowedOperations map[validator.Operation]bool `json:"allowed_operations"`
	CreatedAt         time.Time                    `json:"created_at"`
	LastUsedAt        *time.Time                   `json:"last_used_at,omitempty"`
}

// TokenSummary is what ListTokens returns: everything about a token except
// its secret, which is never stored or returned after minting.
type TokenSummary struct {
	ID                uuid.UUID            `json:"id"`
	DatabaseID        uuid.UUID            `json:"database_id"`
	Prefix            string               `json:"prefix"`
	AllowedOperations []validator.Operation `json:"allowed_operations"`
	CreatedAt         time.Time            `json:"created_at"`
	LastUsedAt        *time.Time           `json:"last_used_at,omitempty"`
}
