// SPDX-License-Identifier: Apache-2.0

package store

import (
	"fmt"

	"github.com/google/uuid"
)

// DatabaseNotFoundError is returned when a lookup by ID or name finds no
// matching row.
type DatabaseNotFoundError struct {
	ID   uuid.UUID
	Name string
}

func (e *DatabaseNotFoundError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("database %q not found", e.Name)
	}
	return fmt.Sprintf("database %s not found", e.ID)
}

// TokenNotFoundError is returned when a token lookup by ID finds no
// matching row. A hash lookup that misses yields InvalidTokenError.
type TokenNotFoundError struct {
	ID uuid.UUID
}

func (e *TokenNotFoundError) Error() string {
	return fmt.Sprintf("token %s not found", e.ID)
}

// InvalidTokenError is returned by ValidateToken when a token is
// malformed or its hash has no corresponding row.
type InvalidTokenError struct{}

func (e *InvalidTokenError) Error() string { return "invalid or unknown token" }

// DuplicateDatabaseNameError is returned when CreateDatabase is called
// with a name that already exists.
type DuplicateDatabaseNameError struct {
	Name string
}

func (e *DuplicateDatabaseNameError) Error() string {
	return fmt.Sprintf("database %q already exists", e.Name)
}
