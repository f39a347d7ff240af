// SPDX-License-Identifier: Apache-2.0

// Package identifier centralizes the escaping of Postgres identifiers and
// literals that are interpolated into dynamically built SQL. Schema names
// come from database configuration rows, not directly from request bodies,
// but they still flow into statements built with fmt.Sprintf, so every call
// site funnels through here rather than calling pq.QuoteIdentifier itself.
package identifier

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lib/pq"
)

// validName matches the conservative subset of Postgres identifiers this
// gateway accepts for schema names: no quoting games, no leading digits, no
// dots (which would let a value smuggle in a second object).
var validName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ErrInvalidName is returned when a proposed schema or role name doesn't
// match the conservative identifier grammar this package accepts.
type ErrInvalidName struct {
	Name string
}

func (e *ErrInvalidName) Error() string {
	return fmt.Sprintf("invalid identifier: %q", e.Name)
}

// Validate checks that name is safe to quote and use as a schema name.
func Validate(name string) error {
	if !validName.MatchString(name) {
		return &ErrInvalidName{Name: name}
	}
	return nil
}

// Quote validates and double-quotes name for use as a SQL identifier.
func Quote(name string) (string, error) {
	if err := Validate(name); err != nil {
		return "", err
	}
	return pq.QuoteIdentifier(name), nil
}

// QuoteLiteral single-quotes and escapes a string for use as a SQL string
// literal. (SET LOCAL search_path is built with Quote, not with this.)
func QuoteLiteral(s string) string {
	return pq.QuoteLiteral(s)
}

var nonWordRun = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// Slug turns an arbitrary name into a valid, lowercase identifier
// fragment, for admin tooling that proposes names rather than validating
// caller-supplied ones.
func Slug(s string) string {
	slug := nonWordRun.ReplaceAllString(s, "_")
	slug = strings.ToLower(strings.Trim(slug, "_"))
	if slug == "" {
		return "db"
	}
	if slug[0] >= '0' && slug[0] <= '9' {
		slug = "_" + slug
	}
	return slug
}
