// SPDX-License-Identifier: Apache-2.0

// Package validator parses and classifies a single SQL statement using the
// real PostgreSQL grammar, so that the gateway can enforce a per-token
// operation whitelist before handing the statement to the executor.
package validator

import (
	"fmt"
	"strings"

	pgquery "github.com/pganalyze/pg_query_go/v6"
)

// Operation is one of the coarse SQL operation classes a token can be
// granted permission for.
type Operation string

const (
	OpSelect Operation = "SELECT"
	OpInsert Operation = "INSERT"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
	OpCreate Operation = "CREATE"
	OpAlter  Operation = "ALTER"
	OpDrop   Operation = "DROP"
)

// TableRef identifies a table referenced by a statement. Schema is empty
// when the reference was unqualified.
type TableRef struct {
	Schema string
	Name   string
}

// ParsedQuery is the result of successfully validating a statement.
type ParsedQuery struct {
	SQL         string
	Operation   Operation
	Tables      []TableRef
	ReturnsRows bool
}

// EmptyQueryError is returned for a statement that is empty or whitespace-only.
type EmptyQueryError struct{}

func (e *EmptyQueryError) Error() string { return "query is empty" }

// ParseErr wraps a syntax error reported by the PostgreSQL grammar.
type ParseErr struct {
	Err error
}

func (e *ParseErr) Error() string { return fmt.Sprintf("failed to parse sql: %s", e.Err) }
func (e *ParseErr) Unwrap() error { return e.Err }

// MultipleStatementsError is returned when the input contains more than one
// statement; postgate only ever executes a single statement per request.
type MultipleStatementsError struct {
	Count int
}

func (e *MultipleStatementsError) Error() string {
	return fmt.Sprintf("expected exactly one statement, got %d", e.Count)
}

// UnsupportedStatementError is returned for statement types the gateway
// does not classify into one of the known operations (SET, COPY, GRANT,
// DO blocks, and so on).
type UnsupportedStatementError struct{}

func (e *UnsupportedStatementError) Error() string { return "unsupported statement type" }

// OperationNotAllowedError is returned when the statement's operation is
// not present in the caller's allowed set.
type OperationNotAllowedError struct {
	Operation Operation
}

func (e *OperationNotAllowedError) Error() string {
	return fmt.Sprintf("operation %s is not allowed for this token", e.Operation)
}

// QualifiedTableNameError is returned when a statement references a table
// with an explicit schema qualifier. Schema-backend isolation depends on
// the tenant never naming another schema directly, so qualified
// references are rejected outright rather than checked against a list.
type QualifiedTableNameError struct {
	Table TableRef
}

func (e *QualifiedTableNameError) Error() string {
	return fmt.Sprintf("qualified table name %s.%s is not allowed", e.Table.Schema, e.Table.Name)
}

// SystemTableAccessError is returned when a statement references a
// pg_-prefixed catalog table or information_schema, both of which would
// let a tenant read across the whole cluster regardless of search_path.
type SystemTableAccessError struct {
	Table TableRef
}

func (e *SystemTableAccessError) Error() string {
	return fmt.Sprintf("access to system table %s is not allowed", e.Table.Name)
}

// Validate parses sql, ensures it is exactly one statement, classifies its
// operation, checks that operation against allowed, and extracts the
// tables it references. allowed nil or empty denies every operation.
// The tables collected and checked are the statement's target relation
// and the plain tables of its top-level FROM, JOIN and USING clauses;
// tables named inside subqueries, CTEs, expressions or a view's defining
// query are not collected and so are not checked.
func Validate(sql string, allowed map[Operation]bool) (*ParsedQuery, error) {
	trimmed := trimSQL(sql)
	if trimmed == "" {
		return nil, &EmptyQueryError{}
	}

	result, err := pgquery.Parse(sql)
	if err != nil {
		return nil, &ParseErr{Err: err}
	}

	if len(result.GetStmts()) == 0 {
		return nil, &EmptyQueryError{}
	}
	if len(result.GetStmts()) > 1 {
		return nil, &MultipleStatementsError{Count: len(result.GetStmts())}
	}

	node := result.GetStmts()[0].GetStmt()

	op, tables, returnsRows, err := classify(node)
	if err != nil {
		return nil, err
	}

	for _, table := range tables {
		if err := checkTableAccess(table); err != nil {
			return nil, err
		}
	}

	if !allowed[op] {
		return nil, &OperationNotAllowedError{Operation: op}
	}

	return &ParsedQuery{
		SQL:         sql,
		Operation:   op,
		Tables:      tables,
		ReturnsRows: returnsRows,
	}, nil
}

func trimSQL(sql string) string {
	i := 0
	for i < len(sql) {
		switch sql[i] {
		case ' ', '\t', '\n', '\r', ';':
			i++
			continue
		}
		break
	}
	j := len(sql)
	for j > i {
		switch sql[j-1] {
		case ' ', '\t', '\n', '\r', ';':
			j--
			continue
		}
		break
	}
	return sql[i:j]
}

// classify inspects the single top-level node produced by the parser and
// returns its operation class, the tables it touches, and whether
// executing it produces rows the caller should receive back.
func classify(node *pgquery.Node) (Operation, []TableRef, bool, error) {
	switch n := node.GetNode().(type) {
	case *pgquery.Node_SelectStmt:
		tables := collectFromClause(n.SelectStmt.GetFromClause())
		return OpSelect, tables, true, nil

	case *pgquery.Node_InsertStmt:
		tables := []TableRef{rangeVarRef(n.InsertStmt.GetRelation())}
		returnsRows := len(n.InsertStmt.GetReturningList()) > 0
		return OpInsert, tables, returnsRows, nil

	case *pgquery.Node_UpdateStmt:
		tables := []TableRef{rangeVarRef(n.UpdateStmt.GetRelation())}
		tables = append(tables, collectFromClause(n.UpdateStmt.GetFromClause())...)
		returnsRows := len(n.UpdateStmt.GetReturningList()) > 0
		return OpUpdate, tables, returnsRows, nil

	case *pgquery.Node_DeleteStmt:
		tables := []TableRef{rangeVarRef(n.DeleteStmt.GetRelation())}
		tables = append(tables, collectFromClause(n.DeleteStmt.GetUsingClause())...)
		returnsRows := len(n.DeleteStmt.GetReturningList()) > 0
		return OpDelete, tables, returnsRows, nil

	case *pgquery.Node_CreateStmt:
		return OpCreate, []TableRef{rangeVarRef(n.CreateStmt.GetRelation())}, false, nil

	case *pgquery.Node_IndexStmt:
		return OpCreate, []TableRef{rangeVarRef(n.IndexStmt.GetRelation())}, false, nil

	case *pgquery.Node_ViewStmt:
		return OpCreate, []TableRef{rangeVarRef(n.ViewStmt.GetView())}, false, nil

	case *pgquery.Node_AlterTableStmt:
		return OpAlter, []TableRef{rangeVarRef(n.AlterTableStmt.GetRelation())}, false, nil

	case *pgquery.Node_DropStmt:
		return OpDrop, collectDropObjects(n.DropStmt.GetObjects()), false, nil

	case *pgquery.Node_TruncateStmt:
		tables := make([]TableRef, 0, len(n.TruncateStmt.GetRelations()))
		for _, rel := range n.TruncateStmt.GetRelations() {
			if rv := rel.GetRangeVar(); rv != nil {
				tables = append(tables, rangeVarRef(rv))
			}
		}
		return OpDrop, tables, false, nil

	default:
		return "", nil, false, &UnsupportedStatementError{}
	}
}

// checkTableAccess applies spec.md's table-qualification rules: a schema
// on the reference, or a name that could reach the catalog or
// information_schema regardless of search_path, is rejected unconditionally
// rather than checked against any allow/deny list.
func checkTableAccess(table TableRef) error {
	if table.Schema != "" {
		return &QualifiedTableNameError{Table: table}
	}

	lower := strings.ToLower(table.Name)
	if strings.HasPrefix(lower, "pg_") || lower == "information_schema" {
		return &SystemTableAccessError{Table: table}
	}

	return nil
}

func rangeVarRef(rv *pgquery.RangeVar) TableRef {
	if rv == nil {
		return TableRef{}
	}
	return TableRef{Schema: rv.GetSchemaname(), Name: rv.GetRelname()}
}

// collectFromClause walks a FROM/USING clause, descending into joins, and
// returns every plain table reference it finds. Subqueries and function
// calls in the FROM list contribute no table reference of their own.
func collectFromClause(items []*pgquery.Node) []TableRef {
	var tables []TableRef
	for _, item := range items {
		tables = append(tables, collectFromItem(item)...)
	}
	return tables
}

func collectFromItem(item *pgquery.Node) []TableRef {
	if item == nil {
		return nil
	}
	switch n := item.GetNode().(type) {
	case *pgquery.Node_RangeVar:
		return []TableRef{rangeVarRef(n.RangeVar)}
	case *pgquery.Node_JoinExpr:
		var tables []TableRef
		tables = append(tables, collectFromItem(n.JoinExpr.GetLarg())...)
		tables = append(tables, collectFromItem(n.JoinExpr.GetRarg())...)
		return tables
	default:
		return nil
	}
}

// collectDropObjects extracts table references from a DROP statement's
// object list, where each object is a qualified-name list of String nodes
// rather than a RangeVar.
func collectDropObjects(objects []*pgquery.Node) []TableRef {
	var tables []TableRef
	for _, obj := range objects {
		list := obj.GetList()
		if list == nil {
			continue
		}
		parts := make([]string, 0, len(list.GetItems()))
		for _, item := range list.GetItems() {
			if s := item.GetString_(); s != nil {
				parts = append(parts, s.GetSval())
			}
		}
		switch {
		case len(parts) == 1:
			tables = append(tables, TableRef{Name: parts[0]})
		case len(parts) >= 2:
			tables = append(tables, TableRef{Schema: parts[len(parts)-2], Name: parts[len(parts)-1]})
		}
	}
	return tables
}
