// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"database/sql"
	"encoding/json"
)

// rowsToJSON drains rows into a slice of column-name-to-value maps,
// converting each value per its reported Postgres type, and enforces
// maxRows by erroring out rather than truncating silently.
func rowsToJSON(rows *sql.Rows, maxRows int) ([]map[string]any, error) {
	cols, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0)

	for rows.Next() {
		if len(out) >= maxRows {
			return nil, &RowLimitExceededError{Limit: maxRows}
		}

		values := make([]any, len(cols))
		for i, col := range cols {
			values[i] = newScanDest(col.DatabaseTypeName())
		}

		if err := rows.Scan(values...); err != nil {
			return nil, err
		}

		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col.Name()] = scannedValue(col.DatabaseTypeName(), values[i])
		}
		out = append(out, row)
	}

	return out, rows.Err()
}

// newScanDest returns a pointer suitable for Rows.Scan for the given
// Postgres type name, matching the classification in scannedValue.
func newScanDest(typeName string) any {
	switch typeName {
	case "BOOL":
		return new(sql.NullBool)
	case "INT2", "INT4", "INT8":
		return new(sql.NullInt64)
	case "FLOAT4", "FLOAT8":
		return new(sql.NullFloat64)
	case "JSON", "JSONB":
		return new(sql.NullString)
	default:
		return new(sql.NullString)
	}
}

// scannedValue converts a scanned destination into the JSON-ready value
// for its column, following the same type-name switch every Postgres
// driver in the database/sql ecosystem reports via ColumnType.
func scannedValue(typeName string, dest any) any {
	switch typeName {
	case "BOOL":
		v := dest.(*sql.NullBool)
		if !v.Valid {
			return nil
		}
		return v.Bool

	case "INT2", "INT4", "INT8":
		v := dest.(*sql.NullInt64)
		if !v.Valid {
			return nil
		}
		return v.Int64

	case "FLOAT4", "FLOAT8":
		v := dest.(*sql.NullFloat64)
		if !v.Valid {
			return nil
		}
		return v.Float64

	case "JSON", "JSONB":
		v := dest.(*sql.NullString)
		if !v.Valid {
			return nil
		}
		var parsed any
		if err := json.Unmarshal([]byte(v.String), &parsed); err != nil {
			return v.String
		}
		return parsed

	default:
		// TEXT, VARCHAR, CHAR, NAME, BPCHAR, UUID, and anything else
		// the driver reports a type name for arrive as their Postgres
		// text form. TIMESTAMPTZ, TIMESTAMP, DATE and TIME arrive from
		// lib/pq as time.Time, which database/sql formats as an RFC 3339
		// string when scanning into a string.
		v := dest.(*sql.NullString)
		if !v.Valid {
			return nil
		}
		return v.String
	}
}
