// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"errors"
	"net/http"

	"github.com/openworkers/postgate/pkg/executor"
	"github.com/openworkers/postgate/pkg/store"
	"github.com/openworkers/postgate/pkg/token"
	"github.com/openworkers/postgate/pkg/validator"
)

// statusFor maps an error from anywhere in the pipeline (token
// extraction, token resolution, SQL validation, execution) onto the HTTP
// status and stable error code returned to the caller, per the
// status-code mapping table: parse/validation failures are all
// PARSE_ERROR, regardless of which validator rule tripped. This is the
// only place that performs that mapping.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, token.ErrMissingBearer):
		return http.StatusUnauthorized, "UNAUTHORIZED"

	case isA[*store.InvalidTokenError](err):
		return http.StatusUnauthorized, "UNAUTHORIZED"

	case isA[*store.DatabaseNotFoundError](err):
		return http.StatusNotFound, "DATABASE_NOT_FOUND"

	case isA[*validator.EmptyQueryError](err):
		return http.StatusBadRequest, "PARSE_ERROR"
	case isA[*validator.ParseErr](err):
		return http.StatusBadRequest, "PARSE_ERROR"
	case isA[*validator.MultipleStatementsError](err):
		return http.StatusBadRequest, "PARSE_ERROR"
	case isA[*validator.UnsupportedStatementError](err):
		return http.StatusBadRequest, "PARSE_ERROR"
	case isA[*validator.OperationNotAllowedError](err):
		return http.StatusBadRequest, "PARSE_ERROR"
	case isA[*validator.QualifiedTableNameError](err):
		return http.StatusBadRequest, "PARSE_ERROR"
	case isA[*validator.SystemTableAccessError](err):
		return http.StatusBadRequest, "PARSE_ERROR"

	case isA[*executor.TimeoutError](err):
		return http.StatusGatewayTimeout, "TIMEOUT"
	case isA[*executor.RowLimitExceededError](err):
		return http.StatusBadRequest, "ROW_LIMIT_EXCEEDED"
	case isA[*executor.ExecutionError](err):
		return http.StatusInternalServerError, "DATABASE_ERROR"

	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

func isA[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}
