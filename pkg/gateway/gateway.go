// SPDX-License-Identifier: Apache-2.0

// Package gateway wires the token, validator, store, and executor
// packages into postgate's two HTTP endpoints: /health and /query.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/openworkers/postgate/internal/logging"
	"github.com/openworkers/postgate/pkg/executor"
	"github.com/openworkers/postgate/pkg/store"
	"github.com/openworkers/postgate/pkg/token"
	"github.com/openworkers/postgate/pkg/validator"
)

// TokenStore resolves bearer tokens and looks up database configuration.
// *store.Store satisfies this; tests can supply a fake.
type TokenStore interface {
	ValidateToken(ctx context.Context, plaintext string) (*store.TokenInfo, error)
	GetDatabase(ctx context.Context, id uuid.UUID) (*store.DatabaseConfig, error)
}

// QueryExecutor runs a validated statement against a tenant database.
// *executor.Pool satisfies this; tests can supply a fake.
type QueryExecutor interface {
	Execute(ctx context.Context, cfg *store.DatabaseConfig, query *validator.ParsedQuery, params []json.RawMessage, maxRows int) (*executor.Result, error)
}

// Gateway handles incoming requests end to end.
type Gateway struct {
	Store          TokenStore
	Executor       QueryExecutor
	Log            logging.Logger
	DefaultTimeout time.Duration
}

type queryRequest struct {
	SQL    string            `json:"sql"`
	Params []json.RawMessage `json:"params"`
}

type queryResponse struct {
	Rows     []map[string]any `json:"rows"`
	RowCount int64            `json:"row_count"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type healthResponse struct {
	Status string `json:"status"`
}

// HandleHealth reports liveness. It never touches the store or executor:
// a degraded control plane shouldn't make the load balancer think the
// process itself is unhealthy.
func (g *Gateway) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

// HandleQuery authenticates the request, validates its statement against
// the token's permissions, executes it, and returns the rows as JSON.
func (g *Gateway) HandleQuery(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	ctx := r.Context()

	plaintext, err := token.ExtractFromHeader(r.Header)
	if err != nil {
		g.writeError(w, requestID, err)
		return
	}

	info, err := g.Store.ValidateToken(ctx, plaintext)
	if err != nil {
		g.writeError(w, requestID, err)
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.writeError(w, requestID, err)
		return
	}

	query, err := validator.Validate(req.SQL, info.AllowedOperations)
	if err != nil {
		g.writeError(w, requestID, err)
		return
	}

	cfg, err := g.Store.GetDatabase(ctx, info.DatabaseID)
	if err != nil {
		g.writeError(w, requestID, err)
		return
	}

	execCtx, cancel := context.WithTimeout(ctx, g.DefaultTimeout)
	defer cancel()

	result, err := g.Executor.Execute(execCtx, cfg, query, req.Params, cfg.MaxRows)
	if err != nil {
		g.writeError(w, requestID, err)
		return
	}

	g.Log.Info("query executed", []any{
		"request_id", requestID,
		"database_id", cfg.ID,
		"operation", string(query.Operation),
		"rows_affected", result.RowsAffected,
	})

	writeJSON(w, http.StatusOK, queryResponse{Rows: result.Rows, RowCount: result.RowsAffected})
}

func (g *Gateway) writeError(w http.ResponseWriter, requestID string, err error) {
	status, code := statusFor(err)

	g.Log.Warn("request failed", []any{
		"request_id", requestID,
		"status", status,
		"code", code,
		"error", err.Error(),
	})

	writeJSON(w, status, errorResponse{Error: err.Error(), Code: code})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
