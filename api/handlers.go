/*
handlers.go - HTTP handlers for the ledger service

PURPOSE:
  Exposes the settlement engine and query service over HTTP. Handles
  request parsing, shape validation and status-code mapping; all domain
  decisions live in the ledger package.

ENDPOINTS:
  POST /clients/{id}/transactions  Settle a debit or credit
  GET  /clients/{id}/extrato       Balance + last 10 transactions

ERROR HANDLING:
  - 400: malformed body or shape-invalid input (never reaches the engine)
  - 404: unknown account id
  - 422: transaction would breach the overdraft limit
  - 500: storage fault / retry budget exhausted

SEE ALSO:
  - dto.go: Request/response shapes
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/warp/ledger-engine/ledger"
)

// Handler holds the dependencies for HTTP handlers.
type Handler struct {
	Engine *ledger.Engine
	Query  *ledger.Query
}

// NewHandler creates a handler over the settlement engine and the
// read-only query service.
func NewHandler(engine *ledger.Engine, query *ledger.Query) *Handler {
	return &Handler{Engine: engine, Query: query}
}

// accountID parses the {id} route parameter. A non-numeric id can never
// reference a provisioned account, so it maps to not-found.
func accountID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil
}

// CreateTransaction settles a debit or credit against the account.
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Account not found")
		return
	}

	var req TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	tx, err := ledger.NewTransaction(req.Tipo, req.Valor, req.Descricao)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	settlement, err := h.Engine.Apply(r.Context(), id, tx)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, TransactionResponse{
			Limite: settlement.Limit,
			Saldo:  settlement.Balance,
		})
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Account not found")
	case ledger.IsInvariantViolation(err):
		writeError(w, http.StatusUnprocessableEntity, "Transaction exceeds overdraft limit")
	default:
		log.Printf("api: settle transaction for account %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "Failed to settle transaction")
	}
}

// GetExtract returns the balance plus recent-history view.
func (h *Handler) GetExtract(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Account not found")
		return
	}

	extract, err := h.Query.Extract(r.Context(), id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, toExtractResponse(extract))
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Account not found")
	default:
		log.Printf("api: extract for account %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "Failed to compose extract")
	}
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
