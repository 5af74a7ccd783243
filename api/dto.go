/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures of the external contract. Field names
  (valor, tipo, descricao, saldo, limite, ...) are fixed by that
  contract and decoupled from the internal domain model.

NAMING CONVENTION:
  - *Request: Request body types from clients
  - *Response: Response types returned to clients

VALIDATION:
  DTOs are pure data carriers. Semantic validation happens once, in
  ledger.NewTransaction, called from the handler.
*/
package api

import (
	"time"

	"github.com/warp/ledger-engine/ledger"
)

// TransactionRequest is the body of POST /clients/{id}/transactions.
type TransactionRequest struct {
	Valor     int64  `json:"valor"`
	Tipo      string `json:"tipo"`
	Descricao string `json:"descricao"`
}

// TransactionResponse is returned after a successful settlement.
type TransactionResponse struct {
	Limite int64 `json:"limite"`
	Saldo  int64 `json:"saldo"`
}

// BalanceResponse is the saldo object of the extract view.
type BalanceResponse struct {
	Total       int64     `json:"total"`
	Limite      int64     `json:"limite"`
	DataExtrato time.Time `json:"data_extrato"`
}

// TransactionEntry is one settled transaction in the extract view.
type TransactionEntry struct {
	Valor       int64     `json:"valor"`
	Tipo        string    `json:"tipo"`
	Descricao   string    `json:"descricao"`
	RealizadaEm time.Time `json:"realizada_em"`
}

// ExtractResponse is the body of GET /clients/{id}/extrato.
type ExtractResponse struct {
	Saldo             BalanceResponse    `json:"saldo"`
	UltimasTransacoes []TransactionEntry `json:"ultimas_transacoes"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

func toExtractResponse(e ledger.Extract) ExtractResponse {
	entries := make([]TransactionEntry, len(e.Transactions))
	for i, tx := range e.Transactions {
		entries[i] = TransactionEntry{
			Valor:       tx.Amount,
			Tipo:        string(tx.Kind),
			Descricao:   tx.Description,
			RealizadaEm: tx.OccurredAt,
		}
	}
	return ExtractResponse{
		Saldo: BalanceResponse{
			Total:       e.Balance,
			Limite:      e.Limit,
			DataExtrato: e.ComputedAt,
		},
		UltimasTransacoes: entries,
	}
}
