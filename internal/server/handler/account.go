package handler

import (
	"context"
	"log/slog"
	"net/http"
)

// AccountService defines the custody methods the account handler requires.
type AccountService interface {
	Deposit(ctx context.Context, owner string, amount uint64) error
	Balance(ctx context.Context, account string) (uint64, error)
}

// AccountHandler serves custody account endpoints.
type AccountHandler struct {
	accounts AccountService
	logger   *slog.Logger
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(accounts AccountService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		accounts: accounts,
		logger:   logger,
	}
}

type depositRequest struct {
	Amount uint64 `json:"amount"`
}

// Deposit credits a custody account.
// POST /api/accounts/{owner}/deposit
func (h *AccountHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	owner := pathParam(r, "owner")
	if owner == "" {
		writeError(w, http.StatusBadRequest, "missing account owner")
		return
	}

	var req depositRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.accounts.Deposit(r.Context(), owner, req.Amount); err != nil {
		if writeDomainError(w, err) {
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: deposit failed",
			slog.String("owner", owner),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to deposit")
		return
	}

	balance, err := h.accounts.Balance(r.Context(), owner)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read balance")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"owner":   owner,
		"balance": balance,
	})
}

// Balance returns a custody account balance.
// GET /api/accounts/{owner}/balance
func (h *AccountHandler) Balance(w http.ResponseWriter, r *http.Request) {
	owner := pathParam(r, "owner")
	if owner == "" {
		writeError(w, http.StatusBadRequest, "missing account owner")
		return
	}

	balance, err := h.accounts.Balance(r.Context(), owner)
	if err != nil {
		if writeDomainError(w, err) {
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: balance failed",
			slog.String("owner", owner),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read balance")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"owner":   owner,
		"balance": balance,
	})
}
