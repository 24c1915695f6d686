// Package handler serves the HTTP API for the settlement core.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/soliseum/arenad/internal/domain"
)

// writeJSON marshals v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps domain sentinel errors to HTTP status codes. The
// error text sent to the client is the sentinel's message, not the full
// wrapped chain.
func writeDomainError(w http.ResponseWriter, err error) bool {
	for _, m := range domainStatusMap {
		if errors.Is(err, m.err) {
			writeError(w, m.status, m.err.Error())
			return true
		}
	}
	return false
}

var domainStatusMap = []struct {
	err    error
	status int
}{
	{domain.ErrNotFound, http.StatusNotFound},
	{domain.ErrAlreadyExists, http.StatusConflict},
	{domain.ErrInvalidArenaState, http.StatusConflict},
	{domain.ErrAlreadyClaimed, http.StatusConflict},
	{domain.ErrLockHeld, http.StatusConflict},
	{domain.ErrUnauthorizedOracle, http.StatusForbidden},
	{domain.ErrInsufficientSignatures, http.StatusForbidden},
	{domain.ErrDuplicateOracle, http.StatusForbidden},
	{domain.ErrInvalidOracleIndex, http.StatusForbidden},
	{domain.ErrInvalidSignature, http.StatusForbidden},
	{domain.ErrInvalidOracleConfig, http.StatusBadRequest},
	{domain.ErrMathOverflow, http.StatusUnprocessableEntity},
	{domain.ErrInsufficientFunds, http.StatusUnprocessableEntity},
	{domain.ErrRateLimited, http.StatusTooManyRequests},
}

// parseListOpts extracts pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}

// pathParam extracts a named path parameter using Go 1.22+ routing.
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// decodeBody decodes a JSON request body into dst, rejecting unknown fields.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
