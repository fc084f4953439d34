package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"custody_go/internal/domain"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]any{"error": errorBody{Code: code, Message: msg}})
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
}

func decodeJSON(b []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// statusOf maps an error kind to its HTTP status and error code.
func statusOf(err error) (int, string) {
	switch domain.KindOf(err) {
	case domain.ErrNotAuthorized:
		return http.StatusForbidden, "NOT_AUTHORIZED"
	case domain.ErrNotOwner:
		return http.StatusForbidden, "NOT_OWNER"
	case domain.ErrInsufficientBalance:
		return http.StatusConflict, "INSUFFICIENT_BALANCE"
	case domain.ErrOverflow:
		return http.StatusConflict, "OVERFLOW"
	case domain.ErrInvalidState:
		return http.StatusConflict, "INVALID_STATE"
	case domain.ErrInvalidAmount:
		return http.StatusBadRequest, "INVALID_AMOUNT"
	case domain.ErrInvalidPrincipal:
		return http.StatusBadRequest, "INVALID_PRINCIPAL"
	case domain.ErrNotListed:
		return http.StatusNotFound, "NOT_LISTED"
	case domain.ErrUnknownEscrow:
		return http.StatusNotFound, "UNKNOWN_ESCROW"
	case domain.ErrInvariant:
		return http.StatusInternalServerError, "INVARIANT"
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusServiceUnavailable, "TIMEOUT"
	}
	return http.StatusUnprocessableEntity, "REJECTED"
}
