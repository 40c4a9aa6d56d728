package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"venuelink.org/internal/audit"
	"venuelink.org/internal/auth"
)

// errorEnvelope is the wire shape every error response uses.
type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code          string   `json:"code"`
	Message       string   `json:"message"`
	Details       []string `json:"details,omitempty"`
	CorrelationID string   `json:"correlationId,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string, details ...string) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{
		Code:          code,
		Message:       msg,
		Details:       details,
		CorrelationID: audit.CorrelationID(r.Context()),
	}})
}

// writeAuthError maps the auth error taxonomy onto status codes and
// stable error codes. Token-family compromise intentionally looks like
// any other credential failure on the wire.
func writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrWeakPassword):
		writeError(w, r, http.StatusBadRequest, "weak_password", "password does not meet the minimum policy", policyDetails(err)...)
	case errors.Is(err, auth.ErrEmailTaken):
		writeError(w, r, http.StatusConflict, "email_taken", "email is already registered")
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrRevoked):
		writeError(w, r, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
	case errors.Is(err, auth.ErrExpired):
		writeError(w, r, http.StatusUnauthorized, "token_expired", "token has expired")
	case errors.Is(err, auth.ErrBadSignature), errors.Is(err, auth.ErrMalformed):
		writeError(w, r, http.StatusUnauthorized, "invalid_token", "token is invalid")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "forbidden", "permission denied")
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, auth.ErrRateLimited):
		writeError(w, r, http.StatusTooManyRequests, "rate_limited", "too many requests")
	case errors.Is(err, auth.ErrStoreUnavailable):
		// Never echo store internals; the condition is in the logs.
		_ = audit.LogEvent(r.Context(), "auth.store_unavailable", map[string]any{"error": err.Error()})
		writeError(w, r, http.StatusServiceUnavailable, "service_unavailable", "service temporarily unavailable")
	default:
		_ = audit.LogEvent(r.Context(), "http.internal_error", map[string]any{"error": err.Error()})
		writeError(w, r, http.StatusInternalServerError, "internal", "internal error")
	}
}

// policyDetails extracts the failing password rule, if present, as a
// detail line without leaking anything else.
func policyDetails(err error) []string {
	msg := err.Error()
	if i := strings.Index(msg, ": "); i >= 0 && i+2 < len(msg) {
		return []string{msg[i+2:]}
	}
	return nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}
