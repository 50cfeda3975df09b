package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/friendbet/internal/domain"
	"github.com/alanyoungcy/friendbet/internal/server/middleware"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
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

// writeDomainError maps a domain sentinel to an HTTP status and writes the
// error. Unknown errors become an opaque 500; the caller is expected to have
// logged them.
func writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := "internal server error"

	switch {
	case errors.Is(err, domain.ErrInvalidMarketID),
		errors.Is(err, domain.ErrInvalidParameters),
		errors.Is(err, domain.ErrDeadlineInPast),
		errors.Is(err, domain.ErrUnsupported):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrNotFound):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrUnauthorized),
		errors.Is(err, domain.ErrNotWinner),
		errors.Is(err, domain.ErrNotInvited):
		status, msg = http.StatusForbidden, err.Error()
	case errors.Is(err, domain.ErrInsufficientPayment):
		status, msg = http.StatusPaymentRequired, err.Error()
	case errors.Is(err, domain.ErrNotPending),
		errors.Is(err, domain.ErrDeadlinePassed),
		errors.Is(err, domain.ErrDeadlineNotReached),
		errors.Is(err, domain.ErrAlreadyAccepted),
		errors.Is(err, domain.ErrAlreadyResolved),
		errors.Is(err, domain.ErrProposalPending),
		errors.Is(err, domain.ErrAlreadyClaimed),
		errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, domain.ErrNotResolved),
		errors.Is(err, domain.ErrDisputePending),
		errors.Is(err, domain.ErrChallengeWindowOpen),
		errors.Is(err, domain.ErrConditionNotResolved),
		errors.Is(err, domain.ErrVaultPaused),
		errors.Is(err, domain.ErrTransferFailed),
		errors.Is(err, domain.ErrLockHeld):
		status, msg = http.StatusConflict, err.Error()
	}

	writeError(w, status, msg)
}

// parseListOpts extracts standard pagination parameters from the query string.
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

// pathID extracts a numeric {id} path parameter using Go 1.22+ built-in
// routing (http.Request.PathValue).
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.ErrInvalidMarketID
	}
	return id, nil
}

// boundCaller checks a body-supplied acting address against the
// signature-verified address bound to the request. A signed request may only
// act as its signer; requests that carry no verified identity (signatures
// not required and none sent) pass through.
func boundCaller(r *http.Request, caller string) error {
	verified, ok := middleware.VerifiedCaller(r.Context())
	if !ok {
		return nil
	}
	addr, err := domain.NormalizeAddress(caller)
	if err != nil {
		return fmt.Errorf("handler: %w: %v", domain.ErrInvalidParameters, err)
	}
	if addr != verified {
		return fmt.Errorf("handler: caller %s is not the request signer: %w",
			addr, domain.ErrUnauthorized)
	}
	return nil
}

// decodeBody decodes the JSON request body into v, rejecting unknown fields.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// logHandler is a convenience to attach slog fields in handler code.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}
