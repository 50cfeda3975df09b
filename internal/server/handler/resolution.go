package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/alanyoungcy/friendbet/internal/domain"
)

// ResolutionService defines what the resolution handler needs from the
// service layer.
type ResolutionService interface {
	ResolveFriendMarket(ctx context.Context, marketID int64, caller string, outcome bool) error
	ChallengeResolution(ctx context.Context, marketID int64, caller string, bond *big.Int) error
	ResolveDispute(ctx context.Context, marketID int64, caller string, outcome bool) error
	FinalizeResolution(ctx context.Context, marketID int64) error
	ClaimWinnings(ctx context.Context, marketID int64, caller string) (*big.Int, error)
}

// ResolutionHandler serves the propose/challenge/finalize/claim endpoints.
type ResolutionHandler struct {
	resolution ResolutionService
	logger     *slog.Logger
}

// NewResolutionHandler creates a ResolutionHandler.
func NewResolutionHandler(resolution ResolutionService, logger *slog.Logger) *ResolutionHandler {
	return &ResolutionHandler{
		resolution: resolution,
		logger:     logger,
	}
}

type outcomeRequest struct {
	Caller  string `json:"caller"`
	Outcome bool   `json:"outcome"`
}

// Resolve proposes an outcome, opening the challenge window.
// POST /api/markets/{id}/resolve
func (h *ResolutionHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	var req outcomeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := boundCaller(r, req.Caller); err != nil {
		writeDomainError(w, err)
		return
	}

	if err := h.resolution.ResolveFriendMarket(r.Context(), id, req.Caller, req.Outcome); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"proposed":  req.Outcome,
	})
}

type challengeRequest struct {
	Caller string `json:"caller"`
	Bond   string `json:"bond"`
}

// Challenge disputes the pending proposal before its deadline, posting a
// bond.
// POST /api/markets/{id}/challenge
func (h *ResolutionHandler) Challenge(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	var req challengeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	bond, err := domain.ParseAmount(req.Bond)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := boundCaller(r, req.Caller); err != nil {
		writeDomainError(w, err)
		return
	}

	if err := h.resolution.ChallengeResolution(r.Context(), id, req.Caller, bond); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"disputed":  true,
	})
}

// ResolveDispute adjudicates a challenged proposal and finalizes the market.
// POST /api/markets/{id}/dispute/resolve
func (h *ResolutionHandler) ResolveDispute(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	var req outcomeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := boundCaller(r, req.Caller); err != nil {
		writeDomainError(w, err)
		return
	}

	if err := h.resolution.ResolveDispute(r.Context(), id, req.Caller, req.Outcome); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"status":    string(domain.StatusResolved),
		"outcome":   req.Outcome,
	})
}

// Finalize finalizes an unchallenged proposal after the challenge window.
// Callable by anyone.
// POST /api/markets/{id}/finalize
func (h *ResolutionHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := h.resolution.FinalizeResolution(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"status":    string(domain.StatusResolved),
	})
}

// Claim pays the pot to the winner exactly once.
// POST /api/markets/{id}/claim
func (h *ResolutionHandler) Claim(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	var req callerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := boundCaller(r, req.Caller); err != nil {
		writeDomainError(w, err)
		return
	}

	paid, err := h.resolution.ClaimWinnings(r.Context(), id, req.Caller)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: claim failed",
			slog.Int64("market_id", id),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"paid":      paid.String(),
	})
}
