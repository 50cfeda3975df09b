package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/alanyoungcy/friendbet/internal/domain"
)

// AcceptanceService defines what the acceptance handler needs from the
// service layer.
type AcceptanceService interface {
	AcceptMarket(ctx context.Context, marketID int64, caller string, payment *big.Int) error
	Status(ctx context.Context, marketID int64) (domain.AcceptanceStatus, error)
	StakeRequirement(ctx context.Context, marketID int64, participant string) (*big.Int, error)
	ListAcceptances(ctx context.Context, marketID int64) ([]domain.ParticipantAcceptance, error)
	PendingParticipants(ctx context.Context, marketID int64) ([]string, error)
}

// AcceptanceHandler serves acceptance-phase HTTP endpoints.
type AcceptanceHandler struct {
	accs   AcceptanceService
	logger *slog.Logger
}

// NewAcceptanceHandler creates an AcceptanceHandler.
func NewAcceptanceHandler(accs AcceptanceService, logger *slog.Logger) *AcceptanceHandler {
	return &AcceptanceHandler{
		accs:   accs,
		logger: logger,
	}
}

type acceptRequest struct {
	Caller  string `json:"caller"`
	Payment string `json:"payment"`
}

// Accept stakes the caller into a pending market.
// POST /api/markets/{id}/accept
func (h *AcceptanceHandler) Accept(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	var req acceptRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	payment, err := domain.ParseAmount(req.Payment)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := boundCaller(r, req.Caller); err != nil {
		writeDomainError(w, err)
		return
	}

	if err := h.accs.AcceptMarket(r.Context(), id, req.Caller, payment); err != nil {
		writeDomainError(w, err)
		return
	}

	status, err := h.accs.Status(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAcceptanceStatusView(status))
}

// acceptanceStatusView is the JSON shape of an acceptance summary.
type acceptanceStatusView struct {
	MarketID           int64  `json:"market_id"`
	Status             string `json:"status"`
	AcceptedCount      int    `json:"accepted_count"`
	Threshold          int    `json:"threshold"`
	Deadline           string `json:"deadline"`
	ArbitratorRequired bool   `json:"arbitrator_required"`
	ArbitratorAccepted bool   `json:"arbitrator_accepted"`
	TotalStaked        string `json:"total_staked"`
}

func toAcceptanceStatusView(s domain.AcceptanceStatus) acceptanceStatusView {
	return acceptanceStatusView{
		MarketID:           s.MarketID,
		Status:             string(s.Status),
		AcceptedCount:      s.AcceptedCount,
		Threshold:          s.Threshold,
		Deadline:           s.Deadline.UTC().Format(time.RFC3339),
		ArbitratorRequired: s.ArbitratorRequired,
		ArbitratorAccepted: s.ArbitratorAccepted,
		TotalStaked:        domain.AmountString(s.TotalStaked),
	}
}

// Status summarizes how close a pending market is to activation.
// GET /api/markets/{id}/acceptance
func (h *AcceptanceHandler) Status(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	status, err := h.accs.Status(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAcceptanceStatusView(status))
}

// StakeRequirement returns the exact stake a participant must post.
// GET /api/markets/{id}/stake?participant=0x...
func (h *AcceptanceHandler) StakeRequirement(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	participant := r.URL.Query().Get("participant")
	if participant == "" {
		writeError(w, http.StatusBadRequest, "missing participant")
		return
	}
	stake, err := h.accs.StakeRequirement(r.Context(), id, participant)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"market_id":   id,
		"participant": participant,
		"stake":       stake.String(),
	})
}

// acceptanceView is the JSON shape of one acceptance record.
type acceptanceView struct {
	Participant  string `json:"participant"`
	StakedAmount string `json:"staked_amount"`
	HasAccepted  bool   `json:"has_accepted"`
	IsArbitrator bool   `json:"is_arbitrator"`
	InvitedAt    string `json:"invited_at"`
	AcceptedAt   string `json:"accepted_at,omitempty"`
}

// ListAcceptances returns every invitation record of the market.
// GET /api/markets/{id}/acceptances
func (h *AcceptanceHandler) ListAcceptances(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	records, err := h.accs.ListAcceptances(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	views := make([]acceptanceView, 0, len(records))
	for _, rec := range records {
		v := acceptanceView{
			Participant:  rec.Participant,
			StakedAmount: domain.AmountString(rec.StakedAmount),
			HasAccepted:  rec.HasAccepted,
			IsArbitrator: rec.IsArbitrator,
			InvitedAt:    rec.InvitedAt.UTC().Format(time.RFC3339),
		}
		if rec.HasAccepted {
			v.AcceptedAt = rec.AcceptedAt.UTC().Format(time.RFC3339)
		}
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"market_id":   id,
		"acceptances": views,
	})
}

// PendingParticipants lists invitees that have not yet accepted.
// GET /api/markets/{id}/pending
func (h *AcceptanceHandler) PendingParticipants(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	pending, err := h.accs.PendingParticipants(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"pending":   pending,
	})
}
