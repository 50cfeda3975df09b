package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/alanyoungcy/friendbet/internal/domain"
)

// VaultService defines what the vault handler needs from the escrow layer.
type VaultService interface {
	Balance(ctx context.Context, marketID int64, token string) (*big.Int, error)
	Buckets(ctx context.Context, marketID int64) ([]domain.VaultBucket, error)
	Pause()
	Resume()
	Paused() bool
}

// VaultHandler serves collateral inspection and the operator pause switch.
type VaultHandler struct {
	vault  VaultService
	logger *slog.Logger
}

// NewVaultHandler creates a VaultHandler.
func NewVaultHandler(vault VaultService, logger *slog.Logger) *VaultHandler {
	return &VaultHandler{
		vault:  vault,
		logger: logger,
	}
}

// Balance returns the escrowed balance of one token bucket.
// GET /api/markets/{id}/vault/balance?token=USDC
func (h *VaultHandler) Balance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "missing token")
		return
	}

	balance, err := h.vault.Balance(r.Context(), id, token)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"token":     token,
		"balance":   balance.String(),
	})
}

// bucketView is the JSON shape of a vault bucket.
type bucketView struct {
	Token     string    `json:"token"`
	Balance   string    `json:"balance"`
	Deposited string    `json:"deposited"`
	Withdrawn string    `json:"withdrawn"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Buckets returns every token bucket of the market.
// GET /api/markets/{id}/vault
func (h *VaultHandler) Buckets(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	buckets, err := h.vault.Buckets(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	views := make([]bucketView, 0, len(buckets))
	for _, b := range buckets {
		views = append(views, bucketView{
			Token:     b.Token,
			Balance:   domain.AmountString(b.Balance),
			Deposited: domain.AmountString(b.Deposited),
			Withdrawn: domain.AmountString(b.Withdrawn),
			UpdatedAt: b.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"buckets":   views,
	})
}

// Pause halts all vault fund movement.
// POST /api/vault/pause
func (h *VaultHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.vault.Pause()
	h.logger.WarnContext(r.Context(), "handler: vault paused")
	writeJSON(w, http.StatusOK, map[string]any{"paused": true})
}

// Resume re-enables vault fund movement.
// POST /api/vault/resume
func (h *VaultHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.vault.Resume()
	h.logger.InfoContext(r.Context(), "handler: vault resumed")
	writeJSON(w, http.StatusOK, map[string]any{"paused": false})
}

// Status reports the pause switch.
// GET /api/vault/status
func (h *VaultHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"paused": h.vault.Paused()})
}
