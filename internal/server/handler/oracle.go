package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/alanyoungcy/friendbet/internal/domain"
)

// OracleService defines what the oracle handler needs from the service layer.
type OracleService interface {
	PegToOracleCondition(ctx context.Context, marketID int64, caller, oracleID, conditionID string) error
	ResolveFromOracle(ctx context.Context, marketID int64) error
	CreateCondition(ctx context.Context, oracleID, description string, deadline time.Time) (string, error)
	AssertOutcome(ctx context.Context, oracleID, conditionID string, outcome bool, asserter string, bond *big.Int) error
	SettleCondition(ctx context.Context, oracleID, conditionID string) (domain.Condition, error)
	CanAssert(ctx context.Context, oracleID, conditionID string) (bool, error)
	CanSettle(ctx context.Context, oracleID, conditionID string) (bool, error)
	GetCondition(ctx context.Context, oracleID, conditionID string) (domain.Condition, error)
	OracleIDs() []string
}

// OracleHandler serves the oracle bridge endpoints.
type OracleHandler struct {
	oracle OracleService
	logger *slog.Logger
}

// NewOracleHandler creates an OracleHandler.
func NewOracleHandler(oracle OracleService, logger *slog.Logger) *OracleHandler {
	return &OracleHandler{
		oracle: oracle,
		logger: logger,
	}
}

// ListOracles returns the registered oracle adapters.
// GET /api/oracles
func (h *OracleHandler) ListOracles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"oracles": h.oracle.OracleIDs()})
}

type pegRequest struct {
	Caller      string `json:"caller"`
	OracleID    string `json:"oracle_id"`
	ConditionID string `json:"condition_id"`
}

// Peg binds an active auto-pegged market to an oracle condition.
// POST /api/markets/{id}/peg
func (h *OracleHandler) Peg(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	var req pegRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := boundCaller(r, req.Caller); err != nil {
		writeDomainError(w, err)
		return
	}

	if err := h.oracle.PegToOracleCondition(r.Context(), id, req.Caller, req.OracleID, req.ConditionID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"market_id":    id,
		"oracle_id":    req.OracleID,
		"condition_id": req.ConditionID,
	})
}

// ResolveFromOracle settles a pegged market from its condition's verdict.
// POST /api/markets/{id}/resolve-from-oracle
func (h *OracleHandler) ResolveFromOracle(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := h.oracle.ResolveFromOracle(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"status":    string(domain.StatusResolved),
	})
}

type createConditionRequest struct {
	Description string    `json:"description"`
	Deadline    time.Time `json:"deadline"`
}

// CreateCondition registers a new condition with the named oracle.
// POST /api/oracles/{oracle}/conditions
func (h *OracleHandler) CreateCondition(w http.ResponseWriter, r *http.Request) {
	oracleID := r.PathValue("oracle")
	var req createConditionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	conditionID, err := h.oracle.CreateCondition(r.Context(), oracleID, req.Description, req.Deadline)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"oracle_id":    oracleID,
		"condition_id": conditionID,
	})
}

type assertRequest struct {
	Outcome  bool   `json:"outcome"`
	Asserter string `json:"asserter"`
	Bond     string `json:"bond"`
}

// AssertOutcome posts a bonded assertion on a condition.
// POST /api/oracles/{oracle}/conditions/{condition}/assert
func (h *OracleHandler) AssertOutcome(w http.ResponseWriter, r *http.Request) {
	oracleID := r.PathValue("oracle")
	conditionID := r.PathValue("condition")
	var req assertRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	bond, err := domain.ParseAmount(req.Bond)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := boundCaller(r, req.Asserter); err != nil {
		writeDomainError(w, err)
		return
	}

	if err := h.oracle.AssertOutcome(r.Context(), oracleID, conditionID, req.Outcome, req.Asserter, bond); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"condition_id": conditionID,
		"asserted":     req.Outcome,
	})
}

// SettleCondition finalizes an assertion whose liveness window has elapsed.
// POST /api/oracles/{oracle}/conditions/{condition}/settle
func (h *OracleHandler) SettleCondition(w http.ResponseWriter, r *http.Request) {
	oracleID := r.PathValue("oracle")
	conditionID := r.PathValue("condition")

	cond, err := h.oracle.SettleCondition(r.Context(), oracleID, conditionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toConditionView(cond))
}

// conditionView is the JSON shape of an oracle condition.
type conditionView struct {
	ID              string     `json:"id"`
	OracleID        string     `json:"oracle_id"`
	Description     string     `json:"description,omitempty"`
	Deadline        time.Time  `json:"deadline"`
	Status          string     `json:"status"`
	AssertedOutcome *bool      `json:"asserted_outcome,omitempty"`
	AssertedBy      string     `json:"asserted_by,omitempty"`
	AssertedAt      *time.Time `json:"asserted_at,omitempty"`
	AssertionBond   string     `json:"assertion_bond,omitempty"`
	LivenessEnd     *time.Time `json:"liveness_end,omitempty"`
	Outcome         *bool      `json:"outcome,omitempty"`
	Confidence      float64    `json:"confidence"`
	SettledAt       *time.Time `json:"settled_at,omitempty"`
	CanAssert       bool       `json:"can_assert"`
	CanSettle       bool       `json:"can_settle"`
}

func toConditionView(c domain.Condition) conditionView {
	v := conditionView{
		ID:              c.ID,
		OracleID:        c.OracleID,
		Description:     c.Description,
		Deadline:        c.Deadline,
		Status:          string(c.Status),
		AssertedOutcome: c.AssertedOutcome,
		AssertedBy:      c.AssertedBy,
		AssertedAt:      c.AssertedAt,
		LivenessEnd:     c.LivenessEnd,
		Outcome:         c.Outcome,
		Confidence:      c.Confidence,
		SettledAt:       c.SettledAt,
	}
	if c.AssertionBond != nil {
		v.AssertionBond = c.AssertionBond.String()
	}
	return v
}

// GetCondition returns a condition record with its scheduling flags.
// GET /api/oracles/{oracle}/conditions/{condition}
func (h *OracleHandler) GetCondition(w http.ResponseWriter, r *http.Request) {
	oracleID := r.PathValue("oracle")
	conditionID := r.PathValue("condition")

	cond, err := h.oracle.GetCondition(r.Context(), oracleID, conditionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	view := toConditionView(cond)
	if canAssert, err := h.oracle.CanAssert(r.Context(), oracleID, conditionID); err == nil {
		view.CanAssert = canAssert
	}
	if canSettle, err := h.oracle.CanSettle(r.Context(), oracleID, conditionID); err == nil {
		view.CanSettle = canSettle
	}
	writeJSON(w, http.StatusOK, view)
}
