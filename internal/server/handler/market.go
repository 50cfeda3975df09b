package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/friendbet/internal/domain"
	"github.com/alanyoungcy/friendbet/internal/service"
)

// MarketService defines the methods that the market handler requires from the
// service layer. It is declared locally so the handler package does not depend
// on the concrete service implementation.
type MarketService interface {
	CreateOneVsOneMarketPending(ctx context.Context, p service.CreateMarketParams) (int64, error)
	CreateSmallGroupMarketPending(ctx context.Context, marketType domain.MarketType, p service.CreateMarketParams) (int64, error)
	CreateBookmakerMarket(ctx context.Context, p service.CreateMarketParams) (int64, error)
	CancelPendingMarket(ctx context.Context, marketID int64, caller string) error
	ProcessExpiredDeadline(ctx context.Context, marketID int64) error
	GetMarket(ctx context.Context, marketID int64) (domain.FriendMarket, error)
	ListByStatus(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.FriendMarket, error)
	ListByParticipant(ctx context.Context, addr string, opts domain.ListOpts) ([]domain.FriendMarket, error)
	BatchStatus(ctx context.Context, ids []int64) (map[int64]domain.MarketStatus, error)
	Count(ctx context.Context) (int64, error)
}

// MarketHandler serves market lifecycle HTTP endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logger,
	}
}

// createMarketRequest is the JSON body shared by the create endpoints.
type createMarketRequest struct {
	Creator             string    `json:"creator"`
	Members             []string  `json:"members"`
	Arbitrator          string    `json:"arbitrator,omitempty"`
	ResolutionType      string    `json:"resolution_type"`
	StakeToken          string    `json:"stake_token"`
	StakePerParticipant string    `json:"stake_per_participant"`
	OpponentOddsBps     int64     `json:"opponent_odds_bps,omitempty"`
	AcceptanceDeadline  time.Time `json:"acceptance_deadline"`
	Threshold           int       `json:"threshold,omitempty"`
	MarketType          string    `json:"market_type,omitempty"`
	Description         string    `json:"description,omitempty"`
}

func (req *createMarketRequest) params() (service.CreateMarketParams, error) {
	stake, err := domain.ParseAmount(req.StakePerParticipant)
	if err != nil {
		return service.CreateMarketParams{}, err
	}
	return service.CreateMarketParams{
		Creator:             req.Creator,
		Members:             req.Members,
		Arbitrator:          req.Arbitrator,
		ResolutionType:      domain.ResolutionType(req.ResolutionType),
		StakeToken:          req.StakeToken,
		StakePerParticipant: stake,
		OpponentOddsBps:     req.OpponentOddsBps,
		AcceptanceDeadline:  req.AcceptanceDeadline,
		Threshold:           req.Threshold,
		Description:         req.Description,
	}, nil
}

type createMarketResponse struct {
	MarketID int64  `json:"market_id"`
	Status   string `json:"status"`
}

// CreateOneVsOne opens a two-party market pending the opponent's acceptance.
// POST /api/markets/one-vs-one
func (h *MarketHandler) CreateOneVsOne(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, func(ctx context.Context, req createMarketRequest, p service.CreateMarketParams) (int64, error) {
		return h.markets.CreateOneVsOneMarketPending(ctx, p)
	})
}

// CreateSmallGroup opens a multi-party market. The market_type field selects
// the small_group, event_tracking, or prop_bet variant.
// POST /api/markets/small-group
func (h *MarketHandler) CreateSmallGroup(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, func(ctx context.Context, req createMarketRequest, p service.CreateMarketParams) (int64, error) {
		marketType := domain.MarketSmallGroup
		if req.MarketType != "" {
			marketType = domain.MarketType(req.MarketType)
		}
		return h.markets.CreateSmallGroupMarketPending(ctx, marketType, p)
	})
}

// CreateBookmaker opens a two-party market with asymmetric odds.
// POST /api/markets/bookmaker
func (h *MarketHandler) CreateBookmaker(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, func(ctx context.Context, req createMarketRequest, p service.CreateMarketParams) (int64, error) {
		return h.markets.CreateBookmakerMarket(ctx, p)
	})
}

func (h *MarketHandler) create(w http.ResponseWriter, r *http.Request, fn func(context.Context, createMarketRequest, service.CreateMarketParams) (int64, error)) {
	var req createMarketRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := req.params()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := boundCaller(r, req.Creator); err != nil {
		writeDomainError(w, err)
		return
	}

	id, err := fn(r.Context(), req, p)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: create market failed",
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createMarketResponse{
		MarketID: id,
		Status:   string(domain.StatusPendingAcceptance),
	})
}

// callerRequest is the JSON body for endpoints acting on behalf of a caller.
type callerRequest struct {
	Caller string `json:"caller"`
}

// Cancel withdraws a pending market before anyone else has accepted.
// POST /api/markets/{id}/cancel
func (h *MarketHandler) Cancel(w http.ResponseWriter, r *http.Request) {
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

	if err := h.markets.CancelPendingMarket(r.Context(), id, req.Caller); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"status":    string(domain.StatusCancelled),
	})
}

// Expire refunds a pending market whose acceptance deadline has passed.
// Callable by anyone.
// POST /api/markets/{id}/expire
func (h *MarketHandler) Expire(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := h.markets.ProcessExpiredDeadline(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"status":    string(domain.StatusRefunded),
	})
}

// marketView is the JSON shape of a market record. Amounts are decimal
// strings.
type marketView struct {
	ID                     int64      `json:"id"`
	Type                   string     `json:"type"`
	Creator                string     `json:"creator"`
	Members                []string   `json:"members"`
	Arbitrator             string     `json:"arbitrator,omitempty"`
	ResolutionType         string     `json:"resolution_type"`
	StakeToken             string     `json:"stake_token"`
	StakePerParticipant    string     `json:"stake_per_participant"`
	OpponentOddsBps        int64      `json:"opponent_odds_bps,omitempty"`
	AcceptanceDeadline     time.Time  `json:"acceptance_deadline"`
	MinAcceptanceThreshold int        `json:"min_acceptance_threshold"`
	Status                 string     `json:"status"`
	Description            string     `json:"description,omitempty"`
	OracleID               string     `json:"oracle_id,omitempty"`
	ConditionID            string     `json:"condition_id,omitempty"`
	ProposedOutcome        *bool      `json:"proposed_outcome,omitempty"`
	ProposedBy             string     `json:"proposed_by,omitempty"`
	ChallengeDeadline      *time.Time `json:"challenge_deadline,omitempty"`
	Challenger             string     `json:"challenger,omitempty"`
	ChallengeBond          string     `json:"challenge_bond,omitempty"`
	DisputeOpen            bool       `json:"dispute_open"`
	Outcome                *bool      `json:"outcome,omitempty"`
	Winner                 string     `json:"winner,omitempty"`
	WinningsClaimed        bool       `json:"winnings_claimed"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

func toMarketView(m domain.FriendMarket) marketView {
	v := marketView{
		ID:                     m.ID,
		Type:                   string(m.Type),
		Creator:                m.Creator,
		Members:                m.Members,
		Arbitrator:             m.Arbitrator,
		ResolutionType:         string(m.ResolutionType),
		StakeToken:             m.StakeToken,
		StakePerParticipant:    domain.AmountString(m.StakePerParticipant),
		OpponentOddsBps:        m.OpponentOddsBps,
		AcceptanceDeadline:     m.AcceptanceDeadline,
		MinAcceptanceThreshold: m.MinAcceptanceThreshold,
		Status:                 string(m.Status),
		Description:            m.Description,
		OracleID:               m.OracleID,
		ConditionID:            m.ConditionID,
		ProposedOutcome:        m.ProposedOutcome,
		ProposedBy:             m.ProposedBy,
		ChallengeDeadline:      m.ChallengeDeadline,
		Challenger:             m.Challenger,
		DisputeOpen:            m.DisputeOpen,
		Outcome:                m.Outcome,
		Winner:                 m.Winner,
		WinningsClaimed:        m.WinningsClaimed,
		CreatedAt:              m.CreatedAt,
		UpdatedAt:              m.UpdatedAt,
	}
	if m.ChallengeBond != nil {
		v.ChallengeBond = m.ChallengeBond.String()
	}
	return v
}

// Get returns a single market by its id.
// GET /api/markets/{id}
func (h *MarketHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	m, err := h.markets.GetMarket(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMarketView(m))
}

// listMarketsResponse wraps the list endpoint output with metadata.
type listMarketsResponse struct {
	Markets []marketView `json:"markets"`
	Total   int64        `json:"total"`
	Limit   int          `json:"limit"`
	Offset  int          `json:"offset"`
}

// List returns markets filtered by status or participant.
// GET /api/markets?status=active&limit=50&offset=0
// GET /api/markets?participant=0x...&limit=50&offset=0
func (h *MarketHandler) List(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	var markets []domain.FriendMarket
	var err error
	if participant := r.URL.Query().Get("participant"); participant != "" {
		markets, err = h.markets.ListByParticipant(r.Context(), participant, opts)
	} else {
		status := domain.MarketStatus(r.URL.Query().Get("status"))
		if status == "" {
			status = domain.StatusActive
		}
		markets, err = h.markets.ListByStatus(r.Context(), status, opts)
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list markets failed",
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	total, err := h.markets.Count(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: count markets failed",
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	views := make([]marketView, 0, len(markets))
	for _, m := range markets {
		views = append(views, toMarketView(m))
	}
	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: views,
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// batchStatusRequest is the body of the batch status endpoint.
type batchStatusRequest struct {
	IDs []int64 `json:"ids"`
}

// BatchStatus returns the status of each existing id in one call.
// POST /api/markets/status
func (h *MarketHandler) BatchStatus(w http.ResponseWriter, r *http.Request) {
	var req batchStatusRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	statuses, err := h.markets.BatchStatus(r.Context(), req.IDs)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"statuses": statuses})
}
