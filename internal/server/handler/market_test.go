package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/friendbet/internal/domain"
	"github.com/alanyoungcy/friendbet/internal/service"
)

// stubMarketService returns canned values; each func field may be nil when a
// test does not exercise the call.
type stubMarketService struct {
	createErr error
	cancelErr error
	market    domain.FriendMarket
	getErr    error
}

func (s *stubMarketService) CreateOneVsOneMarketPending(ctx context.Context, p service.CreateMarketParams) (int64, error) {
	if s.createErr != nil {
		return 0, s.createErr
	}
	return 7, nil
}

func (s *stubMarketService) CreateSmallGroupMarketPending(ctx context.Context, marketType domain.MarketType, p service.CreateMarketParams) (int64, error) {
	if s.createErr != nil {
		return 0, s.createErr
	}
	return 8, nil
}

func (s *stubMarketService) CreateBookmakerMarket(ctx context.Context, p service.CreateMarketParams) (int64, error) {
	if s.createErr != nil {
		return 0, s.createErr
	}
	return 9, nil
}

func (s *stubMarketService) CancelPendingMarket(ctx context.Context, marketID int64, caller string) error {
	return s.cancelErr
}

func (s *stubMarketService) ProcessExpiredDeadline(ctx context.Context, marketID int64) error {
	return nil
}

func (s *stubMarketService) GetMarket(ctx context.Context, marketID int64) (domain.FriendMarket, error) {
	if s.getErr != nil {
		return domain.FriendMarket{}, s.getErr
	}
	return s.market, nil
}

func (s *stubMarketService) ListByStatus(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.FriendMarket, error) {
	return []domain.FriendMarket{s.market}, nil
}

func (s *stubMarketService) ListByParticipant(ctx context.Context, addr string, opts domain.ListOpts) ([]domain.FriendMarket, error) {
	return []domain.FriendMarket{s.market}, nil
}

func (s *stubMarketService) BatchStatus(ctx context.Context, ids []int64) (map[int64]domain.MarketStatus, error) {
	return map[int64]domain.MarketStatus{1: domain.StatusActive}, nil
}

func (s *stubMarketService) Count(ctx context.Context) (int64, error) { return 1, nil }

var _ MarketService = (*stubMarketService)(nil)

func newMarketHandler(stub *stubMarketService) *MarketHandler {
	return NewMarketHandler(stub, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func createBody(t *testing.T) string {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"creator":               "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		"members":               []string{"0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"},
		"resolution_type":       "either",
		"stake_token":           "usdc",
		"stake_per_participant": "100",
		"acceptance_deadline":   time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
	})
	require.NoError(t, err)
	return string(body)
}

func TestCreateOneVsOneHandler(t *testing.T) {
	h := newMarketHandler(&stubMarketService{})

	req := httptest.NewRequest(http.MethodPost, "/api/markets/one-vs-one", strings.NewReader(createBody(t)))
	rec := httptest.NewRecorder()
	h.CreateOneVsOne(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp struct {
		MarketID int64  `json:"market_id"`
		Status   string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, int64(7), resp.MarketID)
	require.Equal(t, "pending_acceptance", resp.Status)
}

func TestCreateHandlerBadBody(t *testing.T) {
	h := newMarketHandler(&stubMarketService{})

	req := httptest.NewRequest(http.MethodPost, "/api/markets/one-vs-one", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.CreateOneVsOne(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/markets/one-vs-one",
		strings.NewReader(`{"stake_per_participant":"1.5"}`))
	rec = httptest.NewRecorder()
	h.CreateOneVsOne(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code, "non-integer stake rejected")
}

func TestDomainErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrInvalidParameters, http.StatusBadRequest},
		{domain.ErrUnauthorized, http.StatusForbidden},
		{domain.ErrInsufficientPayment, http.StatusPaymentRequired},
		{domain.ErrNotPending, http.StatusConflict},
		{domain.ErrAlreadyAccepted, http.StatusConflict},
		{domain.ErrNotFound, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			h := newMarketHandler(&stubMarketService{cancelErr: tc.err})
			req := httptest.NewRequest(http.MethodPost, "/api/markets/1/cancel",
				strings.NewReader(`{"caller":"0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"}`))
			req.SetPathValue("id", "1")
			rec := httptest.NewRecorder()
			h.Cancel(rec, req)
			require.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestGetMarketHandler(t *testing.T) {
	stub := &stubMarketService{market: domain.FriendMarket{
		ID:                  4,
		Type:                domain.MarketOneVsOne,
		Creator:             "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		Members:             []string{"0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"},
		ResolutionType:      domain.ResolutionEither,
		StakeToken:          "usdc",
		StakePerParticipant: big.NewInt(100),
		Status:              domain.StatusActive,
	}}
	h := newMarketHandler(stub)

	req := httptest.NewRequest(http.MethodGet, "/api/markets/4", nil)
	req.SetPathValue("id", "4")
	rec := httptest.NewRecorder()
	h.Get(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var view marketView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Equal(t, int64(4), view.ID)
	require.Equal(t, "100", view.StakePerParticipant, "amounts are decimal strings")
	require.Equal(t, "active", view.Status)
}

func TestGetMarketHandlerBadID(t *testing.T) {
	h := newMarketHandler(&stubMarketService{})

	req := httptest.NewRequest(http.MethodGet, "/api/markets/abc", nil)
	req.SetPathValue("id", "abc")
	rec := httptest.NewRecorder()
	h.Get(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListMarketsHandler(t *testing.T) {
	stub := &stubMarketService{market: domain.FriendMarket{
		ID:                  1,
		StakePerParticipant: big.NewInt(50),
		Status:              domain.StatusActive,
	}}
	h := newMarketHandler(stub)

	req := httptest.NewRequest(http.MethodGet, "/api/markets?limit=10", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp listMarketsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Markets, 1)
	require.Equal(t, int64(1), resp.Total)
	require.Equal(t, 10, resp.Limit)
}
