// Package polymarket is the REST client for the Polymarket Gamma API, used
// by the gamma oracle adapter to read external market settlement state.
package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/alanyoungcy/friendbet/internal/domain"
)

// GammaClient is the REST client for the Polymarket Gamma API.
type GammaClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewGammaClient creates a new Gamma API client.
//
// baseURL is the Gamma API root, e.g. "https://gamma-api.polymarket.com".
func NewGammaClient(baseURL string) *GammaClient {
	return &GammaClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiToken is one outcome token of an external market.
type apiToken struct {
	Outcome string `json:"outcome"`
	Winner  bool   `json:"winner"`
}

// apiMarket is the subset of the Gamma market payload the adapter reads.
type apiMarket struct {
	ID       string     `json:"id"`
	Question string     `json:"question"`
	Closed   bool       `json:"closed"`
	Tokens   []apiToken `json:"tokens"`
}

// MarketResolution holds the settlement state of an external market.
type MarketResolution struct {
	Closed bool // market is closed/settled
	YesWon bool // the Yes outcome won (only meaningful when Closed)
}

// GetMarketResolution fetches a market by ID and returns whether it is
// closed and whether Yes won.
func (g *GammaClient) GetMarketResolution(ctx context.Context, marketID string) (MarketResolution, error) {
	path := fmt.Sprintf("/markets/%s", url.PathEscape(marketID))

	body, err := g.doGet(ctx, path)
	if err != nil {
		return MarketResolution{}, fmt.Errorf("polymarket/gamma: get market %s: %w", marketID, err)
	}

	var m apiMarket
	if err := json.Unmarshal(body, &m); err != nil {
		return MarketResolution{}, fmt.Errorf("polymarket/gamma: decode market: %w", err)
	}

	res := MarketResolution{Closed: m.Closed}
	for _, t := range m.Tokens {
		if t.Outcome == "Yes" && t.Winner {
			res.YesWon = true
			break
		}
	}
	return res, nil
}

// doGet performs a GET request against the Gamma API and returns the body.
func (g *GammaClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
