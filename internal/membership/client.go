// Package membership consumes the external membership/role service through
// the narrow MayCreate capability check. Roles, tiers, and membership
// management live entirely on the remote service.
package membership

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

// Client queries the membership service over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a membership service client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// mayCreateResponse is the service's capability-check payload.
type mayCreateResponse struct {
	Allowed bool `json:"allowed"`
}

// MayCreate asks the membership service whether addr is allowed to create
// markets of the given type.
func (c *Client) MayCreate(ctx context.Context, marketType domain.MarketType, addr string) (bool, error) {
	params := url.Values{}
	params.Set("market_type", string(marketType))
	params.Set("address", addr)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/capabilities/may-create?"+params.Encode(), nil)
	if err != nil {
		return false, fmt.Errorf("membership: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("membership: may-create: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("membership: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("membership: status %d: %s", resp.StatusCode, string(body))
	}

	var out mayCreateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return false, fmt.Errorf("membership: decode response: %w", err)
	}
	return out.Allowed, nil
}

// AllowAll grants every capability. Used when no membership service is
// configured.
type AllowAll struct{}

func (AllowAll) MayCreate(ctx context.Context, marketType domain.MarketType, addr string) (bool, error) {
	return true, nil
}

// Compile-time interface checks.
var (
	_ domain.CapabilityChecker = (*Client)(nil)
	_ domain.CapabilityChecker = AllowAll{}
)
