package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrUnauthorized is returned when the order API rejects the session token.
// Callers treat it as session-fatal: all in-flight slots reset and the
// player must re-authenticate.
var ErrUnauthorized = errors.New("unauthorized")

// Client talks to the exchange's order API.
type Client struct {
	baseURL string
	client  *http.Client
	token   func() string
}

// NewClient creates an order API client. tokenProvider may be nil for
// unauthenticated deployments.
func NewClient(baseURL string, tokenProvider func() string) *Client {
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		token: tokenProvider,
	}
}

// SetTimeout overrides the default request timeout.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.client.Timeout = timeout
}

func (c *Client) post(ctx context.Context, endpoint string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	if c.token != nil {
		if tok := c.token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("order API returned status %d: %s", resp.StatusCode, string(responseBody))
	}
	return responseBody, nil
}

// SubmitGameOrders sends one round-close batch and returns the per-order
// outcomes.
func (c *Client) SubmitGameOrders(ctx context.Context, gameID string, reqs []Request) ([]Result, error) {
	body, err := c.post(ctx, "/orders/game/"+gameID, reqs)
	if err != nil {
		return nil, err
	}

	var results []Result
	if err := json.Unmarshal(body, &results); err != nil {
		// Some game variants answer with a single object instead of a list.
		var single Result
		if err2 := json.Unmarshal(body, &single); err2 != nil {
			return nil, fmt.Errorf("decode submit response: %w", err)
		}
		results = []Result{single}
	}

	log.Debug().
		Str("game_id", gameID).
		Int("orders", len(reqs)).
		Int("results", len(results)).
		Msg("submitted order batch")
	return results, nil
}

// SubmitBulkOrders sends consolidated per-selection orders for
// multi-selection game variants.
func (c *Client) SubmitBulkOrders(ctx context.Context, gameID string, reqs []BulkRequest) error {
	if _, err := c.post(ctx, "/orders/game-bulk/"+gameID, reqs); err != nil {
		return err
	}
	log.Debug().
		Str("game_id", gameID).
		Int("orders", len(reqs)).
		Msg("submitted bulk orders")
	return nil
}
