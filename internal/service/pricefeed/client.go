package pricefeed

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"SolSignal/internal/domain/models"
	domsvc "SolSignal/internal/domain/service"
	xhttp "SolSignal/pkg/http"
)

// Client fetches spot quotes from a Jupiter-style aggregator price API
// (GET {base}/v4/price?ids=<mint>).
type Client struct {
	baseURL  string
	attempts int
	http     *xhttp.Client
}

func New(baseURL string, timeout time.Duration, attempts int) *Client {
	if attempts < 1 {
		attempts = 1
	}
	return &Client{
		baseURL:  baseURL,
		attempts: attempts,
		http:     xhttp.NewClient(xhttp.WithTimeout(timeout)),
	}
}

type priceEntry struct {
	ID         string  `json:"id"`
	Price      float64 `json:"price"`
	Confidence float64 `json:"confidence"`
}

type priceResponse struct {
	Data map[string]priceEntry `json:"data"`
}

// SpotPrice resolves the token's mint against the aggregator.
func (c *Client) SpotPrice(ctx context.Context, token models.Token) (models.TokenPrice, error) {
	if token.Mint == "" {
		return models.TokenPrice{}, fmt.Errorf("spot price %s: no mint configured", token.Symbol)
	}
	var resp priceResponse
	if err := c.getWithRetry(ctx, "/v4/price", url.Values{"ids": {token.Mint}}, &resp); err != nil {
		return models.TokenPrice{}, fmt.Errorf("spot price %s: %w", token.Symbol, err)
	}
	entry, ok := resp.Data[token.Mint]
	if !ok || entry.Price <= 0 {
		return models.TokenPrice{}, fmt.Errorf("spot price %s: mint %s not in response", token.Symbol, token.Mint)
	}
	return models.TokenPrice{
		Symbol:    token.Symbol,
		Price:     entry.Price,
		Timestamp: time.Now().UTC(),
	}, nil
}

// getWithRetry retries transient failures with a short linear backoff.
func (c *Client) getWithRetry(ctx context.Context, path string, query url.Values, dest interface{}) error {
	var err error
	for i := 1; i <= c.attempts; i++ {
		err = c.http.SendAndParse(ctx, &xhttp.RequestOptions{
			Method: http.MethodGet,
			URL:    c.baseURL + path,
			Query:  query,
		}, dest)
		if err == nil {
			return nil
		}
		if i == c.attempts {
			break
		}
		// simple backoff
		select {
		case <-time.After(time.Duration(i) * 50 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

var _ domsvc.PriceFeed = (*Client)(nil)
