// Package wallet is the client for the token-ledger service, the external
// collaborator that owns balances and trade history.
package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go-predict/internal/apperr"
)

// KV caches balances briefly so hot profiles don't hammer the ledger.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

const balanceTTL = 30 * time.Second

type Transaction struct {
	Hash   string    `json:"hash"`
	Type   string    `json:"type"`
	Amount string    `json:"amount"`
	Market string    `json:"market,omitempty"`
	Date   time.Time `json:"date"`
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	cache      KV
}

func NewClient(baseURL string, cache KV) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    baseURL,
		cache:      cache,
	}
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ledger replied %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Balance returns the token balance for an address as a decimal string,
// exactly as the ledger reports it.
func (c *Client) Balance(ctx context.Context, address string) (string, error) {
	key := "balance:" + address
	if c.cache != nil {
		if cached, ok, err := c.cache.Get(ctx, key); err == nil && ok {
			return cached, nil
		}
	}

	var out struct {
		Balance string `json:"balance"`
	}
	if err := c.get(ctx, "/balances/"+url.PathEscape(address), &out); err != nil {
		return "", apperr.Internal("balance lookup failed", err)
	}

	if c.cache != nil {
		// Cache failures only cost us a refetch.
		_ = c.cache.Set(ctx, key, out.Balance, balanceTTL)
	}
	return out.Balance, nil
}

// Transactions returns the trade history for an address, newest first.
func (c *Client) Transactions(ctx context.Context, address string) ([]Transaction, error) {
	var out struct {
		Transactions []Transaction `json:"transactions"`
	}
	if err := c.get(ctx, "/transactions/"+url.PathEscape(address), &out); err != nil {
		return nil, apperr.Internal("transaction lookup failed", err)
	}
	if out.Transactions == nil {
		out.Transactions = []Transaction{}
	}
	return out.Transactions, nil
}
