package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"marketplace/internal/address"
	"marketplace/internal/ledger"
	"marketplace/internal/models"
	"marketplace/internal/program"
	"marketplace/internal/retry"
)

// ErrNotFound is returned by reads of accounts that do not exist
var ErrNotFound = errors.New("not found")

// APIError is a non-2xx answer carrying no receipt
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("request failed: %d %s", e.StatusCode, e.Message)
}

// Retryable reports whether the node may answer differently later
func (e *APIError) Retryable() bool {
	switch e.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Config holds HTTP client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
	Retry   retry.Config // Applied to reads only
}

// HTTPClient talks to a marketplace node
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	retry      retry.Strategy
}

// NewHTTPClient creates a client for the node at cfg.BaseURL
func NewHTTPClient(cfg Config) *HTTPClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &HTTPClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		retry:      retry.NewStrategy(cfg.Retry),
	}
}

// Submit sends a signed transaction and waits for its receipt. A rejected
// transaction returns its receipt together with a program error of the
// receipt's kind.
func (c *HTTPClient) Submit(ctx context.Context, tx *ledger.Transaction) (*ledger.Receipt, error) {
	status, body, err := c.do(ctx, http.MethodPost, "/transactions", tx)
	if err != nil {
		return nil, err
	}

	switch status {
	case http.StatusOK, http.StatusUnprocessableEntity, http.StatusInternalServerError:
		var receipt ledger.Receipt
		if err := json.Unmarshal(body, &receipt); err != nil || receipt.TxID == "" {
			return nil, apiError(status, body)
		}
		if receipt.Status == ledger.StatusFailed {
			return &receipt, program.Errorf(receipt.ErrorKind, "%s", receipt.Error)
		}
		return &receipt, nil
	default:
		return nil, apiError(status, body)
	}
}

// Account fetches one account with its decoded record
func (c *HTTPClient) Account(ctx context.Context, addr address.Address) (*models.AccountResponse, error) {
	var resp models.AccountResponse
	if err := c.get(ctx, "/accounts/"+addr.String(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Offering fetches the offering vendor published under name
func (c *HTTPClient) Offering(ctx context.Context, vendor address.Address, name string) (*models.OfferingResponse, error) {
	var resp models.OfferingResponse
	if err := c.get(ctx, "/offerings/"+vendor.String()+"/"+url.PathEscape(name), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Listing fetches the listing of asset by seller
func (c *HTTPClient) Listing(ctx context.Context, asset, seller address.Address) (*models.ListingResponse, error) {
	var resp models.ListingResponse
	if err := c.get(ctx, "/listings/"+asset.String()+"/"+seller.String(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Airdrop asks the node's faucet for lamports
func (c *HTTPClient) Airdrop(ctx context.Context, to address.Address, lamports uint64) (*models.AccountResponse, error) {
	status, body, err := c.do(ctx, http.MethodPost, "/airdrop", models.AirdropRequest{Address: to, Lamports: lamports})
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, apiError(status, body)
	}

	var resp models.AccountResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &resp, nil
}

func (c *HTTPClient) get(ctx context.Context, path string, out any) error {
	return c.retry.Execute(ctx, func() error {
		status, body, err := c.do(ctx, http.MethodGet, path, nil)
		if err != nil {
			return err
		}
		switch {
		case status == http.StatusNotFound:
			return fmt.Errorf("%s: %w", path, ErrNotFound)
		case status != http.StatusOK:
			return apiError(status, body)
		}
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
		return nil
	})
}

func (c *HTTPClient) do(ctx context.Context, method, path string, payload any) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func apiError(status int, body []byte) error {
	var e models.ErrorResponse
	if err := json.Unmarshal(body, &e); err == nil && e.Message != "" {
		return &APIError{StatusCode: status, Message: e.Message}
	}
	return &APIError{StatusCode: status, Message: strings.TrimSpace(string(body))}
}
