// Package backend is the typed client for the parking backend REST API. The
// backend is a black box: this package only shapes requests and classifies
// failures, it never interprets billing rules itself.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"spotpark-client/config"
)

// Sentinel errors for the failure taxonomy callers branch on.
var (
	// ErrUnauthorized maps 401/403 responses; the session must be
	// re-authenticated, the call is not retried silently.
	ErrUnauthorized = errors.New("backend: unauthorized")
	// ErrUnavailable wraps transport-level failures (network unreachable,
	// timeouts). Reconciliation paths treat it as "no information".
	ErrUnavailable = errors.New("backend: unavailable")
)

// HTTPDoer is the http.Client subset the client needs; tests substitute it.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Client talks to the parking backend.
type Client struct {
	baseURL string
	token   string
	client  HTTPDoer
}

// NewClient builds a backend client from configuration.
func NewClient(cfg *config.BackendConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		client:  &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
	}
}

// NewClientWithDoer builds a client around a caller-supplied HTTPDoer.
func NewClientWithDoer(baseURL, token string, doer HTTPDoer) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), token: token, client: doer}
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request payload: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("received non-2xx status code: %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

// ListBookings fetches the authoritative booking list for the session user.
func (c *Client) ListBookings(ctx context.Context) ([]Booking, error) {
	var bookings []Booking
	if err := c.do(ctx, http.MethodGet, "/bookings", nil, &bookings); err != nil {
		return nil, err
	}
	return bookings, nil
}

// CreateBooking reserves a spot and returns the new booking resource.
func (c *Client) CreateBooking(ctx context.Context, spotNumber, vehicleLabel string) (*Booking, error) {
	payload := map[string]string{"spotNumber": spotNumber, "vehicleLabel": vehicleLabel}
	var booking Booking
	if err := c.do(ctx, http.MethodPost, "/bookings", payload, &booking); err != nil {
		return nil, err
	}
	return &booking, nil
}

// ConfirmParked tells the backend the car occupied the spot inside the grace
// window.
func (c *Client) ConfirmParked(ctx context.Context, bookingID int64) (*ConfirmParkedResponse, error) {
	var resp ConfirmParkedResponse
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/bookings/%d/confirm-parked", bookingID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Cancel cancels a booking that never reached active parking.
func (c *Client) Cancel(ctx context.Context, bookingID int64) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/bookings/%d/cancel", bookingID), nil, nil)
}

// Complete asks the backend to finalize a session and charge the wallet.
func (c *Client) Complete(ctx context.Context, bookingID int64) (*CompleteResponse, error) {
	var resp CompleteResponse
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/bookings/%d/complete", bookingID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetWallet fetches the wallet balance and transaction history.
func (c *Client) GetWallet(ctx context.Context) (*Wallet, error) {
	var wallet Wallet
	if err := c.do(ctx, http.MethodGet, "/wallet", nil, &wallet); err != nil {
		return nil, err
	}
	return &wallet, nil
}

// ChargeWallet issues an explicit manual charge. Used only by the settlement
// fallback when the backend did not deduct on completion.
func (c *Client) ChargeWallet(ctx context.Context, amount float64, bookingID int64, note string) (*ChargeResponse, error) {
	payload := map[string]any{"amount": amount, "bookingId": bookingID, "note": note}
	var resp ChargeResponse
	if err := c.do(ctx, http.MethodPost, "/wallet/charge", payload, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
