/**
 * @description
 * This package provides a client for the external on-chain relay that executes
 * actual fund movements. It encapsulates the logic for making authenticated
 * HTTP requests to the relay's endpoints, handling request body construction,
 * and parsing responses. Amounts are transmitted as decimal strings.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 */
package relayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Client is a client for the relay API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new relay API client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// TransferRequest is the payload for a relay fund movement.
type TransferRequest struct {
	FromAddress string `json:"from_address"`
	ToAddress   string `json:"to_address"`
	Amount      string `json:"amount"` // decimal string, native-token units
	Reason      string `json:"reason"`
}

// TransferResponse is the expected response from the relay's transfer endpoint.
type TransferResponse struct {
	ID     string `json:"id"`
	TxHash string `json:"tx_hash"`
	Status string `json:"status"`
}

// ErrorResponse represents an error from the relay API.
type ErrorResponse struct {
	Errors []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
		Status string `json:"status"`
	} `json:"errors"`
}

func (e *ErrorResponse) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("relay api error: %s - %s", e.Errors[0].Title, e.Errors[0].Detail)
	}
	return "unknown relay api error"
}

// Transfer asks the relay to move funds between two chain addresses. The call
// respects ctx, so callers can bound it with a deadline; a timeout surfaces as
// an error, never as an assumed success.
func (c *Client) Transfer(ctx context.Context, fromAddress, toAddress, amount, reason string) (*TransferResponse, error) {
	payload := TransferRequest{
		FromAddress: fromAddress,
		ToAddress:   toAddress,
		Amount:      amount,
		Reason:      reason,
	}

	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transfer request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/transfers", c.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonPayload))
	if err != nil {
		return nil, fmt.Errorf("failed to create transfer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("relay transfer request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read relay response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp ErrorResponse
		if jsonErr := json.Unmarshal(body, &errResp); jsonErr == nil && len(errResp.Errors) > 0 {
			return nil, &errResp
		}
		log.Printf("level=warn component=relayclient msg=\"unexpected relay response\" status=%d body=%q", resp.StatusCode, string(body))
		return nil, fmt.Errorf("relay returned status %d", resp.StatusCode)
	}

	var transferResp TransferResponse
	if err := json.Unmarshal(body, &transferResp); err != nil {
		return nil, fmt.Errorf("failed to parse relay response: %w", err)
	}
	return &transferResp, nil
}
