package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Kind distinguishes what a payment is for.
type Kind string

const (
	KindFrame Kind = "frame"
	KindGacha Kind = "gacha"
)

// InitiateRequest describes parameters for starting a remote payment.
type InitiateRequest struct {
	Kind      Kind
	Amount    int
	SessionID string
	UserID    string
	// FrameType is the frame variant being purchased; "gacha" for gacha plays.
	FrameType string
}

// InitiateResponse contains the provider data needed to continue the flow.
type InitiateResponse struct {
	OrderID   string
	PaymentID string
	// StartURL is the checkout URL the kiosk renders as a QR code.
	StartURL string
}

// Status is the provider-side view of an order, used by the fallback poll.
type Status struct {
	OrderID string
	Status  string
}

// Gateway is the payment provider boundary consumed by the session manager.
type Gateway interface {
	Initiate(ctx context.Context, req InitiateRequest) (InitiateResponse, error)
	FetchStatus(ctx context.Context, orderID string) (Status, error)
}

// Client is the HTTP payment gateway client for the booth backend.
type Client struct {
	httpClient *http.Client
	baseURL    string
	boothID    string
	provider   string
	secret     string
	logger     *slog.Logger
}

// NewClient constructs a gateway client. The secret signs outgoing request
// bodies with HMAC-SHA256.
func NewClient(httpClient *http.Client, baseURL, boothID, secret string, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		boothID:    boothID,
		provider:   "paypay",
		secret:     secret,
		logger:     logger,
	}
}

// Initiate creates a payment order for this booth.
func (c *Client) Initiate(ctx context.Context, req InitiateRequest) (InitiateResponse, error) {
	mode := "user"
	if req.UserID == "" {
		mode = "guest"
	}
	payload := map[string]interface{}{
		"provider":   c.provider,
		"amount":     req.Amount,
		"session_id": req.SessionID,
		"user_id":    req.UserID,
		"mode":       mode,
		"frametype":  req.FrameType,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return InitiateResponse{}, err
	}

	url := fmt.Sprintf("%s/api/booths/%s/payment/initiate", c.baseURL, c.boothID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return InitiateResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Signature", Sign(body, c.secret))

	c.logger.Info("gateway: initiating payment", "booth", c.boothID, "amount", req.Amount, "frametype", req.FrameType)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return InitiateResponse{}, fmt.Errorf("gateway: initiate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return InitiateResponse{}, fmt.Errorf("gateway: initiate: unexpected status %s", resp.Status)
	}

	var apiResp struct {
		Success   bool   `json:"success"`
		OrderID   string `json:"order_id"`
		PaymentID string `json:"payment_id"`
		StartURL  string `json:"start_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return InitiateResponse{}, fmt.Errorf("gateway: initiate: decode response: %w", err)
	}
	if !apiResp.Success || apiResp.StartURL == "" {
		return InitiateResponse{}, fmt.Errorf("gateway: initiate: unsuccessful response")
	}
	return InitiateResponse{OrderID: apiResp.OrderID, PaymentID: apiResp.PaymentID, StartURL: apiResp.StartURL}, nil
}

// FetchStatus reads the current provider-side status of an order.
func (c *Client) FetchStatus(ctx context.Context, orderID string) (Status, error) {
	url := fmt.Sprintf("%s/api/booths/%s/payment/%s/status", c.baseURL, c.boothID, orderID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Status{}, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Status{}, fmt.Errorf("gateway: fetch status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return Status{}, fmt.Errorf("gateway: fetch status: unexpected status %s", resp.Status)
	}

	var apiResp struct {
		Success bool   `json:"success"`
		OrderID string `json:"order_id"`
		Status  string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return Status{}, fmt.Errorf("gateway: fetch status: decode response: %w", err)
	}
	if !apiResp.Success {
		return Status{}, fmt.Errorf("gateway: fetch status: unsuccessful response")
	}
	return Status{OrderID: apiResp.OrderID, Status: strings.ToLower(apiResp.Status)}, nil
}
