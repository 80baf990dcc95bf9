package qrlogin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Token is an issued QR login token.
type Token struct {
	Value     string
	TokenID   string
	BoothID   string
	ExpiresAt time.Time
}

// Client issues QR login tokens from the booth backend.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient constructs a QR login client.
func NewClient(httpClient *http.Client, baseURL string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{httpClient: httpClient, baseURL: strings.TrimRight(baseURL, "/")}
}

// Issue requests a fresh login token for the booth.
func (c *Client) Issue(ctx context.Context, boothID string, ttl time.Duration) (Token, error) {
	payload := map[string]interface{}{
		"booth_id":    boothID,
		"ttl_seconds": int(ttl.Seconds()),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Token{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/qr-login/issue", bytes.NewReader(body))
	if err != nil {
		return Token{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Token{}, fmt.Errorf("qrlogin: issue: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return Token{}, fmt.Errorf("qrlogin: issue: unexpected status %s", resp.Status)
	}

	var apiResp struct {
		Success bool `json:"success"`
		Data    struct {
			Token     string `json:"token"`
			TokenID   string `json:"token_id"`
			ExpiresAt string `json:"expires_at"`
			BoothID   string `json:"booth_id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return Token{}, fmt.Errorf("qrlogin: issue: decode response: %w", err)
	}
	if !apiResp.Success || apiResp.Data.Token == "" {
		return Token{}, fmt.Errorf("qrlogin: issue: unsuccessful response")
	}

	expires, err := time.Parse(time.RFC3339, apiResp.Data.ExpiresAt)
	if err != nil {
		expires = time.Now().Add(ttl)
	}
	return Token{
		Value:     apiResp.Data.Token,
		TokenID:   apiResp.Data.TokenID,
		BoothID:   apiResp.Data.BoothID,
		ExpiresAt: expires,
	}, nil
}
