package registration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Logger provides minimal logging required by registration.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Client registers this device with the booth backend to obtain its booth id.
type Client struct {
	httpClient *http.Client
	baseURL    string
	deviceID   string
	logger     Logger
}

// NewClient constructs a registration client. An empty deviceID generates a
// fresh one; the backend maps known device ids to their existing booth.
func NewClient(httpClient *http.Client, baseURL, deviceID string, logger Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if deviceID == "" {
		deviceID = uuid.NewString()
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		deviceID:   deviceID,
		logger:     logger,
	}
}

// DeviceID returns the identifier used for registration.
func (c *Client) DeviceID() string { return c.deviceID }

// Register announces the device and returns the assigned booth id.
func (c *Client) Register(ctx context.Context) (string, error) {
	body, err := json.Marshal(map[string]string{"device_id": c.deviceID})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/photobooth/device", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("registration: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("registration: unexpected status %s", resp.Status)
	}

	var apiResp struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Data    struct {
			BoothID string `json:"booth_id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", fmt.Errorf("registration: decode response: %w", err)
	}
	if !apiResp.Success || apiResp.Data.BoothID == "" {
		return "", fmt.Errorf("registration: rejected: %s", apiResp.Message)
	}
	return apiResp.Data.BoothID, nil
}

// RegisterWithRetry keeps trying until registration succeeds or ctx is done.
// The kiosk cannot do anything useful without a booth id.
func (c *Client) RegisterWithRetry(ctx context.Context, retryEvery time.Duration) (string, error) {
	if retryEvery <= 0 {
		retryEvery = 3 * time.Second
	}
	for {
		boothID, err := c.Register(ctx)
		if err == nil {
			c.logger.Infof("registration: device %s assigned booth %s", c.deviceID, boothID)
			return boothID, nil
		}
		c.logger.Errorf("registration: %v, retrying in %s", err, retryEvery)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(retryEvery):
		}
	}
}
