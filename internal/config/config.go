package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	defaultPaymentTimeout = 180 * time.Second
	defaultPollInterval   = 10 * time.Second
	defaultQRLoginTTL     = 120 * time.Second
	defaultDiagAddr       = "127.0.0.1:8787"
)

// Config holds runtime configuration for the kiosk.
type Config struct {
	// APIBaseURL is the booth backend, e.g. https://photo-api.example.
	APIBaseURL string `yaml:"api_base_url"`
	// RelayBaseURL is the pub/sub relay, e.g. wss://photo-api.example.
	RelayBaseURL string `yaml:"relay_base_url"`
	// BoothKey is the relay application key (the /app/<key> path segment).
	BoothKey string `yaml:"booth_key"`
	// GatewaySecret signs payment gateway request bodies.
	GatewaySecret string `yaml:"gateway_secret"`
	// DeviceID overrides the generated device identifier.
	DeviceID string `yaml:"device_id"`

	PaymentTimeoutSeconds int `yaml:"payment_timeout_seconds"`
	PollSeconds           int `yaml:"status_poll_seconds"`
	QRLoginTTLSeconds     int `yaml:"qr_login_ttl_seconds"`

	DiagAddr string `yaml:"diag_addr"`

	PaymentTimeout time.Duration `yaml:"-"`
	PollInterval   time.Duration `yaml:"-"`
	QRLoginTTL     time.Duration `yaml:"-"`
}

// RelayURL returns the full relay endpoint for this booth.
func (c Config) RelayURL() string {
	return fmt.Sprintf("%s/app/%s", c.RelayBaseURL, c.BoothKey)
}

// Load reads configuration from an optional YAML file named by KIOSK_CONFIG,
// applies environment variable overrides and defaults, then validates.
func Load() (Config, error) {
	cfg := Config{DiagAddr: defaultDiagAddr}

	if path := os.Getenv("KIOSK_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("unmarshal config file: %w", err)
		}
		if cfg.DiagAddr == "" {
			cfg.DiagAddr = defaultDiagAddr
		}
	}

	if v := os.Getenv("API_BASE_URL"); v != "" {
		cfg.APIBaseURL = v
	}
	if v := os.Getenv("RELAY_BASE_URL"); v != "" {
		cfg.RelayBaseURL = v
	}
	if v := os.Getenv("BOOTH_KEY"); v != "" {
		cfg.BoothKey = v
	}
	if v := os.Getenv("GATEWAY_SECRET"); v != "" {
		cfg.GatewaySecret = v
	}
	if v := os.Getenv("DEVICE_ID"); v != "" {
		cfg.DeviceID = v
	}
	if v := os.Getenv("DIAG_ADDR"); v != "" {
		cfg.DiagAddr = v
	}

	if v, err := readIntEnv("PAYMENT_TIMEOUT_SECONDS"); err != nil {
		return Config{}, fmt.Errorf("parse PAYMENT_TIMEOUT_SECONDS: %w", err)
	} else if v != nil {
		cfg.PaymentTimeoutSeconds = *v
	}
	if v, err := readIntEnv("STATUS_POLL_SECONDS"); err != nil {
		return Config{}, fmt.Errorf("parse STATUS_POLL_SECONDS: %w", err)
	} else if v != nil {
		cfg.PollSeconds = *v
	}
	if v, err := readIntEnv("QR_LOGIN_TTL_SECONDS"); err != nil {
		return Config{}, fmt.Errorf("parse QR_LOGIN_TTL_SECONDS: %w", err)
	} else if v != nil {
		cfg.QRLoginTTLSeconds = *v
	}

	cfg.PaymentTimeout = defaultPaymentTimeout
	if cfg.PaymentTimeoutSeconds > 0 {
		cfg.PaymentTimeout = time.Duration(cfg.PaymentTimeoutSeconds) * time.Second
	}
	switch {
	case cfg.PollSeconds > 0:
		cfg.PollInterval = time.Duration(cfg.PollSeconds) * time.Second
	case cfg.PollSeconds < 0:
		// negative disables the fallback status poll
		cfg.PollInterval = 0
	default:
		cfg.PollInterval = defaultPollInterval
	}
	cfg.QRLoginTTL = defaultQRLoginTTL
	if cfg.QRLoginTTLSeconds > 0 {
		cfg.QRLoginTTL = time.Duration(cfg.QRLoginTTLSeconds) * time.Second
	}

	if cfg.APIBaseURL == "" {
		return Config{}, fmt.Errorf("API_BASE_URL is required")
	}
	if cfg.RelayBaseURL == "" {
		return Config{}, fmt.Errorf("RELAY_BASE_URL is required")
	}
	if cfg.BoothKey == "" {
		return Config{}, fmt.Errorf("BOOTH_KEY is required")
	}
	if cfg.GatewaySecret == "" {
		return Config{}, fmt.Errorf("GATEWAY_SECRET is required")
	}

	return cfg, nil
}

func readIntEnv(name string) (*int, error) {
	val := os.Getenv(name)
	if val == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(val)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
