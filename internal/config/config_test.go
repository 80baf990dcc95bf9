package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"KIOSK_CONFIG", "API_BASE_URL", "RELAY_BASE_URL", "BOOTH_KEY",
		"GATEWAY_SECRET", "DEVICE_ID", "DIAG_ADDR",
		"PAYMENT_TIMEOUT_SECONDS", "STATUS_POLL_SECONDS", "QR_LOGIN_TTL_SECONDS",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("API_BASE_URL", "https://api.example")
	t.Setenv("RELAY_BASE_URL", "wss://api.example")
	t.Setenv("BOOTH_KEY", "booth-key")
	t.Setenv("GATEWAY_SECRET", "secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PaymentTimeout != 180*time.Second {
		t.Errorf("PaymentTimeout = %v, want 180s", cfg.PaymentTimeout)
	}
	if cfg.PollInterval != 10*time.Second {
		t.Errorf("PollInterval = %v, want 10s", cfg.PollInterval)
	}
	if cfg.QRLoginTTL != 120*time.Second {
		t.Errorf("QRLoginTTL = %v, want 120s", cfg.QRLoginTTL)
	}
	if cfg.DiagAddr != "127.0.0.1:8787" {
		t.Errorf("DiagAddr = %q", cfg.DiagAddr)
	}
	if got := cfg.RelayURL(); got != "wss://api.example/app/booth-key" {
		t.Errorf("RelayURL = %q", got)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	clearEnv(t)
	t.Setenv("API_BASE_URL", "https://api.example")
	t.Setenv("RELAY_BASE_URL", "wss://api.example")
	t.Setenv("BOOTH_KEY", "booth-key")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing GATEWAY_SECRET")
	}
}

func TestLoadYAMLFileWithEnvOverride(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "kiosk.yaml")
	body := `api_base_url: https://file.example
relay_base_url: wss://file.example
booth_key: file-key
gateway_secret: file-secret
payment_timeout_seconds: 60
status_poll_seconds: 5
diag_addr: 127.0.0.1:9999
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("KIOSK_CONFIG", path)
	t.Setenv("BOOTH_KEY", "env-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIBaseURL != "https://file.example" {
		t.Errorf("APIBaseURL = %q", cfg.APIBaseURL)
	}
	if cfg.BoothKey != "env-key" {
		t.Errorf("BoothKey = %q, env must override file", cfg.BoothKey)
	}
	if cfg.PaymentTimeout != 60*time.Second {
		t.Errorf("PaymentTimeout = %v, want 60s", cfg.PaymentTimeout)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Errorf("PollInterval = %v, want 5s", cfg.PollInterval)
	}
	if cfg.DiagAddr != "127.0.0.1:9999" {
		t.Errorf("DiagAddr = %q", cfg.DiagAddr)
	}
}

func TestLoadPollDisabled(t *testing.T) {
	clearEnv(t)
	t.Setenv("API_BASE_URL", "https://api.example")
	t.Setenv("RELAY_BASE_URL", "wss://api.example")
	t.Setenv("BOOTH_KEY", "booth-key")
	t.Setenv("GATEWAY_SECRET", "secret")
	t.Setenv("STATUS_POLL_SECONDS", "-1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PollInterval != 0 {
		t.Errorf("PollInterval = %v, want 0 (disabled)", cfg.PollInterval)
	}
}

func TestLoadBadInt(t *testing.T) {
	clearEnv(t)
	t.Setenv("API_BASE_URL", "https://api.example")
	t.Setenv("RELAY_BASE_URL", "wss://api.example")
	t.Setenv("BOOTH_KEY", "booth-key")
	t.Setenv("GATEWAY_SECRET", "secret")
	t.Setenv("PAYMENT_TIMEOUT_SECONDS", "soon")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for non-numeric PAYMENT_TIMEOUT_SECONDS")
	}
}
