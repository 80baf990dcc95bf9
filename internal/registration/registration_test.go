package registration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type testLogger struct{}

func (testLogger) Infof(string, ...interface{}) {}
func (testLogger) Errorf(string, ...interface{}) {}

func TestRegister(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/photobooth/device" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var payload map[string]string
		json.NewDecoder(r.Body).Decode(&payload)
		if payload["device_id"] != "dev-1" {
			t.Errorf("unexpected payload %v", payload)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data":    map[string]string{"booth_id": "booth-7"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL, "dev-1", testLogger{})
	boothID, err := c.Register(context.Background())
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if boothID != "booth-7" {
		t.Fatalf("unexpected booth id %s", boothID)
	}
}

func TestRegisterWithRetryRecovers(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "message": "not yet"})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data":    map[string]string{"booth_id": "booth-7"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL, "dev-1", testLogger{})
	boothID, err := c.RegisterWithRetry(context.Background(), 10*time.Millisecond)
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if boothID != "booth-7" || attempts != 2 {
		t.Fatalf("unexpected result booth=%s attempts=%d", boothID, attempts)
	}
}

func TestGeneratedDeviceID(t *testing.T) {
	c := NewClient(nil, "http://localhost", "", testLogger{})
	if c.DeviceID() == "" {
		t.Fatal("expected a generated device id")
	}
}
