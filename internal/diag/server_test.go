package diag

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"photokiosk/internal/payment"
	"photokiosk/internal/payment/fsm"
	"photokiosk/internal/payment/gateway"
)

type stubSessions struct {
	session payment.Session
	ok      bool
}

func (s stubSessions) Snapshot() (payment.Session, bool) { return s.session, s.ok }

type stubGacha struct {
	state    string
	entitled bool
}

func (s stubGacha) State() string { return s.state }
func (s stubGacha) Entitled() bool { return s.entitled }

func newTestServer(sessions SessionSource, gacha GachaSource) (*Server, *RingLogger) {
	ring := NewRingLogger(nil, nil, 10)
	return NewServer("127.0.0.1:0", "booth-1", ring, sessions, gacha), ring
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(stubSessions{}, stubGacha{state: "idle"})
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	if rec.Code != 200 {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if body["booth_id"] != "booth-1" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestSessionEndpoint(t *testing.T) {
	session := payment.Session{
		ID:        "sess-1",
		Kind:      gateway.KindFrame,
		OrderID:   "ord-1",
		State:     fsm.StatusAwaiting,
		Amount:    700,
		CreatedAt: time.Now(),
	}
	srv, _ := newTestServer(stubSessions{session: session, ok: true}, stubGacha{state: "idle"})
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, httptest.NewRequest("GET", "/payment/session", nil))

	var body struct {
		Session map[string]interface{} `json:"session"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if body.Session["order_id"] != "ord-1" || body.Session["state"] != fsm.StatusAwaiting {
		t.Fatalf("unexpected session %v", body.Session)
	}
}

func TestLogsEndpointReturnsRecentEntries(t *testing.T) {
	srv, ring := newTestServer(stubSessions{}, stubGacha{state: "idle"})
	ring.Infof("hello %s", "world")
	ring.Errorf("boom")

	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, httptest.NewRequest("GET", "/logs", nil))

	var body struct {
		Entries []Entry `json:"entries"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if len(body.Entries) < 2 {
		t.Fatalf("expected captured entries, got %d", len(body.Entries))
	}
	if body.Entries[0].Message != "hello world" || body.Entries[1].Level != "ERROR" {
		t.Fatalf("unexpected entries %+v", body.Entries)
	}
}

type stubControls struct {
	frameCalls  int
	gachaCalls  int
	cancelCalls int
	shakeCalls  int
	startErr    error
	stepErr     error
}

func (s *stubControls) BuyFrame(_ context.Context, subjectRef, frameType string, amount int) (payment.Handle, error) {
	s.frameCalls++
	if s.startErr != nil {
		return payment.Handle{}, s.startErr
	}
	return payment.Handle{SessionID: "sess-1", OrderID: "ord-1", QRPayload: "https://pay.example/q"}, nil
}

func (s *stubControls) StartGachaPayment(_ context.Context, amount int) (payment.Handle, error) {
	s.gachaCalls++
	if s.startErr != nil {
		return payment.Handle{}, s.startErr
	}
	return payment.Handle{SessionID: "sess-2", OrderID: "ord-2"}, nil
}

func (s *stubControls) Cancel() { s.cancelCalls++ }

func (s *stubControls) FinishShake() error { s.shakeCalls++; return s.stepErr }
func (s *stubControls) Reveal() error      { return s.stepErr }
func (s *stubControls) Consume() error     { return s.stepErr }
func (s *stubControls) Reset()             {}

func TestBuyFrameEndpoint(t *testing.T) {
	srv, _ := newTestServer(stubSessions{}, stubGacha{state: "idle"})
	controls := &stubControls{}
	srv.AttachControls(controls, controls, controls)

	body := strings.NewReader(`{"subject_ref":"design-7","frame_type":"vertical","amount":700}`)
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, httptest.NewRequest("POST", "/payment/frame", body))

	if rec.Code != 200 {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if controls.frameCalls != 1 {
		t.Fatalf("expected one BuyFrame call, got %d", controls.frameCalls)
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if resp["qr_payload"] != "https://pay.example/q" {
		t.Fatalf("unexpected response %v", resp)
	}
}

func TestBuyGachaConflict(t *testing.T) {
	srv, _ := newTestServer(stubSessions{}, stubGacha{state: "idle"})
	controls := &stubControls{startErr: payment.ErrConcurrentSession}
	srv.AttachControls(controls, controls, controls)

	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, httptest.NewRequest("POST", "/payment/gacha", strings.NewReader(`{"amount":500}`)))

	if rec.Code != 409 {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestCancelEndpoint(t *testing.T) {
	srv, _ := newTestServer(stubSessions{}, stubGacha{state: "idle"})
	controls := &stubControls{}
	srv.AttachControls(controls, controls, controls)

	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, httptest.NewRequest("POST", "/payment/cancel", nil))

	if rec.Code != 200 || controls.cancelCalls != 1 {
		t.Fatalf("status %d, cancel calls %d", rec.Code, controls.cancelCalls)
	}
}

func TestGachaStepEndpoint(t *testing.T) {
	srv, _ := newTestServer(stubSessions{}, stubGacha{state: "shaking"})
	controls := &stubControls{}
	srv.AttachControls(controls, controls, controls)

	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, httptest.NewRequest("POST", "/gacha/finish-shake", nil))

	if rec.Code != 200 || controls.shakeCalls != 1 {
		t.Fatalf("status %d, shake calls %d", rec.Code, controls.shakeCalls)
	}
}

func TestControlsUnavailableWithoutAttach(t *testing.T) {
	srv, _ := newTestServer(stubSessions{}, stubGacha{state: "idle"})

	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, httptest.NewRequest("POST", "/payment/cancel", nil))

	if rec.Code != 503 {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestRingLoggerWrapsAround(t *testing.T) {
	ring := NewRingLogger(nil, nil, 3)
	for i := 0; i < 5; i++ {
		ring.Infof("line %d", i)
	}
	entries := ring.Recent()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Message != "line 2" || entries[2].Message != "line 4" {
		t.Fatalf("unexpected order %+v", entries)
	}
}
