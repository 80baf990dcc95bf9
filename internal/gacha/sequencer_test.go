package gacha

import (
	"errors"
	"testing"

	"photokiosk/internal/payment"
	"photokiosk/internal/payment/fsm"
	"photokiosk/internal/payment/gateway"
)

type testLogger struct{}

func (testLogger) Infof(string, ...interface{}) {}
func (testLogger) Errorf(string, ...interface{}) {}

func gachaSuccess(orderID string) payment.Outcome {
	return payment.Outcome{SessionID: "sess-1", Kind: gateway.KindGacha, State: fsm.StatusSucceeded, OrderID: orderID}
}

func TestFullRevealFlow(t *testing.T) {
	s := NewSequencer(testLogger{})

	var granted, consumed []Entitlement
	s.OnEntitlementGranted(func(e Entitlement) { granted = append(granted, e) })
	s.OnEntitlementConsumed(func(e Entitlement) { consumed = append(consumed, e) })

	s.HandleOutcome(gachaSuccess("ord-1"))
	if s.State() != StateShaking {
		t.Fatalf("expected shaking, got %s", s.State())
	}
	if len(granted) != 1 || granted[0].BoundOrderID != "ord-1" {
		t.Fatalf("unexpected granted events %+v", granted)
	}
	if !s.Entitled() {
		t.Fatal("expected entitlement after success outcome")
	}

	if err := s.FinishShake(); err != nil {
		t.Fatalf("finish shake: %v", err)
	}
	if err := s.Reveal(); err != nil {
		t.Fatalf("reveal: %v", err)
	}
	if s.State() != StateWon {
		t.Fatalf("expected won, got %s", s.State())
	}

	if err := s.Consume(); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if len(consumed) != 1 || consumed[0].BoundOrderID != "ord-1" {
		t.Fatalf("unexpected consumed events %+v", consumed)
	}
	if s.Entitled() {
		t.Fatal("entitlement must be cleared after consume")
	}

	if err := s.Consume(); !errors.Is(err, ErrEntitlementConsumed) {
		t.Fatalf("expected ErrEntitlementConsumed, got %v", err)
	}
}

func TestEntitlementSurvivesPaymentReset(t *testing.T) {
	// the payment session is long gone once the user presses "decide";
	// the entitlement alone must answer "already paid".
	s := NewSequencer(testLogger{})
	s.HandleOutcome(gachaSuccess("ord-9"))
	if !s.Entitled() {
		t.Fatal("expected durable entitlement")
	}
	s.FinishShake()
	if !s.Entitled() {
		t.Fatal("entitlement must persist until consumed")
	}
}

func TestRevealWithoutEntitlement(t *testing.T) {
	s := NewSequencer(testLogger{})
	if err := s.Reveal(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState from idle, got %v", err)
	}
	if err := s.FinishShake(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if err := s.Consume(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestIgnoresNonGachaOutcomes(t *testing.T) {
	s := NewSequencer(testLogger{})
	s.HandleOutcome(payment.Outcome{Kind: gateway.KindFrame, State: fsm.StatusSucceeded, OrderID: "ord-1"})
	s.HandleOutcome(payment.Outcome{Kind: gateway.KindGacha, State: fsm.StatusFailed, OrderID: "ord-2"})
	s.HandleOutcome(payment.Outcome{Kind: gateway.KindGacha, State: fsm.StatusTimedOut, OrderID: "ord-3"})
	if s.State() != StateIdle || s.Entitled() {
		t.Fatalf("expected idle and unentitled, got %s", s.State())
	}
}

func TestResetAfterConsumeAllowsNextPlay(t *testing.T) {
	s := NewSequencer(testLogger{})
	s.HandleOutcome(gachaSuccess("ord-1"))
	s.FinishShake()
	s.Reveal()
	s.Consume()
	s.Reset()

	s.HandleOutcome(gachaSuccess("ord-2"))
	if s.State() != StateShaking || !s.Entitled() {
		t.Fatalf("expected a fresh play, got %s entitled=%v", s.State(), s.Entitled())
	}
}

func TestSuccessOutcomeDuringRevealIgnored(t *testing.T) {
	s := NewSequencer(testLogger{})
	s.HandleOutcome(gachaSuccess("ord-1"))
	s.HandleOutcome(gachaSuccess("ord-2"))
	if ent := s.Entitled(); !ent {
		t.Fatal("expected entitlement to remain")
	}
	s.FinishShake()
	s.Reveal()
	if err := s.Consume(); err != nil {
		t.Fatalf("consume: %v", err)
	}
}

func TestAllListenersNotified(t *testing.T) {
	s := NewSequencer(testLogger{})

	grants := make([]int, 2)
	consumes := make([]int, 2)
	s.OnEntitlementGranted(func(Entitlement) { grants[0]++ })
	s.OnEntitlementGranted(func(Entitlement) { grants[1]++ })
	s.OnEntitlementConsumed(func(Entitlement) { consumes[0]++ })
	s.OnEntitlementConsumed(func(Entitlement) { consumes[1]++ })

	s.HandleOutcome(gachaSuccess("ord-1"))
	if err := s.FinishShake(); err != nil {
		t.Fatal(err)
	}
	if err := s.Reveal(); err != nil {
		t.Fatal(err)
	}
	if err := s.Consume(); err != nil {
		t.Fatal(err)
	}

	if grants[0] != 1 || grants[1] != 1 {
		t.Fatalf("grant listeners got %v, want one call each", grants)
	}
	if consumes[0] != 1 || consumes[1] != 1 {
		t.Fatalf("consume listeners got %v, want one call each", consumes)
	}
}
