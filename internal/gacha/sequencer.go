package gacha

import (
	"errors"
	"sync"
	"time"

	"photokiosk/internal/payment"
	"photokiosk/internal/payment/fsm"
	"photokiosk/internal/payment/gateway"
)

// Reveal sequencer states.
const (
	StateIdle      = "idle"
	StateShaking   = "shaking"
	StateRevealing = "revealing"
	StateWon       = "won"
	StateConsumed  = "consumed"
)

// ErrNoEntitlement is returned when a reveal is attempted without a paid play.
var ErrNoEntitlement = errors.New("gacha: no entitlement for reveal")

// ErrEntitlementConsumed is returned on a second consume of the same play.
var ErrEntitlementConsumed = errors.New("gacha: entitlement already consumed")

// ErrInvalidState is returned when a sequencer action is not legal in the
// current state.
var ErrInvalidState = errors.New("gacha: action not allowed in current state")

// Entitlement records that a gacha payment succeeded. It outlives the payment
// session so a later "decide" action can tell "already paid" from "not paid".
type Entitlement struct {
	Granted      bool
	BoundOrderID string
	GrantedAt    time.Time
}

// Logger provides minimal logging required by the sequencer.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Sequencer drives the prize reveal that follows a successful gacha payment.
type Sequencer struct {
	logger Logger

	mu          sync.Mutex
	state       string
	entitlement Entitlement
	onGranted   []func(Entitlement)
	onConsumed  []func(Entitlement)
}

// NewSequencer constructs an idle sequencer.
func NewSequencer(logger Logger) *Sequencer {
	return &Sequencer{logger: logger, state: StateIdle}
}

// OnEntitlementGranted registers a listener for new paid plays.
func (s *Sequencer) OnEntitlementGranted(fn func(Entitlement)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onGranted = append(s.onGranted, fn)
}

// OnEntitlementConsumed registers a listener for the shooting-started consume.
func (s *Sequencer) OnEntitlementConsumed(fn func(Entitlement)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onConsumed = append(s.onConsumed, fn)
}

// HandleOutcome feeds payment outcomes into the sequencer. Only a succeeded
// gacha outcome starts the reveal; everything else is ignored here.
func (s *Sequencer) HandleOutcome(out payment.Outcome) {
	if out.Kind != gateway.KindGacha || out.State != fsm.StatusSucceeded {
		return
	}

	s.mu.Lock()
	if s.state != StateIdle && s.state != StateConsumed {
		s.mu.Unlock()
		s.logger.Errorf("gacha: success outcome for order %s while %s, ignored", out.OrderID, s.state)
		return
	}
	ent := Entitlement{Granted: true, BoundOrderID: out.OrderID, GrantedAt: time.Now()}
	s.entitlement = ent
	s.state = StateShaking
	listeners := append([]func(Entitlement){}, s.onGranted...)
	s.mu.Unlock()

	s.logger.Infof("gacha: entitlement granted for order %s, shake started", out.OrderID)
	for _, fn := range listeners {
		fn(ent)
	}
}

// FinishShake moves from the shake animation to the reveal. Timing is owned
// by the presentation layer; repeated calls while revealing are no-ops.
func (s *Sequencer) FinishShake() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateShaking:
		s.state = StateRevealing
		return nil
	case StateRevealing:
		return nil
	default:
		return ErrInvalidState
	}
}

// Reveal completes the prize reveal. The prize itself is chosen elsewhere;
// the sequencer only checks that this play was paid for.
func (s *Sequencer) Reveal() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRevealing {
		return ErrInvalidState
	}
	if !s.entitlement.Granted {
		return ErrNoEntitlement
	}
	s.state = StateWon
	s.logger.Infof("gacha: reveal complete for order %s", s.entitlement.BoundOrderID)
	return nil
}

// Consume clears the entitlement when the shooting flow actually starts.
// It fires exactly once per paid play.
func (s *Sequencer) Consume() error {
	s.mu.Lock()
	if s.state != StateWon {
		state := s.state
		s.mu.Unlock()
		if state == StateConsumed {
			return ErrEntitlementConsumed
		}
		return ErrInvalidState
	}
	if !s.entitlement.Granted {
		s.mu.Unlock()
		return ErrEntitlementConsumed
	}
	ent := s.entitlement
	s.entitlement = Entitlement{}
	s.state = StateConsumed
	listeners := append([]func(Entitlement){}, s.onConsumed...)
	s.mu.Unlock()

	s.logger.Infof("gacha: entitlement for order %s consumed, shooting starts", ent.BoundOrderID)
	for _, fn := range listeners {
		fn(ent)
	}
	return nil
}

// Entitled reports whether a paid, unconsumed play exists. This is what a
// later "decide" action checks to skip payment.
func (s *Sequencer) Entitled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entitlement.Granted
}

// RevealInProgress reports whether a shake or reveal is on screen. Frame
// purchases are refused while it is.
func (s *Sequencer) RevealInProgress() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateShaking || s.state == StateRevealing || s.state == StateWon
}

// State returns the current sequencer state.
func (s *Sequencer) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Reset returns the sequencer to idle for the next visitor without touching
// an unconsumed entitlement.
func (s *Sequencer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateConsumed {
		s.state = StateIdle
	}
}
