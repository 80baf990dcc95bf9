package frames

import (
	"context"
	"errors"

	"photokiosk/internal/payment"
	"photokiosk/internal/payment/fsm"
	"photokiosk/internal/payment/gateway"
)

// ErrRevealInProgress is returned when a frame purchase is attempted while a
// gacha reveal is on screen.
var ErrRevealInProgress = errors.New("frames: gacha reveal in progress")

// PaymentStarter is the slice of the session manager the coordinator drives.
type PaymentStarter interface {
	StartFramePayment(ctx context.Context, subjectRef, frameType string, amount int) (payment.Handle, error)
}

// RevealGuard reports whether a gacha reveal is currently running.
type RevealGuard interface {
	RevealInProgress() bool
}

// CaptureStarter is the downstream shooting flow, out of scope here.
type CaptureStarter interface {
	ContinueAfterPayment(subjectRef string)
}

// Logger provides minimal logging required by the coordinator.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Coordinator glues frame selection to the payment flow: it starts frame
// purchases and forwards successful ones to the capture flow.
type Coordinator struct {
	payments PaymentStarter
	guard    RevealGuard
	capture  CaptureStarter
	logger   Logger
}

// NewCoordinator constructs a coordinator.
func NewCoordinator(payments PaymentStarter, guard RevealGuard, capture CaptureStarter, logger Logger) *Coordinator {
	return &Coordinator{payments: payments, guard: guard, capture: capture, logger: logger}
}

// BuyFrame starts a payment for the selected frame and returns the QR handle.
func (c *Coordinator) BuyFrame(ctx context.Context, subjectRef, frameType string, amount int) (payment.Handle, error) {
	if c.guard != nil && c.guard.RevealInProgress() {
		c.logger.Infof("frames: purchase of %s refused, gacha reveal in progress", subjectRef)
		return payment.Handle{}, ErrRevealInProgress
	}
	return c.payments.StartFramePayment(ctx, subjectRef, frameType, amount)
}

// HandleOutcome receives terminal payment outcomes. Succeeded frame purchases
// proceed to capture; everything else is logged and dropped.
func (c *Coordinator) HandleOutcome(out payment.Outcome) {
	if out.Kind != gateway.KindFrame {
		return
	}
	if out.State != fsm.StatusSucceeded {
		c.logger.Infof("frames: purchase of %s ended as %s", out.SubjectRef, out.State)
		return
	}
	c.logger.Infof("frames: purchase of %s confirmed, proceeding to capture", out.SubjectRef)
	c.capture.ContinueAfterPayment(out.SubjectRef)
}
