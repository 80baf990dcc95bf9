package payment

import (
	"errors"
	"time"

	"photokiosk/internal/payment/gateway"
)

// Session is one attempt to collect payment for a frame purchase or a gacha play.
type Session struct {
	ID     string
	Kind   gateway.Kind
	Amount int
	// OrderID is assigned by the gateway initiate response; empty until then.
	// It is the sole correlation key for inbound relay messages.
	OrderID string
	State   string
	// SubjectRef identifies the frame being purchased. Empty for gacha.
	SubjectRef string
	FrameType  string
	CreatedAt  time.Time
	ResolvedAt time.Time
}

// Handle is returned to the caller of a Start operation.
type Handle struct {
	SessionID string
	OrderID   string
	// QRPayload is the gateway start URL the kiosk renders as a QR code.
	QRPayload string
}

// Outcome is the single terminal event emitted per session.
type Outcome struct {
	SessionID  string
	Kind       gateway.Kind
	State      string
	OrderID    string
	SubjectRef string
}

// ErrConcurrentSession is returned when a Start is attempted while another
// session is still non-terminal. This is caller misuse, not a queueing hint.
var ErrConcurrentSession = errors.New("payment: another session is still active")

// ErrSessionResolved is returned when the gateway answered an initiate request
// for a session that was cancelled in the meantime; the response is discarded.
var ErrSessionResolved = errors.New("payment: session resolved before gateway response")
