package correlate

import (
	"encoding/json"
	"strings"
)

// Outcome classifies a decoded payment update.
type Outcome int

const (
	OutcomeIgnore Outcome = iota
	OutcomeSucceeded
	OutcomeFailed
	OutcomeCancelled
)

// Update is a payment status change extracted from a relay message.
type Update struct {
	OrderID string
	Outcome Outcome
}

// EventPaymentUpdated is the relay event name carrying payment status changes.
const EventPaymentUpdated = "payment-updated"

type envelope struct {
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data"`
	Channel string          `json:"channel"`
}

type payload struct {
	OrderID      string `json:"order_id"`
	OrderIDCamel string `json:"orderId"`
	Status       string `json:"status"`
}

// Logger is the minimal logger the correlator needs.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Correlator decodes raw relay frames into typed payment updates. It knows
// nothing about sessions; matching an update against the active order is the
// caller's job.
type Correlator struct {
	logger Logger
}

// New constructs a Correlator.
func New(logger Logger) *Correlator {
	return &Correlator{logger: logger}
}

// Decode parses a raw relay frame. The second return value is false when the
// frame carries no actionable update: subscription acks, unknown events,
// unknown statuses and malformed input of any shape are all dropped here and
// never surface as errors.
func (c *Correlator) Decode(raw string) (Update, bool) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		c.logger.Errorf("correlate: malformed envelope dropped: %v", err)
		return Update{}, false
	}
	if env.Event != EventPaymentUpdated {
		// pusher:* / pusher_internal:* acks and anything else are informational
		c.logger.Infof("correlate: ignoring event %q", env.Event)
		return Update{}, false
	}
	if len(env.Data) == 0 {
		c.logger.Errorf("correlate: payment-updated without data dropped")
		return Update{}, false
	}

	inner, ok := c.decodeData(env.Data)
	if !ok {
		return Update{}, false
	}

	orderID := inner.OrderID
	if orderID == "" {
		orderID = inner.OrderIDCamel
	}
	if orderID == "" {
		c.logger.Errorf("correlate: payment-updated without order id dropped")
		return Update{}, false
	}

	switch strings.ToLower(inner.Status) {
	case "succeeded", "success":
		return Update{OrderID: orderID, Outcome: OutcomeSucceeded}, true
	case "failed":
		return Update{OrderID: orderID, Outcome: OutcomeFailed}, true
	case "cancelled":
		return Update{OrderID: orderID, Outcome: OutcomeCancelled}, true
	default:
		c.logger.Errorf("correlate: unknown payment status %q for order %s dropped", inner.Status, orderID)
		return Update{}, false
	}
}

// decodeData handles the data field being either a JSON object or a
// JSON-encoded string holding the object; producers have shipped both.
func (c *Correlator) decodeData(data json.RawMessage) (payload, bool) {
	var inner payload
	if err := json.Unmarshal(data, &inner); err == nil {
		return inner, true
	}
	var nested string
	if err := json.Unmarshal(data, &nested); err != nil {
		c.logger.Errorf("correlate: payment-updated data is neither object nor string")
		return payload{}, false
	}
	if err := json.Unmarshal([]byte(nested), &inner); err != nil {
		c.logger.Errorf("correlate: nested payment payload dropped: %v", err)
		return payload{}, false
	}
	return inner, true
}
