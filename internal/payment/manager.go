package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"photokiosk/internal/payment/correlate"
	"photokiosk/internal/payment/fsm"
	"photokiosk/internal/payment/gateway"
	"photokiosk/internal/payment/relay"
)

// Logger provides minimal logging required by the session manager.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Channel is the relay connection surface the manager drives. One fresh
// channel is created per session and closed on every exit path.
type Channel interface {
	OnMessage(fn func(text string))
	OnError(fn func(err error))
	OnClose(fn func(code int))
	Connect(ctx context.Context, url string) error
	Subscribe(channel string) error
	Close() error
}

// Decoder turns raw relay frames into typed payment updates.
type Decoder interface {
	Decode(raw string) (correlate.Update, bool)
}

// Config holds runtime parameters for the session manager.
type Config struct {
	// RelayURL is the full relay endpoint, <scheme>://<host>/app/<appKey>.
	RelayURL string
	// Timeout is the deadline, relative to session creation, after which a
	// pending session resolves to timed_out.
	Timeout time.Duration
	// PollInterval drives the fallback status poll. Zero disables polling.
	PollInterval time.Duration
	// UserID is the logged-in user, empty for guest mode.
	UserID string
}

// Manager owns the payment session state machine. All state mutations happen
// under one mutex, so concurrent signals for the same session are serialized
// and the first terminal transition wins.
type Manager struct {
	gw         gateway.Gateway
	decoder    Decoder
	newChannel func() Channel
	logger     Logger
	cfg        Config

	mu         sync.Mutex
	active     *Session
	channel    Channel
	timeout    *time.Timer
	pollCancel context.CancelFunc
	listeners  []func(Outcome)
}

// NewManager constructs a session manager. newChannel creates one relay
// connection per session; pass nil to use the default relay client.
func NewManager(gw gateway.Gateway, decoder Decoder, newChannel func() Channel, logger Logger, cfg Config) *Manager {
	if newChannel == nil {
		newChannel = func() Channel { return relay.NewClient(logger) }
	}
	return &Manager{gw: gw, decoder: decoder, newChannel: newChannel, logger: logger, cfg: cfg}
}

// OnOutcome registers a terminal outcome listener. Listeners are invoked
// outside the manager lock, once per session.
func (m *Manager) OnOutcome(fn func(Outcome)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// StartFramePayment begins a payment session for a frame purchase.
func (m *Manager) StartFramePayment(ctx context.Context, subjectRef, frameType string, amount int) (Handle, error) {
	if subjectRef == "" {
		return Handle{}, errors.New("payment: frame payment requires a subject ref")
	}
	if frameType == "" {
		frameType = "default"
	}
	return m.start(ctx, gateway.KindFrame, subjectRef, frameType, amount)
}

// StartGachaPayment begins a payment session for a gacha play.
func (m *Manager) StartGachaPayment(ctx context.Context, amount int) (Handle, error) {
	return m.start(ctx, gateway.KindGacha, "", "gacha", amount)
}

func (m *Manager) start(ctx context.Context, kind gateway.Kind, subjectRef, frameType string, amount int) (Handle, error) {
	if amount <= 0 {
		return Handle{}, fmt.Errorf("payment: amount must be positive, got %d", amount)
	}

	m.mu.Lock()
	if m.active != nil && !fsm.IsTerminal(m.active.State) {
		m.mu.Unlock()
		return Handle{}, ErrConcurrentSession
	}
	session := &Session{
		ID:         uuid.NewString(),
		Kind:       kind,
		Amount:     amount,
		State:      fsm.StatusInitiating,
		SubjectRef: subjectRef,
		FrameType:  frameType,
		CreatedAt:  time.Now(),
	}
	m.active = session
	userID := m.cfg.UserID
	m.mu.Unlock()

	m.logger.Infof("payment: session %s initiating %s payment of %d", session.ID, kind, amount)

	resp, err := m.gw.Initiate(ctx, gateway.InitiateRequest{
		Kind:      kind,
		Amount:    amount,
		SessionID: session.ID,
		UserID:    userID,
		FrameType: frameType,
	})

	m.mu.Lock()
	if m.active == nil || m.active.ID != session.ID || m.active.State != fsm.StatusInitiating {
		// cancelled while the gateway call was in flight; discard the response
		m.mu.Unlock()
		m.logger.Infof("payment: session %s resolved during initiate, gateway response discarded", session.ID)
		return Handle{}, ErrSessionResolved
	}
	if err != nil {
		out := m.resolveLocked(fsm.StatusFailed)
		m.mu.Unlock()
		m.emit(out)
		return Handle{}, fmt.Errorf("payment: initiate failed: %w", err)
	}

	session.OrderID = resp.OrderID
	session.State = fsm.StatusAwaiting
	m.armTimeoutLocked(session)
	m.mu.Unlock()

	m.logger.Infof("payment: session %s awaiting confirmation for order %s", session.ID, resp.OrderID)
	go m.openChannel(session.ID, resp.OrderID)
	m.startPoll(session.ID, resp.OrderID)

	return Handle{SessionID: session.ID, OrderID: resp.OrderID, QRPayload: resp.StartURL}, nil
}

// Cancel aborts a pending session. Calling it with no pending session is a
// no-op, so it is always safe from UI code.
func (m *Manager) Cancel() {
	m.mu.Lock()
	if m.active == nil || fsm.IsTerminal(m.active.State) {
		m.mu.Unlock()
		return
	}
	out := m.resolveLocked(fsm.StatusCancelled)
	m.mu.Unlock()
	m.emit(out)
}

// SetUser switches future sessions to user mode. An empty id returns to guest
// mode. The pending session, if any, keeps the mode it started with.
func (m *Manager) SetUser(userID string) {
	m.mu.Lock()
	m.cfg.UserID = userID
	m.mu.Unlock()
}

// Active returns the pending session, if any.
func (m *Manager) Active() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil || fsm.IsTerminal(m.active.State) {
		return Session{}, false
	}
	return *m.active, true
}

// Snapshot returns the most recent session, terminal or not, for diagnostics.
func (m *Manager) Snapshot() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return Session{}, false
	}
	return *m.active, true
}

// Shutdown cancels any pending session and releases its channel. Used on
// process exit; safe to call repeatedly.
func (m *Manager) Shutdown() {
	m.Cancel()
}

func (m *Manager) openChannel(sessionID, orderID string) {
	ch := m.newChannel()
	ch.OnMessage(func(text string) { m.handleRelayMessage(sessionID, text) })
	ch.OnError(func(err error) {
		// transport trouble is non-fatal: the poll or the timeout decides
		m.logger.Errorf("payment: relay error while awaiting order %s: %v", orderID, err)
	})
	ch.OnClose(func(code int) {
		m.logger.Errorf("payment: relay closed (%d) while awaiting order %s, still waiting", code, orderID)
	})

	m.mu.Lock()
	if m.active == nil || m.active.ID != sessionID || fsm.IsTerminal(m.active.State) {
		m.mu.Unlock()
		_ = ch.Close()
		return
	}
	m.channel = ch
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ch.Connect(ctx, m.cfg.RelayURL); err != nil {
		m.logger.Errorf("payment: relay connect failed for order %s: %v", orderID, err)
		return
	}
	if err := ch.Subscribe(relay.PaymentChannel(orderID)); err != nil {
		m.logger.Errorf("payment: relay subscribe failed for order %s: %v", orderID, err)
	}
}

func (m *Manager) handleRelayMessage(sessionID, raw string) {
	upd, ok := m.decoder.Decode(raw)
	if !ok {
		return
	}

	m.mu.Lock()
	if m.active == nil || m.active.ID != sessionID || fsm.IsTerminal(m.active.State) {
		m.mu.Unlock()
		m.logger.Infof("payment: late update for order %s discarded", upd.OrderID)
		return
	}
	if upd.OrderID != m.active.OrderID {
		orderID := m.active.OrderID
		m.mu.Unlock()
		m.logger.Errorf("payment: update for order %s does not match active order %s, dropped", upd.OrderID, orderID)
		return
	}
	out := m.resolveLocked(outcomeStatus(upd.Outcome))
	m.mu.Unlock()
	m.emit(out)
}

func outcomeStatus(o correlate.Outcome) string {
	switch o {
	case correlate.OutcomeSucceeded:
		return fsm.StatusSucceeded
	case correlate.OutcomeFailed:
		return fsm.StatusFailed
	default:
		return fsm.StatusCancelled
	}
}

func (m *Manager) armTimeoutLocked(session *Session) {
	if m.cfg.Timeout <= 0 {
		return
	}
	deadline := session.CreatedAt.Add(m.cfg.Timeout)
	id := session.ID
	m.timeout = time.AfterFunc(time.Until(deadline), func() { m.timeoutSession(id) })
}

func (m *Manager) timeoutSession(sessionID string) {
	m.mu.Lock()
	if m.active == nil || m.active.ID != sessionID || fsm.IsTerminal(m.active.State) {
		m.mu.Unlock()
		return
	}
	m.logger.Errorf("payment: session %s timed out awaiting order %s", sessionID, m.active.OrderID)
	out := m.resolveLocked(fsm.StatusTimedOut)
	m.mu.Unlock()
	m.emit(out)
}

func (m *Manager) startPoll(sessionID, orderID string) {
	if m.cfg.PollInterval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	if m.active == nil || m.active.ID != sessionID || fsm.IsTerminal(m.active.State) {
		m.mu.Unlock()
		cancel()
		return
	}
	m.pollCancel = cancel
	m.mu.Unlock()

	go m.pollLoop(ctx, sessionID, orderID)
}

// pollLoop is the low-frequency defense against a missed push message.
func (m *Manager) pollLoop(ctx context.Context, sessionID, orderID string) {
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st, err := m.gw.FetchStatus(ctx, orderID)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					m.logger.Errorf("payment: status poll for order %s failed: %v", orderID, err)
				}
				continue
			}
			var status string
			switch st.Status {
			case "succeeded", "success":
				status = fsm.StatusSucceeded
			case "failed":
				status = fsm.StatusFailed
			case "cancelled":
				status = fsm.StatusCancelled
			default:
				continue
			}

			m.mu.Lock()
			if m.active == nil || m.active.ID != sessionID || fsm.IsTerminal(m.active.State) {
				m.mu.Unlock()
				return
			}
			m.logger.Infof("payment: status poll resolved order %s as %s", orderID, status)
			out := m.resolveLocked(status)
			m.mu.Unlock()
			m.emit(out)
			return
		}
	}
}

// resolveLocked applies a terminal transition and performs cleanup. It must be
// called with the manager lock held; the caller emits the returned outcome
// after unlocking. A nil return means the transition lost the race.
func (m *Manager) resolveLocked(status string) *Outcome {
	session := m.active
	if session == nil || !fsm.CanTransition(session.State, status) {
		m.logger.Errorf("payment: discarding illegal transition to %s", status)
		return nil
	}
	session.State = status
	session.ResolvedAt = time.Now()

	if m.timeout != nil {
		m.timeout.Stop()
		m.timeout = nil
	}
	if m.pollCancel != nil {
		m.pollCancel()
		m.pollCancel = nil
	}
	if m.channel != nil {
		if err := m.channel.Close(); err != nil {
			m.logger.Errorf("payment: channel close: %v", err)
		}
		m.channel = nil
	}

	m.logger.Infof("payment: session %s resolved as %s", session.ID, status)
	return &Outcome{
		SessionID:  session.ID,
		Kind:       session.Kind,
		State:      status,
		OrderID:    session.OrderID,
		SubjectRef: session.SubjectRef,
	}
}

func (m *Manager) emit(out *Outcome) {
	if out == nil {
		return
	}
	m.mu.Lock()
	listeners := make([]func(Outcome), len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()
	for _, fn := range listeners {
		fn(*out)
	}
}
