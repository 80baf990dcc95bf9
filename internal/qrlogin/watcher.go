package qrlogin

import (
	"context"
	"encoding/json"
	"time"

	"photokiosk/internal/payment/relay"
)

// EventUserLoggedIn is the relay event fired when a phone scans the login QR.
const EventUserLoggedIn = "user-logged-in"

// UserSession carries who logged in via QR scan.
type UserSession struct {
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	UserEmail string `json:"user_email"`
	SessionID string `json:"session_id"`
	BoothID   string `json:"booth_id"`
}

// Issuer is the token-issuing slice of the backend the watcher needs.
type Issuer interface {
	Issue(ctx context.Context, boothID string, ttl time.Duration) (Token, error)
}

// Channel is one relay connection, created fresh per issued token.
type Channel interface {
	OnMessage(fn func(text string))
	Connect(ctx context.Context, url string) error
	Subscribe(channel string) error
	Close() error
}

// Logger provides minimal logging required by the watcher.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Config holds runtime parameters for the login watcher.
type Config struct {
	RelayURL string
	BoothID  string
	TokenTTL time.Duration
	// ReissueMargin is subtracted from the token TTL to refresh before expiry.
	ReissueMargin time.Duration
}

// Watcher keeps a scannable login QR token alive: it issues a token, shows it
// to the UI, listens on qr-login.<token> for the scan, and re-issues before
// the token expires.
type Watcher struct {
	issuer     Issuer
	newChannel func() Channel
	logger     Logger
	cfg        Config

	onToken func(Token)
	onLogin func(UserSession)
}

// NewWatcher constructs a login watcher. newChannel creates one relay
// connection per issued token; pass nil to use the default relay client.
func NewWatcher(issuer Issuer, newChannel func() Channel, logger Logger, cfg Config) *Watcher {
	if newChannel == nil {
		newChannel = func() Channel { return relay.NewClient(logger) }
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 2 * time.Minute
	}
	if cfg.ReissueMargin <= 0 {
		cfg.ReissueMargin = 20 * time.Second
	}
	return &Watcher{issuer: issuer, newChannel: newChannel, logger: logger, cfg: cfg}
}

// OnToken registers the callback that renders the login QR.
func (w *Watcher) OnToken(fn func(Token)) { w.onToken = fn }

// OnLogin registers the callback fired when a user completes the scan.
func (w *Watcher) OnLogin(fn func(UserSession)) { w.onLogin = fn }

// Run issues and refreshes tokens until a login completes or ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		loggedIn := w.watchOnce(ctx)
		if loggedIn {
			return
		}
	}
}

// watchOnce issues one token and waits for a scan or the refresh deadline.
func (w *Watcher) watchOnce(ctx context.Context) bool {
	token, err := w.issuer.Issue(ctx, w.cfg.BoothID, w.cfg.TokenTTL)
	if err != nil {
		w.logger.Errorf("qrlogin: issue failed: %v", err)
		select {
		case <-ctx.Done():
		case <-time.After(3 * time.Second):
		}
		return false
	}
	if w.onToken != nil {
		w.onToken(token)
	}

	loggedIn := make(chan UserSession, 1)
	ch := w.newChannel()
	ch.OnMessage(func(raw string) {
		if session, ok := decodeLogin(raw); ok {
			select {
			case loggedIn <- session:
			default:
			}
		}
	})
	defer ch.Close()

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err = ch.Connect(dialCtx, w.cfg.RelayURL)
	cancel()
	if err != nil {
		w.logger.Errorf("qrlogin: relay connect failed: %v", err)
		return false
	}
	if err := ch.Subscribe("qr-login." + token.Value); err != nil {
		w.logger.Errorf("qrlogin: subscribe failed: %v", err)
		return false
	}

	refresh := w.cfg.TokenTTL - w.cfg.ReissueMargin
	if refresh < 10*time.Second {
		refresh = 10 * time.Second
	}

	select {
	case <-ctx.Done():
		return false
	case <-time.After(refresh):
		w.logger.Infof("qrlogin: token expiring, reissuing")
		return false
	case session := <-loggedIn:
		w.logger.Infof("qrlogin: user %s logged in via QR scan", session.UserID)
		if w.onLogin != nil {
			w.onLogin(session)
		}
		return true
	}
}

// decodeLogin parses a relay frame, accepting only the user-logged-in event.
// The data field is a JSON string wrapping {"session": {...}}.
func decodeLogin(raw string) (UserSession, bool) {
	var env struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return UserSession{}, false
	}
	if env.Event != EventUserLoggedIn {
		return UserSession{}, false
	}

	var wrapper struct {
		Session *UserSession `json:"session"`
	}
	if err := json.Unmarshal(env.Data, &wrapper); err != nil {
		var nested string
		if err := json.Unmarshal(env.Data, &nested); err != nil {
			return UserSession{}, false
		}
		if err := json.Unmarshal([]byte(nested), &wrapper); err != nil {
			return UserSession{}, false
		}
	}
	if wrapper.Session == nil || wrapper.Session.UserID == "" {
		return UserSession{}, false
	}
	return *wrapper.Session, true
}
