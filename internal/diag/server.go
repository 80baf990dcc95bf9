package diag

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/bmizerany/pat"
	"github.com/justinas/alice"
	"github.com/rs/cors"

	"photokiosk/internal/payment"
)

// SessionSource exposes the current payment session for inspection.
type SessionSource interface {
	Snapshot() (payment.Session, bool)
}

// GachaSource exposes the reveal sequencer state for inspection.
type GachaSource interface {
	State() string
	Entitled() bool
}

// PaymentControl is the slice of the session manager the UI drives over HTTP.
type PaymentControl interface {
	StartGachaPayment(ctx context.Context, amount int) (payment.Handle, error)
	Cancel()
}

// FrameControl starts frame purchases through the reveal guard.
type FrameControl interface {
	BuyFrame(ctx context.Context, subjectRef, frameType string, amount int) (payment.Handle, error)
}

// GachaControl advances the reveal sequence.
type GachaControl interface {
	FinishShake() error
	Reveal() error
	Consume() error
	Reset()
}

// Server is the kiosk's local control and diagnostics endpoint. The on-screen
// UI drives payments and the reveal sequence through it and polls it for state.
type Server struct {
	logger   *RingLogger
	sessions SessionSource
	gacha    GachaSource
	payments PaymentControl
	frames   FrameControl
	reveal   GachaControl
	boothID  string
	started  time.Time

	httpServer *http.Server
}

// NewServer constructs a control server bound to addr. payments, frames and
// reveal may be nil, which leaves the server read-only.
func NewServer(addr, boothID string, logger *RingLogger, sessions SessionSource, gacha GachaSource) *Server {
	s := &Server{
		logger:   logger,
		sessions: sessions,
		gacha:    gacha,
		boothID:  boothID,
		started:  time.Now(),
	}
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// AttachControls wires the mutating endpoints. Call before ListenAndServe.
func (s *Server) AttachControls(payments PaymentControl, frames FrameControl, reveal GachaControl) {
	s.payments = payments
	s.frames = frames
	s.reveal = reveal
}

func (s *Server) routes() http.Handler {
	standard := alice.New(s.recoverPanic, makeResponseJSON)

	mux := pat.New()
	mux.Get("/health", standard.ThenFunc(s.handleHealth))
	mux.Get("/payment/session", standard.ThenFunc(s.handleSession))
	mux.Get("/gacha", standard.ThenFunc(s.handleGacha))
	mux.Get("/logs", standard.ThenFunc(s.handleLogs))

	mux.Post("/payment/frame", standard.ThenFunc(s.handleBuyFrame))
	mux.Post("/payment/gacha", standard.ThenFunc(s.handleBuyGacha))
	mux.Post("/payment/cancel", standard.ThenFunc(s.handleCancel))
	mux.Post("/gacha/finish-shake", standard.ThenFunc(s.handleGachaStep(func(g GachaControl) error { return g.FinishShake() })))
	mux.Post("/gacha/reveal", standard.ThenFunc(s.handleGachaStep(func(g GachaControl) error { return g.Reveal() })))
	mux.Post("/gacha/consume", standard.ThenFunc(s.handleGachaStep(func(g GachaControl) error { return g.Consume() })))
	mux.Post("/gacha/reset", standard.ThenFunc(s.handleGachaStep(func(g GachaControl) error { g.Reset(); return nil })))

	// the UI page is served from a different local port
	return cors.AllowAll().Handler(mux)
}

// ListenAndServe blocks serving diagnostics until the server is shut down.
func (s *Server) ListenAndServe() error {
	s.logger.Infof("diag: listening on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown stops the diagnostics server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func makeResponseJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Errorf("diag: panic serving %s: %v", r.URL.Path, err)
				w.Header().Set("Connection", "close")
				http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]interface{}{
		"booth_id":       s.boothID,
		"uptime_seconds": int(time.Since(s.started).Seconds()),
	})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	session, ok := s.sessions.Snapshot()
	if !ok {
		json.NewEncoder(w).Encode(map[string]interface{}{"session": nil})
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"session": map[string]interface{}{
			"session_id":  session.ID,
			"kind":        session.Kind,
			"order_id":    session.OrderID,
			"state":       session.State,
			"amount":      session.Amount,
			"subject_ref": session.SubjectRef,
			"created_at":  session.CreatedAt,
			"resolved_at": session.ResolvedAt,
		},
	})
}

func (s *Server) handleGacha(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]interface{}{
		"state":    s.gacha.State(),
		"entitled": s.gacha.Entitled(),
	})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]interface{}{"entries": s.logger.Recent()})
}

type buyFrameRequest struct {
	SubjectRef string `json:"subject_ref"`
	FrameType  string `json:"frame_type"`
	Amount     int    `json:"amount"`
}

type buyGachaRequest struct {
	Amount int `json:"amount"`
}

func (s *Server) handleBuyFrame(w http.ResponseWriter, r *http.Request) {
	if s.frames == nil {
		writeError(w, http.StatusServiceUnavailable, "frame purchases not available")
		return
	}
	var req buyFrameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	handle, err := s.frames.BuyFrame(r.Context(), req.SubjectRef, req.FrameType, req.Amount)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeHandle(w, handle)
}

func (s *Server) handleBuyGacha(w http.ResponseWriter, r *http.Request) {
	if s.payments == nil {
		writeError(w, http.StatusServiceUnavailable, "payments not available")
		return
	}
	var req buyGachaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	handle, err := s.payments.StartGachaPayment(r.Context(), req.Amount)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeHandle(w, handle)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if s.payments == nil {
		writeError(w, http.StatusServiceUnavailable, "payments not available")
		return
	}
	s.payments.Cancel()
	json.NewEncoder(w).Encode(map[string]interface{}{"cancelled": true})
}

func (s *Server) handleGachaStep(step func(GachaControl) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.reveal == nil {
			writeError(w, http.StatusServiceUnavailable, "gacha control not available")
			return
		}
		if err := step(s.reveal); err != nil {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"state": s.gacha.State()})
	}
}

func writeHandle(w http.ResponseWriter, handle payment.Handle) {
	json.NewEncoder(w).Encode(map[string]interface{}{
		"session_id": handle.SessionID,
		"order_id":   handle.OrderID,
		"qr_payload": handle.QRPayload,
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{"error": msg})
}
