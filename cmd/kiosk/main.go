package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"photokiosk/internal/config"
	"photokiosk/internal/diag"
	"photokiosk/internal/frames"
	"photokiosk/internal/gacha"
	"photokiosk/internal/payment"
	"photokiosk/internal/payment/correlate"
	"photokiosk/internal/payment/gateway"
	"photokiosk/internal/qrlogin"
	"photokiosk/internal/registration"
)

// captureHandoff marks where the shooting flow picks up after a paid frame.
// The capture pipeline runs in a separate process and watches the session
// endpoint, so the handoff here is a log line.
type captureHandoff struct {
	logger *diag.RingLogger
}

func (c captureHandoff) ContinueAfterPayment(subjectRef string) {
	c.logger.Infof("capture: continuing with frame %s", subjectRef)
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Error loading .env file: %v", err)
	}

	infoLog := log.New(os.Stdout, "INFO\t", log.Ldate|log.Ltime)
	errorLog := log.New(os.Stderr, "ERROR\t", log.Ldate|log.Ltime|log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		errorLog.Fatal(err)
	}

	ring := diag.NewRingLogger(infoLog, errorLog, 256)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpClient := &http.Client{Timeout: 15 * time.Second}

	reg := registration.NewClient(httpClient, cfg.APIBaseURL, cfg.DeviceID, ring)
	boothID, err := reg.RegisterWithRetry(ctx, 0)
	if err != nil {
		errorLog.Fatal(err)
	}
	ring.Infof("registered as booth %s", boothID)

	gw := gateway.NewClient(httpClient, cfg.APIBaseURL, boothID, cfg.GatewaySecret,
		slog.New(slog.NewTextHandler(os.Stdout, nil)))

	manager := payment.NewManager(gw, correlate.New(ring), nil, ring, payment.Config{
		RelayURL:     cfg.RelayURL(),
		Timeout:      cfg.PaymentTimeout,
		PollInterval: cfg.PollInterval,
	})

	sequencer := gacha.NewSequencer(ring)
	manager.OnOutcome(sequencer.HandleOutcome)

	coordinator := frames.NewCoordinator(manager, sequencer, captureHandoff{ring}, ring)
	manager.OnOutcome(coordinator.HandleOutcome)

	login := qrlogin.NewWatcher(qrlogin.NewClient(httpClient, cfg.APIBaseURL), nil, ring, qrlogin.Config{
		RelayURL: cfg.RelayURL(),
		BoothID:  boothID,
		TokenTTL: cfg.QRLoginTTL,
	})
	login.OnToken(func(tok qrlogin.Token) {
		ring.Infof("login: token %s ready for display", tok.Value)
	})
	login.OnLogin(func(sess qrlogin.UserSession) {
		ring.Infof("login: %s signed in", sess.UserID)
		manager.SetUser(sess.UserID)
	})
	go login.Run(ctx)

	srv := diag.NewServer(cfg.DiagAddr, boothID, ring, manager, sequencer)
	srv.AttachControls(manager, coordinator, sequencer)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errorLog.Fatal(err)
		}
	}()

	<-ctx.Done()
	infoLog.Println("shutting down")

	manager.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errorLog.Print(err)
	}
}
