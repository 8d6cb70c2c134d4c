package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"geoattend/internal/api"
	"geoattend/internal/api/handlers"
	"geoattend/internal/api/ws"
	"geoattend/internal/app"
	"geoattend/internal/attendance"
	"geoattend/internal/clock"
	"geoattend/internal/config"
	"geoattend/internal/face"
	"geoattend/internal/faceclient"
	"geoattend/internal/liveness"
	"geoattend/internal/observability"
	"geoattend/internal/queue"
	"geoattend/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("api stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.App) error {
	shift, err := cfg.Policy.ShiftWindow()
	if err != nil {
		return err
	}

	b, err := app.Open(ctx, cfg, "geoattend-api")
	if err != nil {
		return err
	}
	defer b.Close()

	faces := faceclient.New(cfg.FaceServiceURL, cfg.FaceSkip)
	if cfg.FaceSkip {
		slog.Warn("face service disabled, using deterministic mock detections")
	} else {
		b.Checks["face"] = faces.Health
	}
	verifier := face.NewVerifier(faces, cfg.Policy.Face)

	publisher := queue.NewPublisher(b.Queue)
	accounts := attendance.NewAccountService(b.Records, b.Images, publisher, verifier)
	leaves := attendance.NewLeaveService(b.Records, b.Records, shift)

	if a := cfg.Admin; a.Email != "" {
		if _, err := accounts.EnsureAdmin(ctx, a.Name, a.Email, a.Password); err != nil {
			return err
		}
	}

	clk := trustedClock(cfg, b)

	// Submissions arrive already captured, so there is nothing to wait for
	// between fixes or frames.
	gateCfg := cfg.Policy.GateConfig()
	gateCfg.LocationRetry.Delay = 0
	detector := liveness.New(faces, cfg.Policy.Liveness.Samples, 0)

	hub := ws.NewHub()
	opts := []attendance.GateOption{
		attendance.WithEvidence(b.Images),
		attendance.WithObserver(hub.Observe),
		attendance.WithObserver(publisher.Observe),
	}
	if b.Redis != nil {
		opts = append(opts, attendance.WithLocker(b.Redis))
	}
	gate := attendance.NewGate(b.Records, clk, verifier, detector, shift, gateCfg, opts...)

	rc := api.RouterConfig{
		Accounts: accounts,
		Leaves:   leaves,
		Gate:     gate,
		Records:  b.Records,
		Hub:      hub,
		Tokens: handlers.TokenConfig{
			Issuer:     cfg.JWTIssuer,
			SigningKey: cfg.JWTSigningKey,
			AccessTTL:  cfg.AccessTTL,
			RefreshTTL: cfg.RefreshTTL,
		},
		Checks:          b.Checks,
		RateLimitPerMin: cfg.RateLimitPerMin,
		SubmitPerMin:    cfg.SubmitPerMin,
		CORSOrigins:     cfg.CORSOrigins,
	}
	if b.Redis != nil {
		rc.Board, rc.Cache = b.Redis, b.Redis
	}

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      api.NewRouter(rc),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	if b.InProcessQueue {
		// Nothing else can see an in-memory queue.
		w := newWorker(accounts, b, shift)
		g.Go(func() error { return w.Run(gctx, b.Queue) })
	}
	g.Go(func() error {
		slog.Info("http server listening", "addr", srv.Addr, "store", cfg.StoreBackend, "queue", cfg.QueueBackend, "storage", cfg.StorageBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// trustedClock prefers the external time service, then the database clock,
// then the local clock.
func trustedClock(cfg config.App, b *app.Backends) *clock.Chain {
	var sources []clock.Source
	if cfg.TimeServiceURL != "" {
		sources = append(sources, clock.NewHTTPSource(cfg.TimeServiceURL))
	}
	if b.DB != nil {
		sources = append(sources, clock.DBSource{DB: b.DB.Client})
	}
	return clock.NewChain(cfg.Policy.Clock.MaxSkew, cfg.Policy.Clock.Timeout, sources...)
}

func newWorker(accounts *attendance.AccountService, b *app.Backends, shift attendance.Shift) *worker.Worker {
	if b.Redis != nil {
		return worker.New(accounts, b.Records, shift, b.Redis, b.Redis)
	}
	return worker.New(accounts, b.Records, shift, nil, nil)
}
