package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"geoattend/internal/app"
	"geoattend/internal/attendance"
	"geoattend/internal/config"
	"geoattend/internal/face"
	"geoattend/internal/faceclient"
	"geoattend/internal/observability"
	"geoattend/internal/worker"
)

// Worker runs enrollment jobs, counts attendance events on the live board and
// caches the nightly summary.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("worker stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.App) error {
	shift, err := cfg.Policy.ShiftWindow()
	if err != nil {
		return err
	}
	b, err := app.Open(ctx, cfg, "geoattend-worker")
	if err != nil {
		return err
	}
	defer b.Close()
	if b.InProcessQueue {
		slog.Warn("QUEUE_BACKEND=memory: the API runs jobs itself, this worker only caches summaries")
	}

	faces := faceclient.New(cfg.FaceServiceURL, cfg.FaceSkip)
	if !cfg.FaceSkip {
		if err := faces.Health(ctx); err != nil {
			slog.Warn("face service not available, enrollments will fail until it is", "error", err)
		} else {
			slog.Info("face service connected")
		}
	}
	accounts := attendance.NewAccountService(b.Records, b.Images, nil, face.NewVerifier(faces, cfg.Policy.Face))

	var w *worker.Worker
	if b.Redis != nil {
		w = worker.New(accounts, b.Records, shift, b.Redis, b.Redis)
	} else {
		slog.Warn("REDIS_ADDR empty: live board and summary cache disabled")
		w = worker.New(accounts, b.Records, shift, nil, nil)
	}

	c, err := w.Schedule(ctx, cfg.SummaryCron)
	if err != nil {
		return err
	}
	c.Start()
	defer func() { <-c.Stop().Done() }()
	slog.Info("summary scheduled", "spec", cfg.SummaryCron, "tz", shift.Location.String())

	if b.InProcessQueue {
		<-ctx.Done()
		return nil
	}
	return w.Run(ctx, b.Queue)
}
