package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/bootstrap"
	"github.com/hackgods/clinic-appointments/internal/config"
	"github.com/hackgods/clinic-appointments/internal/logging"
	"github.com/hackgods/clinic-appointments/internal/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("info", "prod")
		bootLog.Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New(cfg.LogLevel, cfg.Env)

	logger.Info().
		Str("env", cfg.Env).
		Dur("interval", cfg.ReconcileInterval).
		Bool("repair", cfg.ReconcileRepair).
		Msg("reconcile-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := bootstrap.OpenStore(rootCtx, cfg, false, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("store connection error")
	}
	defer store.Close()

	locker, rdb, err := bootstrap.OpenLocker(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection error")
	}
	if rdb != nil {
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Error().Err(err).Msg("error closing redis")
			}
		}()
	}

	m := metrics.New()
	svc := appointment.NewService(store, locker, nil, logger)

	metricsSrv := &http.Server{
		Addr:              ":" + cfg.WorkerHTTPPort,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		_ = metricsSrv.Shutdown(ctx)
	}()

	// Run once at startup
	runOnce(rootCtx, svc, m, cfg.ReconcileRepair, logger)

	ticker := time.NewTicker(cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info().Msg("shutdown signal received, stopping reconcile worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, m, cfg.ReconcileRepair, logger)
		}
	}
}

func runOnce(ctx context.Context, svc *appointment.Service, m *metrics.Metrics, repair bool, logger zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	start := time.Now()
	report, err := svc.Reconcile(runCtx, repair)
	if err != nil {
		logger.Error().Err(err).Msg("reconcile run error")
		return
	}
	m.LedgerDrift(len(report.Drifts))

	ev := logger.Info()
	if !report.Clean() {
		ev = logger.Warn()
	}
	ev.Int("doctors_checked", report.DoctorsChecked).
		Int("drifted", len(report.Drifts)).
		Int("repaired", report.Repaired).
		Strs("unrepaired", report.Unrepaired).
		Dur("took", time.Since(start)).
		Msg("reconcile run complete")
}
