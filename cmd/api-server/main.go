package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/hackgods/clinic-appointments/internal/api"
	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/auth"
	"github.com/hackgods/clinic-appointments/internal/bootstrap"
	"github.com/hackgods/clinic-appointments/internal/config"
	"github.com/hackgods/clinic-appointments/internal/directory"
	"github.com/hackgods/clinic-appointments/internal/events"
	"github.com/hackgods/clinic-appointments/internal/logging"
	"github.com/hackgods/clinic-appointments/internal/media"
	"github.com/hackgods/clinic-appointments/internal/metrics"
	"github.com/hackgods/clinic-appointments/internal/payment"
	"github.com/hackgods/clinic-appointments/internal/receipt"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:          "api-server",
		Short:        "Clinic appointment booking API",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
	rootCmd.AddCommand(serveCmd(), migrateCmd(), reconcileCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the store schema and indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			store, err := bootstrap.OpenStore(cmd.Context(), cfg, true, logger)
			if err != nil {
				return err
			}
			store.Close()
			fmt.Println("migrations applied to", store.Name)
			return nil
		},
	}
}

func reconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Compare every doctor's slot ledger with their open appointments",
		RunE: func(cmd *cobra.Command, args []string) error {
			repair, _ := cmd.Flags().GetBool("repair")

			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			store, err := bootstrap.OpenStore(cmd.Context(), cfg, false, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			locker, rdb, err := bootstrap.OpenLocker(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			if rdb != nil {
				defer rdb.Close()
			}

			svc := appointment.NewService(store, locker, nil, logger)
			report, err := svc.Reconcile(cmd.Context(), repair)
			if err != nil {
				return err
			}

			for _, d := range report.Drifts {
				fmt.Printf("doctor %s: missing=%v orphaned=%v duplicated=%v\n", d.DoctorID, d.Missing, d.Orphaned, d.Duplicated)
			}
			fmt.Printf("checked %d doctors, %d drifted, %d repaired, %d unrepaired\n",
				report.DoctorsChecked, len(report.Drifts), report.Repaired, len(report.Unrepaired))
			for _, u := range report.Unrepaired {
				fmt.Println("unrepaired:", u)
			}
			switch {
			case !report.Clean() && !repair:
				return errors.New("ledger drift found, rerun with --repair during a quiet period")
			case len(report.Unrepaired) > 0:
				return fmt.Errorf("%d ledger entries could not be repaired", len(report.Unrepaired))
			}
			return nil
		},
	}
	cmd.Flags().Bool("repair", false, "fix drift by reserving missing slots and releasing orphaned ones")
	return cmd
}

func setup() (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, zerolog.Nop(), fmt.Errorf("config load: %w", err)
	}
	return cfg, logging.New(cfg.LogLevel, cfg.Env), nil
}

func runServer() error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	logger.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Str("store", cfg.StoreDriver).Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := bootstrap.OpenStore(rootCtx, cfg, true, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	locker, rdb, err := bootstrap.OpenLocker(rootCtx, cfg, logger)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Error().Err(err).Msg("error closing redis")
			}
		}()
	}

	m := metrics.New()
	hub := events.NewHub(cfg.CORSOrigins, m, logger)
	appts := appointment.NewService(store, locker, events.NewBus(hub, m), logger)

	tokens := auth.NewTokenIssuer(cfg.SigningSecret(), cfg.TokenTTL)
	dir := directory.NewService(store, appts, auth.NewBcryptHasher(bcrypt.DefaultCost), tokens,
		directory.AdminCredentials{Email: cfg.AdminEmail, Password: cfg.AdminPassword}, logger)

	var processor payment.Processor
	if cfg.StripeSecretKey != "" {
		processor = payment.NewStripeProcessor(cfg.StripeSecretKey)
	} else {
		logger.Warn().Msg("STRIPE_SECRET_KEY not set, payments are simulated")
		processor = payment.NewDevProcessor()
	}

	mediaStore, err := media.NewLocalStore(cfg.MediaDir, cfg.MediaBaseURL)
	if err != nil {
		return err
	}

	router := api.NewRouter(api.RouterConfig{
		Appointments:    appts,
		Directory:       dir,
		Payments:        payment.NewService(processor, appts, cfg.PaymentCurrency, logger),
		Receipts:        receipt.NewGenerator(cfg.ReceiptKey(), cfg.ClinicName),
		Tokens:          tokens,
		Hub:             hub,
		Metrics:         m,
		Logger:          logger,
		Store:           store,
		StoreName:       store.Name,
		Redis:           rdb,
		Media:           mediaStore,
		MediaDir:        mediaStore.Dir(),
		MediaBaseURL:    cfg.MediaBaseURL,
		Location:        cfg.Location(),
		Currency:        cfg.PaymentCurrency,
		CORSOrigins:     cfg.CORSOrigins,
		LoginRatePerMin: cfg.LoginRatePerMin,
		Env:             cfg.Env,
		Version:         version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-rootCtx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	logger.Info().Msg("shutting down api-server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}
