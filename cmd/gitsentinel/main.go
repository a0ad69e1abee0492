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

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container
	_ "time/tzdata"                            // Scheduler time zones without system zoneinfo

	githubadapter "github.com/ericfisherdev/gitsentinel/internal/adapter/driven/github"
	"github.com/ericfisherdev/gitsentinel/internal/adapter/driven/notify"
	sqliteadapter "github.com/ericfisherdev/gitsentinel/internal/adapter/driven/sqlite"
	httphandler "github.com/ericfisherdev/gitsentinel/internal/adapter/driving/http"
	"github.com/ericfisherdev/gitsentinel/internal/application"
	"github.com/ericfisherdev/gitsentinel/internal/config"
	"github.com/ericfisherdev/gitsentinel/internal/logging"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on a missing token or bad values).
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.Setup(os.Stdout, cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		return err
	}
	logger.Info("config loaded", "config", cfg)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database and migrate.
	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("migrations complete")

	// 4. Wire adapters.
	subStore := sqliteadapter.NewSubscriptionRepo(db)
	reportStore := sqliteadapter.NewReportRepo(db)

	ghClient, err := githubadapter.NewClient(cfg.GitHubToken, cfg.GitHubAPIURL, githubadapter.Options{
		CallsPerHour: cfg.RateLimitPerHour,
		Timeout:      cfg.RequestTimeout,
	})
	if err != nil {
		return err
	}

	notifier := notify.NewDispatcher(notify.Config{
		SlackWebhookURL:   cfg.SlackWebhookURL,
		DiscordWebhookURL: cfg.DiscordWebhookURL,
		SMTP: notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		},
		Timeout: cfg.WebhookTimeout,
	}, nil)

	// 5. Wire services.
	orchestrator := application.NewFetchOrchestrator(ghClient, cfg.MaxConcurrent)
	reportSvc := application.NewReportService(reportStore)
	scanSvc := application.NewScanService(subStore, orchestrator, reportSvc, notifier, nil)

	// 6. Schedule the periodic scans.
	scheduler := application.NewScheduler(application.SchedulerOptions{
		TaskTimeout: cfg.TaskTimeout,
		Location:    cfg.Location,
	})
	if err := scheduler.RegisterDaily("daily-scan", scanSvc.RunDaily, cfg.DailyScanTime); err != nil {
		return err
	}
	if err := scheduler.RegisterWeekly("weekly-scan", scanSvc.RunWeekly, cfg.WeeklyScanDay, cfg.WeeklyScanTime); err != nil {
		return err
	}
	scheduler.Start(ctx)

	// 7. HTTP API.
	apiHandler := httphandler.NewHandler(subStore, ghClient, scanSvc, reportSvc, scheduler, db, cfg.TaskTimeout, logger)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httphandler.NewServeMux(apiHandler, logger),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// Manual scans run inside the request.
		WriteTimeout:      cfg.TaskTimeout + 30*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
			stop()
		}
	}()

	slog.Info("gitsentinel started",
		"listen_addr", cfg.ListenAddr,
		"daily_scan", cfg.DailyScanTime,
		"weekly_scan", cfg.WeeklyScanDay.String()+" "+cfg.WeeklyScanTime.String(),
		"timezone", cfg.Location.String(),
	)

	// 8. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	// Stop waits up to its timeout for running scans; any still running are
	// abandoned, not cancelled, when run returns.
	scheduler.Stop()

	slog.Info("shutdown complete")
	return nil
}
