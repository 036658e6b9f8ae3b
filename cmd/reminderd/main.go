package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hray3182/Followup/internal/channel"
	"github.com/hray3182/Followup/internal/config"
	"github.com/hray3182/Followup/internal/database"
	"github.com/hray3182/Followup/internal/lifecycle"
	"github.com/hray3182/Followup/internal/logging"
	"github.com/hray3182/Followup/internal/opsalert"
	"github.com/hray3182/Followup/internal/repository"
	"github.com/hray3182/Followup/internal/repository/sqlite"
	"github.com/hray3182/Followup/internal/scheduler"
	"github.com/hray3182/Followup/internal/web"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closer, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open store", zap.Error(err))
	}
	defer closer.Close()

	channels := channel.Set{}
	if cfg.EmailEnabled() {
		channels.Email = channel.NewSMTPEmail(channel.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.EmailFrom,
		})
	} else {
		logger.Warn("SMTP not configured, email reminders will fail as provider_unavailable")
	}
	if cfg.SMSEnabled() {
		channels.SMS = channel.NewTwilioSMS(channel.TwilioConfig{
			AccountSID: cfg.TwilioAccountSID,
			AuthToken:  cfg.TwilioAuthToken,
			FromNumber: cfg.TwilioFromNumber,
		})
	} else {
		logger.Warn("Twilio not configured, SMS reminders will fail as provider_unavailable")
	}

	opts := scheduler.Options{
		Channels:           channels,
		TestimonialBaseURL: cfg.TestimonialBaseURL,
		CheckInterval:      cfg.TickInterval,
		SendTimeout:        cfg.SendTimeout,
		EnforcePolicy:      cfg.EnforcePolicy,
		Logger:             logger,
	}
	if cfg.AlertsEnabled() {
		alerter, err := opsalert.NewTelegram(cfg.TelegramToken, cfg.TelegramAlertChatID, logger)
		if err != nil {
			logger.Fatal("Failed to create Telegram alerter", zap.Error(err))
		}
		opts.Alerter = alerter
	}

	sched := scheduler.New(store, opts)
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		if err := sched.Start(ctx); err != nil {
			logger.Error("Scheduler stopped with error", zap.Error(err))
			stop()
		}
	}()

	svc := lifecycle.NewService(store, sched, logger)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           web.NewServer(svc, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}

	// The store is closed by a deferred call, so the scheduler must be done with it first.
	<-schedDone
}

// openStore picks the backend from DATABASE_URI: "sqlite:<path>" or a Postgres URI.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.Store, io.Closer, error) {
	if path, ok := cfg.SQLitePath(); ok {
		store, err := sqlite.Open(path)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Using SQLite store", zap.String("path", path))
		return store, store, nil
	}

	db, err := database.New(ctx, cfg.DatabaseURI)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("Connected to database")

	if err := db.Migrate(ctx, logger); err != nil {
		db.Close()
		return nil, nil, err
	}
	logger.Info("Database migrations completed")

	return repository.NewPostgresStore(db), db, nil
}
