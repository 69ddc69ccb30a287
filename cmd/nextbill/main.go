package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"nextbill/internal/amqp"
	"nextbill/internal/auth"
	"nextbill/internal/backend"
	"nextbill/internal/cli"
	apphttp "nextbill/internal/http"
	"nextbill/internal/services"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_FORMAT"))
	cfg := cli.LoadAndValidateConfig(logger)

	sqliteRepo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer sqliteRepo.Close()

	// AMQP is optional: without it breakdown emails are picked up by the
	// worker's periodic sweep instead of being dispatched immediately.
	var publisher services.BillPublisher
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		var err error
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, bills will be sent by the sweep", "error", err)
		} else {
			publisher = amqpClient
			defer amqpClient.Close()
			logger.Info("Initialized AMQP client", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	mailboxes, err := backend.New(logger, backend.Type(cfg.MailBackend))
	if err != nil {
		logger.Error("Failed to initialize mail backend", "error", err, "backend", cfg.MailBackend)
		os.Exit(1)
	}

	billing := services.NewBillingService(sqliteRepo, publisher, mailboxes.MailboxFor)

	oauthCfg, err := auth.OAuthConfig(cfg.GoogleOAuthClientJSON, cfg.GoogleOAuthClientFile, cfg.OAuthRedirectURL)
	if err != nil {
		logger.Error("Failed to load Google OAuth configuration", "error", err)
		os.Exit(1)
	}

	srv := apphttp.NewServer(apphttp.Deps{
		Addr:     ":" + cfg.Port,
		Billing:  billing,
		Repo:     sqliteRepo,
		Sessions: auth.NewSessionManager(cfg.SessionSecret, cfg.SessionTTL),
		OAuth:    oauthCfg,
	})

	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
	})

	logger.Info("Starting nextbill server", "port", cfg.Port, "mail_backend", cfg.MailBackend)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
