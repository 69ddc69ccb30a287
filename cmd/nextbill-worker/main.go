package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nextbill/internal/amqp"
	"nextbill/internal/backend"
	"nextbill/internal/cli"
	"nextbill/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_FORMAT"))
	logger.Info("Starting nextbill-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	sqliteRepo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer sqliteRepo.Close()

	mailboxes, err := backend.New(logger, backend.Type(cfg.MailBackend))
	if err != nil {
		logger.Error("Failed to initialize mail backend", "error", err, "backend", cfg.MailBackend)
		os.Exit(1)
	}

	emailWorker := worker.NewEmailWorker(sqliteRepo, mailboxes.SenderFor, cfg.SendBatchSize)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Deliver anything that accumulated while the worker was down.
	if err := emailWorker.StartupCheck(ctx); err != nil {
		logger.Error("Startup delivery check failed", "error", err)
		// Keep running; the periodic sweep retries.
	}

	// AMQP consumption handles the normal path; the sweep below covers
	// lost or unpublished messages.
	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Warn("Failed to initialize AMQP client, relying on periodic sweep only", "error", err)
	} else {
		defer amqpClient.Close()
		go func() {
			err := amqpClient.ConsumeBillEmails(ctx, func(msg *amqp.BillEmailMessage) error {
				return emailWorker.HandleBillEmail(ctx, msg)
			})
			if err != nil && err != context.Canceled {
				logger.Error("Message consumption failed", "error", err)
				cancel()
			}
		}()
	}

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := emailWorker.ProcessPendingBills(ctx); err != nil {
					logger.Error("Pending bill sweep failed", "error", err)
				}
			}
		}
	}()

	// Block until a shutdown signal or a fatal consumer error.
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()
	cancel()
	logger.Info("Worker stopped gracefully")
}
