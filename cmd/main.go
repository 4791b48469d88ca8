package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/spf13/viper"

	"billing-crm/internal/api"
	"billing-crm/internal/batch"
	"billing-crm/internal/config"
	"billing-crm/internal/domain/billing"
	"billing-crm/internal/event"
	"billing-crm/internal/infrastructure/database/postgres"
	"billing-crm/internal/infrastructure/logging"
	"billing-crm/internal/scheduler"
	"billing-crm/internal/whatsapp"
)

func main() {
	cfg, logger := initializeApp()

	loc, err := time.LoadLocation(cfg.Billing.Timezone)
	if err != nil {
		logger.Error("Invalid billing timezone", "timezone", cfg.Billing.Timezone, "error", err)
		os.Exit(1)
	}

	dbPool := initializeDatabase(cfg, logger)
	defer closeDatabase(dbPool, logger)

	repo := postgres.NewBillingRepository(dbPool, logger)
	session := initializeSession(cfg, logger)
	publisher, amqpConn := initializeEvents(cfg, logger)
	if amqpConn != nil {
		defer amqpConn.Close()
	}

	messages := billing.NewMessageBuilder(cfg.Billing.ProductName)
	sweepJob := batch.NewReminderSweepJob(
		repo, session, publisher, messages, loc,
		cfg.Billing.SweepHorizonDays, cfg.WhatsApp.ReconnectGrace, logger,
	)
	generationJob := batch.NewInvoiceGenerationJob(repo, sweepJob, publisher, loc, logger)

	consumer := startPaymentConsumer(cfg, amqpConn, repo, session, messages, logger)
	if consumer != nil {
		defer consumer.Stop()
	}

	cronScheduler := startScheduler(cfg, loc, logger, generationJob)
	router := api.SetupRouter(session, generationJob, sweepJob, cfg, logger)

	srv, serverErrors, shutdownChan := startServer(cfg, router, logger)
	handleShutdown(srv, cronScheduler, session, shutdownChan, serverErrors, logger)
}

func initializeApp() (*config.Config, *slog.Logger) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.Logger)
	slog.SetDefault(logger)
	logger.Info("Application starting...", "config_source", viper.ConfigFileUsed())

	return cfg, logger
}

func initializeDatabase(cfg *config.Config, logger *slog.Logger) *pgxpool.Pool {
	logger.Info("Initializing database connection pool...")
	dbPool, err := postgres.NewConnectionPool(context.Background(), cfg.Database, logger)
	if err != nil {
		logger.Error("Failed to initialize database connection pool", "error", err)
		os.Exit(1)
	}
	return dbPool
}

func closeDatabase(dbPool *pgxpool.Pool, logger *slog.Logger) {
	logger.Info("Closing database connection pool...")
	dbPool.Close()
}

func initializeSession(cfg *config.Config, logger *slog.Logger) *whatsapp.SessionManager {
	logger.Info("Initializing messaging session manager...", "session", cfg.WhatsApp.SessionName)
	transport := whatsapp.NewGatewayTransport(cfg.WhatsApp, logger)
	session := whatsapp.NewSessionManager(transport, cfg.WhatsApp, logger)

	// Kick off the first connect in the background; the session comes up
	// (or surfaces a QR code) while the rest of the app starts.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := session.Initialize(ctx); err != nil {
			logger.Error("Initial session connect failed; dashboard can retry via /whatsapp/connect", slog.Any("error", err))
		}
	}()
	return session
}

func initializeEvents(cfg *config.Config, logger *slog.Logger) (event.Publisher, *amqp.Connection) {
	if !cfg.RabbitMQ.Enabled {
		logger.Info("RabbitMQ disabled, using no-op event publisher")
		return event.NoopPublisher{}, nil
	}

	url := fmt.Sprintf("amqp://%s:%s@%s:%d/",
		cfg.RabbitMQ.Username, cfg.RabbitMQ.Password, cfg.RabbitMQ.Host, cfg.RabbitMQ.Port)
	conn, err := amqp.Dial(url)
	if err != nil {
		logger.Error("Failed to connect to RabbitMQ, falling back to no-op publisher", slog.Any("error", err))
		return event.NoopPublisher{}, nil
	}

	publisher, err := event.NewRabbitMQEventPublisher(conn, cfg.RabbitMQ.ExchangeName, logger)
	if err != nil {
		logger.Error("Failed to create RabbitMQ publisher, falling back to no-op publisher", slog.Any("error", err))
		conn.Close()
		return event.NoopPublisher{}, nil
	}
	return publisher, conn
}

func startPaymentConsumer(
	cfg *config.Config,
	conn *amqp.Connection,
	repo billing.Repository,
	session *whatsapp.SessionManager,
	messages *billing.MessageBuilder,
	logger *slog.Logger,
) *event.Consumer {
	if conn == nil {
		return nil
	}

	paymentHandler := event.NewPaymentConfirmedHandler(repo, session, messages, logger)
	consumer, err := event.NewConsumer(
		conn,
		cfg.RabbitMQ.ExchangeName,
		cfg.RabbitMQ.QueueName,
		cfg.RabbitMQ.ConsumerTag,
		paymentHandler.HandleDelivery,
		logger,
	)
	if err != nil {
		logger.Error("Failed to create payment confirmation consumer", slog.Any("error", err))
		return nil
	}
	if err := consumer.Start(context.Background()); err != nil {
		logger.Error("Failed to start payment confirmation consumer", slog.Any("error", err))
		return nil
	}
	return consumer
}

func startScheduler(cfg *config.Config, loc *time.Location, logger *slog.Logger, generationJob *batch.InvoiceGenerationJob) scheduler.Scheduler {
	logger.Info("Initializing job scheduler...", "timezone", cfg.Billing.Timezone)
	cronScheduler := scheduler.NewCronScheduler(loc, cfg.Billing.JobTimeout, logger)

	triggerTime := cfg.Billing.TriggerTime
	if triggerTime == "" {
		triggerTime = "02:30"
		logger.Warn("Billing trigger time not configured, using default", "trigger_time", triggerTime)
	}

	err := cronScheduler.ScheduleDaily(triggerTime, "InvoiceGeneration", func(ctx context.Context) {
		if runErr := generationJob.Run(ctx); runErr != nil {
			logger.Error("Scheduled invoice generation finished with error", slog.Any("error", runErr))
		}
	})
	if err != nil {
		logger.Error("Failed to schedule invoice generation job", "trigger_time", triggerTime, slog.Any("error", err))
	}

	cronScheduler.Start()
	return cronScheduler
}

func startServer(cfg *config.Config, router http.Handler, logger *slog.Logger) (*http.Server, <-chan error, <-chan os.Signal) {
	logger.Info("Setting up HTTP server...", "port", cfg.Server.Port)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info(fmt.Sprintf("Server listening on port %d", cfg.Server.Port))
		err := srv.ListenAndServe()
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "error", err)
			serverErrors <- err
		} else {
			logger.Info("Server closed gracefully.")
			serverErrors <- nil
		}
	}()
	return srv, serverErrors, shutdownChan
}

func handleShutdown(
	srv *http.Server,
	cronScheduler scheduler.Scheduler,
	session *whatsapp.SessionManager,
	shutdownChan <-chan os.Signal,
	serverErrors <-chan error,
	logger *slog.Logger,
) {
	logger.Info("Shutdown handler started. Waiting for signal or server error...")

	var triggerReason string
	select {
	case sig := <-shutdownChan:
		triggerReason = "signal: " + sig.String()
		logger.Info("Shutdown signal received.", "signal", sig.String())
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server exited unexpectedly before signal", "error", err)
			os.Exit(1)
		}
		triggerReason = "server exited"
		logger.Info("Server goroutine finished before signal.", "error", err)
	}

	logger.Info("Starting graceful shutdown...", "trigger", triggerReason)

	logger.Info("Stopping cron scheduler...")
	cronCtx := cronScheduler.Stop()
	select {
	case <-cronCtx.Done():
		logger.Info("Cron scheduler stopped gracefully.")
	case <-time.After(15 * time.Second):
		logger.Warn("Cron scheduler shutdown timed out.")
	}

	sessionCtx, sessionCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := session.Close(sessionCtx); err != nil {
		logger.Warn("Messaging session close failed", slog.Any("error", err))
	}
	sessionCancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	logger.Info("Shutting down HTTP server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server graceful shutdown failed", "error", err)
		} else {
			logger.Info("HTTP server shutdown initiated.")
		}
		if err := srv.Close(); err != nil {
			logger.Error("HTTP server forced close failed", "error", err)
		}
	} else {
		logger.Info("HTTP server gracefully stopped.")
	}

	logger.Info("Waiting for server goroutine to confirm exit...")
	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("Server goroutine exited with unexpected error after shutdown", "error", err)
		} else {
			logger.Info("Server goroutine confirmed exit.")
		}
	case <-time.After(5 * time.Second):
		logger.Warn("Timed out waiting for server goroutine confirmation.")
	}

	logger.Info("Application shutdown process complete.")
}
