// Command server runs the task-lifecycle engine: the event consumer
// endpoints, the reminder scheduling API, and the websocket broadcast
// hub, all in one process.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/taskpulse/taskpulse/internal/api"
	"github.com/taskpulse/taskpulse/internal/config"
	"github.com/taskpulse/taskpulse/internal/events"
	"github.com/taskpulse/taskpulse/internal/hub"
	"github.com/taskpulse/taskpulse/internal/platform/logger"
	"github.com/taskpulse/taskpulse/internal/platform/postgres"
	"github.com/taskpulse/taskpulse/internal/recurring"
	"github.com/taskpulse/taskpulse/internal/reminder"
	"github.com/taskpulse/taskpulse/internal/scheduler"
	"github.com/taskpulse/taskpulse/internal/service/auth"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}

	db, err := openDatabase(cfg.Database.URL, log)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := postgres.Migrate(db, log); err != nil {
		return err
	}

	taskStore := postgres.NewPostgresTaskStore(db)
	ruleStore := postgres.NewPostgresRecurrenceRuleStore(db)
	reminderStore := postgres.NewPostgresReminderStore(db)

	verifier, err := auth.NewTokenVerifier(cfg.Auth)
	if err != nil {
		return fmt.Errorf("failed to create token verifier: %w", err)
	}

	broadcastHub := hub.New(cfg.Hub, verifier, cfg.Auth.RequireToken, log)

	// Without a sidecar, the in-memory bus closes the loop: events
	// published by the generator and scheduler dispatch synchronously to
	// the same consumers the HTTP endpoints expose.
	var publisher events.Publisher
	var bus *events.Bus
	if cfg.Events.SidecarURL != "" {
		publisher = events.NewSidecarPublisher(cfg.Events.SidecarURL, cfg.Events.PubSub, log)
		log.Info("publishing through sidecar", "sidecar_url", cfg.Events.SidecarURL)
	} else {
		bus = events.NewBus(log)
		publisher = bus
		log.Info("publishing on in-memory bus")
	}

	dispatcher := reminder.NewDispatcher(
		reminderStore,
		taskStore,
		publisher,
		reminder.DispatcherConfigFrom(cfg.Webhook),
		log,
	)

	jobs := scheduler.NewTimerScheduler(dispatcher.DispatchJob, log)
	defer jobs.Stop()

	reminderScheduler := reminder.NewScheduler(reminderStore, jobs, publisher, log)
	generator := recurring.NewGenerator(taskStore, ruleStore, publisher, log)

	if bus != nil {
		bus.Subscribe(events.TopicTaskLifecycle, generator)
		bus.Subscribe(events.TopicReminderLifecycle, dispatcher)
		bus.Subscribe(events.TopicTaskBroadcast, broadcastHub)
	}

	router := api.NewRouter(api.RouterDeps{
		TaskLifecycle:     generator,
		ReminderLifecycle: dispatcher,
		TaskBroadcast:     broadcastHub,
		Scheduler:         reminderScheduler,
		Dispatcher:        dispatcher,
		Hub:               broadcastHub,
		Gauges:            broadcastHub,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", server.Addr)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", "error", err)
	}

	// Stop the timer scheduler before the hub: in-flight delivery
	// attempts finish and record their consumed retry slots.
	jobs.Stop()
	broadcastHub.Shutdown()

	log.Info("shutdown complete")
	return nil
}

// openDatabase opens and verifies the connection pool.
func openDatabase(url string, log *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("database ping timed out: %w", err)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Info("database connection verified")
	return db, nil
}
