package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/wanderleymp/finance-api-sub002/internal/api"
	apimiddleware "github.com/wanderleymp/finance-api-sub002/internal/api/middleware"
	"github.com/wanderleymp/finance-api-sub002/internal/config"
	"github.com/wanderleymp/finance-api-sub002/internal/platform/n8n"
	"github.com/wanderleymp/finance-api-sub002/internal/platform/postgres"
	"github.com/wanderleymp/finance-api-sub002/internal/platform/rabbitmq"
	"github.com/wanderleymp/finance-api-sub002/internal/platform/rediscache"
	"github.com/wanderleymp/finance-api-sub002/internal/service/auth"
	"github.com/wanderleymp/finance-api-sub002/internal/task"
)

// application holds every long-lived component of the service.
type application struct {
	cfg    *config.Config
	logger *slog.Logger

	db       *sql.DB
	broker   *rabbitmq.Client
	cache    *rediscache.Cache
	router   chi.Router
	consumer *task.Consumer
	sweeper  *task.Sweeper
}

// newApplication wires the full dependency graph: database and
// migrations, lookup tables, broker topology, webhook client, the task
// pipeline, and the HTTP routes.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	db, err := openDatabase(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	if err := runMigrations(ctx, db, logger); err != nil {
		return nil, err
	}

	// Lookup tables are seed data; a missing required process is a
	// deployment defect and stops the boot.
	lookups, err := postgres.LoadLookups(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("failed to load lookup tables: %w", err)
	}

	taskStore := postgres.NewTaskStore(db, lookups)
	userStore := postgres.NewUserStore(db)

	broker := rabbitmq.NewClient(rabbitmq.Config{
		URL:            cfg.RabbitMQ.URL,
		ReconnectDelay: time.Duration(cfg.RabbitMQ.ReconnectDelaySeconds) * time.Second,
		MaxRetries:     cfg.RabbitMQ.MaxRetries,
	}, logger)
	if err := broker.Connect(ctx); err != nil {
		// The broker being down must not keep the API down: tasks are
		// still created and the sweeper still runs them. The client
		// reconnects lazily on the first publish.
		logger.Warn("broker unavailable at startup, continuing without it", "error", err)
	}

	cache := rediscache.New(rediscache.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		TTL:      time.Duration(cfg.Redis.TTLSeconds) * time.Second,
	}, logger)

	webhooks := n8n.NewClient(n8n.Config{
		BaseURL:         cfg.Webhook.BaseURL,
		APISecret:       cfg.Webhook.APISecret,
		APIKey:          cfg.Webhook.APIKey,
		BoletoCancelURL: cfg.Webhook.BoletoCancelURL,
	}, nil, logger)

	dispatcher := task.NewDispatcher(taskStore, webhooks, cache, logger)
	producer := task.NewProducer(taskStore, broker,
		time.Duration(cfg.Task.DefaultDelayHours)*time.Hour, logger)
	consumer := task.NewConsumer(taskStore, dispatcher, broker, logger)
	sweeper := task.NewSweeper(taskStore, dispatcher, cfg.Task.SweeperSpec, logger)
	taskService := task.NewService(taskStore, producer, cache, logger)

	jwtService, err := auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT service: %w", err)
	}
	authService := auth.NewService(userStore, jwtService, auth.NewPasswordVerifier(), logger)

	router := api.NewRouter(
		api.NewAuthHandler(authService),
		api.NewTaskHandler(taskService),
		api.NewBillingHandler(producer, webhooks),
		apimiddleware.NewAuthMiddleware(jwtService),
	)

	return &application{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		broker:   broker,
		cache:    cache,
		router:   router,
		consumer: consumer,
		sweeper:  sweeper,
	}, nil
}

// Run starts the consumers, the sweeper and the HTTP server, then blocks
// until the context is cancelled and shuts everything down in reverse
// order.
func (app *application) Run(ctx context.Context) error {
	if err := app.consumer.Start(ctx); err != nil {
		// Consumers come back with the broker reconnect; the sweeper
		// covers the gap.
		app.logger.Warn("queue consumers not started", "error", err)
	}

	if err := app.sweeper.Start(); err != nil {
		return fmt.Errorf("failed to start sweeper: %w", err)
	}

	serverErr := app.serveHTTP(ctx)

	app.sweeper.Stop()
	if err := app.broker.Close(); err != nil {
		app.logger.Error("failed to close broker connection", "error", err)
	}
	if err := app.cache.Close(); err != nil {
		app.logger.Error("failed to close cache connection", "error", err)
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error("failed to close database", "error", err)
	}

	return serverErr
}

// openDatabase opens the connection pool and verifies connectivity.
func openDatabase(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established")
	return db, nil
}
