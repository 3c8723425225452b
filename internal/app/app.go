package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ticketline/ticketline/internal/client"
	"github.com/ticketline/ticketline/internal/config"
	"github.com/ticketline/ticketline/internal/notify"
	"github.com/ticketline/ticketline/internal/postgres"
	"github.com/ticketline/ticketline/internal/redis"
	postgresrepo "github.com/ticketline/ticketline/internal/repository/postgres"
	redisrepo "github.com/ticketline/ticketline/internal/repository/redis"
	"github.com/ticketline/ticketline/internal/service"
	httpgin "github.com/ticketline/ticketline/internal/transport/http/gin"
	"golang.org/x/sync/errgroup"
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server
	notifier   *notify.AMQPNotifier
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	// Initialize dependencies
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.Name,
		cfg.Postgres.SSLMode,
	)

	pgxPool, err := postgres.New(context.Background(), postgres.Config{DSN: dsn})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres: %w", err)
	}

	rdb, err := redis.New(context.Background(), redis.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	notifier, err := notify.NewAMQPNotifier(notify.Config{URL: cfg.AMQP.URL, Queue: cfg.AMQP.Queue})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize notifier: %w", err)
	}

	// Initialize collaborator clients
	hc := client.NewHTTPClient(cfg.Collaborators.Timeout)
	users := client.NewUserClient(cfg.Collaborators.UsersBaseURL, hc)
	events := client.NewEventClient(cfg.Collaborators.EventsBaseURL, hc)

	// Initialize repositories
	store := postgresrepo.NewStore(pgxPool)
	cache := redisrepo.New(rdb)
	pubsub := redisrepo.NewTicketsPubSub(rdb)
	limiter := redisrepo.NewSlidingWindowLimiter(rdb, "book", 10, 1*time.Minute)
	idempotencyStore := redisrepo.NewIdempotencyStore(rdb, 2*time.Hour)

	// Initialize services
	services := service.NewServices(store, users, events, events, notifier, cache, pubsub, limiter, logger, service.Config{})

	// Initialize Gin router
	router := httpgin.NewRouter(services, idempotencyStore, logger)

	return &App{
		cfg:      cfg,
		logger:   logger,
		notifier: notifier,
		httpServer: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler: router,
		},
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.httpServer.Shutdown(ctx); err != nil {
			return err
		}
		return a.notifier.Close()
	})

	return g.Wait()
}
