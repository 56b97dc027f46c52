package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"ridepool/internal/cache"
	"ridepool/internal/config"
	"ridepool/internal/contextx"
	"ridepool/internal/httpapi"
	"ridepool/internal/jwt"
	"ridepool/internal/logger"
	"ridepool/internal/marketplace"
	"ridepool/internal/postgres"
	"ridepool/internal/rabbitmq"
	"ridepool/internal/ws"
)

// run wires the marketplace service and blocks until ctx is cancelled.
func run(ctx context.Context, maxConcurrent int) error {
	log := logger.New("ridepool", false)
	defer func() { _ = log.Sync() }()
	ctx = contextx.WithRequestID(ctx, "startup-001")

	cfg, err := config.Load()
	if err != nil {
		logger.Error(ctx, log, "config_load_failed", "Failed to load configuration", err)
		return err
	}
	if cfg.Debug {
		log = logger.New("ridepool", true)
	}

	pool, err := postgres.NewPool(ctx, cfg, log)
	if err != nil {
		logger.Error(ctx, log, "db_connection_failed", "Failed to initialize Postgres pool", err)
		return err
	}
	defer pool.Close()

	rmq, err := rabbitmq.Connect(ctx, cfg, log)
	if err != nil {
		logger.Error(ctx, log, "rabbitmq_connection_failed", "Failed to connect to RabbitMQ", err)
		return err
	}
	defer rmq.Close()

	readCache, err := cache.New(ctx, cfg)
	if err != nil {
		logger.Error(ctx, log, "redis_connection_failed", "Failed to connect to Redis", err)
		return err
	}
	defer func() { _ = readCache.Close() }()

	jwtManager := jwt.NewManager(cfg.JWT.SecretKey, cfg.JWT.AccessTTL)

	uow := postgres.NewUnitOfWork(pool)
	rideRepo := postgres.NewRideRepo()
	bookingRepo := postgres.NewBookingRepo()
	userRepo := postgres.NewUserRepo()

	hub := ws.NewHub(log)
	publisher := rabbitmq.NewPublisher(rmq)

	svc := marketplace.NewService(log, uow, rideRepo, bookingRepo, userRepo, readCache, publisher, hub, marketplace.Policy{
		AllowPastRideBooking: cfg.AllowPastRideBooking,
		CacheTTL:             cfg.Redis.CacheTTL,
	})

	handler := httpapi.NewHandler(svc, log, jwtManager, hub)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           withConcurrencyLimit(maxConcurrent, handler.Router()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	logger.Info(ctx, log, "service_started", fmt.Sprintf("Marketplace service started on port %d", cfg.HTTP.Port))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info(ctx, log, "shutdown_started", "Shutting down gracefully")
		if err := srv.Shutdown(shCtx); err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, log, "http_shutdown_failed", "Failed to gracefully shut down HTTP server", err)
		}
	case err := <-errCh:
		if err != nil {
			logger.Error(ctx, log, "http_server_error", "HTTP server terminated with error", err)
			return err
		}
	}

	return nil
}

// withConcurrencyLimit wraps an http.Handler with a semaphore-based limiter
// bounding in-flight requests.
func withConcurrencyLimit(n int, next http.Handler) http.Handler {
	if n <= 0 {
		return next
	}
	sem := make(chan struct{}, n)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case sem <- struct{}{}:
			defer func() { <-sem }()
			next.ServeHTTP(w, r)
		case <-r.Context().Done():
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		}
	})
}
