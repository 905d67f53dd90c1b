package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/Art-555/CallOut/internal/alert"
	"github.com/Art-555/CallOut/internal/api"
	"github.com/Art-555/CallOut/internal/auth"
	"github.com/Art-555/CallOut/internal/circuitbreaker"
	"github.com/Art-555/CallOut/internal/config"
	"github.com/Art-555/CallOut/internal/db"
	"github.com/Art-555/CallOut/internal/dispatch"
	"github.com/Art-555/CallOut/internal/ledger"
	"github.com/Art-555/CallOut/internal/metrics"
	"github.com/Art-555/CallOut/internal/observ"
	"github.com/Art-555/CallOut/internal/ops"
	"github.com/Art-555/CallOut/internal/redis"
	"github.com/Art-555/CallOut/internal/retry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Setup logger
	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting callout gateway",
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
	)

	// Initialize database connection
	ctx := context.Background()
	dbConfig := db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}

	database, err := db.New(ctx, dbConfig, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	logger.Info("database connection established",
		zap.String("host", cfg.DBHost),
		zap.Int("port", cfg.DBPort),
		zap.String("database", cfg.DBName),
	)

	// Initialize repository and ledger
	repo := db.NewRepository(database, logger)
	led := ledger.New(database, logger)

	// Initialize Redis for sessions, idempotency, rate limiting and
	// the last-known location cache. Sessions are mandatory; the rest
	// degrade gracefully.
	redisClient, err := redis.New(ctx, redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer redisClient.Close()

	sessions := redis.NewSessionStore(redisClient, logger, cfg.SessionTTL)
	idempotency := redis.NewIdempotencyService(redisClient, logger)
	locations := redis.NewLocationStore(redisClient, logger, 0)
	rateLimiter := redis.NewRateLimiter(redisClient, logger, redis.RateLimitConfig{
		Limit:  cfg.TriggerRateLimit,
		Window: cfg.TriggerRateWindow,
	})

	// Channel senders, each behind its own circuit breaker
	var senders []dispatch.Sender

	sesSender, err := dispatch.NewSESSender(ctx, dispatch.SESConfig{
		Region:    cfg.AWSRegion,
		FromEmail: cfg.SESFromEmail,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create SES email sender: %w", err)
	}
	senders = append(senders, circuitbreaker.NewProtectedSender(
		sesSender,
		circuitbreaker.New(circuitbreaker.DefaultConfig("email"), logger),
		logger,
	))

	snsSender, err := dispatch.NewSNSSender(ctx, dispatch.SNSConfig{
		Region: cfg.SNSRegion,
	}, logger)
	if err != nil {
		logger.Warn("SNS sender unavailable, SMS deliveries disabled",
			zap.Error(err),
		)
	} else {
		senders = append(senders, circuitbreaker.NewProtectedSender(
			snsSender,
			circuitbreaker.New(circuitbreaker.DefaultConfig("sms"), logger),
			logger,
		))
	}

	webhookSender := dispatch.NewWebhookSender(logger, dispatch.WebhookConfig{
		Timeout: time.Duration(cfg.WebhookTimeout) * time.Second,
	})
	senders = append(senders, circuitbreaker.NewProtectedSender(
		webhookSender,
		circuitbreaker.New(circuitbreaker.DefaultConfig("webhook"), logger),
		logger,
	))

	multiSender := dispatch.NewMultiSender(logger, senders...)

	logger.Info("initialized delivery channels",
		zap.Bool("email_enabled", true),
		zap.Bool("sms_enabled", snsSender != nil),
		zap.Bool("webhook_enabled", true),
	)

	// Dispatcher for the initial fan-out
	dispatcher := dispatch.New(led, multiSender, dispatch.Config{
		Parallelism:    cfg.DispatchParallelism,
		AttemptTimeout: cfg.AttemptTimeout,
		RetryBase:      cfg.RetryBase,
	}, logger)

	// Ops reporter for exhausted deliveries
	var reporter ops.Reporter
	if cfg.OpsQueueURL != "" {
		sqsReporter, err := ops.NewSQSReporter(ctx, ops.SQSConfig{
			Region:   cfg.OpsQueueRegion,
			QueueURL: cfg.OpsQueueURL,
		}, logger)
		if err != nil {
			logger.Warn("ops queue unavailable, exhausted reports will only be logged",
				zap.Error(err),
			)
			reporter = ops.NewLogReporter(logger)
		} else {
			reporter = sqsReporter
		}
	} else {
		reporter = ops.NewLogReporter(logger)
	}

	// Retry coordinator
	coordinator := retry.New(led, dispatcher, reporter, retry.Config{
		PollInterval: cfg.RetryPollInterval,
		BatchSize:    cfg.RetryBatchSize,
		MaxAttempts:  cfg.MaxAttempts,
		BackoffBase:  cfg.RetryBase,
		BackoffMax:   cfg.RetryMax,
		PendingGrace: cfg.PendingGrace,
	}, logger)

	retryCtx, retryCancel := context.WithCancel(context.Background())
	defer retryCancel()

	go coordinator.Start(retryCtx)

	logger.Info("retry coordinator started",
		zap.Duration("poll_interval", cfg.RetryPollInterval),
		zap.Int("max_attempts", cfg.MaxAttempts),
	)

	// Auth service
	authService := auth.NewService(repo, sessions, logger)

	// API handler
	handler := api.NewHandler(logger, api.Deps{
		Store:      repo,
		Alerts:     led,
		Dispatcher: dispatcher,
		Composer: alert.NewComposer(alert.Policy{
			RequireLocation: cfg.RequireLocation,
		}),
		Resolver:    alert.NewResolver(repo, logger),
		Auth:        authService,
		Sessions:    sessions,
		Idempotency: idempotency,
		Locations:   locations,
	})

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// Custom logging middleware
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration_ms", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	})

	// API routes
	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth/signup", handler.SignUp)
		r.Post("/auth/login", handler.Login)

		// Everything else requires a session
		r.Group(func(r chi.Router) {
			r.Use(handler.Authenticator)

			r.Post("/auth/logout", handler.Logout)

			r.Get("/profile", handler.GetMyProfile)
			r.Put("/profile", handler.UpdateMyProfile)
			r.Get("/profiles/{userID}", handler.GetUserProfile)

			r.Post("/contacts", handler.CreateContact)
			r.Get("/contacts", handler.ListContacts)
			r.Put("/contacts/{id}", handler.UpdateContact)
			r.Delete("/contacts/{id}", handler.DeleteContact)

			r.Get("/users/search", handler.SearchUsers)

			r.Put("/location", handler.UpdateLocation)

			r.Get("/alerts", handler.ListAlerts)
			r.Get("/alerts/{id}", handler.GetAlert)

			// The trigger endpoint gets its own rate limit so a stuck
			// device cannot flood contacts.
			r.Group(func(r chi.Router) {
				r.Use(api.RateLimitMiddleware(rateLimiter, logger, api.UserKeyFunc))
				r.Post("/alerts", handler.TriggerAlert)
			})
		})
	})

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := database.Health(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("database unavailable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint
	r.Handle("/metrics", metrics.Handler())

	// Setup HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	// Listen for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a signal or server error
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		// Give outstanding requests 10 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			srv.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		logger.Info("server stopped gracefully")
	}

	return nil
}
