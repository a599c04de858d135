package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rentalplatform"
	"rentalplatform/internal/audit"
	"rentalplatform/internal/booking"
	"rentalplatform/internal/common/database"
	"rentalplatform/internal/common/events"
	"rentalplatform/internal/common/middleware"
	natsbus "rentalplatform/internal/common/nats"
	"rentalplatform/internal/member"
	"rentalplatform/internal/metrics"
	"rentalplatform/internal/notify"
	"rentalplatform/internal/providers/card"
	"rentalplatform/internal/providers/wallet"
	"rentalplatform/internal/vehicle"
)

// Config holds service configuration
type Config struct {
	Port        int    `envconfig:"RENTAL_PORT" default:"8080"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`

	AdminKey        string   `envconfig:"ADMIN_API_KEY"`
	UserTokenSecret string   `envconfig:"USER_TOKEN_SECRET"`
	AllowedOrigins  []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`

	Database database.Config
	NATS     natsbus.Config
	Card     card.Config
	Wallet   wallet.Config
	SMTP     notify.SMTPConfig
}

func main() {
	// A local .env is a development convenience; absence is not an error.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to process config: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Database
	db, err := database.New(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.Migrate(rentalplatform.Migrations, cfg.Database.URL, logger); err != nil {
		logger.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}

	// Event bus
	natsClient, err := natsbus.New(ctx, cfg.NATS, logger)
	if err != nil {
		logger.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()

	if _, err := natsClient.EnsureStream(ctx, cfg.NATS.Stream); err != nil {
		logger.Error("failed to ensure event stream", "error", err)
		os.Exit(1)
	}
	notifyConsumer, err := natsClient.EnsureConsumer(ctx, cfg.NATS.Stream, "notify-worker", events.SubjectAll)
	if err != nil {
		logger.Error("failed to ensure notify consumer", "error", err)
		os.Exit(1)
	}
	publisher := natsbus.NewPublisher(natsClient, logger)

	// Stores
	bookingStore := booking.NewPostgresStore(db)
	vehicleStore := vehicle.NewPostgresStore(db.Pool())
	memberStore := member.NewPostgresStore(db.Pool())
	auditStore := audit.NewPostgresStore(db.Pool())

	// Processor adapters
	cardAdapter := card.NewAdapter(cfg.Card, logger)
	walletAdapter := wallet.NewAdapter(cfg.Wallet, logger)

	// Services
	auditService := audit.NewService(auditStore, publisher, logger)
	bookingService := booking.NewService(bookingStore, vehicleStore, memberStore, auditService, cardAdapter, publisher, logger)
	memberService := member.NewService(memberStore, bookingStore, cardAdapter, publisher, logger)

	// Notification worker consumes the event stream; email failures never
	// touch booking state.
	var notifier notify.Notifier
	if cfg.SMTP.Configured() {
		notifier = notify.NewSMTPNotifier(cfg.SMTP, logger)
	} else {
		logger.Warn("SMTP not configured, notifications go to the log")
		notifier = notify.NewConsoleNotifier(logger)
	}
	worker := notify.NewWorker(notifier, cfg.SMTP.OwnerTo, logger)
	subscriber := natsbus.NewSubscriber(natsClient, notifyConsumer, logger)
	go func() {
		if err := subscriber.Start(ctx, worker.Handle); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("notify worker stopped", "error", err)
		}
	}()

	// Handlers
	vehicleHandlers := vehicle.NewHandlers(vehicleStore, logger)
	bookingHandlers := booking.NewHandlers(bookingService)
	memberHandlers := member.NewHandlers(memberService)
	auditHandlers := audit.NewHandlers(auditService)
	cardHandlers := card.NewHandlers(cardAdapter)
	cardWebhook := card.NewWebhookHandler(cfg.Card.WebhookSecret, bookingService, memberService, logger)
	walletHandlers := wallet.NewHandlers(walletAdapter, bookingService, logger)

	metrics.Register()

	// Router
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.CorrelationID)
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(chimw.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.HealthCheck(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","component":"database"}`))
			return
		}
		if err := natsClient.HealthCheck(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","component":"nats"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Public storefront and processor callbacks
		vehicleHandlers.Routes(r)
		r.Post("/webhooks/card", cardWebhook.ServeHTTP)

		// Member surface
		r.Group(func(r chi.Router) {
			r.Use(middleware.UserAuth(userTokenValidator(cfg.UserTokenSecret)))
			bookingHandlers.Routes(r)
			memberHandlers.Routes(r)
			cardHandlers.Routes(r)
			walletHandlers.Routes(r)
		})

		// Admin surface
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.AdminKeyAuth(cfg.AdminKey))
			bookingHandlers.AdminRoutes(r)
			memberHandlers.AdminRoutes(r)
			auditHandlers.Routes(r)
		})
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting rental service",
			"port", cfg.Port,
			"environment", cfg.Environment,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
}

// userTokenValidator verifies member tokens of the form
// base64url(email) + "." + hex(HMAC-SHA256(secret, email)). Tokens are minted
// by the account system, which lives outside this service.
func userTokenValidator(secret string) middleware.UserValidator {
	return func(_ context.Context, token string) (string, error) {
		if secret == "" {
			return "", errors.New("user auth not configured")
		}
		encoded, sig, ok := strings.Cut(token, ".")
		if !ok {
			return "", errors.New("malformed token")
		}
		email, err := base64.RawURLEncoding.DecodeString(encoded)
		if err != nil {
			return "", fmt.Errorf("decoding token subject: %w", err)
		}
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(email)
		if !hmac.Equal([]byte(hex.EncodeToString(mac.Sum(nil))), []byte(sig)) {
			return "", errors.New("bad token signature")
		}
		return string(email), nil
	}
}

func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
