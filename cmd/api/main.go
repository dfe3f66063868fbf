package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/turnos-ai/internal/api/router"
	appbootstrap "github.com/wolfman30/turnos-ai/internal/app/bootstrap"
	"github.com/wolfman30/turnos-ai/internal/auth"
	appconfig "github.com/wolfman30/turnos-ai/internal/config"
	"github.com/wolfman30/turnos-ai/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/turnos-ai/internal/http/middleware"
	"github.com/wolfman30/turnos-ai/internal/observability/metrics"
	"github.com/wolfman30/turnos-ai/internal/session"
	"github.com/wolfman30/turnos-ai/pkg/logging"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting turnos-ai API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"llm_provider", cfg.LLMProvider,
		"email_provider", cfg.EmailProvider,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tokens, err := auth.NewTokens(cfg.SessionSecret, cfg.SessionTTL)
	if err != nil {
		logger.Error("invalid session configuration", "error", err)
		os.Exit(1)
	}

	// Storage
	pool := appbootstrap.BuildPostgresPool(ctx, cfg, logger)
	if pool != nil {
		defer pool.Close()
	}
	redisClient := appbootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}
	sessions := session.NewResolver(appbootstrap.BuildSessionStore(redisClient, logger), cfg.SessionTTL)

	// Services
	metricsHandler, bookingMetrics := setupMetrics()
	appointmentSvc, err := appbootstrap.BuildAppointmentService(ctx, cfg, pool, bookingMetrics, logger)
	if err != nil {
		logger.Error("failed to build appointment service", "error", err)
		os.Exit(1)
	}
	chatSvc, err := appbootstrap.BuildConversationService(ctx, cfg, pool, appointmentSvc, bookingMetrics, logger)
	if err != nil {
		logger.Error("failed to build conversation service", "error", err)
		os.Exit(1)
	}

	// Handlers
	cookies := handlers.NewSessionCookies(tokens, cfg.CookieSecure)
	var authHandler *handlers.AuthHandler
	if provider := setupGoogleLogin(cfg, logger); provider != nil {
		authHandler = handlers.NewAuthHandler(provider, sessions, cookies, cfg.CookieSecure, logger)
	}

	limiter := httpmiddleware.NewRateLimiter(cfg.ChatRateLimit, cfg.ChatRateBurst)
	go limiter.RunEviction(ctx, time.Minute)

	// Setup router
	routerCfg := &router.Config{
		Logger:             logger,
		Clinic:             cfg.ClinicName,
		Tokens:             tokens,
		Chat:               handlers.NewChatHandler(chatSvc, sessions, cookies, logger),
		Appointments:       handlers.NewAppointmentHandler(appointmentSvc, cfg.ClinicName, cfg.Location(), logger),
		Auth:               authHandler,
		Health:             handlers.NewHealthHandler(healthChecks(pool, redisClient)),
		MetricsHandler:     metricsHandler,
		ChatLimiter:        limiter,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	}
	r := router.New(routerCfg)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// setupMetrics registers the booking metrics on a private registry together
// with the Go runtime collectors.
func setupMetrics() (http.Handler, *metrics.BookingMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewBookingMetrics(reg)
}

// setupGoogleLogin returns nil when the OAuth client is not configured; the
// chat then only accepts session cookies issued elsewhere.
func setupGoogleLogin(cfg *appconfig.Config, logger *logging.Logger) *auth.GoogleProvider {
	if strings.TrimSpace(cfg.GoogleClientID) == "" || strings.TrimSpace(cfg.GoogleClientSecret) == "" {
		logger.Warn("google login disabled: GOOGLE_CLIENT_ID/GOOGLE_CLIENT_SECRET not set")
		return nil
	}
	redirect := cfg.GoogleRedirectURL
	if redirect == "" {
		redirect = cfg.PublicBaseURL + "/auth/callback"
	}
	provider, err := auth.NewGoogleProvider(auth.GoogleConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  redirect,
	})
	if err != nil {
		logger.Error("google login disabled", "error", err)
		return nil
	}
	return provider
}

func healthChecks(pool *pgxpool.Pool, redisClient *redis.Client) map[string]handlers.HealthCheck {
	checks := map[string]handlers.HealthCheck{}
	if pool != nil {
		checks["postgres"] = pool.Ping
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}
	return checks
}
