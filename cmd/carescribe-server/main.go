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

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/carescribe/carescribe/internal/config"
	"github.com/carescribe/carescribe/internal/domain/ailog"
	"github.com/carescribe/carescribe/internal/domain/nursing"
	"github.com/carescribe/carescribe/internal/domain/risk"
	"github.com/carescribe/carescribe/internal/domain/soapnote"
	"github.com/carescribe/carescribe/internal/platform/ai"
	"github.com/carescribe/carescribe/internal/platform/ai/provider"
	"github.com/carescribe/carescribe/internal/platform/alerting"
	"github.com/carescribe/carescribe/internal/platform/db"
	"github.com/carescribe/carescribe/internal/platform/middleware"
	"github.com/carescribe/carescribe/internal/platform/openapi"
	"github.com/carescribe/carescribe/internal/platform/reporting"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "carescribe-server",
		Short: "CareScribe clinical documentation API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the CareScribe API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

// parseLogLevel maps a LOG_LEVEL string to a zerolog level, defaulting to
// info for unknown values.
func parseLogLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger.Level(parseLogLevel(cfg.LogLevel))
}

// buildAdapters returns the provider adapters for the configured AI_MODE.
// Scripted mode fabricates deterministic offline responses; live mode talks
// to the real provider APIs.
func buildAdapters(cfg *config.Config) map[string]provider.Adapter {
	if cfg.AIMode == "live" {
		timeout := cfg.AIRequestTimeoutDuration()
		return map[string]provider.Adapter{
			"openai": provider.NewOpenAI(provider.OpenAIConfig{
				APIKey:  cfg.OpenAIAPIKey,
				BaseURL: cfg.OpenAIBaseURL,
				Model:   cfg.AIModel,
				Timeout: timeout,
			}),
			"anthropic": provider.NewAnthropic(provider.AnthropicConfig{
				APIKey:  cfg.AnthropicAPIKey,
				BaseURL: cfg.AnthropicBaseURL,
				Model:   cfg.AIModel,
				Timeout: timeout,
			}),
		}
	}

	// Distinct delays keep scripted latency metrics from collapsing to a
	// single value, so provider selection stays observable in development.
	return map[string]provider.Adapter{
		"openai":    provider.NewScripted("openai", 120*time.Millisecond),
		"anthropic": provider.NewScripted("anthropic", 180*time.Millisecond),
	}
}

// orchestratorConfig maps environment configuration onto the pipeline
// stage settings.
func orchestratorConfig(cfg *config.Config) ai.OrchestratorConfig {
	return ai.OrchestratorConfig{
		DefaultProvider:  cfg.DefaultProvider,
		FallbackProvider: cfg.FallbackProvider,
		RateLimit: ai.RateLimiterConfig{
			Limit:  cfg.RateLimitMax,
			Window: cfg.RateLimitWindowDuration(),
		},
		Breaker: ai.BreakerConfig{
			Threshold:   cfg.BreakerThreshold,
			OpenTimeout: cfg.BreakerTimeoutDuration(),
		},
		Cache: ai.CacheConfig{
			TTL:        cfg.CacheTTLDuration(),
			MaxEntries: cfg.CacheMaxSize,
		},
		Selector: ai.SelectorConfig{Margin: cfg.SelectionMargin},
	}
}

// cacheStore returns the Redis-backed response cache store when REDIS_URL is
// configured, or nil to let the orchestrator fall back to process memory.
func cacheStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (ai.Store, error) {
	if cfg.RedisURL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	logger.Info().Str("addr", opts.Addr).Msg("connected to redis response cache")
	return ai.NewRedisStore(client, "carescribe:ai", cfg.CacheTTLDuration()), nil
}

func runServer() error {
	bootstrapLogger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	// Config
	cfg, err := config.Load()
	if err != nil {
		bootstrapLogger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		bootstrapLogger.Fatal().Err(err).Msg("invalid configuration")
	}
	logger := newLogger(cfg)

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.SanitizeWithLogger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	// The request deadline leaves headroom over the provider call timeout so
	// slow generations surface as provider errors, not blank 504s.
	e.Use(middleware.RequestTimeout(cfg.AIRequestTimeoutDuration() + 10*time.Second))
	e.Use(middleware.Audit(logger))

	// API group
	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.BodyLimit("1M"))
	apiV1.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))

	// Prometheus
	registry := prometheus.NewRegistry()
	prom := ai.NewPromMetricsWithRegistry(registry)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// Response cache store
	store, err := cacheStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}

	// Orchestrator
	adapters := buildAdapters(cfg)
	orch, err := ai.NewOrchestrator(orchestratorConfig(cfg), adapters, nil, store, prom, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build orchestrator")
	}
	logger.Info().
		Str("mode", cfg.AIMode).
		Str("default_provider", cfg.DefaultProvider).
		Str("fallback_provider", cfg.FallbackProvider).
		Msg("AI pipeline configured")

	// Breaker transition alerts
	var notifier *alerting.Notifier
	if cfg.AlertWebhookURL != "" {
		notifier, err = alerting.NewNotifier(cfg.AlertWebhookURL, cfg.AlertWebhookSecret, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid alert webhook configuration")
		}
		orch.OnBreakerChange(func(providerID string, from, to ai.BreakerState) {
			notifier.NotifyBreakerTransition(providerID, string(from), string(to))
		})
		logger.Info().Msg("breaker alert webhook enabled")
	}

	// Call log sink
	callLogSvc := ailog.NewService(ailog.NewCallLogRepoPG(pool))
	sink := ailog.NewSink(callLogSvc, logger)
	orch.SetOutcomeSink(sink)

	// Background sweeps for expired rate-limit windows and cache entries
	maintCtx, stopMaint := context.WithCancel(ctx)
	defer stopMaint()
	orch.StartMaintenance(maintCtx)

	// AI pipeline endpoints
	aiHandler := ai.NewHandler(orch)
	aiHandler.RegisterRoutes(apiV1)

	// Call log
	ailogHandler := ailog.NewHandler(callLogSvc)
	ailogHandler.RegisterRoutes(apiV1)

	// Nursing assessments
	nursingSvc := nursing.NewService(nursing.NewAssessmentRepoPG(pool), orch)
	nursingHandler := nursing.NewHandler(nursingSvc)
	nursingHandler.RegisterRoutes(apiV1)

	// SOAP notes
	soapSvc := soapnote.NewService(soapnote.NewNoteRepoPG(pool), orch)
	soapHandler := soapnote.NewHandler(soapSvc)
	soapHandler.RegisterRoutes(apiV1)

	// Risk narratives
	riskSvc := risk.NewService(risk.NewReportRepoPG(pool), orch)
	riskHandler := risk.NewHandler(riskSvc)
	riskHandler.RegisterRoutes(apiV1)

	// Operational reports
	reportingHandler := reporting.NewHandler(pool)
	reportingHandler.RegisterRoutes(apiV1)

	// OpenAPI document
	baseURL := fmt.Sprintf("http://localhost:%s/api/v1", cfg.Port)
	openAPIGen := openapi.NewGenerator("0.1.0", baseURL)
	openAPIGen.RegisterRoutes(apiV1)

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}

	stopMaint()
	sink.Flush()
	if notifier != nil {
		notifier.Flush()
	}
	logger.Info().Msg("server stopped")
	return nil
}
