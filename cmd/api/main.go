// Package main is the entry point for the CoursePulse API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/tmajkow/coursepulse/internal/analytics"
	"github.com/tmajkow/coursepulse/internal/api"
	"github.com/tmajkow/coursepulse/internal/auth"
	"github.com/tmajkow/coursepulse/internal/cache"
	"github.com/tmajkow/coursepulse/internal/config"
	"github.com/tmajkow/coursepulse/internal/db"
	"github.com/tmajkow/coursepulse/internal/event"
	"github.com/tmajkow/coursepulse/internal/export"
	"github.com/tmajkow/coursepulse/internal/health"
	"github.com/tmajkow/coursepulse/internal/insight"
	"github.com/tmajkow/coursepulse/internal/jobs"
	"github.com/tmajkow/coursepulse/internal/middleware"
	"github.com/tmajkow/coursepulse/internal/stream"
	"github.com/tmajkow/coursepulse/internal/tracing"
	"github.com/tmajkow/coursepulse/internal/webhook"
)

func main() {
	configPath := flag.String("config", "", "path to optional YAML config file")
	help := flag.Bool("help", false, "display help message")
	flag.Parse()

	if *help {
		fmt.Println("CoursePulse API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", "summary", cfg.LogSummary())

	// Tracing is off unless TRACING_ENABLED=true.
	tracingEnabled, _ := strconv.ParseBool(os.Getenv("TRACING_ENABLED"))
	samplingRate := 1.0
	if v := os.Getenv("TRACING_SAMPLING_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			samplingRate = f
		}
	}
	tracerProvider, err := tracing.NewProvider(tracing.Config{
		ServiceName:  "coursepulse-api",
		Enabled:      tracingEnabled,
		Environment:  cfg.Env,
		ExporterType: os.Getenv("TRACING_EXPORTER"),
		OTLPEndpoint: os.Getenv("OTLP_ENDPOINT"),
		SamplingRate: samplingRate,
		InsecureMode: cfg.Env != "production",
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	dbConn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer dbConn.Close()

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := dbConn.PingContext(pingCtx); err != nil {
		logger.Warn("database not reachable at startup", "error", err)
	}
	cancelPing()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer redisClient.Close()

	registry := prometheus.NewRegistry()
	httpMetrics := middleware.NewMetrics()
	if err := httpMetrics.Register(registry); err != nil {
		logger.Error("failed to register http metrics", "error", err)
		os.Exit(1)
	}
	jobMetrics := jobs.NewMetrics()
	if err := jobMetrics.Register(registry); err != nil {
		logger.Error("failed to register job metrics", "error", err)
		os.Exit(1)
	}
	streamMetrics := stream.NewMetrics()
	if err := streamMetrics.Register(registry); err != nil {
		logger.Error("failed to register stream metrics", "error", err)
		os.Exit(1)
	}

	thresholds, err := analytics.LoadCalibration(cfg.CalibrationPath)
	if err != nil {
		logger.Warn("calibration load failed, using defaults", "path", cfg.CalibrationPath, "error", err)
		thresholds = analytics.DefaultThresholds()
	}
	engine := analytics.NewEngine(thresholds)

	eventRepo := event.NewPostgresRepository(dbConn, logger)
	deliveryRepo := webhook.NewPostgresRepository(dbConn)
	reportCache := cache.NewRedisReportCache(redisClient, time.Duration(cfg.CacheTTLSeconds)*time.Second)

	hub := stream.NewHubWithMetrics(streamMetrics)
	tracker := jobs.NewDirtyTracker()
	recomputeJob := jobs.NewRecomputeJob(jobs.RecomputeJobConfig{
		Interval: time.Duration(cfg.RecomputeIntervalMinutes) * time.Minute,
		Logger:   logger,
		Metrics:  jobMetrics,
	}, tracker, eventRepo, engine, reportCache, hub)

	var insightClient insight.Generator
	if cfg.InsightAPIURL != "" {
		insightClient = insight.NewClient(cfg.InsightAPIURL, cfg.InsightAPIKey, cfg.InsightModel)
	}

	var exporter api.Exporter
	if cfg.R2BucketName != "" {
		exportService, err := export.NewService(export.ServiceConfig{
			BucketName:      cfg.R2BucketName,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			Endpoint:        cfg.R2Endpoint,
		})
		if err != nil {
			logger.Error("failed to initialize export service", "error", err)
			os.Exit(1)
		}
		exporter = exportService
	}

	jwtService := auth.NewJWTService(cfg.JWTSecret)
	requireAuth := middleware.RequireAuth(jwtService)

	analyticsHandlers := api.NewAnalyticsHandlers(api.AnalyticsHandlersConfig{
		Events:   eventRepo,
		Engine:   engine,
		Reports:  reportCache,
		Insights: insightClient,
		Exporter: exporter,
		Logger:   logger,
	})
	webhookHandlers := api.NewWebhookHandlers(cfg.WhopWebhookSecret, deliveryRepo, eventRepo, tracker, logger)
	streamHandlers := api.NewStreamHandlers(hub)
	healthHandlers := api.NewHealthHandlers(api.HealthHandlersConfig{
		DBChecker:    health.NewDBChecker(dbConn),
		RedisChecker: health.NewRedisChecker(redisClient),
	})

	// Webhook deliveries are limited by IP, dashboard reads by creator.
	rateLimitStore := middleware.NewRedisRateLimitStore(redisClient)
	webhookLimit := middleware.RateLimiter(rateLimitStore, middleware.DefaultWebhookLimit(), middleware.IPKeyFunc())
	dashboardLimit := middleware.RateLimiter(rateLimitStore, middleware.DefaultDashboardLimit(), middleware.CreatorKeyFunc())

	protected := func(h http.HandlerFunc) http.Handler {
		return requireAuth(dashboardLimit(h))
	}

	mux := http.NewServeMux()
	mux.Handle("/analytics/dashboard", protected(analyticsHandlers.Dashboard))
	mux.Handle("/analytics/consistency", protected(analyticsHandlers.Consistency))
	mux.Handle("/analytics/breakthroughs", protected(analyticsHandlers.Breakthroughs))
	mux.Handle("/analytics/pathways", protected(analyticsHandlers.Pathways))
	mux.Handle("/analytics/commitment", protected(analyticsHandlers.Commitment))
	mux.Handle("/analytics/insight", protected(analyticsHandlers.Insight))
	mux.Handle("/analytics/export", protected(analyticsHandlers.Export))
	mux.Handle("/analytics/students/", protected(analyticsHandlers.Student))
	mux.Handle("/ws/dashboard", requireAuth(http.HandlerFunc(streamHandlers.SubscribeToDashboard)))
	mux.Handle("/webhooks/whop", webhookLimit(http.HandlerFunc(webhookHandlers.HandleWhopWebhook)))
	mux.HandleFunc("/health", healthHandlers.Health)
	mux.HandleFunc("/ready", healthHandlers.Ready)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		// Only handle exact root path, everything else returns 404
		if r.URL.Path != "/" {
			ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeNotFound)
			api.WriteError(w, ctx, http.StatusNotFound, api.ErrCodeNotFound, "The requested resource was not found")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"service":"coursepulse-api","version":"0.1.0"}`)); err != nil {
			slog.Error("failed to write response", "error", err)
		}
	})

	var corsOrigins []string
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		corsOrigins = append(corsOrigins, v)
	}

	// Apply middleware: RequestID -> Logging -> HTTPMetrics -> Tracing -> CORS
	var handler http.Handler = mux
	handler = middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:   corsOrigins,
		AllowCredentials: true,
		MaxAge:           300,
	})(handler)
	handler = middleware.Tracing("coursepulse-api")(handler)
	handler = middleware.HTTPMetrics(httpMetrics)(handler)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.RequestID(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()
	if err := recomputeJob.Start(jobCtx); err != nil {
		logger.Error("failed to start recompute job", "error", err)
		os.Exit(1)
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting server", "port", cfg.Port, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	recomputeJob.Stop()
	cancelJobs()

	// Create context with timeout for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	if err := tracerProvider.Shutdown(ctx); err != nil {
		logger.Warn("tracer shutdown failed", "error", err)
	}

	logger.Info("server stopped")
}
