package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cloud-platform/team-metrics/internal/metrics-service/app"
	"github.com/cloud-platform/team-metrics/internal/metrics-service/consumer"
	"github.com/cloud-platform/team-metrics/internal/metrics-service/handler"
	"github.com/cloud-platform/team-metrics/internal/metrics-service/scheduler"
	"github.com/cloud-platform/team-metrics/shared/config"
	"github.com/cloud-platform/team-metrics/shared/logger"
	"github.com/cloud-platform/team-metrics/shared/middleware"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zapLogger, err := logger.NewZap(cfg.Log.ToLoggerConfig())
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()
	appLogger := logger.FromZap(zapLogger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	components, err := app.New(ctx, cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to initialize metrics service", zap.Error(err))
	}
	defer components.Close()

	go components.Hub.Run(ctx)

	// 源数据变更事件触发缓存失效
	var invalidations *consumer.InvalidationConsumer
	if cfg.Kafka.Enabled {
		invalidations = consumer.NewInvalidationConsumer(cfg.Kafka, components.Metrics, appLogger)
		if err := invalidations.Start(); err != nil {
			zapLogger.Fatal("Failed to start invalidation consumer", zap.Error(err))
		}
	}

	var sched scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched, err = newScheduler(cfg, components, zapLogger)
		if err != nil {
			zapLogger.Fatal("Failed to create scheduler", zap.Error(err))
		}
		if err := sched.Start(ctx); err != nil {
			zapLogger.Fatal("Failed to start scheduler", zap.Error(err))
		}
	}

	limiter := middleware.NewLimiterFromConfig(cfg.RateLimit)
	go limiter.Run(ctx)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	if err := r.SetTrustedProxies(cfg.Security.TrustedProxies); err != nil {
		zapLogger.Fatal("Invalid trusted proxies", zap.Error(err))
	}

	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(appLogger))
	r.Use(middleware.CORS(cfg.Security.CorsAllowedOrigins))
	r.Use(middleware.Logger(appLogger))
	r.Use(components.Monitor.HTTPMiddleware())
	r.Use(middleware.SecurityHeaders())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service":    "team-metrics",
			"status":     "healthy",
			"notifiers":  components.Notifications.GetAvailableNotifiers(),
			"ws_clients": components.Hub.ClientCount(),
			"stats":      components.Monitor.Snapshot(),
		})
	})

	metricsHandler := handler.NewMetricsHandler(components.Metrics, components.Alerts, sched, components.Hub.ServeWS, zapLogger)

	v1 := r.Group("/api/v1")
	v1.Use(middleware.RateLimit(limiter, zapLogger))
	v1.Use(middleware.Timeout(cfg.Server.RequestTimeout))
	metricsHandler.RegisterRoutes(v1)

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		zapLogger.Info("Starting team metrics service", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zapLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}
	if sched != nil {
		if err := sched.Stop(); err != nil {
			zapLogger.Warn("Failed to stop scheduler", zap.Error(err))
		}
	}
	if invalidations != nil {
		if err := invalidations.Stop(); err != nil {
			zapLogger.Warn("Failed to stop invalidation consumer", zap.Error(err))
		}
	}

	zapLogger.Info("Server exited")
}

func newScheduler(cfg *config.Config, components *app.App, logger *zap.Logger) (scheduler.Scheduler, error) {
	sched, err := scheduler.NewScheduler(cfg.Scheduler, components.Reader, logger)
	if err != nil {
		return nil, err
	}

	pipelines := []scheduler.Pipeline{
		scheduler.WeeklyReportPipeline(components.Metrics, components.Dispatcher, cfg.Scheduler.WeeklyReportEvery),
		scheduler.AlertCheckPipeline(components.Alerts, cfg.Scheduler.AlertCheckEvery),
	}
	for _, p := range pipelines {
		if err := sched.Register(p); err != nil {
			return nil, err
		}
	}
	return sched, nil
}
