// Package app 组装指标服务的依赖，供HTTP服务与命令行共用
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cloud-platform/team-metrics/internal/metrics-service/alert"
	"github.com/cloud-platform/team-metrics/internal/metrics-service/notification"
	"github.com/cloud-platform/team-metrics/internal/metrics-service/repository"
	"github.com/cloud-platform/team-metrics/internal/metrics-service/service"
	"github.com/cloud-platform/team-metrics/shared/cache"
	"github.com/cloud-platform/team-metrics/shared/config"
	"github.com/cloud-platform/team-metrics/shared/database"
	"github.com/cloud-platform/team-metrics/shared/monitoring"
)

// App 已连接的服务组件
type App struct {
	Config *config.Config
	Logger *zap.Logger

	DB      *gorm.DB
	AlertDB *sqlx.DB
	Reader  repository.DataReader
	Store   cache.Store
	Monitor *monitoring.PerformanceMonitor

	Metrics service.MetricsService
	Alerts  service.AlertService

	Notifications *notification.NotificationManager
	Dispatcher    *notification.Dispatcher
	Hub           *notification.Hub

	closers []func() error
}

// New 连接数据库与缓存并构建服务
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger, Monitor: monitoring.NewPerformanceMonitor(logger, monitoring.DefaultSlowThreshold)}

	db, err := database.NewConnection(cfg.Database.ToDBConfig())
	if err != nil {
		return nil, err
	}
	a.DB = db
	a.closers = append(a.closers, func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})

	if database.IsSQLite(db) {
		if err := repository.MigrateSourceSchema(db); err != nil {
			a.Close()
			return nil, fmt.Errorf("migrate source schema: %w", err)
		}
	}

	// PostgreSQL使用独立的lib/pq连接池，SQLite与源数据共用连接
	if database.IsPostgreSQL(db) {
		a.AlertDB, err = database.NewSQLX(cfg.Database.ToDBConfig())
		if err == nil {
			a.closers = append(a.closers, a.AlertDB.Close)
		}
	} else {
		a.AlertDB, err = database.SQLXFromGorm(db)
	}
	if err != nil {
		a.Close()
		return nil, err
	}
	alertRepo := repository.NewAlertRepository(a.AlertDB)
	if err := alertRepo.EnsureSchema(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("ensure alert schema: %w", err)
	}

	a.Store = a.newStore(ctx)
	a.Reader = repository.NewDataReader(db, cfg.Metrics.QueryTimeout)

	evaluator := alert.NewEvaluator(alert.ThresholdsFromConfig(cfg.Alerts))
	opts := service.OptionsFromConfig(cfg.Metrics)
	opts.Recorder = a.Monitor
	a.Metrics = service.NewMetricsService(a.Reader, a.Store, evaluator, opts, logger)

	a.Notifications = notification.NewNotificationManager(logger)
	a.Hub = notification.NewHub(logger)
	if err := a.registerNotifiers(); err != nil {
		a.Close()
		return nil, err
	}
	a.Dispatcher = notification.NewDispatcher(a.Notifications, cfg.Slack.ReportsChannel, logger)

	router := alert.Router{
		AlertsChannel:    cfg.Slack.AlertsChannel,
		TeamLeadsChannel: cfg.Slack.TeamLeadsChannel,
	}
	a.Alerts = service.NewAlertService(a.Metrics, alertRepo, a.Dispatcher, router, logger)

	return a, nil
}

// newStore Redis不可用时退回进程内缓存
func (a *App) newStore(ctx context.Context) cache.Store {
	if !a.Config.Redis.Enabled {
		return cache.NewMemoryStore()
	}

	client := cache.NewRedisClient(cache.RedisConfig{
		Addr:         a.Config.GetRedisAddr(),
		Password:     a.Config.Redis.Password,
		DB:           a.Config.Redis.DB,
		PoolSize:     a.Config.Redis.PoolSize,
		DialTimeout:  a.Config.Redis.DialTimeout,
		ReadTimeout:  a.Config.Redis.ReadTimeout,
		WriteTimeout: a.Config.Redis.WriteTimeout,
	})
	if err := client.Ping(ctx); err != nil {
		a.Logger.Warn("Redis不可用，使用内存缓存", zap.String("addr", a.Config.GetRedisAddr()), zap.Error(err))
		_ = client.Close()
		return cache.NewMemoryStore()
	}

	a.closers = append(a.closers, client.Close)
	return client
}

func (a *App) registerNotifiers() error {
	if err := a.Notifications.RegisterNotifier(notification.NewSlackNotifier(a.Config.Slack, a.Logger)); err != nil {
		return err
	}
	if err := a.Notifications.RegisterNotifier(a.Hub); err != nil {
		return err
	}

	if a.Config.Kafka.Enabled && a.Config.Kafka.AlertsTopic != "" {
		kafkaNotifier := notification.NewKafkaNotifier(a.Config.Kafka.Brokers, a.Config.Kafka.AlertsTopic, a.Logger)
		if err := a.Notifications.RegisterNotifier(kafkaNotifier); err != nil {
			return err
		}
		a.closers = append(a.closers, kafkaNotifier.Close)
	}
	return nil
}

// Close 按创建的逆序释放资源
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
