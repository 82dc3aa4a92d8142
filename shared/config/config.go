package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/cloud-platform/team-metrics/shared/database"
	"github.com/cloud-platform/team-metrics/shared/logger"
	gormlogger "gorm.io/gorm/logger"
)

// Config 应用程序配置结构
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Alerts    AlertsConfig    `mapstructure:"alerts"`
	Slack     SlackConfig     `mapstructure:"slack"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Security  SecurityConfig  `mapstructure:"security"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port           int           `mapstructure:"port" validate:"gt=0,lte=65535"`
	Host           string        `mapstructure:"host"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Environment    string        `mapstructure:"environment" validate:"oneof=development test staging production"`
}

// Address 返回服务器监听地址
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" validate:"oneof=postgres sqlite"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Name            string        `mapstructure:"name" validate:"required"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"`
}

// ToDBConfig 转换为database.Config
func (d *DatabaseConfig) ToDBConfig() database.Config {
	level := gormlogger.Warn
	switch strings.ToLower(d.LogLevel) {
	case "silent":
		level = gormlogger.Silent
	case "error":
		level = gormlogger.Error
	case "info":
		level = gormlogger.Info
	}

	return database.Config{
		Driver:          d.Driver,
		Host:            d.Host,
		Port:            d.Port,
		Name:            d.Name,
		User:            d.User,
		Password:        d.Password,
		SSLMode:         d.SSLMode,
		MaxOpenConns:    d.MaxOpenConns,
		MaxIdleConns:    d.MaxIdleConns,
		ConnMaxLifetime: d.ConnMaxLifetime,
		ConnMaxIdleTime: d.ConnMaxIdleTime,
		LogLevel:        level,
	}
}

// RedisConfig Redis配置
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// KafkaConfig Kafka配置
type KafkaConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	Brokers     []string `mapstructure:"brokers"`
	GroupID     string   `mapstructure:"group_id"`
	EventsTopic string   `mapstructure:"events_topic"` // 任务/迭代/团队变更事件
	AlertsTopic string   `mapstructure:"alerts_topic"` // 告警下游发布
}

// LogConfig 日志配置
type LogConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	FilePath string `mapstructure:"file_path"`
}

// ToLoggerConfig 转换为logger.Config
func (l *LogConfig) ToLoggerConfig() logger.Config {
	return logger.Config{
		Level:    l.Level,
		Format:   l.Format,
		Output:   l.Output,
		FilePath: l.FilePath,
	}
}

// MetricsConfig 指标计算与缓存配置
type MetricsConfig struct {
	VelocityWindow            int           `mapstructure:"velocity_window" validate:"gt=0"`
	QueryTimeout              time.Duration `mapstructure:"query_timeout" validate:"gt=0"`
	CachePrefix               string        `mapstructure:"cache_prefix" validate:"required"`
	TeamWorkloadTTL           time.Duration `mapstructure:"team_workload_ttl" validate:"gt=0"`
	AnalysisTTL               time.Duration `mapstructure:"analysis_ttl" validate:"gt=0"`
	HistoricalReportTTL       time.Duration `mapstructure:"historical_report_ttl" validate:"gt=0"`
	SprintReportTTL           time.Duration `mapstructure:"sprint_report_ttl" validate:"gt=0"`
	RecommendationVariability float64       `mapstructure:"recommendation_variability" validate:"gte=0"`
}

// AlertsConfig 告警阈值
type AlertsConfig struct {
	VelocityDrop    float64 `mapstructure:"velocity_drop" validate:"gte=0,lte=100"`
	ReworkRate      float64 `mapstructure:"rework_rate" validate:"gte=0,lte=100"`
	TestCoverage    float64 `mapstructure:"test_coverage" validate:"gte=0,lte=100"`
	ReviewTimeHours float64 `mapstructure:"review_time_hours" validate:"gte=0"`
	TeamHealth      float64 `mapstructure:"team_health" validate:"gte=0,lte=100"`
}

// SlackConfig Slack通知配置
type SlackConfig struct {
	WebhookURL       string        `mapstructure:"webhook_url"`
	Username         string        `mapstructure:"username"`
	AlertsChannel    string        `mapstructure:"alerts_channel"`
	ReportsChannel   string        `mapstructure:"reports_channel"`
	TeamLeadsChannel string        `mapstructure:"team_leads_channel"`
	MaxRetries       int           `mapstructure:"max_retries"`
	RetryDelay       time.Duration `mapstructure:"retry_delay"`
}

// SchedulerConfig 定时任务配置
type SchedulerConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	WeeklyReportEvery   time.Duration `mapstructure:"weekly_report_every"`
	AlertCheckEvery     time.Duration `mapstructure:"alert_check_every"`
	TeamIDs             []string      `mapstructure:"team_ids"`
	PipelineRunDeadline time.Duration `mapstructure:"pipeline_run_deadline"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	Cleanup           time.Duration `mapstructure:"cleanup"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	CorsAllowedOrigins []string `mapstructure:"cors_allowed_origins"`
	TrustedProxies     []string `mapstructure:"trusted_proxies"`
}

// Load 加载配置
func Load() (*Config, error) {
	return LoadWith(viper.New())
}

// LoadWith 使用给定的viper实例加载配置
func LoadWith(v *viper.Viper) (*Config, error) {
	var cfg Config

	setDefaults(v)

	// 设置配置文件路径
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/team-metrics")
	v.AddConfigPath("$HOME/.team-metrics")

	// 设置环境变量前缀
	v.SetEnvPrefix("TEAM_METRICS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 设置环境变量映射
	_ = v.BindEnv("server.port", "TEAM_METRICS_SERVER_PORT", "PORT")
	_ = v.BindEnv("database.host", "DATABASE_HOST", "DB_HOST")
	_ = v.BindEnv("database.port", "DATABASE_PORT", "DB_PORT")
	_ = v.BindEnv("database.name", "DATABASE_NAME", "DB_NAME")
	_ = v.BindEnv("database.user", "DATABASE_USER", "DB_USER")
	_ = v.BindEnv("database.password", "DATABASE_PASSWORD", "DB_PASSWORD")
	_ = v.BindEnv("redis.host", "REDIS_HOST")
	_ = v.BindEnv("redis.port", "REDIS_PORT")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("slack.webhook_url", "SLACK_WEBHOOK_URL")

	// 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	// 解析配置
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	// kafka.brokers 从环境变量读取时为逗号分隔字符串
	if len(cfg.Kafka.Brokers) == 1 && strings.Contains(cfg.Kafka.Brokers[0], ",") {
		cfg.Kafka.Brokers = strings.Split(cfg.Kafka.Brokers[0], ",")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// 服务器默认值
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.request_timeout", "30s")

	// 数据库默认值
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.name", "team_metrics.db")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "300s")
	v.SetDefault("database.conn_max_idle_time", "60s")
	v.SetDefault("database.log_level", "warn")

	// Redis默认值
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.read_timeout", "3s")
	v.SetDefault("redis.write_timeout", "3s")

	// Kafka默认值
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.group_id", "team-metrics")
	v.SetDefault("kafka.events_topic", "team-metrics.entity-changes")
	v.SetDefault("kafka.alerts_topic", "team-metrics.alerts")

	// 日志默认值
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")

	// 指标默认值
	v.SetDefault("metrics.velocity_window", 10)
	v.SetDefault("metrics.query_timeout", "10s")
	v.SetDefault("metrics.cache_prefix", "metrics")
	v.SetDefault("metrics.team_workload_ttl", "15m")
	v.SetDefault("metrics.analysis_ttl", "1h")
	v.SetDefault("metrics.historical_report_ttl", "24h")
	v.SetDefault("metrics.sprint_report_ttl", "168h")
	v.SetDefault("metrics.recommendation_variability", 25)

	// 告警阈值默认值
	v.SetDefault("alerts.velocity_drop", 20)
	v.SetDefault("alerts.rework_rate", 30)
	v.SetDefault("alerts.test_coverage", 80)
	v.SetDefault("alerts.review_time_hours", 48)
	v.SetDefault("alerts.team_health", 60)

	// Slack默认值
	v.SetDefault("slack.username", "team-metrics")
	v.SetDefault("slack.alerts_channel", "#alerts")
	v.SetDefault("slack.reports_channel", "#reports")
	v.SetDefault("slack.team_leads_channel", "#team-leads")
	v.SetDefault("slack.max_retries", 3)
	v.SetDefault("slack.retry_delay", "2s")

	// 定时任务默认值
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.weekly_report_every", "168h")
	v.SetDefault("scheduler.alert_check_every", "1h")
	v.SetDefault("scheduler.pipeline_run_deadline", "5m")

	// 限流默认值
	v.SetDefault("rate_limit.requests_per_second", 20)
	v.SetDefault("rate_limit.burst", 40)
	v.SetDefault("rate_limit.cleanup", "10m")
}

// Validate 验证配置
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	if c.Database.Driver == "postgres" {
		if c.Database.Host == "" {
			return fmt.Errorf("PostgreSQL主机不能为空")
		}
		if c.Database.Password == "" && c.IsProduction() {
			return fmt.Errorf("生产环境数据库密码不能为空")
		}
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("启用Kafka时必须配置brokers")
	}

	if len(c.Security.CorsAllowedOrigins) == 0 && c.IsProduction() {
		return fmt.Errorf("生产环境必须配置CORS允许的域名")
	}

	return nil
}

// GetRedisAddr 获取Redis地址
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// IsDevelopment 是否为开发环境
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}

// IsProduction 是否为生产环境
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}
