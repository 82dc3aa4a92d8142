package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Config 数据库配置
type Config struct {
	Driver          string // postgres, sqlite
	Host            string
	Port            int
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	LogLevel        logger.LogLevel
}

// DSN 返回PostgreSQL连接字符串
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// IsPostgres 是否使用PostgreSQL
func (c Config) IsPostgres() bool {
	return c.Driver == "postgres" || (c.Driver == "" && c.Host != "" && c.Port > 0)
}

// NewSQLX 创建sqlx连接（告警存储使用原生SQL）
func NewSQLX(config Config) (*sqlx.DB, error) {
	if !config.IsPostgres() {
		return nil, fmt.Errorf("sqlx连接仅支持PostgreSQL，当前驱动: %s", config.Driver)
	}

	db, err := sqlx.Open("postgres", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("数据库连接测试失败: %w", err)
	}

	return db, nil
}

// SQLXFromGorm 复用gorm底层连接创建sqlx句柄（SQLite开发环境使用）
func SQLXFromGorm(db *gorm.DB) (*sqlx.DB, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取sql.DB失败: %w", err)
	}

	driverName := "sqlite3"
	if IsPostgreSQL(db) {
		driverName = "postgres"
	}
	return sqlx.NewDb(sqlDB, driverName), nil
}
