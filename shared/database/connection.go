package database

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewConnection 创建数据库连接（支持PostgreSQL和SQLite）
func NewConnection(config Config) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch {
	case config.IsPostgres():
		dialector = postgres.Open(config.DSN())
	case config.Name != "":
		// SQLite配置（本地开发与测试）
		dialector = sqlite.Open(config.Name)
	default:
		dialector = sqlite.Open(":memory:")
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(config.LogLevel),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		DisableForeignKeyConstraintWhenMigrating: true, // 兼容SQLite
	})
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取sql.DB失败: %w", err)
	}

	if !config.IsPostgres() {
		// 内存SQLite每个连接都是独立的数据库
		if config.Name == "" || config.Name == ":memory:" {
			sqlDB.SetMaxOpenConns(1)
		}
		return db, nil
	}

	sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("数据库连接测试失败: %w", err)
	}

	return db, nil
}

// TestConfig 创建测试专用的数据库配置
func TestConfig() Config {
	return Config{
		Driver:          "sqlite",
		Name:            ":memory:", // SQLite内存数据库
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: time.Minute,
		LogLevel:        logger.Silent, // 测试时静默
	}
}

// IsPostgreSQL 检查是否为PostgreSQL连接
func IsPostgreSQL(db *gorm.DB) bool {
	return db.Dialector.Name() == "postgres"
}

// IsSQLite 检查是否为SQLite连接
func IsSQLite(db *gorm.DB) bool {
	return db.Dialector.Name() == "sqlite"
}
