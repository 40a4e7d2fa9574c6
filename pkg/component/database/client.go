// Package database opens gorm connections for sqlite, mysql and postgres.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kart-io/logger"

	"github.com/kart-io/docquery/pkg/component/storage"
)

// 支持的方言。
const (
	DialectSQLite   = "sqlite"
	DialectMySQL    = "mysql"
	DialectPostgres = "postgres"
)

// Config 数据库连接配置。
type Config struct {
	Dialect         string
	DSN             string
	LogLevel        gormlogger.LogLevel
	SlowThreshold   time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Client wraps gorm.DB with storage.Client.
type Client struct {
	db      *gorm.DB
	dialect string
}

var _ storage.Client = (*Client)(nil)

// Open connects with the given dialect and verifies the connection.
//
// Example usage:
//
//	client, err := database.Open(ctx, &database.Config{Dialect: "sqlite", DSN: "file:jobs.db"})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	client.DB().AutoMigrate(&Record{})
func Open(ctx context.Context, cfg *Config) (*Client, error) {
	if cfg == nil || cfg.DSN == "" {
		return nil, storage.ErrInvalidConfig.WithMessage("database dsn is required")
	}

	var dialector gorm.Dialector
	switch cfg.Dialect {
	case DialectSQLite:
		dialector = sqlite.Open(cfg.DSN)
	case DialectMySQL:
		dialector = mysql.Open(cfg.DSN)
	case DialectPostgres:
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, storage.ErrInvalidConfig.WithMessage(fmt.Sprintf("unsupported dialect %q", cfg.Dialect))
	}

	level := cfg.LogLevel
	if level == 0 {
		level = gormlogger.Warn
	}
	slow := cfg.SlowThreshold
	if slow == 0 {
		slow = 200 * time.Millisecond
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         NewGormLogger(level, slow),
		TranslateError: true,
	})
	if err != nil {
		return nil, storage.ErrConnectionFailed.WithCause(fmt.Errorf("open %s: %w", cfg.Dialect, err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, storage.ErrConnectionFailed.WithCause(err)
	}

	// sqlite 单写者，限制为一个连接避免 database is locked
	if cfg.Dialect == DialectSQLite {
		sqlDB.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, storage.ErrConnectionFailed.WithCause(fmt.Errorf("ping %s: %w", cfg.Dialect, err))
	}

	logger.Infow("Database connected", "dialect", cfg.Dialect)
	return &Client{db: db, dialect: cfg.Dialect}, nil
}

// Name returns the dialect.
func (c *Client) Name() string {
	return c.dialect
}

// Ping checks the underlying connection.
func (c *Client) Ping(ctx context.Context) error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (c *Client) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// DB returns the gorm handle.
func (c *Client) DB() *gorm.DB {
	return c.db
}
