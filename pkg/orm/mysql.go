package orm

import (
	"errors"
	"fmt"
	"time"

	"clobex.com/pkg/metrics"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Config struct {
	DSN         string `mapstructure:"dsn"`
	MaxIdle     int    `mapstructure:"maxIdle"`
	MaxOpen     int    `mapstructure:"maxOpen"`
	MaxLifetime int    `mapstructure:"maxLifetime"` // 秒
	LogLevel    string `mapstructure:"logLevel"`    // silent / error / warn / info
}

// NewMySQL 打开连接池并挂上耗时指标
func NewMySQL(c *Config) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(c.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel(c.LogLevel)),
	})
	if err != nil {
		return nil, fmt.Errorf("connect mysql: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if c.MaxIdle > 0 {
		sqlDB.SetMaxIdleConns(c.MaxIdle)
	}
	if c.MaxOpen > 0 {
		sqlDB.SetMaxOpenConns(c.MaxOpen)
	}
	if c.MaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(c.MaxLifetime) * time.Second)
	}
	if err := RegisterMetrics(db); err != nil {
		return nil, err
	}
	return db, nil
}

func logLevel(s string) logger.LogLevel {
	switch s {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

const startKey = "clobex:start"

// RegisterMetrics 给 create/query/update/delete 前后挂回调，按表名记耗时
func RegisterMetrics(db *gorm.DB) error {
	before := func(tx *gorm.DB) { tx.InstanceSet(startKey, time.Now()) }
	after := func(op string) func(*gorm.DB) {
		return func(tx *gorm.DB) {
			v, ok := tx.InstanceGet(startKey)
			if !ok {
				return
			}
			start, _ := v.(time.Time)
			metrics.DbQueryDuration.WithLabelValues(op+":"+tx.Statement.Table, metrics.Status(tx.Error)).
				Observe(time.Since(start).Seconds())
		}
	}
	cb := db.Callback()
	return errors.Join(
		cb.Create().Before("gorm:create").Register("metrics:create:before", before),
		cb.Create().After("gorm:create").Register("metrics:create:after", after("create")),
		cb.Query().Before("gorm:query").Register("metrics:query:before", before),
		cb.Query().After("gorm:query").Register("metrics:query:after", after("query")),
		cb.Update().Before("gorm:update").Register("metrics:update:before", before),
		cb.Update().After("gorm:update").Register("metrics:update:after", after("update")),
		cb.Delete().Before("gorm:delete").Register("metrics:delete:before", before),
		cb.Delete().After("gorm:delete").Register("metrics:delete:after", after("delete")),
	)
}
