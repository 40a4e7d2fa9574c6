// Package job provides job tracking options.
package job

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/docquery/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// 任务存储后端。
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreGorm   = "gorm"
)

// gorm 方言。
const (
	DialectSQLite   = "sqlite"
	DialectMySQL    = "mysql"
	DialectPostgres = "postgres"
)

// Options 任务配置。
type Options struct {
	// Store 任务存储后端（memory, redis, gorm）。
	Store string `json:"store" mapstructure:"store"`
	// Timeout 单个任务的执行超时。
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
	// TTL redis 任务记录的过期时间，0 表示不过期。
	TTL time.Duration `json:"ttl" mapstructure:"ttl"`
	// KeyPrefix redis 键前缀。
	KeyPrefix string `json:"key-prefix" mapstructure:"key-prefix"`
	// Dialect gorm 方言（sqlite, mysql, postgres）。
	Dialect string `json:"dialect" mapstructure:"dialect"`
	// DSN gorm 数据源。
	DSN string `json:"-" mapstructure:"dsn"`
}

// NewOptions 创建默认任务配置。
func NewOptions() *Options {
	return &Options{
		Store:     StoreMemory,
		Timeout:   5 * time.Minute,
		TTL:       24 * time.Hour,
		KeyPrefix: "docquery:job:",
		Dialect:   DialectSQLite,
		DSN:       "file:docquery.db?cache=shared",
	}
}

// AddFlags adds flags for job options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.StringVar(&o.Store, p+"job.store", o.Store, "Job store backend (memory, redis, gorm).")
	fs.DurationVar(&o.Timeout, p+"job.timeout", o.Timeout, "Maximum run time of a single job.")
	fs.DurationVar(&o.TTL, p+"job.ttl", o.TTL, "Expiry of job records in redis; 0 keeps them.")
	fs.StringVar(&o.KeyPrefix, p+"job.key-prefix", o.KeyPrefix, "Redis key prefix for job records.")
	fs.StringVar(&o.Dialect, p+"job.dialect", o.Dialect, "SQL dialect for the gorm store (sqlite, mysql, postgres).")
	fs.StringVar(&o.DSN, p+"job.dsn", o.DSN, "Data source name for the gorm store.")
}

// Validate validates the job options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	switch o.Store {
	case StoreMemory:
	case StoreRedis:
		if o.KeyPrefix == "" {
			errs = append(errs, fmt.Errorf("job.key-prefix is required for the redis store"))
		}
	case StoreGorm:
		switch o.Dialect {
		case DialectSQLite, DialectMySQL, DialectPostgres:
		default:
			errs = append(errs, fmt.Errorf("job.dialect must be one of sqlite, mysql, postgres"))
		}
		if o.DSN == "" {
			errs = append(errs, fmt.Errorf("job.dsn is required for the gorm store"))
		}
	default:
		errs = append(errs, fmt.Errorf("job.store must be one of memory, redis, gorm"))
	}
	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("job.timeout must be positive"))
	}
	if o.TTL < 0 {
		errs = append(errs, fmt.Errorf("job.ttl must not be negative"))
	}
	return errs
}
