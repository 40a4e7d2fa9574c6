// Package pool provides worker pool options.
package pool

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/docquery/pkg/infra/pool"
	"github.com/kart-io/docquery/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options 任务执行池配置。
type Options struct {
	Capacity       int           `json:"capacity" mapstructure:"capacity"`
	ExpiryDuration time.Duration `json:"expiry-duration" mapstructure:"expiry-duration"`
	Nonblocking    bool          `json:"nonblocking" mapstructure:"nonblocking"`
	MaxBlocking    int           `json:"max-blocking" mapstructure:"max-blocking"`
}

// NewOptions 创建默认池配置。
func NewOptions() *Options {
	d := pool.DefaultConfig()
	return &Options{
		Capacity:       d.Capacity,
		ExpiryDuration: d.ExpiryDuration,
		Nonblocking:    true,
		MaxBlocking:    0,
	}
}

// AddFlags adds flags for pool options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.IntVar(&o.Capacity, p+"pool.capacity", o.Capacity, "Maximum number of jobs running concurrently.")
	fs.DurationVar(&o.ExpiryDuration, p+"pool.expiry-duration", o.ExpiryDuration, "Idle worker expiry.")
	fs.BoolVar(&o.Nonblocking, p+"pool.nonblocking", o.Nonblocking, "Reject submissions when all workers are busy.")
	fs.IntVar(&o.MaxBlocking, p+"pool.max-blocking", o.MaxBlocking, "Maximum queued submissions when blocking (0 is unlimited).")
}

// Validate validates the pool options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("pool.capacity must be positive"))
	}
	if o.ExpiryDuration <= 0 {
		errs = append(errs, fmt.Errorf("pool.expiry-duration must be positive"))
	}
	if o.MaxBlocking < 0 {
		errs = append(errs, fmt.Errorf("pool.max-blocking must not be negative"))
	}
	return errs
}

// ToConfig converts the options to a pool config.
func (o *Options) ToConfig() *pool.Config {
	return &pool.Config{
		Capacity:         o.Capacity,
		ExpiryDuration:   o.ExpiryDuration,
		Nonblocking:      o.Nonblocking,
		MaxBlockingTasks: o.MaxBlocking,
	}
}
