// Package fetch provides document acquisition options.
package fetch

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/docquery/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options 文档下载配置。
type Options struct {
	// Timeout 单个文档的下载超时。
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
	// MaxSize 单个文档的最大字节数。
	MaxSize int64 `json:"max-size" mapstructure:"max-size"`
	// Concurrency 并行下载的文档数。
	Concurrency int `json:"concurrency" mapstructure:"concurrency"`
	// MaxRetries 服务端错误时的重试次数。
	MaxRetries int `json:"max-retries" mapstructure:"max-retries"`
}

// NewOptions 创建默认下载配置。
func NewOptions() *Options {
	return &Options{
		Timeout:     30 * time.Second,
		MaxSize:     50 << 20,
		Concurrency: 4,
		MaxRetries:  1,
	}
}

// AddFlags adds flags for fetch options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.DurationVar(&o.Timeout, p+"fetch.timeout", o.Timeout, "Per-document download timeout.")
	fs.Int64Var(&o.MaxSize, p+"fetch.max-size", o.MaxSize, "Maximum document size in bytes.")
	fs.IntVar(&o.Concurrency, p+"fetch.concurrency", o.Concurrency, "Documents downloaded in parallel.")
	fs.IntVar(&o.MaxRetries, p+"fetch.max-retries", o.MaxRetries, "Retries on server errors.")
}

// Validate validates the fetch options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("fetch.timeout must be positive"))
	}
	if o.MaxSize <= 0 {
		errs = append(errs, fmt.Errorf("fetch.max-size must be positive"))
	}
	if o.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("fetch.concurrency must be positive"))
	}
	if o.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("fetch.max-retries must not be negative"))
	}
	return errs
}
