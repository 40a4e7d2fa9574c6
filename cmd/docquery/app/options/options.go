// Package options contains flags and options for initializing the docquery server.
package options

import (
	"fmt"
	"time"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/kart-io/docquery/internal/docquery"
	"github.com/kart-io/docquery/pkg/app/cliflag"
	cacheopts "github.com/kart-io/docquery/pkg/options/cache"
	fetchopts "github.com/kart-io/docquery/pkg/options/fetch"
	jobopts "github.com/kart-io/docquery/pkg/options/job"
	llmopts "github.com/kart-io/docquery/pkg/options/llm"
	logopts "github.com/kart-io/docquery/pkg/options/logger"
	metricsopts "github.com/kart-io/docquery/pkg/options/metrics"
	milvusopts "github.com/kart-io/docquery/pkg/options/milvus"
	poolopts "github.com/kart-io/docquery/pkg/options/pool"
	queryopts "github.com/kart-io/docquery/pkg/options/query"
	redisopts "github.com/kart-io/docquery/pkg/options/redis"
	httpopts "github.com/kart-io/docquery/pkg/options/server/http"
	tracingopts "github.com/kart-io/docquery/pkg/options/tracing"
)

// ServerOptions contains the configuration options for the server.
type ServerOptions struct {
	// HTTPOptions contains HTTP server configuration.
	HTTPOptions *httpopts.Options `json:"http" mapstructure:"http"`

	// LogOptions contains logger configuration.
	LogOptions *logopts.Options `json:"log" mapstructure:"log"`

	// EmbeddingOptions contains embedding provider configuration.
	EmbeddingOptions *llmopts.ProviderOptions `json:"embedding" mapstructure:"embedding"`

	// ChatOptions contains chat provider configuration.
	ChatOptions *llmopts.ProviderOptions `json:"chat" mapstructure:"chat"`

	// QueryOptions contains retrieval pipeline configuration.
	QueryOptions *queryopts.Options `json:"query" mapstructure:"query"`

	// FetchOptions contains document download configuration.
	FetchOptions *fetchopts.Options `json:"fetch" mapstructure:"fetch"`

	// JobOptions contains job tracking configuration.
	JobOptions *jobopts.Options `json:"job" mapstructure:"job"`

	// PoolOptions contains worker pool configuration.
	PoolOptions *poolopts.Options `json:"pool" mapstructure:"pool"`

	// RedisOptions contains Redis configuration, used by the redis job store and the embedding cache.
	RedisOptions *redisopts.Options `json:"redis" mapstructure:"redis"`

	// CacheOptions contains embedding cache configuration.
	CacheOptions *cacheopts.Options `json:"cache" mapstructure:"cache"`

	// MilvusOptions contains Milvus configuration, used when query.index-backend is milvus.
	MilvusOptions *milvusopts.Options `json:"milvus" mapstructure:"milvus"`

	// TracingOptions contains OpenTelemetry tracing configuration.
	TracingOptions *tracingopts.Options `json:"tracing" mapstructure:"tracing"`

	// MetricsOptions contains Prometheus endpoint configuration.
	MetricsOptions *metricsopts.Options `json:"metrics" mapstructure:"metrics"`

	// ShutdownTimeout is the timeout for graceful shutdown.
	ShutdownTimeout time.Duration `json:"shutdown-timeout" mapstructure:"shutdown-timeout"`
}

// NewServerOptions creates a ServerOptions instance with default values.
func NewServerOptions() *ServerOptions {
	return &ServerOptions{
		HTTPOptions:      httpopts.NewOptions(),
		LogOptions:       logopts.NewOptions(),
		EmbeddingOptions: llmopts.NewEmbeddingOptions(),
		ChatOptions:      llmopts.NewChatOptions(),
		QueryOptions:     queryopts.NewOptions(),
		FetchOptions:     fetchopts.NewOptions(),
		JobOptions:       jobopts.NewOptions(),
		PoolOptions:      poolopts.NewOptions(),
		RedisOptions:     redisopts.NewOptions(),
		CacheOptions:     cacheopts.NewOptions(),
		MilvusOptions:    milvusopts.NewOptions(),
		TracingOptions:   tracingopts.NewOptions(),
		MetricsOptions:   metricsopts.NewOptions(),
		ShutdownTimeout:  30 * time.Second,
	}
}

// Flags returns flags for a specific server by section name.
func (o *ServerOptions) Flags() (fss cliflag.NamedFlagSets) {
	o.HTTPOptions.AddFlags(fss.FlagSet("http"))
	o.LogOptions.AddFlags(fss.FlagSet("log"))
	o.EmbeddingOptions.AddFlags(fss.FlagSet("embedding"), "embedding")
	o.ChatOptions.AddFlags(fss.FlagSet("chat"), "chat")
	o.QueryOptions.AddFlags(fss.FlagSet("query"))
	o.FetchOptions.AddFlags(fss.FlagSet("fetch"))
	o.JobOptions.AddFlags(fss.FlagSet("job"))
	o.PoolOptions.AddFlags(fss.FlagSet("pool"))
	o.RedisOptions.AddFlags(fss.FlagSet("redis"))
	o.CacheOptions.AddFlags(fss.FlagSet("cache"))
	o.MilvusOptions.AddFlags(fss.FlagSet("milvus"))
	o.TracingOptions.AddFlags(fss.FlagSet("tracing"))
	o.MetricsOptions.AddFlags(fss.FlagSet("metrics"))

	// misc flags
	fs := fss.FlagSet("misc")
	fs.DurationVar(&o.ShutdownTimeout, "shutdown-timeout", o.ShutdownTimeout, "Graceful shutdown timeout.")

	return fss
}

// Complete completes all the required options.
func (o *ServerOptions) Complete() error {
	if err := o.HTTPOptions.Complete(); err != nil {
		return err
	}
	if err := o.LogOptions.Complete(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if err := o.EmbeddingOptions.Complete(); err != nil {
		return fmt.Errorf("embedding: %w", err)
	}
	if err := o.ChatOptions.Complete(); err != nil {
		return fmt.Errorf("chat: %w", err)
	}
	if err := o.QueryOptions.Complete(); err != nil {
		return fmt.Errorf("query: %w", err)
	}
	if err := o.RedisOptions.Complete(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	if err := o.TracingOptions.Complete(); err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	return nil
}

// Validate checks whether the options in ServerOptions are valid.
// Redis and Milvus sections are only checked when a component uses them.
func (o *ServerOptions) Validate() error {
	errs := []error{}

	errs = append(errs, o.HTTPOptions.Validate()...)
	errs = append(errs, o.LogOptions.Validate()...)
	errs = append(errs, prefixErrors("embedding", o.EmbeddingOptions.Validate())...)
	errs = append(errs, prefixErrors("chat", o.ChatOptions.Validate())...)
	errs = append(errs, o.QueryOptions.Validate()...)
	errs = append(errs, o.FetchOptions.Validate()...)
	errs = append(errs, o.JobOptions.Validate()...)
	errs = append(errs, o.PoolOptions.Validate()...)
	errs = append(errs, o.CacheOptions.Validate()...)
	errs = append(errs, o.TracingOptions.Validate()...)
	errs = append(errs, o.MetricsOptions.Validate()...)

	if o.JobOptions.Store == jobopts.StoreRedis || o.CacheOptions.Enabled {
		errs = append(errs, o.RedisOptions.Validate()...)
	}
	if o.QueryOptions.IndexBackend == queryopts.BackendMilvus {
		errs = append(errs, o.MilvusOptions.Validate()...)
	}
	if o.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("shutdown-timeout must be positive"))
	}

	return utilerrors.NewAggregate(errs)
}

// Config builds a docquery.Config based on ServerOptions.
func (o *ServerOptions) Config() (*docquery.Config, error) {
	return &docquery.Config{
		HTTPOptions:      o.HTTPOptions,
		LogOptions:       o.LogOptions,
		EmbeddingOptions: o.EmbeddingOptions,
		ChatOptions:      o.ChatOptions,
		QueryOptions:     o.QueryOptions,
		FetchOptions:     o.FetchOptions,
		JobOptions:       o.JobOptions,
		PoolOptions:      o.PoolOptions,
		RedisOptions:     o.RedisOptions,
		CacheOptions:     o.CacheOptions,
		MilvusOptions:    o.MilvusOptions,
		TracingOptions:   o.TracingOptions,
		MetricsOptions:   o.MetricsOptions,
		ShutdownTimeout:  o.ShutdownTimeout,
	}, nil
}

// prefixErrors 为供应商配置错误加上段名，两个段共用同一结构。
func prefixErrors(section string, errs []error) []error {
	out := make([]error, 0, len(errs))
	for _, err := range errs {
		out = append(out, fmt.Errorf("%s.%w", section, err))
	}
	return out
}
