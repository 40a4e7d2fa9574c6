// Package metrics provides Prometheus metrics endpoint options.
package metrics

import (
	"errors"
	"strings"

	"github.com/spf13/pflag"

	"github.com/kart-io/docquery/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options defines metrics options.
type Options struct {
	Enabled   bool   `json:"enabled" mapstructure:"enabled"`
	Path      string `json:"path" mapstructure:"path"`
	Namespace string `json:"namespace" mapstructure:"namespace"`
}

// NewOptions creates default metrics options.
func NewOptions() *Options {
	return &Options{
		Enabled:   true,
		Path:      "/metrics",
		Namespace: "docquery",
	}
}

// AddFlags adds flags for metrics options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.BoolVar(&o.Enabled, p+"metrics.enabled", o.Enabled, "Expose Prometheus metrics.")
	fs.StringVar(&o.Path, p+"metrics.path", o.Path, "Metrics endpoint path.")
	fs.StringVar(&o.Namespace, p+"metrics.namespace", o.Namespace, "Metrics namespace.")
}

// Validate validates the metrics options.
func (o *Options) Validate() []error {
	if o == nil || !o.Enabled {
		return nil
	}

	var errs []error
	if !strings.HasPrefix(o.Path, "/") {
		errs = append(errs, errors.New("metrics.path must start with /"))
	}
	if o.Namespace == "" {
		errs = append(errs, errors.New("metrics.namespace is required"))
	}
	return errs
}
