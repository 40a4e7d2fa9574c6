// Package query provides retrieval pipeline options.
package query

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/docquery/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// 索引后端。
const (
	BackendMemory = "memory"
	BackendMilvus = "milvus"
)

// Options 检索流水线配置。
type Options struct {
	// ChunkSize 单个分块的最大字符数。
	ChunkSize int `json:"chunk-size" mapstructure:"chunk-size"`
	// ChunkOverlap 相邻分块的重叠字符数，必须小于 ChunkSize。
	ChunkOverlap int `json:"chunk-overlap" mapstructure:"chunk-overlap"`
	// TopK 检索返回的分块数量。
	TopK int `json:"top-k" mapstructure:"top-k"`
	// ValidateAnswer 是否对答案做二次校验。
	ValidateAnswer bool `json:"validate" mapstructure:"validate"`
	// IndexBackend 向量索引后端（memory, milvus）。
	IndexBackend string `json:"index-backend" mapstructure:"index-backend"`
	// IndexDir 最近一次构建的内存索引快照目录，为空时不保存。
	IndexDir string `json:"index-dir" mapstructure:"index-dir"`
	// EmbedBatchSize 单次 embedding 请求的文本数。
	EmbedBatchSize int `json:"embed-batch-size" mapstructure:"embed-batch-size"`
	// SyncTimeout 同步查询的超时时间。
	SyncTimeout time.Duration `json:"sync-timeout" mapstructure:"sync-timeout"`
}

// NewOptions 创建默认检索配置。
func NewOptions() *Options {
	return &Options{
		ChunkSize:      500,
		ChunkOverlap:   50,
		TopK:           10,
		ValidateAnswer: true,
		IndexBackend:   BackendMemory,
		IndexDir:       "./data/index",
		EmbedBatchSize: 64,
		SyncTimeout:    120 * time.Second,
	}
}

// AddFlags adds flags for query options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.IntVar(&o.ChunkSize, p+"query.chunk-size", o.ChunkSize, "Maximum chunk length in characters.")
	fs.IntVar(&o.ChunkOverlap, p+"query.chunk-overlap", o.ChunkOverlap, "Characters shared by adjacent chunks; must be less than chunk-size.")
	fs.IntVar(&o.TopK, p+"query.top-k", o.TopK, "Number of passages retrieved per query.")
	fs.BoolVar(&o.ValidateAnswer, p+"query.validate", o.ValidateAnswer, "Ask the chat model to assess answer confidence.")
	fs.StringVar(&o.IndexBackend, p+"query.index-backend", o.IndexBackend, "Vector index backend (memory, milvus).")
	fs.StringVar(&o.IndexDir, p+"query.index-dir", o.IndexDir, "Directory for the last built memory index snapshot; empty disables it.")
	fs.IntVar(&o.EmbedBatchSize, p+"query.embed-batch-size", o.EmbedBatchSize, "Texts per embedding request.")
	fs.DurationVar(&o.SyncTimeout, p+"query.sync-timeout", o.SyncTimeout, "Timeout for synchronous queries.")
}

// Validate validates the query options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("query.chunk-size must be positive"))
	}
	if o.ChunkOverlap < 0 {
		errs = append(errs, fmt.Errorf("query.chunk-overlap must not be negative"))
	}
	if o.ChunkOverlap >= o.ChunkSize {
		errs = append(errs, fmt.Errorf("query.chunk-overlap (%d) must be less than query.chunk-size (%d)", o.ChunkOverlap, o.ChunkSize))
	}
	if o.TopK <= 0 {
		errs = append(errs, fmt.Errorf("query.top-k must be positive"))
	}
	if o.IndexBackend != BackendMemory && o.IndexBackend != BackendMilvus {
		errs = append(errs, fmt.Errorf("query.index-backend must be %q or %q", BackendMemory, BackendMilvus))
	}
	if o.EmbedBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("query.embed-batch-size must be positive"))
	}
	if o.SyncTimeout <= 0 {
		errs = append(errs, fmt.Errorf("query.sync-timeout must be positive"))
	}
	return errs
}

// Complete completes the query options with defaults.
func (o *Options) Complete() error {
	return nil
}
