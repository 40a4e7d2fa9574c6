// Package vectorindex 提供基于向量的片段检索索引。
//
// 每次查询构建一个全新的索引，构建后只读。默认实现 MemoryIndex 为暴力
// 精确平方 L2 检索，可选 MilvusIndex 将向量写入一次性的 Milvus 集合。
package vectorindex

import (
	"context"
	"errors"
	"fmt"

	"github.com/kart-io/docquery/internal/model"
	"github.com/kart-io/docquery/pkg/llm"
)

// 索引错误。
var (
	ErrEmptyInput        = errors.New("no passages to index")
	ErrIndexNotBuilt     = errors.New("index has not been built")
	ErrIndexNotFound     = errors.New("index artifacts not found")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// DefaultBatchSize 每次 embedding 请求的文本数。
const DefaultBatchSize = 64

// Index 向量索引。
type Index interface {
	// Build 用 passages 替换索引内容。
	Build(ctx context.Context, passages []model.Passage) error
	// Search 返回与 query 最相近的至多 topK 个片段，距离升序。
	Search(ctx context.Context, query string, topK int) ([]model.SearchResult, error)
	// Len 已索引的片段数。
	Len() int
	// Dimension 向量维度，未构建时为 0。
	Dimension() int
}

// Snapshotter 支持落盘的索引。
type Snapshotter interface {
	Save(dir string) error
}

// Factory 为每次流水线运行创建新的索引。
type Factory func(ctx context.Context) (Index, error)

// embedPassages 分批生成向量并校验维度一致。
func embedPassages(ctx context.Context, provider llm.EmbeddingProvider, passages []model.Passage, batchSize int) ([][]float32, int, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	vectors := make([][]float32, 0, len(passages))
	texts := make([]string, 0, batchSize)
	for start := 0; start < len(passages); start += batchSize {
		end := min(start+batchSize, len(passages))
		texts = texts[:0]
		for _, p := range passages[start:end] {
			texts = append(texts, p.Text)
		}

		batch, err := provider.Embed(ctx, texts)
		if err != nil {
			return nil, 0, fmt.Errorf("embedding passages %d-%d: %w", start, end-1, err)
		}
		if len(batch) != end-start {
			return nil, 0, fmt.Errorf("embedding passages %d-%d: got %d vectors", start, end-1, len(batch))
		}
		vectors = append(vectors, batch...)
	}

	dim := len(vectors[0])
	if dim == 0 {
		return nil, 0, fmt.Errorf("%w: empty embedding vector", ErrDimensionMismatch)
	}
	for i, v := range vectors {
		if len(v) != dim {
			return nil, 0, fmt.Errorf("%w: passage %d has %d dimensions, want %d", ErrDimensionMismatch, i, len(v), dim)
		}
	}
	return vectors, dim, nil
}

func embedQuery(ctx context.Context, provider llm.EmbeddingProvider, query string, dim int) ([]float32, error) {
	vec, err := provider.EmbedSingle(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(vec) != dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d", ErrDimensionMismatch, len(vec), dim)
	}
	return vec, nil
}
