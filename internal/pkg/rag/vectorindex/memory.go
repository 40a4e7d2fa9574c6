package vectorindex

import (
	"context"
	"sort"
	"sync"

	"github.com/kart-io/logger"

	"github.com/kart-io/docquery/internal/model"
	"github.com/kart-io/docquery/pkg/llm"
)

// MemoryIndex 内存中的暴力精确检索索引。
type MemoryIndex struct {
	provider  llm.EmbeddingProvider
	batchSize int

	mu        sync.RWMutex
	passages  []model.Passage
	vectors   [][]float32
	dimension int
}

var (
	_ Index       = (*MemoryIndex)(nil)
	_ Snapshotter = (*MemoryIndex)(nil)
)

// NewMemoryIndex 创建内存索引，batchSize <= 0 时使用 DefaultBatchSize。
func NewMemoryIndex(provider llm.EmbeddingProvider, batchSize int) *MemoryIndex {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &MemoryIndex{provider: provider, batchSize: batchSize}
}

// NewMemoryFactory 返回创建 MemoryIndex 的 Factory。
func NewMemoryFactory(provider llm.EmbeddingProvider, batchSize int) Factory {
	return func(ctx context.Context) (Index, error) {
		return NewMemoryIndex(provider, batchSize), nil
	}
}

// Build 生成所有片段的向量并替换索引内容。
func (m *MemoryIndex) Build(ctx context.Context, passages []model.Passage) error {
	if len(passages) == 0 {
		return ErrEmptyInput
	}

	vectors, dim, err := embedPassages(ctx, m.provider, passages, m.batchSize)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.passages = append([]model.Passage(nil), passages...)
	m.vectors = vectors
	m.dimension = dim
	m.mu.Unlock()

	logger.Debugw("memory index built", "passages", len(passages), "dimension", dim)
	return nil
}

// Search 对 query 做精确平方 L2 检索。
func (m *MemoryIndex) Search(ctx context.Context, query string, topK int) ([]model.SearchResult, error) {
	m.mu.RLock()
	built := m.vectors != nil
	dim := m.dimension
	m.mu.RUnlock()

	if !built {
		return nil, ErrIndexNotBuilt
	}
	if topK <= 0 {
		return []model.SearchResult{}, nil
	}

	vec, err := embedQuery(ctx, m.provider, query, dim)
	if err != nil {
		return nil, err
	}
	return m.SearchVector(vec, topK)
}

// SearchVector 用已有的查询向量检索。
func (m *MemoryIndex) SearchVector(vec []float32, topK int) ([]model.SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.vectors == nil {
		return nil, ErrIndexNotBuilt
	}
	if len(vec) != m.dimension {
		return nil, ErrDimensionMismatch
	}
	if topK <= 0 {
		return []model.SearchResult{}, nil
	}

	order := make([]int, len(m.vectors))
	distances := make([]float32, len(m.vectors))
	for i, v := range m.vectors {
		order[i] = i
		distances[i] = SquaredL2(vec, v)
	}
	sort.SliceStable(order, func(a, b int) bool {
		return distances[order[a]] < distances[order[b]]
	})

	k := min(topK, len(order))
	results := make([]model.SearchResult, k)
	for rank, idx := range order[:k] {
		results[rank] = model.SearchResult{
			Passage: m.passages[idx],
			Score:   distances[idx],
			Rank:    rank + 1,
		}
	}
	return results, nil
}

// Len returns the number of indexed passages.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.passages)
}

// Dimension returns the vector dimension, 0 before Build.
func (m *MemoryIndex) Dimension() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dimension
}

// Passages 返回已索引片段的副本。
func (m *MemoryIndex) Passages() []model.Passage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.Passage(nil), m.passages...)
}

// SquaredL2 平方欧氏距离，长度不同的向量只比较公共部分。
func SquaredL2(a, b []float32) float32 {
	n := min(len(a), len(b))
	var sum float32
	for i := 0; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
