package vectorindex

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kart-io/logger"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/oklog/ulid/v2"

	"github.com/kart-io/docquery/internal/model"
	"github.com/kart-io/docquery/pkg/component/milvus"
	"github.com/kart-io/docquery/pkg/llm"
)

// fieldPosition 片段在本次构建中的下标。
const fieldPosition = "position"

// VectorStore MilvusIndex 依赖的集合操作，*milvus.Client 实现了该接口。
type VectorStore interface {
	CreateCollection(ctx context.Context, schema *milvus.CollectionSchema) error
	Insert(ctx context.Context, collectionName string, data *milvus.InsertData) ([]int64, error)
	Search(ctx context.Context, collectionName string, vector []float32, topK int, outputFields []string) ([]milvus.SearchResult, error)
	DropCollection(ctx context.Context, collectionName string) error
}

var _ VectorStore = (*milvus.Client)(nil)

// MilvusIndex 每次 Build 创建一个独立集合，Close 时删除。
// 片段正文保存在进程内，集合只存向量与片段下标。
type MilvusIndex struct {
	store     VectorStore
	provider  llm.EmbeddingProvider
	prefix    string
	batchSize int

	mu         sync.RWMutex
	collection string
	passages   []model.Passage
	dimension  int
}

var _ Index = (*MilvusIndex)(nil)

// NewMilvusIndex 创建 MilvusIndex，集合名为 prefix 加 ULID。
func NewMilvusIndex(store VectorStore, provider llm.EmbeddingProvider, prefix string, batchSize int) *MilvusIndex {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &MilvusIndex{
		store:     store,
		provider:  provider,
		prefix:    prefix,
		batchSize: batchSize,
	}
}

// NewMilvusFactory 返回创建 MilvusIndex 的 Factory。
func NewMilvusFactory(store VectorStore, provider llm.EmbeddingProvider, prefix string, batchSize int) Factory {
	return func(ctx context.Context) (Index, error) {
		return NewMilvusIndex(store, provider, prefix, batchSize), nil
	}
}

// Build 创建集合并写入所有片段向量。已有集合会先被删除。
func (m *MilvusIndex) Build(ctx context.Context, passages []model.Passage) error {
	if len(passages) == 0 {
		return ErrEmptyInput
	}

	vectors, dim, err := embedPassages(ctx, m.provider, passages, m.batchSize)
	if err != nil {
		return err
	}

	if err := m.Close(); err != nil {
		logger.Warnw("failed to drop previous collection", "error", err.Error())
	}

	name := m.prefix + strings.ToLower(ulid.Make().String())
	if err := m.store.CreateCollection(ctx, &milvus.CollectionSchema{
		Name:        name,
		Description: "docquery passages",
		Dimension:   dim,
		MetaFields: []milvus.MetaField{
			{Name: fieldPosition, DataType: entity.FieldTypeInt64},
		},
	}); err != nil {
		return fmt.Errorf("creating collection: %w", err)
	}

	positions := make([]any, len(passages))
	for i := range passages {
		positions[i] = int64(i)
	}
	if _, err := m.store.Insert(ctx, name, &milvus.InsertData{
		Embeddings: vectors,
		Metadata:   map[string][]any{fieldPosition: positions},
	}); err != nil {
		if dropErr := m.drop(name); dropErr != nil {
			logger.Warnw("failed to drop collection after insert failure", "collection", name, "error", dropErr.Error())
		}
		return fmt.Errorf("inserting vectors: %w", err)
	}

	m.mu.Lock()
	m.collection = name
	m.passages = append([]model.Passage(nil), passages...)
	m.dimension = dim
	m.mu.Unlock()

	logger.Debugw("milvus index built", "collection", name, "passages", len(passages), "dimension", dim)
	return nil
}

// Search 在集合中做 L2 检索，距离为平方 L2。
func (m *MilvusIndex) Search(ctx context.Context, query string, topK int) ([]model.SearchResult, error) {
	m.mu.RLock()
	collection, passages, dim := m.collection, m.passages, m.dimension
	m.mu.RUnlock()

	if collection == "" {
		return nil, ErrIndexNotBuilt
	}
	if topK <= 0 {
		return []model.SearchResult{}, nil
	}

	vec, err := embedQuery(ctx, m.provider, query, dim)
	if err != nil {
		return nil, err
	}

	hits, err := m.store.Search(ctx, collection, vec, min(topK, len(passages)), []string{fieldPosition})
	if err != nil {
		return nil, fmt.Errorf("searching collection: %w", err)
	}

	results := make([]model.SearchResult, 0, len(hits))
	for _, hit := range hits {
		pos, ok := hit.Metadata[fieldPosition].(int64)
		if !ok || pos < 0 || int(pos) >= len(passages) {
			return nil, fmt.Errorf("search hit %d has invalid position %v", hit.ID, hit.Metadata[fieldPosition])
		}
		results = append(results, model.SearchResult{
			Passage: passages[pos],
			Score:   hit.Score,
			Rank:    len(results) + 1,
		})
	}
	return results, nil
}

// Len returns the number of indexed passages.
func (m *MilvusIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.passages)
}

// Dimension returns the vector dimension, 0 before Build.
func (m *MilvusIndex) Dimension() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dimension
}

// Collection 当前集合名，未构建时为空。
func (m *MilvusIndex) Collection() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collection
}

// Close 删除当前集合。
func (m *MilvusIndex) Close() error {
	m.mu.Lock()
	name := m.collection
	m.collection = ""
	m.passages = nil
	m.dimension = 0
	m.mu.Unlock()

	if name == "" {
		return nil
	}
	return m.drop(name)
}

func (m *MilvusIndex) drop(name string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := m.store.DropCollection(ctx, name); err != nil {
		return fmt.Errorf("dropping collection %s: %w", name, err)
	}
	return nil
}
