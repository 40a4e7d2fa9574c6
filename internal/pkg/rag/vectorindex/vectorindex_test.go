package vectorindex

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docquery/internal/model"
	"github.com/kart-io/docquery/pkg/component/milvus"
)

// tableEmbedder 返回预设向量，未知文本得到零向量。
type tableEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	dim     int
	calls   int
	err     error
}

func (e *tableEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.lookup(t)
	}
	return out, nil
}

func (e *tableEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lookup(text), nil
}

func (e *tableEmbedder) lookup(text string) []float32 {
	if v, ok := e.vectors[text]; ok {
		return v
	}
	return make([]float32, e.dim)
}

func (e *tableEmbedder) Name() string { return "table" }

func passages(texts ...string) []model.Passage {
	out := make([]model.Passage, len(texts))
	for i, t := range texts {
		out[i] = model.Passage{Text: t, ChunkIndex: i, TotalChunks: len(texts), Source: "https://h/a.pdf", DocumentName: "a.pdf"}
	}
	return out
}

func newEmbedder() *tableEmbedder {
	return &tableEmbedder{
		dim: 2,
		vectors: map[string][]float32{
			"origin": {0, 0},
			"near":   {1, 0},
			"far":    {3, 4},
			"tie":    {0, 1},
			"q":      {0, 0},
		},
	}
}

func TestMemoryIndexBuildAndSearch(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(newEmbedder(), 2)

	_, err := idx.Search(ctx, "q", 3)
	assert.ErrorIs(t, err, ErrIndexNotBuilt)
	assert.ErrorIs(t, idx.Build(ctx, nil), ErrEmptyInput)

	require.NoError(t, idx.Build(ctx, passages("far", "near", "tie", "origin")))
	assert.Equal(t, 4, idx.Len())
	assert.Equal(t, 2, idx.Dimension())

	results, err := idx.Search(ctx, "q", 3)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "origin", results[0].Passage.Text)
	assert.Equal(t, float32(0), results[0].Score)
	// near 与 tie 距离相同，按插入顺序
	assert.Equal(t, "near", results[1].Passage.Text)
	assert.Equal(t, "tie", results[2].Passage.Text)
	for i, r := range results {
		assert.Equal(t, i+1, r.Rank)
	}

	all, err := idx.Search(ctx, "q", 100)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, float32(25), all[3].Score)

	none, err := idx.Search(ctx, "q", 0)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestMemoryIndexBatches(t *testing.T) {
	e := newEmbedder()
	idx := NewMemoryIndex(e, 2)
	require.NoError(t, idx.Build(context.Background(), passages("a", "b", "c", "d", "e")))
	assert.Equal(t, 3, e.calls)
}

func TestMemoryIndexRebuildReplaces(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(newEmbedder(), 0)
	require.NoError(t, idx.Build(ctx, passages("far", "near")))
	require.NoError(t, idx.Build(ctx, passages("origin")))

	assert.Equal(t, 1, idx.Len())
	results, err := idx.Search(ctx, "q", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "origin", results[0].Passage.Text)
}

func TestMemoryIndexDimensionErrors(t *testing.T) {
	ctx := context.Background()
	e := newEmbedder()
	e.vectors["ragged"] = []float32{1, 2, 3}

	idx := NewMemoryIndex(e, 0)
	assert.ErrorIs(t, idx.Build(ctx, passages("near", "ragged")), ErrDimensionMismatch)

	require.NoError(t, idx.Build(ctx, passages("near")))
	_, err := idx.Search(ctx, "ragged", 1)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestMemoryIndexEmbedFailure(t *testing.T) {
	e := newEmbedder()
	e.err = errors.New("provider down")
	err := NewMemoryIndex(e, 0).Build(context.Background(), passages("near"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider down")
}

func TestMemoryIndexSaveLoad(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "snapshot")

	idx := NewMemoryIndex(newEmbedder(), 0)
	assert.ErrorIs(t, idx.Save(dir), ErrIndexNotBuilt)
	require.NoError(t, idx.Build(ctx, passages("far", "near", "origin")))
	require.NoError(t, idx.Save(dir))

	raw, err := os.ReadFile(filepath.Join(dir, VectorsFile))
	require.NoError(t, err)
	assert.Equal(t, "DQIX", string(raw[:4]))
	assert.Equal(t, uint32(3), binary.LittleEndian.Uint32(raw[8:]))
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(raw[12:]))
	assert.Len(t, raw, headerSize+3*2*4)

	loaded, err := LoadMemoryIndex(dir, newEmbedder(), 0)
	require.NoError(t, err)
	assert.Equal(t, idx.Passages(), loaded.Passages())
	assert.Equal(t, 2, loaded.Dimension())

	want, err := idx.Search(ctx, "q", 3)
	require.NoError(t, err)
	got, err := loaded.Search(ctx, "q", 3)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestMemoryIndexLoadErrors(t *testing.T) {
	_, err := LoadMemoryIndex(t.TempDir(), newEmbedder(), 0)
	assert.ErrorIs(t, err, ErrIndexNotFound)

	ctx := context.Background()
	dir := t.TempDir()
	idx := NewMemoryIndex(newEmbedder(), 0)
	require.NoError(t, idx.Build(ctx, passages("far", "near")))
	require.NoError(t, idx.Save(dir))

	// 只缺一个文件
	require.NoError(t, os.Remove(filepath.Join(dir, PassagesFile)))
	_, err = LoadMemoryIndex(dir, newEmbedder(), 0)
	assert.ErrorIs(t, err, ErrIndexNotFound)

	// 维度与 passages.json 不一致
	require.NoError(t, idx.Save(dir))
	require.NoError(t, os.WriteFile(filepath.Join(dir, PassagesFile),
		[]byte(`{"dimension": 3, "passages": [{"text":"far"},{"text":"near"}]}`), 0o644))
	_, err = LoadMemoryIndex(dir, newEmbedder(), 0)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	// 数量不一致
	require.NoError(t, os.WriteFile(filepath.Join(dir, PassagesFile),
		[]byte(`{"dimension": 2, "passages": [{"text":"far"}]}`), 0o644))
	_, err = LoadMemoryIndex(dir, newEmbedder(), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 vectors for 1 passages")

	// 魔数错误
	require.NoError(t, os.WriteFile(filepath.Join(dir, VectorsFile), []byte("NOPE0000000000000000"), 0o644))
	_, err = LoadMemoryIndex(dir, newEmbedder(), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad magic")
}

func TestSquaredL2(t *testing.T) {
	assert.Equal(t, float32(25), SquaredL2([]float32{0, 0}, []float32{3, 4}))
	assert.Equal(t, float32(0), SquaredL2(nil, nil))
}

// fakeVectorStore 在内存中模拟 milvus 集合。
type fakeVectorStore struct {
	mu          sync.Mutex
	collections map[string][][]float32
	positions   map[string][]int64
	dropped     []string
	insertErr   error
	dropErr     error
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{
		collections: map[string][][]float32{},
		positions:   map[string][]int64{},
	}
}

func (f *fakeVectorStore) CreateCollection(ctx context.Context, schema *milvus.CollectionSchema) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.collections[schema.Name]; ok {
		return fmt.Errorf("collection %s already exists", schema.Name)
	}
	f.collections[schema.Name] = nil
	return nil
}

func (f *fakeVectorStore) Insert(ctx context.Context, name string, data *milvus.InsertData) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	f.collections[name] = append(f.collections[name], data.Embeddings...)
	ids := make([]int64, len(data.Embeddings))
	for i, p := range data.Metadata[fieldPosition] {
		f.positions[name] = append(f.positions[name], p.(int64))
		ids[i] = int64(i)
	}
	return ids, nil
}

func (f *fakeVectorStore) Search(ctx context.Context, name string, vector []float32, topK int, fields []string) ([]milvus.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	vecs := f.collections[name]
	hits := make([]milvus.SearchResult, len(vecs))
	for i, v := range vecs {
		hits[i] = milvus.SearchResult{
			ID:       int64(i),
			Score:    SquaredL2(vector, v),
			Metadata: map[string]any{fieldPosition: f.positions[name][i]},
		}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].Score < hits[b].Score })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (f *fakeVectorStore) DropCollection(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dropErr != nil {
		return f.dropErr
	}
	delete(f.collections, name)
	f.dropped = append(f.dropped, name)
	return nil
}

func TestMilvusIndex(t *testing.T) {
	ctx := context.Background()
	store := newFakeVectorStore()
	idx := NewMilvusIndex(store, newEmbedder(), "docquery_", 2)

	_, err := idx.Search(ctx, "q", 3)
	assert.ErrorIs(t, err, ErrIndexNotBuilt)
	assert.ErrorIs(t, idx.Build(ctx, nil), ErrEmptyInput)

	require.NoError(t, idx.Build(ctx, passages("far", "near", "origin")))
	first := idx.Collection()
	assert.True(t, strings.HasPrefix(first, "docquery_"))
	assert.Equal(t, 3, idx.Len())
	assert.Equal(t, 2, idx.Dimension())

	results, err := idx.Search(ctx, "q", 10)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "origin", results[0].Passage.Text)
	assert.Equal(t, "near", results[1].Passage.Text)
	assert.Equal(t, "far", results[2].Passage.Text)
	assert.Equal(t, 3, results[2].Rank)

	// 重建时删除旧集合
	require.NoError(t, idx.Build(ctx, passages("near")))
	assert.NotEqual(t, first, idx.Collection())
	assert.Contains(t, store.dropped, first)

	second := idx.Collection()
	require.NoError(t, idx.Close())
	assert.Contains(t, store.dropped, second)
	assert.Empty(t, idx.Collection())
	require.NoError(t, idx.Close())
}

func TestMilvusIndexInsertFailureDropsCollection(t *testing.T) {
	store := newFakeVectorStore()
	store.insertErr = errors.New("insert failed")
	idx := NewMilvusIndex(store, newEmbedder(), "docquery_", 0)

	err := idx.Build(context.Background(), passages("near"))
	require.Error(t, err)
	assert.Len(t, store.dropped, 1)
	assert.Empty(t, store.collections)
}

func TestMilvusIndexInsertFailureDropFails(t *testing.T) {
	store := newFakeVectorStore()
	store.insertErr = errors.New("insert failed")
	store.dropErr = errors.New("drop failed")
	idx := NewMilvusIndex(store, newEmbedder(), "docquery_", 0)

	err := idx.Build(context.Background(), passages("near"))
	require.Error(t, err)
	assert.ErrorIs(t, err, store.insertErr)
	assert.NotContains(t, err.Error(), "drop failed")
	assert.Empty(t, idx.Collection())
}

func TestFactories(t *testing.T) {
	ctx := context.Background()
	mem, err := NewMemoryFactory(newEmbedder(), 0)(ctx)
	require.NoError(t, err)
	assert.IsType(t, &MemoryIndex{}, mem)

	mil, err := NewMilvusFactory(newFakeVectorStore(), newEmbedder(), "p_", 0)(ctx)
	require.NoError(t, err)
	assert.IsType(t, &MilvusIndex{}, mil)
}
