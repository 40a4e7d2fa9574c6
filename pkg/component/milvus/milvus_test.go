package milvus

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docquery/pkg/component/storage"
	milvusopts "github.com/kart-io/docquery/pkg/options/milvus"
)

func TestBuildColumn(t *testing.T) {
	col, err := buildColumn("source", []any{"a.pdf", "b.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "source", col.Name())
	assert.Equal(t, 2, col.Len())

	col, err = buildColumn("position", []any{int64(0), int64(1)})
	require.NoError(t, err)
	assert.Equal(t, 2, col.Len())

	_, err = buildColumn("mixed", []any{"a", int64(1)})
	assert.Error(t, err)

	_, err = buildColumn("float", []any{1.5})
	assert.Error(t, err)
}

func TestNewNilOptions(t *testing.T) {
	_, err := New(context.Background(), nil)
	assert.ErrorIs(t, err, storage.ErrInvalidConfig)
}

func setupTestMilvus(t *testing.T) *Client {
	t.Helper()
	opts := milvusopts.NewOptions()
	opts.Timeout = 2 * time.Second

	c, err := New(context.Background(), opts)
	if err != nil {
		t.Skipf("milvus not available: %v", err)
	}
	if err := c.Ping(context.Background()); err != nil {
		_ = c.Close()
		t.Skipf("milvus not available: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCollectionLifecycle(t *testing.T) {
	c := setupTestMilvus(t)
	ctx := context.Background()
	name := fmt.Sprintf("docquery_test_%d", time.Now().UnixNano())

	require.NoError(t, c.CreateCollection(ctx, &CollectionSchema{
		Name:      name,
		Dimension: 2,
		MetaFields: []MetaField{
			{Name: "position", DataType: entity.FieldTypeInt64},
		},
	}))
	defer func() { _ = c.DropCollection(ctx, name) }()

	ids, err := c.Insert(ctx, name, &InsertData{
		Embeddings: [][]float32{{0, 0}, {3, 4}},
		Metadata:   map[string][]any{"position": {int64(0), int64(1)}},
	})
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	hits, err := c.Search(ctx, name, []float32{3, 4}, 2, []string{"position"})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, int64(1), hits[0].Metadata["position"])
	assert.InDelta(t, 0, hits[0].Score, 1e-6)
	assert.InDelta(t, 25, hits[1].Score, 1e-4)
}
