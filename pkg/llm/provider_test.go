package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockProvider 模拟供应商实现，用于测试。
type mockProvider struct {
	name string
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i := range texts {
		result[i] = []float32{0.1, 0.2, 0.3}
	}
	return result, nil
}

func (m *mockProvider) EmbedSingle(_ context.Context, _ string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

func (m *mockProvider) Chat(_ context.Context, _ []Message, _ ...GenerateOption) (*GenerateResponse, error) {
	return &GenerateResponse{Content: "mock response", Model: m.name}, nil
}

func (m *mockProvider) Generate(_ context.Context, _ string, _ string, _ ...GenerateOption) (*GenerateResponse, error) {
	return &GenerateResponse{Content: "mock generated text", Model: m.name}, nil
}

func TestRegisterAndNewProvider(t *testing.T) {
	RegisterProvider("test-provider", func(config map[string]any) (Provider, error) {
		name := "test-provider"
		if n, ok := config["name"].(string); ok {
			name = n
		}
		return &mockProvider{name: name}, nil
	})

	provider, err := NewProvider("test-provider", map[string]any{"name": "custom-name"})
	require.NoError(t, err)
	assert.Equal(t, "custom-name", provider.Name())

	chat, err := NewChatProvider("test-provider", nil)
	require.NoError(t, err)
	assert.Equal(t, "test-provider", chat.Name())

	emb, err := NewEmbeddingProvider("test-provider", nil)
	require.NoError(t, err)
	assert.Equal(t, "test-provider", emb.Name())

	assert.Contains(t, ListProviders(), "test-provider")
}

func TestNewProviderUnknown(t *testing.T) {
	_, err := NewProvider("unknown-provider", nil)
	assert.EqualError(t, err, "unknown provider: unknown-provider")

	_, err = NewChatProvider("unknown-provider", nil)
	assert.ErrorContains(t, err, "chat:")
}

func TestApplyGenerateOptions(t *testing.T) {
	o := ApplyGenerateOptions()
	assert.Nil(t, o.Temperature)
	assert.Zero(t, o.MaxTokens)

	o = ApplyGenerateOptions(WithTemperature(0), WithMaxTokens(200))
	require.NotNil(t, o.Temperature)
	assert.Equal(t, 0.0, *o.Temperature)
	assert.Equal(t, 200, o.MaxTokens)
}

func TestBuildMessages(t *testing.T) {
	assert.Equal(t, []Message{{Role: RoleUser, Content: "hi"}}, BuildMessages("hi", ""))
	assert.Equal(t, []Message{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "hi"},
	}, BuildMessages("hi", "sys"))
}
