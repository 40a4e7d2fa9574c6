package json

import (
	"bytes"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type passageRecord struct {
	Text        string  `json:"text"`
	ChunkIndex  int     `json:"chunk_index"`
	Source      string  `json:"source"`
	Score       float32 `json:"score,omitempty"`
	Description *string `json:"description,omitempty"`
}

func TestBackendSelection(t *testing.T) {
	want := runtime.GOARCH == "amd64" || runtime.GOARCH == "arm64"
	assert.Equal(t, want, IsUsingSonic())
}

func TestMarshalUnmarshal(t *testing.T) {
	in := passageRecord{Text: "第一段 text", ChunkIndex: 3, Source: "https://example.com/a.pdf"}

	data, err := Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"chunk_index":3`)
	assert.NotContains(t, string(data), "score")

	var out passageRecord
	require.NoError(t, Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestEncoderDecoder(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).Encode(map[string]int{"dimension": 384}))

	var out map[string]int
	require.NoError(t, NewDecoder(&buf).Decode(&out))
	assert.Equal(t, 384, out["dimension"])
}

func TestMarshalIndent(t *testing.T) {
	data, err := MarshalIndent(map[string]int{"a": 1}, "", "  ")
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"a\": 1\n}", string(data))
}
