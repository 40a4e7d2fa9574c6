package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Options)
		wantErr int
	}{
		{name: "默认值", mutate: func(*Options) {}},
		{name: "重叠等于分块大小", mutate: func(o *Options) { o.ChunkOverlap = o.ChunkSize }, wantErr: 1},
		{name: "重叠大于分块大小", mutate: func(o *Options) { o.ChunkSize = 10; o.ChunkOverlap = 20 }, wantErr: 1},
		{name: "负重叠", mutate: func(o *Options) { o.ChunkOverlap = -1 }, wantErr: 1},
		{name: "未知后端", mutate: func(o *Options) { o.IndexBackend = "faiss" }, wantErr: 1},
		{name: "非法 top-k", mutate: func(o *Options) { o.TopK = 0 }, wantErr: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := NewOptions()
			tt.mutate(o)
			assert.Len(t, o.Validate(), tt.wantErr)
		})
	}
}
