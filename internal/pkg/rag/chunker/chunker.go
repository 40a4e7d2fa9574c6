// Package chunker 将文档文本切分为带位置信息的 Passage。
package chunker

import (
	"strings"

	"github.com/kart-io/docquery/internal/model"
	"github.com/kart-io/docquery/internal/pkg/rag/docutil"
	"github.com/kart-io/docquery/internal/pkg/rag/textutil"
)

// 默认切分参数。
const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
)

// Metadata 随每个 Passage 携带的文档信息。
type Metadata struct {
	Source       string
	DocumentName string
}

// Chunker 文本切分器。ChunkOverlap 必须小于 ChunkSize，由配置层在启动时校验。
type Chunker struct {
	splitter *textutil.RecursiveSplitter
}

// Option 配置 Chunker。
type Option func(*textutil.RecursiveSplitter)

// WithChunkSize 设置块的最大字符数。
func WithChunkSize(size int) Option {
	return func(s *textutil.RecursiveSplitter) {
		if size > 0 {
			s.ChunkSize = size
		}
	}
}

// WithChunkOverlap 设置相邻块的重叠字符数。
func WithChunkOverlap(overlap int) Option {
	return func(s *textutil.RecursiveSplitter) {
		if overlap >= 0 {
			s.ChunkOverlap = overlap
		}
	}
}

// WithSeparators 替换分隔符列表。
func WithSeparators(separators ...string) Option {
	return func(s *textutil.RecursiveSplitter) {
		if len(separators) > 0 {
			s.Separators = separators
		}
	}
}

// New 创建 Chunker，默认 500/50。
func New(opts ...Option) *Chunker {
	s := textutil.NewRecursiveSplitter(DefaultChunkSize, DefaultChunkOverlap)
	for _, opt := range opts {
		opt(s)
	}
	return &Chunker{splitter: s}
}

// ChunkSize returns the configured maximum chunk length.
func (c *Chunker) ChunkSize() int {
	return c.splitter.ChunkSize
}

// ChunkOverlap returns the configured overlap.
func (c *Chunker) ChunkOverlap() int {
	return c.splitter.ChunkOverlap
}

// Chunk 切分单个文档。空白文本返回空切片。
func (c *Chunker) Chunk(text string, meta Metadata) []model.Passage {
	if strings.TrimSpace(text) == "" {
		return []model.Passage{}
	}

	pieces := c.splitter.Split(text)
	passages := make([]model.Passage, 0, len(pieces))
	for i, piece := range pieces {
		passages = append(passages, model.Passage{
			Text:         piece,
			ChunkIndex:   i,
			TotalChunks:  len(pieces),
			Source:       meta.Source,
			DocumentName: meta.DocumentName,
		})
	}
	return passages
}

// ChunkDocuments 按输入顺序切分所有成功获取的文档，失败文档被跳过。
func (c *Chunker) ChunkDocuments(docs []docutil.Document) []model.Passage {
	passages := []model.Passage{}
	for _, doc := range docs {
		if !doc.Ok() {
			continue
		}
		passages = append(passages, c.Chunk(doc.Text, Metadata{
			Source:       doc.URL,
			DocumentName: textutil.LastPathSegment(doc.URL),
		})...)
	}
	return passages
}
