// Package model provides the data models shared by the docquery service.
package model

// Passage 文档切分后的一个文本片段，创建后不再修改。
type Passage struct {
	Text string `json:"text"`
	// ChunkIndex 在所属文档中的序号，从 0 开始。
	ChunkIndex int `json:"chunk_index"`
	// TotalChunks 所属文档的片段总数。
	TotalChunks  int    `json:"total_chunks"`
	Source       string `json:"source"`
	DocumentName string `json:"document_name"`
}

// SearchResult 一次检索命中的片段。
type SearchResult struct {
	Passage Passage `json:"passage"`
	// Score 平方 L2 距离，越小越相似。
	Score float32 `json:"score"`
	// Rank 从 1 开始的名次。
	Rank int `json:"rank"`
}
