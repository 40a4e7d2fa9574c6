package textutil

import (
	"strings"
)

// DefaultSeparators 默认分隔符，按优先级从段落到单个字符。
var DefaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// RecursiveSplitter 递归字符切分器。
//
// 先用第一个出现在文本中的分隔符切分，片段合并到不超过 ChunkSize 个字符；
// 超长片段用后续分隔符继续切分。输出相邻块之间保留不超过 ChunkOverlap
// 个字符的尾部片段作为重叠。长度按 Unicode 字符计。
type RecursiveSplitter struct {
	ChunkSize    int
	ChunkOverlap int
	Separators   []string
}

// NewRecursiveSplitter 使用默认分隔符创建切分器。
func NewRecursiveSplitter(chunkSize, chunkOverlap int) *RecursiveSplitter {
	return &RecursiveSplitter{
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
		Separators:   DefaultSeparators,
	}
}

// Split 切分文本，返回去除首尾空白后的非空块。
func (s *RecursiveSplitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" || s.ChunkSize <= 0 {
		return nil
	}
	separators := s.Separators
	if len(separators) == 0 {
		separators = DefaultSeparators
	}
	return s.split(text, separators)
}

func (s *RecursiveSplitter) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var rest []string
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			rest = separators[i+1:]
			break
		}
	}

	var chunks, good []string
	for _, piece := range splitNonEmpty(text, separator) {
		if RuneLen(piece) < s.ChunkSize {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			chunks = append(chunks, s.merge(good, separator)...)
			good = nil
		}
		if len(rest) == 0 {
			if piece = strings.TrimSpace(piece); piece != "" {
				chunks = append(chunks, piece)
			}
		} else {
			chunks = append(chunks, s.split(piece, rest)...)
		}
	}
	if len(good) > 0 {
		chunks = append(chunks, s.merge(good, separator)...)
	}
	return chunks
}

// merge 合并片段，emit 一个块后从头部丢弃片段直到剩余长度不超过重叠上限。
func (s *RecursiveSplitter) merge(pieces []string, separator string) []string {
	sepLen := RuneLen(separator)
	var (
		docs    []string
		current []string
		total   int
	)

	joinedLen := func(add int) int {
		if len(current) > 0 {
			return total + add + sepLen
		}
		return total + add
	}

	for _, piece := range pieces {
		n := RuneLen(piece)
		if joinedLen(n) > s.ChunkSize && len(current) > 0 {
			if doc := joinTrimmed(current, separator); doc != "" {
				docs = append(docs, doc)
			}
			for total > s.ChunkOverlap || (joinedLen(n) > s.ChunkSize && total > 0) {
				drop := RuneLen(current[0])
				if len(current) > 1 {
					drop += sepLen
				}
				total -= drop
				current = current[1:]
			}
		}
		current = append(current, piece)
		total += n
		if len(current) > 1 {
			total += sepLen
		}
	}
	if doc := joinTrimmed(current, separator); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

func splitNonEmpty(text, separator string) []string {
	var parts []string
	if separator == "" {
		parts = make([]string, 0, len(text))
		for _, r := range text {
			parts = append(parts, string(r))
		}
		return parts
	}
	for _, p := range strings.Split(text, separator) {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

func joinTrimmed(parts []string, separator string) string {
	return strings.TrimSpace(strings.Join(parts, separator))
}
