package biz

import (
	"context"
	"fmt"
	"strings"

	"github.com/kart-io/logger"

	"github.com/kart-io/docquery/internal/model"
	"github.com/kart-io/docquery/pkg/llm"
)

const (
	defaultAnswerTemperature = 0.1
	defaultAnswerMaxTokens   = 1000

	contextSeparator = "\n\n---\n\n"
)

const answerSystemPrompt = `You are a helpful assistant that answers questions based solely on the provided context.
Your task is to answer the user's question using ONLY the information from the provided documents.

Important rules:
1. Only use information explicitly stated in the provided context
2. If the answer cannot be found in the context, clearly state that
3. Do not make assumptions or add information not present in the context
4. Quote or reference specific parts of the context when possible
5. Be concise but thorough in your answer`

const answerPromptTemplate = `Context from documents:
%s

Question: %s

Please answer the question based only on the provided context.`

// Answer 生成结果。
type Answer struct {
	Text       string
	Model      string
	ChunksUsed int
}

// Generator 根据检索到的段落回答问题。
type Generator interface {
	Generate(ctx context.Context, query string, results []model.SearchResult) (*Answer, error)
}

// LLMGenerator 通过对话模型生成答案。
type LLMGenerator struct {
	chat        llm.ChatProvider
	temperature float64
	maxTokens   int
}

var _ Generator = (*LLMGenerator)(nil)

// GeneratorOption configures LLMGenerator.
type GeneratorOption func(*LLMGenerator)

// WithAnswerTemperature 设置采样温度。
func WithAnswerTemperature(t float64) GeneratorOption {
	return func(g *LLMGenerator) {
		g.temperature = t
	}
}

// WithAnswerMaxTokens 设置最大输出 token 数。
func WithAnswerMaxTokens(n int) GeneratorOption {
	return func(g *LLMGenerator) {
		if n > 0 {
			g.maxTokens = n
		}
	}
}

// NewLLMGenerator 创建生成器。
func NewLLMGenerator(chat llm.ChatProvider, opts ...GeneratorOption) *LLMGenerator {
	g := &LLMGenerator{
		chat:        chat,
		temperature: defaultAnswerTemperature,
		maxTokens:   defaultAnswerMaxTokens,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate implements Generator.
func (g *LLMGenerator) Generate(ctx context.Context, query string, results []model.SearchResult) (*Answer, error) {
	prompt := BuildAnswerPrompt(query, results)

	resp, err := g.chat.Generate(ctx, prompt, answerSystemPrompt,
		llm.WithTemperature(g.temperature),
		llm.WithMaxTokens(g.maxTokens),
	)
	if err != nil {
		return nil, fmt.Errorf("generating answer: %w", err)
	}

	modelName := resp.Model
	if modelName == "" {
		modelName = g.chat.Name()
	}
	if resp.TokenUsage != nil {
		logger.Debugw("answer generated", "model", modelName, "chunks", len(results), "tokens", resp.TokenUsage.TotalTokens)
	}

	return &Answer{
		Text:       resp.Content,
		Model:      modelName,
		ChunksUsed: len(results),
	}, nil
}

// BuildContext renders retrieved passages as "[Source: name]" blocks.
func BuildContext(results []model.SearchResult) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		source := r.Passage.DocumentName
		if source == "" {
			source = "Unknown"
		}
		parts = append(parts, "[Source: "+source+"]\n"+r.Passage.Text)
	}
	return strings.Join(parts, contextSeparator)
}

// BuildAnswerPrompt 组装用户提示词。
func BuildAnswerPrompt(query string, results []model.SearchResult) string {
	return fmt.Sprintf(answerPromptTemplate, BuildContext(results), query)
}
