// Package evaluator 让聊天模型对生成的答案给出简短的可信度说明。
//
// 使用示例:
//
//	ev := evaluator.New(chatProvider)
//	note, err := ev.Validate(ctx, "What is the refund policy?", answer, results)
package evaluator

import (
	"context"
	"fmt"
	"strings"

	"github.com/kart-io/logger"

	"github.com/kart-io/docquery/internal/model"
	"github.com/kart-io/docquery/internal/pkg/rag/textutil"
	"github.com/kart-io/docquery/pkg/llm"
)

// 生成参数。
const (
	DefaultTemperature = 0.1
	DefaultMaxTokens   = 200
)

// FallbackNote 校验调用失败时的说明。
const FallbackNote = "Could not validate answer"

const systemPrompt = "You are a helpful validation assistant."

const promptTemplate = `You are a validation assistant. Your task is to check if an answer properly addresses a question based on the provided context.

Question: %s
Answer: %s
Context info: %s

Evaluate:
1. Does the answer directly address the question?
2. Is the answer based on the provided context?
3. Does the answer acknowledge any limitations or missing information?

Provide a brief confidence note about the answer quality.`

// Validator 对答案做可信度校验。
type Validator interface {
	Validate(ctx context.Context, query, answer string, results []model.SearchResult) (string, error)
}

// Evaluator 基于 ChatProvider 的 Validator。
type Evaluator struct {
	chat        llm.ChatProvider
	temperature float64
	maxTokens   int
}

var _ Validator = (*Evaluator)(nil)

// Option 配置 Evaluator 的选项。
type Option func(*Evaluator)

// WithTemperature 设置采样温度。
func WithTemperature(t float64) Option {
	return func(e *Evaluator) {
		e.temperature = t
	}
}

// WithMaxTokens 设置说明的最大 token 数。
func WithMaxTokens(n int) Option {
	return func(e *Evaluator) {
		if n > 0 {
			e.maxTokens = n
		}
	}
}

// New 创建 Evaluator。
func New(chat llm.ChatProvider, opts ...Option) *Evaluator {
	e := &Evaluator{
		chat:        chat,
		temperature: DefaultTemperature,
		maxTokens:   DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Validate 返回模型给出的说明。调用失败时返回 FallbackNote 与错误。
func (e *Evaluator) Validate(ctx context.Context, query, answer string, results []model.SearchResult) (string, error) {
	prompt := BuildPrompt(query, answer, results)

	resp, err := e.chat.Generate(ctx, prompt, systemPrompt,
		llm.WithTemperature(e.temperature),
		llm.WithMaxTokens(e.maxTokens),
	)
	if err != nil {
		logger.Warnw("answer validation failed", "error", err.Error())
		return FallbackNote, fmt.Errorf("validating answer: %w", err)
	}

	note := strings.TrimSpace(resp.Content)
	logger.Debugw("answer validated", "note", textutil.TruncateString(note, 80))
	return note, nil
}

// BuildPrompt 组装校验提示，上下文只给出使用的片段数。
func BuildPrompt(query, answer string, results []model.SearchResult) string {
	summary := fmt.Sprintf("Used %d chunks from documents", len(results))
	return fmt.Sprintf(promptTemplate, query, answer, summary)
}
