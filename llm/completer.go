package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Completer 是共识循环依赖的全部补全能力：一段提示词进，一段文本出。
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// CompleterFunc 让普通函数满足 Completer
type CompleterFunc func(ctx context.Context, prompt string) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// ProviderCompleter 把 Provider 适配为 Completer
type ProviderCompleter struct {
	provider    Provider
	model       string
	temperature float32
	maxTokens   int
}

// CompleterOption 配置 ProviderCompleter
type CompleterOption func(*ProviderCompleter)

// WithModel 覆盖 Provider 的默认模型
func WithModel(model string) CompleterOption {
	return func(c *ProviderCompleter) { c.model = model }
}

// WithTemperature 设置采样温度
func WithTemperature(t float32) CompleterOption {
	return func(c *ProviderCompleter) { c.temperature = t }
}

// WithMaxTokens 限制输出长度
func WithMaxTokens(n int) CompleterOption {
	return func(c *ProviderCompleter) { c.maxTokens = n }
}

// NewProviderCompleter 创建 ProviderCompleter
func NewProviderCompleter(p Provider, opts ...CompleterOption) *ProviderCompleter {
	c := &ProviderCompleter{provider: p}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete 以单条 user 消息发起请求，返回第一个非空候选。
// 没有可用文本时返回 ErrEmptyResponse。
func (c *ProviderCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.provider.Completion(ctx, &ChatRequest{
		TraceID:     uuid.NewString(),
		Model:       c.model,
		Messages:    []Message{{Role: RoleUser, Content: prompt}},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", err
	}
	text := resp.FirstText()
	if strings.TrimSpace(text) == "" {
		return "", &Error{
			Code:       ErrEmptyResponse,
			Message:    "completion returned no text",
			HTTPStatus: http.StatusBadGateway,
			Provider:   c.provider.Name(),
		}
	}
	return text, nil
}

// IsRetryable 判断错误是否可以重试。
// 调用方的 ctx 超时或取消后重试只会立即失败，因此不重试。
func IsRetryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// IsClientError 判断错误是否源于请求本身（不应计入熔断）
func IsClientError(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Code {
	case ErrInvalidRequest, ErrUnauthorized, ErrForbidden, ErrQuotaExceeded, ErrContentFiltered:
		return true
	}
	return false
}
