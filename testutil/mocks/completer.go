package mocks

import (
	"context"
	"strings"
	"sync"
)

// CompleterCall 记录单次补全调用
type CompleterCall struct {
	Prompt   string
	Response string
	Error    error
}

// ScriptedCompleter 是 llm.Completer 的脚本化实现。
//
// 规则按添加顺序匹配提示词中的子串，命中则返回对应结果；都未命中时返回
// 默认响应。WithFunc 设置后优先于所有规则。
type ScriptedCompleter struct {
	mu       sync.Mutex
	rules    []rule
	response string
	err      error
	fn       func(ctx context.Context, prompt string) (string, error)
	calls    []CompleterCall
}

type rule struct {
	contains string
	response string
	err      error
}

// NewScriptedCompleter 创建 ScriptedCompleter
func NewScriptedCompleter() *ScriptedCompleter {
	return &ScriptedCompleter{response: "Mock response"}
}

// WithResponse 设置默认响应
func (c *ScriptedCompleter) WithResponse(response string) *ScriptedCompleter {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.response = response
	return c
}

// WithError 设置默认错误
func (c *ScriptedCompleter) WithError(err error) *ScriptedCompleter {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
	return c
}

// On 当提示词包含 substr 时返回 response
func (c *ScriptedCompleter) On(substr, response string) *ScriptedCompleter {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rules = append(c.rules, rule{contains: substr, response: response})
	return c
}

// OnError 当提示词包含 substr 时返回 err
func (c *ScriptedCompleter) OnError(substr string, err error) *ScriptedCompleter {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rules = append(c.rules, rule{contains: substr, err: err})
	return c
}

// WithFunc 设置自定义实现
func (c *ScriptedCompleter) WithFunc(fn func(ctx context.Context, prompt string) (string, error)) *ScriptedCompleter {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fn = fn
	return c
}

func (c *ScriptedCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	c.mu.Lock()
	fn := c.fn
	response, err := c.response, c.err
	for _, r := range c.rules {
		if strings.Contains(prompt, r.contains) {
			response, err = r.response, r.err
			break
		}
	}
	c.mu.Unlock()

	if fn != nil {
		response, err = fn(ctx, prompt)
	}

	c.mu.Lock()
	c.calls = append(c.calls, CompleterCall{Prompt: prompt, Response: response, Error: err})
	c.mu.Unlock()

	if err != nil {
		return "", err
	}
	return response, nil
}

// Calls 返回调用记录副本
func (c *ScriptedCompleter) Calls() []CompleterCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CompleterCall, len(c.calls))
	copy(out, c.calls)
	return out
}

// CallCount 返回调用次数
func (c *ScriptedCompleter) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}
