// MockProvider 的 LLM 提供商测试模拟实现。
//
// 支持固定响应、脚本化序列与错误注入场景。
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/ticketflow/llm"
	"github.com/BaSui01/ticketflow/types"
)

// Step 描述一次 Completion 调用的预设结果
// Err 非 nil 时返回该错误，否则返回 Response。
type Step struct {
	Response string
	Err      error
}

// MockProvider 是 llm.Provider 的模拟实现。
// 预设的优先级从高到低：固定错误、自定义函数、脚本序列、固定响应。
type MockProvider struct {
	mu sync.RWMutex

	response string
	steps    []Step
	stepIdx  int
	err      error

	promptTokens     int
	completionTokens int

	calls          []MockProviderCall
	callCount      int
	completionFunc func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)
}

// MockProviderCall 记录单次调用
type MockProviderCall struct {
	Request  *llm.ChatRequest
	Response *llm.ChatResponse
	Error    error
}

// =============================================================================
// 📦 构造与预设工厂
// =============================================================================

// NewMockProvider 创建新的 MockProvider
func NewMockProvider() *MockProvider {
	return &MockProvider{
		response:         "Mock response",
		calls:            []MockProviderCall{},
		promptTokens:     10,
		completionTokens: 20,
	}
}

// NewSuccessProvider 创建总是成功的 Provider
func NewSuccessProvider(response string) *MockProvider {
	return NewMockProvider().WithResponse(response)
}

// NewErrorProvider 创建总是失败的 Provider
func NewErrorProvider(err error) *MockProvider {
	return NewMockProvider().WithError(err)
}

// NewRateLimitedProvider 创建先限流 limited 次、随后成功返回 response 的 Provider
func NewRateLimitedProvider(limited int, response string) *MockProvider {
	steps := make([]Step, 0, limited+1)
	for i := 0; i < limited; i++ {
		steps = append(steps, Step{Err: types.NewRateLimitedError("mock rate limited")})
	}
	steps = append(steps, Step{Response: response})
	return NewMockProvider().WithSteps(steps...)
}

// =============================================================================
// 🔧 Builder 方法
// =============================================================================

// configure 在锁内应用一次配置变更，Builder 方法共用
func (m *MockProvider) configure(fn func(*MockProvider)) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m)
	return m
}

// WithResponse 设置固定响应内容
func (m *MockProvider) WithResponse(response string) *MockProvider {
	return m.configure(func(p *MockProvider) { p.response = response })
}

// WithSteps 设置脚本化的调用序列
// 每次 Completion 消费一步；序列耗尽后回退到固定响应。
func (m *MockProvider) WithSteps(steps ...Step) *MockProvider {
	return m.configure(func(p *MockProvider) {
		p.steps = steps
		p.stepIdx = 0
	})
}

// WithError 设置所有调用都返回的错误
func (m *MockProvider) WithError(err error) *MockProvider {
	return m.configure(func(p *MockProvider) { p.err = err })
}

// WithTokenUsage 设置 Token 使用量
// 两个值都为 0 时响应不携带用量，可用来验证调用方的本地估算回退。
func (m *MockProvider) WithTokenUsage(prompt, completion int) *MockProvider {
	return m.configure(func(p *MockProvider) {
		p.promptTokens = prompt
		p.completionTokens = completion
	})
}

// WithCompletionFunc 设置自定义 Completion 函数
func (m *MockProvider) WithCompletionFunc(fn func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)) *MockProvider {
	return m.configure(func(p *MockProvider) { p.completionFunc = fn })
}

// =============================================================================
// 🌐 Provider 接口实现
// =============================================================================

// outcome 是一次调用在锁内定下的结果
type outcome struct {
	content string
	err     error
	fn      func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)
}

// nextOutcome 消费一次调用并决定其结果。
// 脚本步骤在锁内按调用次序消费，并发下序列依然确定。
func (m *MockProvider) nextOutcome() outcome {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.callCount++

	switch {
	case m.err != nil:
		return outcome{err: m.err}
	case m.completionFunc != nil:
		return outcome{fn: m.completionFunc}
	case m.stepIdx < len(m.steps):
		step := m.steps[m.stepIdx]
		m.stepIdx++
		if step.Err != nil {
			return outcome{err: step.Err}
		}
		return outcome{content: step.Response}
	default:
		return outcome{content: m.response}
	}
}

// Name 返回 Provider 名称
func (m *MockProvider) Name() string {
	return "mock"
}

// HealthCheck 总是报告健康
func (m *MockProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{
		Healthy:   true,
		Latency:   10 * time.Millisecond,
		ErrorRate: 0,
	}, nil
}

// Completion 按预设返回响应或错误
func (m *MockProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	o := m.nextOutcome()

	if o.err != nil {
		m.record(MockProviderCall{Request: req, Error: o.err})
		return nil, o.err
	}

	// 自定义函数在锁外执行，并发调用可以在函数内部汇合
	if o.fn != nil {
		resp, err := o.fn(ctx, req)
		m.record(MockProviderCall{Request: req, Response: resp, Error: err})
		return resp, err
	}

	resp := m.buildResponse(req, o.content)
	m.record(MockProviderCall{Request: req, Response: resp})
	return resp, nil
}

// record 追加一条调用记录
func (m *MockProvider) record(call MockProviderCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

// buildResponse 构建默认响应
func (m *MockProvider) buildResponse(req *llm.ChatRequest, content string) *llm.ChatResponse {
	m.mu.RLock()
	promptTokens, completionTokens := m.promptTokens, m.completionTokens
	m.mu.RUnlock()

	return &llm.ChatResponse{
		ID:       "mock-response-id",
		Provider: "mock",
		Model:    req.Model,
		Choices: []llm.ChatChoice{
			{
				Index:        0,
				FinishReason: "stop",
				Message: types.Message{
					Role:    types.RoleAssistant,
					Content: content,
				},
			},
		},
		Usage: types.TokenUsage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
		CreatedAt: time.Now(),
	}
}

// =============================================================================
// 🔍 查询方法
// =============================================================================

// GetCalls 返回全部调用记录的副本
func (m *MockProvider) GetCalls() []MockProviderCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]MockProviderCall{}, m.calls...)
}

// GetCallCount 返回 Completion 被调用的次数
func (m *MockProvider) GetCallCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.callCount
}

// GetLastCall 返回最后一次调用，没有调用时为 nil
func (m *MockProvider) GetLastCall() *MockProviderCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.calls) == 0 {
		return nil
	}
	call := m.calls[len(m.calls)-1]
	return &call
}
