// =============================================================================
// 📦 测试数据工厂 - 后端响应与终态回复
// =============================================================================
// 预置的 ChatResponse 与工单标签文本，测试按需取用
// =============================================================================
package fixtures

import (
	"fmt"
	"time"

	"github.com/BaSui01/ticketflow/llm"
	"github.com/BaSui01/ticketflow/types"
)

// =============================================================================
// 🎯 ChatResponse 工厂
// =============================================================================

// newChatResponse 是各响应工厂共用的骨架
func newChatResponse(id string, choices []llm.ChatChoice, usage types.TokenUsage) *llm.ChatResponse {
	return &llm.ChatResponse{
		ID:        id,
		Provider:  "mock",
		Model:     "gpt-4o-mini",
		Choices:   choices,
		Usage:     usage,
		CreatedAt: time.Now(),
	}
}

// SimpleResponse 返回单条助手文本的响应，用量为固定默认值
func SimpleResponse(content string) *llm.ChatResponse {
	return ResponseWithUsage(content, 10, 20)
}

// ResponseWithUsage 返回带指定 Token 用量的助手文本响应
func ResponseWithUsage(content string, promptTokens, completionTokens int) *llm.ChatResponse {
	choices := []llm.ChatChoice{
		{
			Index:        0,
			FinishReason: "stop",
			Message: types.Message{
				Role:    types.RoleAssistant,
				Content: content,
			},
		},
	}
	usage := types.TokenUsage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
	}
	return newChatResponse("resp-001", choices, usage)
}

// EmptyResponse 返回没有候选回复的响应，模拟异常后端
func EmptyResponse() *llm.ChatResponse {
	return newChatResponse("resp-empty", []llm.ChatChoice{}, types.TokenUsage{})
}

// =============================================================================
// 🎫 终态回复工厂
// =============================================================================

// TerminalReply 构造带终止标记和完整工单标签的助手回复文本。
// visible 为清洗后用户可见的部分。
func TerminalReply(visible, summary, description, category string) string {
	return fmt.Sprintf("%s\n[[ORDER_COMPLETED]]\n<su>%s</su>\n<de>%s</de>\n<ca>%s</ca>",
		visible, summary, description, category)
}

// PartialTerminalReply 构造只带部分标签的终态回复，用于残缺提取测试
func PartialTerminalReply(visible, summary string) string {
	return fmt.Sprintf("%s\n[[ORDER_COMPLETED]]\n<su>%s</su>", visible, summary)
}

// =============================================================================
// ❌ 错误工厂
// =============================================================================

// RateLimitedError 返回可重试的限流错误
func RateLimitedError() *types.Error {
	return types.NewRateLimitedError("rate limit exceeded")
}
