package api

import (
	"github.com/BaSui01/ticketflow/types"
)

// =============================================================================
// 轮次类型
// =============================================================================

// TurnRequest 代表一次用户轮次请求。
// @Description 轮次请求结构
type TurnRequest struct {
	// 会话键，同一会话的轮次共享历史
	SessionKey string `json:"session_key" example:"customer-42" binding:"required"`
	// 用户消息文本
	Message string `json:"message" example:"My screen is cracked." binding:"required"`
}

// TurnResponse 表示一次轮次的处理结果。
// @Description 轮次响应结构
type TurnResponse struct {
	// 轮次 ID
	TurnID string `json:"turn_id" example:"8f14e45f-ceea-4e07-8c3b-6f9c6b1a2d3e"`
	// 会话键
	SessionKey string `json:"session_key" example:"customer-42"`
	// 清洗后的助手回复文本
	Reply string `json:"reply"`
	// 对话是否到达终态（工单就绪）
	Terminal bool `json:"terminal" example:"false"`
	// 终态时提取的工单草稿，非终态为空
	Ticket *TicketDraft `json:"ticket,omitempty"`
	// 使用模型
	Model string `json:"model" example:"gpt-4o-mini"`
	// 代币使用统计
	Usage types.TokenUsage `json:"usage"`
	// 本轮是否触发了历史压缩
	Compacted bool `json:"compacted" example:"false"`
}

// TicketDraft 表示终态回复中提取的工单字段。
// 缺失或残缺的字段为 null，由下游系统决定兜底策略。
// @Description 工单草稿结构
type TicketDraft struct {
	// 问题摘要
	Summary *string `json:"summary"`
	// 问题详情
	Description *string `json:"description"`
	// 问题分类
	Category *string `json:"category"`
}

// ResetResponse 表示会话重置结果。
// @Description 会话重置响应结构
type ResetResponse struct {
	// 被重置的会话键
	SessionKey string `json:"session_key" example:"customer-42"`
	// 固定为 true，重置是幂等的
	Reset bool `json:"reset" example:"true"`
}

// ErrorDetail 错误详情
// @Description 错误详细信息
type ErrorDetail struct {
	// 错误代码
	Code string `json:"code" example:"RATE_LIMITED"`
	// 错误信息
	Message string `json:"message" example:"rate limit exceeded"`
	// 错误是否可以重试
	Retryable bool `json:"retryable,omitempty" example:"true"`
}
