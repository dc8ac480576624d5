package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/ticketflow/api"
	"github.com/BaSui01/ticketflow/dialogue"
	"github.com/BaSui01/ticketflow/internal/metrics"
	"github.com/BaSui01/ticketflow/types"
)

// =============================================================================
// 💬 轮次接口 Handler
// =============================================================================

// TurnHandler 轮次接口处理器
type TurnHandler struct {
	engine    *dialogue.Engine
	collector *metrics.Collector
	logger    *zap.Logger
}

// NewTurnHandler 创建轮次处理器
// collector 可以为 nil，此时不记录宿主侧 Prometheus 指标。
func NewTurnHandler(engine *dialogue.Engine, collector *metrics.Collector, logger *zap.Logger) *TurnHandler {
	return &TurnHandler{
		engine:    engine,
		collector: collector,
		logger:    logger,
	}
}

// HandleTurn 处理一次用户轮次
// @Summary 处理轮次
// @Description 在指定会话中处理一条用户消息并返回助手回复
// @Tags 对话
// @Accept json
// @Produce json
// @Param request body api.TurnRequest true "轮次请求"
// @Success 200 {object} api.TurnResponse "轮次结果"
// @Failure 400 {object} Response "无效请求"
// @Failure 503 {object} Response "后端不可用"
// @Router /api/v1/turns [post]
func (h *TurnHandler) HandleTurn(w http.ResponseWriter, r *http.Request) {
	// 验证 Content-Type
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	// 解码请求
	var req api.TurnRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	// 验证请求
	if err := h.validateTurnRequest(&req); err != nil {
		WriteError(w, err, h.logger)
		return
	}

	// 调用引擎
	start := time.Now()
	result, err := h.engine.ProcessTurn(r.Context(), req.Message, req.SessionKey)
	duration := time.Since(start)

	if err != nil {
		h.recordTurn("error", false, duration, types.TokenUsage{}, "")
		h.handleEngineError(w, err)
		return
	}

	h.recordTurn("success", result.Terminal, duration, result.Usage, result.Model)

	// 记录日志
	h.logger.Info("turn processed",
		zap.String("session_key", req.SessionKey),
		zap.String("turn_id", result.TurnID),
		zap.Bool("terminal", result.Terminal),
		zap.Bool("compacted", result.Compacted),
		zap.Int("total_tokens", result.Usage.TotalTokens),
		zap.Duration("duration", duration),
	)

	WriteSuccess(w, h.convertToAPIResponse(req.SessionKey, result))
}

// HandleReset 重置会话
// @Summary 重置会话
// @Description 丢弃指定会话的全部历史，重置是幂等的
// @Tags 对话
// @Produce json
// @Param key path string true "会话键"
// @Success 200 {object} api.ResetResponse "重置结果"
// @Failure 400 {object} Response "无效请求"
// @Router /api/v1/sessions/{key}/reset [post]
func (h *TurnHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if key == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "session key is required", h.logger)
		return
	}

	h.engine.ResetSession(key)

	if h.collector != nil {
		h.collector.RecordSessionReset()
		h.collector.SetActiveSessions(h.engine.SessionCount())
	}

	h.logger.Info("session reset", zap.String("session_key", key))

	WriteSuccess(w, api.ResetResponse{
		SessionKey: key,
		Reset:      true,
	})
}

// =============================================================================
// 🔧 辅助方法
// =============================================================================

// validateTurnRequest 验证轮次请求
func (h *TurnHandler) validateTurnRequest(req *api.TurnRequest) *types.Error {
	if req.SessionKey == "" {
		return types.NewError(types.ErrInvalidRequest, "session_key is required")
	}
	if strings.TrimSpace(req.Message) == "" {
		return types.NewError(types.ErrInvalidRequest, "message is empty")
	}
	return nil
}

// handleEngineError 将引擎错误映射为 HTTP 响应
func (h *TurnHandler) handleEngineError(w http.ResponseWriter, err error) {
	var typedErr *types.Error
	if errors.As(err, &typedErr) {
		WriteError(w, typedErr, h.logger)
		return
	}

	WriteError(w, types.NewError(types.ErrInternalError, "turn processing failed").WithCause(err), h.logger)
}

// recordTurn 记录宿主侧轮次指标
func (h *TurnHandler) recordTurn(status string, terminal bool, duration time.Duration, usage types.TokenUsage, model string) {
	if h.collector == nil {
		return
	}
	if model == "" {
		model = "unknown"
	}
	h.collector.RecordTurn(model, status, terminal, duration, usage.PromptTokens, usage.CompletionTokens)
	h.collector.SetActiveSessions(h.engine.SessionCount())
}

// convertToAPIResponse 转换引擎结果为 API 响应
func (h *TurnHandler) convertToAPIResponse(sessionKey string, result *dialogue.TurnResult) api.TurnResponse {
	resp := api.TurnResponse{
		TurnID:     result.TurnID,
		SessionKey: sessionKey,
		Reply:      result.ReplyText,
		Terminal:   result.Terminal,
		Model:      result.Model,
		Usage:      result.Usage,
		Compacted:  result.Compacted,
	}

	// 终态才携带工单草稿；字段残缺时保持 null 交给下游兜底
	if result.Terminal {
		resp.Ticket = &api.TicketDraft{
			Summary:     result.Fields.Summary,
			Description: result.Fields.Description,
			Category:    result.Fields.Category,
		}
	}

	return resp
}
