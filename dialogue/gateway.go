package dialogue

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/BaSui01/ticketflow/internal/ctxkeys"
	"github.com/BaSui01/ticketflow/llm"
	"github.com/BaSui01/ticketflow/llm/retry"
	"github.com/BaSui01/ticketflow/llm/tokenizer"
	"github.com/BaSui01/ticketflow/types"
)

// GatewayConfig 后端调用网关配置
type GatewayConfig struct {
	// BaseDelay 线性退避基础延迟：第 i 次重试（i 从 0 起）等待 (i+1) × BaseDelay
	BaseDelay time.Duration `yaml:"base_delay" json:"base_delay"`

	// MaxInFlight 最大并发后端调用数，0 表示不限制
	MaxInFlight int64 `yaml:"max_in_flight" json:"max_in_flight"`

	// Sleeper 注入的延迟实现，nil 为真实休眠；测试注入假时钟
	Sleeper retry.Sleeper `yaml:"-" json:"-"`
}

// DefaultGatewayConfig 返回默认网关配置
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		BaseDelay:   1 * time.Second,
		MaxInFlight: 0,
	}
}

// Gateway 后端调用网关
// 包装单次生成式后端调用：限流错误按线性退避重试，重试耗尽映射为
// BACKEND_UNAVAILABLE，其余错误原样向上传播；成功时补全用量统计。
// 网关自身不持有跨调用状态。
type Gateway struct {
	provider llm.Provider
	config   GatewayConfig
	sem      *semaphore.Weighted
	metrics  *Metrics
	logger   *zap.Logger
}

// NewGateway 创建后端调用网关
func NewGateway(provider llm.Provider, config GatewayConfig, logger *zap.Logger) (*Gateway, error) {
	if provider == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "provider is required")
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = 1 * time.Second
	}

	metrics, err := NewMetrics()
	if err != nil {
		return nil, err
	}

	g := &Gateway{
		provider: provider,
		config:   config,
		metrics:  metrics,
		logger:   logger.With(zap.String("component", "gateway")),
	}
	if config.MaxInFlight > 0 {
		g.sem = semaphore.NewWeighted(config.MaxInFlight)
	}
	return g, nil
}

// Call 执行一次后端调用
// maxRetries 是总尝试次数预算（含首次调用，最小 1）；label 标识调用目的，
// 进入日志与指标。只有 RATE_LIMITED 触发重试，重试间隔线性递增。
func (g *Gateway) Call(ctx context.Context, req *llm.ChatRequest, maxRetries int, label string) (*llm.ChatResponse, error) {
	if req == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "request is required")
	}
	if maxRetries < 1 {
		maxRetries = 1
	}

	// 并发上限
	if g.sem != nil {
		if err := g.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer g.sem.Release(1)
	}

	logger := g.callLogger(ctx)
	logger.Debug("calling backend",
		zap.String("label", label),
		zap.String("model", req.Model),
		zap.Int("messages", len(req.Messages)),
		zap.Int("max_tokens", req.MaxTokens),
		zap.Int("max_retries", maxRetries),
	)

	attempts := 1
	policy := &retry.Policy{
		MaxAttempts: maxRetries,
		BaseDelay:   g.config.BaseDelay,
		RetryIf: func(err error) bool {
			return types.IsErrorCode(err, types.ErrRateLimited)
		},
		OnRetry: func(attempt int, err error, delay time.Duration) {
			attempts++
			g.metrics.RecordRetry(ctx, label)
			logger.Warn("backend rate limited, retrying",
				zap.String("label", label),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
		},
		Sleeper: g.config.Sleeper,
	}
	retryer := retry.NewLinearRetryer(policy, logger)

	start := time.Now()
	resp, err := retry.DoWithResultTyped[*llm.ChatResponse](retryer, ctx, func() (*llm.ChatResponse, error) {
		return g.provider.Completion(ctx, req)
	})
	duration := time.Since(start)

	if err != nil {
		// 限流重试耗尽统一映射为 BACKEND_UNAVAILABLE，保留原错误链
		if types.IsErrorCode(err, types.ErrRateLimited) {
			err = types.NewBackendUnavailableError("backend retries exhausted").WithCause(err)
		}
		g.metrics.RecordBackendCall(ctx, label, req.Model, "error", duration, types.TokenUsage{})
		logger.Error("backend call failed",
			zap.String("label", label),
			zap.String("model", req.Model),
			zap.Int("attempts", attempts),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return nil, err
	}

	// 后端未返回用量时用 tokenizer 估算，保证统计不为零
	if resp.Usage.TotalTokens == 0 {
		resp.Usage = g.estimateUsage(req, resp)
		logger.Debug("backend usage missing, estimated locally",
			zap.String("label", label),
			zap.Int("total_tokens", resp.Usage.TotalTokens),
		)
	}

	g.metrics.RecordBackendCall(ctx, label, req.Model, "success", duration, resp.Usage)
	logger.Info("backend call completed",
		zap.String("label", label),
		zap.String("model", req.Model),
		zap.Int("attempts", attempts),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
		zap.Duration("duration", duration),
	)

	return resp, nil
}

// callLogger 附加 ctx 携带的追踪、轮次与会话标识，网关日志与引擎日志可对齐
func (g *Gateway) callLogger(ctx context.Context) *zap.Logger {
	logger := g.logger
	if traceID, ok := ctxkeys.TraceID(ctx); ok {
		logger = logger.With(zap.String("trace_id", traceID))
	}
	if turnID, ok := ctxkeys.TurnID(ctx); ok {
		logger = logger.With(zap.String("turn_id", turnID))
	}
	if key, ok := ctxkeys.SessionKey(ctx); ok {
		logger = logger.With(zap.String("session_key", key))
	}
	return logger
}

// estimateUsage 本地估算一次调用的 token 用量
func (g *Gateway) estimateUsage(req *llm.ChatRequest, resp *llm.ChatResponse) types.TokenUsage {
	tok := tokenizer.GetTokenizerOrEstimator(req.Model)

	prompt, err := tok.CountMessages(req.Messages)
	if err != nil {
		prompt = 0
	}

	completion := 0
	if text, err := llm.FirstChoiceText(resp); err == nil && text != "" {
		if n, err := tok.CountTokens(text); err == nil {
			completion = n
		}
	}

	return types.TokenUsage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
}
