package dialogue

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/ticketflow/llm"
	"github.com/BaSui01/ticketflow/llm/tokenizer"
	"github.com/BaSui01/ticketflow/types"
)

// SummaryPrefix 压缩后摘要消息的固定前缀
const SummaryPrefix = "Conversation summary so far:"

// defaultSummaryPrompt 默认摘要指令
const defaultSummaryPrompt = `You are a summarization assistant for a customer support conversation. Summarize the conversation so far in a concise paragraph, preserving the customer's issue, relevant details, and any decisions already made. Respond with the summary text only.`

// CompactorConfig 历史压缩配置
type CompactorConfig struct {
	// TriggerMessages 触发压缩的阈值：不含首条 system 消息的数量超过该值才压缩
	TriggerMessages int `yaml:"trigger_messages" json:"trigger_messages"`

	// SummaryMaxTokens 摘要输出长度上限
	SummaryMaxTokens int `yaml:"summary_max_tokens" json:"summary_max_tokens"`

	// SummaryTemperature 摘要生成温度
	SummaryTemperature float32 `yaml:"summary_temperature" json:"summary_temperature"`

	// SummaryPrompt 摘要指令
	SummaryPrompt string `yaml:"summary_prompt" json:"summary_prompt"`

	// MaxRetries 摘要调用的重试预算（总尝试次数）
	MaxRetries int `yaml:"max_retries" json:"max_retries"`

	// Model 摘要调用使用的模型
	Model string `yaml:"model" json:"model"`
}

// DefaultCompactorConfig 返回默认压缩配置
func DefaultCompactorConfig() CompactorConfig {
	return CompactorConfig{
		TriggerMessages:    20,
		SummaryMaxTokens:   200,
		SummaryTemperature: 0.2,
		SummaryPrompt:      defaultSummaryPrompt,
		MaxRetries:         3,
	}
}

// Compactor 历史压缩器
// 当会话的非 system 消息数超过阈值时，经网关生成摘要，并把整个序列
// 替换为恰好两条消息：原 system 指令 + 带固定前缀的摘要。压缩是有损
// 的，属于刻意设计；两消息的固定形状让下一轮的长度检查保持平凡。
type Compactor struct {
	store   SessionStore
	gateway *Gateway
	config  CompactorConfig
	metrics *Metrics
	logger  *zap.Logger
}

// NewCompactor 创建历史压缩器
func NewCompactor(store SessionStore, gateway *Gateway, config CompactorConfig, logger *zap.Logger) (*Compactor, error) {
	if store == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "session store is required")
	}
	if gateway == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "gateway is required")
	}
	if config.TriggerMessages <= 0 {
		config.TriggerMessages = 20
	}
	if config.SummaryMaxTokens <= 0 {
		config.SummaryMaxTokens = 200
	}
	if config.SummaryPrompt == "" {
		config.SummaryPrompt = defaultSummaryPrompt
	}
	if config.MaxRetries < 1 {
		config.MaxRetries = 3
	}

	metrics, err := NewMetrics()
	if err != nil {
		return nil, err
	}

	return &Compactor{
		store:   store,
		gateway: gateway,
		config:  config,
		metrics: metrics,
		logger:  logger.With(zap.String("component", "compactor")),
	}, nil
}

// MaybeCompact 按需压缩会话历史
// 返回是否发生了压缩以及摘要调用消耗的用量，调用方把用量并入本轮
// 统计。摘要调用失败时错误向上传播，会话保持压缩前的状态，不会出现
// 部分替换。
func (c *Compactor) MaybeCompact(ctx context.Context, sessionKey string) (bool, types.TokenUsage, error) {
	sess, ok := c.store.Get(sessionKey)
	if !ok {
		return false, types.TokenUsage{}, nil
	}

	history := nonSystemHistory(sess.Messages)
	if len(history) <= c.config.TriggerMessages {
		return false, types.TokenUsage{}, nil
	}

	c.logger.Info("triggering history compaction",
		zap.String("session_key", sessionKey),
		zap.Int("message_count", len(history)),
		zap.Int("threshold", c.config.TriggerMessages),
	)

	// 摘要指令 + 全部非 system 历史
	msgs := make([]types.Message, 0, len(history)+1)
	msgs = append(msgs, types.NewSystemMessage(c.config.SummaryPrompt))
	msgs = append(msgs, history...)

	req := &llm.ChatRequest{
		Model:       c.config.Model,
		Messages:    msgs,
		MaxTokens:   c.config.SummaryMaxTokens,
		Temperature: c.config.SummaryTemperature,
	}

	resp, err := c.gateway.Call(ctx, req, c.config.MaxRetries, "summarize")
	if err != nil {
		c.metrics.RecordCompaction(ctx, "error", 0)
		return false, types.TokenUsage{}, err
	}

	// 空摘要也消耗了 token，用量照常上报
	summary, err := llm.FirstChoiceText(resp)
	if err != nil {
		c.metrics.RecordCompaction(ctx, "error", 0)
		return false, resp.Usage, types.NewError(types.ErrUpstreamError, "summarization returned no text").WithCause(err)
	}

	// 恰好两条：原 system 指令 + 摘要
	compacted := make([]types.Message, 0, 2)
	if len(sess.Messages) > 0 && sess.Messages[0].Role == types.RoleSystem {
		compacted = append(compacted, sess.Messages[0])
	}
	compacted = append(compacted, types.NewAssistantMessage(fmt.Sprintf("%s\n%s", SummaryPrefix, summary)))

	saved := c.estimateSavings(sess.Messages, compacted)
	c.store.Replace(sessionKey, compacted)

	c.metrics.RecordCompaction(ctx, "success", saved)
	c.logger.Info("history compacted",
		zap.String("session_key", sessionKey),
		zap.Int("original_messages", len(sess.Messages)),
		zap.Int("compacted_messages", len(compacted)),
		zap.Int("tokens_saved", saved),
	)

	return true, resp.Usage, nil
}

// estimateSavings 估算压缩节省的 token 数
func (c *Compactor) estimateSavings(before, after []types.Message) int {
	tok := tokenizer.GetTokenizerOrEstimator(c.config.Model)

	beforeTokens, err := tok.CountMessages(before)
	if err != nil {
		return 0
	}
	afterTokens, err := tok.CountMessages(after)
	if err != nil {
		return 0
	}

	saved := beforeTokens - afterTokens
	if saved < 0 {
		saved = 0
	}
	return saved
}

// nonSystemHistory 返回去掉开头 system 指令后的历史
func nonSystemHistory(msgs []types.Message) []types.Message {
	if len(msgs) > 0 && msgs[0].Role == types.RoleSystem {
		return msgs[1:]
	}
	return msgs
}
