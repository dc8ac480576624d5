package dialogue

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/ticketflow/internal/ctxkeys"
	"github.com/BaSui01/ticketflow/llm"
	"github.com/BaSui01/ticketflow/types"
)

// DefaultSystemPrompt 默认的会话 system 指令
// 约定后端在信息齐备时输出标签块与终止标记。
const DefaultSystemPrompt = `You are a support assistant helping a customer prepare a support ticket. Ask follow-up questions until you can produce a short summary, a full description, and a category for the issue. When everything is ready, append a block of the form <su>summary</su><de>description</de><ca>category</ca> followed by [[ORDER_COMPLETED]] to your reply. Until then, reply normally without any tags or markers.`

// EngineConfig 轮次处理配置
type EngineConfig struct {
	// Model 主回复使用的模型
	Model string `yaml:"model" json:"model"`

	// MaxReplyTokens 主回复输出长度上限
	MaxReplyTokens int `yaml:"max_reply_tokens" json:"max_reply_tokens"`

	// ReplyTemperature 主回复生成温度
	ReplyTemperature float32 `yaml:"reply_temperature" json:"reply_temperature"`

	// MaxRetries 主回复调用的重试预算（总尝试次数）
	MaxRetries int `yaml:"max_retries" json:"max_retries"`
}

// DefaultEngineConfig 返回默认轮次配置
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Model:            "gpt-4o-mini",
		MaxReplyTokens:   400,
		ReplyTemperature: 0.3,
		MaxRetries:       3,
	}
}

// TurnResult 一个用户轮次的处理结果，不持久化。
// Usage 是本轮全部后端调用的用量合计，压缩触发时含摘要调用。
type TurnResult struct {
	TurnID    string           `json:"turn_id"`
	ReplyText string           `json:"reply_text"`
	Terminal  bool             `json:"terminal"`
	Fields    Fields           `json:"fields"`
	Model     string           `json:"model"`
	Usage     types.TokenUsage `json:"usage"`
	Latency   time.Duration    `json:"latency"`
	Compacted bool             `json:"compacted"`
}

// keyedMutex 按键互斥锁
// 锁表只增不减：锁条目与出现过的会话键同寿，避免删除条目与在途
// 轮次之间的竞态。
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) get(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	return m
}

// Engine 轮次处理器
// 编排一个用户轮次：确保会话存在 → 压缩 → 追加用户消息 → 网关主调用
// → 终态判定与字段提取 → 追加清洗后的助手消息 → 返回轮次结果。
//
// 同一会话键上的并发轮次串行执行：整个 ProcessTurn 持有按键互斥锁，
// 不同键并行互不影响。终态后的会话重置由调用方在其副作用成功后自行
// 决定（ResetSession 或 Replace），引擎不会无条件重置。
type Engine struct {
	config    EngineConfig
	store     SessionStore
	gateway   *Gateway
	compactor *Compactor
	analyzer  Analyzer
	metrics   *Metrics
	logger    *zap.Logger
	turnLocks keyedMutex
}

// NewEngine 创建轮次处理器
func NewEngine(store SessionStore, gateway *Gateway, compactor *Compactor, analyzer Analyzer, config EngineConfig, logger *zap.Logger) (*Engine, error) {
	if store == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "session store is required")
	}
	if gateway == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "gateway is required")
	}
	if compactor == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "compactor is required")
	}
	if analyzer == nil {
		analyzer = NewTagAnalyzer()
	}
	if config.Model == "" {
		config.Model = DefaultEngineConfig().Model
	}
	if config.MaxReplyTokens <= 0 {
		config.MaxReplyTokens = 400
	}
	if config.MaxRetries < 1 {
		config.MaxRetries = 3
	}

	metrics, err := NewMetrics()
	if err != nil {
		return nil, err
	}

	return &Engine{
		config:    config,
		store:     store,
		gateway:   gateway,
		compactor: compactor,
		analyzer:  analyzer,
		metrics:   metrics,
		logger:    logger.With(zap.String("component", "engine")),
	}, nil
}

// ProcessTurn 处理一个用户轮次
// 主调用失败（含重试耗尽后的 BACKEND_UNAVAILABLE）原样向上传播，此时
// 不追加助手消息：已追加的用户消息保留在会话里（用户说了话，还没有
// 回复）。
func (e *Engine) ProcessTurn(ctx context.Context, message, sessionKey string) (*TurnResult, error) {
	if sessionKey == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "session key is required")
	}
	if strings.TrimSpace(message) == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "message is empty")
	}

	turnID := uuid.NewString()
	ctx = ctxkeys.WithTurnID(ctx, turnID)
	ctx = ctxkeys.WithSessionKey(ctx, sessionKey)
	logger := e.logger.With(
		zap.String("session_key", sessionKey),
		zap.String("turn_id", turnID),
	)

	// 同键串行
	lock := e.turnLocks.get(sessionKey)
	lock.Lock()
	defer lock.Unlock()

	ctx, span := e.metrics.StartTurn(ctx, sessionKey, turnID)
	start := time.Now()

	e.store.GetOrCreate(sessionKey)

	compacted, compactionUsage, err := e.compactor.MaybeCompact(ctx, sessionKey)
	if err != nil {
		e.metrics.EndTurn(ctx, span, "compaction_error", false, compactionUsage, time.Since(start))
		logger.Error("turn failed during compaction", zap.Error(err))
		return nil, err
	}

	e.store.Append(sessionKey, types.NewUserMessage(message))
	sess, _ := e.store.Get(sessionKey)

	req := &llm.ChatRequest{
		TraceID:     turnID,
		Model:       e.config.Model,
		Messages:    sess.Messages,
		MaxTokens:   e.config.MaxReplyTokens,
		Temperature: e.config.ReplyTemperature,
	}

	resp, err := e.gateway.Call(ctx, req, e.config.MaxRetries, "turn")
	if err != nil {
		e.metrics.EndTurn(ctx, span, "backend_error", false, compactionUsage, time.Since(start))
		logger.Error("turn failed", zap.Error(err))
		return nil, err
	}

	// 本轮用量 = 摘要调用（若压缩）+ 应答调用
	usage := resp.Usage
	usage.Add(compactionUsage)

	// 空内容与无 choices 同样按上游错误处理，不追加空的助手消息
	raw, err := llm.FirstChoiceText(resp)
	if err != nil || raw == "" {
		e.metrics.EndTurn(ctx, span, "backend_error", false, usage, time.Since(start))
		wrapped := types.NewError(types.ErrUpstreamError, "backend returned no text").WithCause(err)
		logger.Error("turn failed", zap.Error(wrapped))
		return nil, wrapped
	}

	// 提取必须先于清洗：Sanitize 是破坏性的
	terminal := e.analyzer.IsTerminal(raw)
	fields := e.analyzer.ExtractFields(raw)
	reply := e.analyzer.Sanitize(raw)

	if terminal && fields.Empty() {
		e.metrics.RecordMalformedExtraction(ctx)
		logger.Warn("terminal reply carries no extraction block")
	}

	// 只有清洗后的文本入史，带标签的原始文本不落入会话
	e.store.Append(sessionKey, types.NewAssistantMessage(reply))

	model := resp.Model
	if model == "" {
		model = e.config.Model
	}

	latency := time.Since(start)
	e.metrics.EndTurn(ctx, span, "success", terminal, usage, latency)
	logger.Info("turn completed",
		zap.Bool("terminal", terminal),
		zap.Bool("compacted", compacted),
		zap.Int("prompt_tokens", usage.PromptTokens),
		zap.Int("completion_tokens", usage.CompletionTokens),
		zap.Duration("latency", latency),
	)

	return &TurnResult{
		TurnID:    turnID,
		ReplyText: reply,
		Terminal:  terminal,
		Fields:    fields,
		Model:     model,
		Usage:     usage,
		Latency:   latency,
		Compacted: compacted,
	}, nil
}

// ResetSession 删除会话
// 幂等，总是成功；与同键上的在途轮次串行。
func (e *Engine) ResetSession(sessionKey string) {
	if sessionKey == "" {
		return
	}

	lock := e.turnLocks.get(sessionKey)
	lock.Lock()
	defer lock.Unlock()

	e.store.Delete(sessionKey)
	e.logger.Info("session reset", zap.String("session_key", sessionKey))
}

// SessionCount 返回当前会话数
func (e *Engine) SessionCount() int {
	return e.store.Len()
}

// Store 返回底层会话存储，供调用方执行终态后的自定义重置。
func (e *Engine) Store() SessionStore {
	return e.store
}
