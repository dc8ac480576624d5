package dialogue

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/BaSui01/ticketflow/types"
)

const instrumentationName = "github.com/BaSui01/ticketflow/dialogue"

// Metrics 对话域 OTel 指标收集器
// 通过全局 MeterProvider 注册仪表；遥测未初始化时全部为 noop。
type Metrics struct {
	tracer trace.Tracer
	meter  metric.Meter
	// 计数器
	turnTotal       metric.Int64Counter
	backendTotal    metric.Int64Counter
	retryTotal      metric.Int64Counter
	tokenTotal      metric.Int64Counter
	compactionTotal metric.Int64Counter
	tokensSaved     metric.Int64Counter
	malformedTotal  metric.Int64Counter
	// 直方图
	turnDuration    metric.Float64Histogram
	backendDuration metric.Float64Histogram
	// 活跃轮次
	activeTurns metric.Int64UpDownCounter
}

// NewMetrics 创建指标收集器
func NewMetrics() (*Metrics, error) {
	tracer := otel.Tracer(instrumentationName)
	meter := otel.Meter(instrumentationName)

	m := &Metrics{
		tracer: tracer,
		meter:  meter,
	}

	var err error

	// 轮次计数
	m.turnTotal, err = meter.Int64Counter("dialogue.turn.total",
		metric.WithDescription("Total number of dialogue turns"),
		metric.WithUnit("{turn}"))
	if err != nil {
		return nil, err
	}

	// 后端调用计数
	m.backendTotal, err = meter.Int64Counter("dialogue.backend.total",
		metric.WithDescription("Total number of backend calls"),
		metric.WithUnit("{call}"))
	if err != nil {
		return nil, err
	}

	// 重试计数
	m.retryTotal, err = meter.Int64Counter("dialogue.backend.retry.total",
		metric.WithDescription("Total number of backend call retries"),
		metric.WithUnit("{retry}"))
	if err != nil {
		return nil, err
	}

	// Token 计数
	m.tokenTotal, err = meter.Int64Counter("dialogue.token.total",
		metric.WithDescription("Total tokens consumed"),
		metric.WithUnit("{token}"))
	if err != nil {
		return nil, err
	}

	// 压缩计数
	m.compactionTotal, err = meter.Int64Counter("dialogue.compaction.total",
		metric.WithDescription("Total number of history compactions"),
		metric.WithUnit("{compaction}"))
	if err != nil {
		return nil, err
	}

	// 压缩节省的 token
	m.tokensSaved, err = meter.Int64Counter("dialogue.compaction.tokens_saved",
		metric.WithDescription("Estimated tokens saved by compaction"),
		metric.WithUnit("{token}"))
	if err != nil {
		return nil, err
	}

	// 提取块缺失/畸形计数
	m.malformedTotal, err = meter.Int64Counter("dialogue.extraction.malformed.total",
		metric.WithDescription("Terminal replies whose extraction block was missing or malformed"),
		metric.WithUnit("{reply}"))
	if err != nil {
		return nil, err
	}

	// 轮次耗时
	m.turnDuration, err = meter.Float64Histogram("dialogue.turn.duration",
		metric.WithDescription("Turn duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30))
	if err != nil {
		return nil, err
	}

	// 后端调用耗时
	m.backendDuration, err = meter.Float64Histogram("dialogue.backend.duration",
		metric.WithDescription("Backend call duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30))
	if err != nil {
		return nil, err
	}

	// 活跃轮次数
	m.activeTurns, err = meter.Int64UpDownCounter("dialogue.turn.active",
		metric.WithDescription("Number of turns currently in flight"),
		metric.WithUnit("{turn}"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// StartTurn 开始一个轮次的追踪
func (m *Metrics) StartTurn(ctx context.Context, sessionKey, turnID string) (context.Context, trace.Span) {
	ctx, span := m.tracer.Start(ctx, "dialogue.process_turn",
		trace.WithAttributes(
			attribute.String("dialogue.session_key", sessionKey),
			attribute.String("dialogue.turn_id", turnID),
		))

	m.activeTurns.Add(ctx, 1)

	return ctx, span
}

// EndTurn 结束轮次追踪并记录指标
func (m *Metrics) EndTurn(ctx context.Context, span trace.Span, status string, terminal bool, usage types.TokenUsage, duration time.Duration) {
	defer span.End()

	attrs := []attribute.KeyValue{
		attribute.String("status", status),
		attribute.Bool("terminal", terminal),
	}

	m.activeTurns.Add(ctx, -1)
	m.turnTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.turnDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("status", status)))

	span.SetAttributes(
		attribute.String("dialogue.status", status),
		attribute.Bool("dialogue.terminal", terminal),
		attribute.Int("dialogue.tokens.prompt", usage.PromptTokens),
		attribute.Int("dialogue.tokens.completion", usage.CompletionTokens),
		attribute.Float64("dialogue.duration_ms", float64(duration.Milliseconds())),
	)
}

// RecordBackendCall 记录一次后端调用
func (m *Metrics) RecordBackendCall(ctx context.Context, label, model, status string, duration time.Duration, usage types.TokenUsage) {
	attrs := []attribute.KeyValue{
		attribute.String("label", label),
		attribute.String("model", model),
		attribute.String("status", status),
	}

	m.backendTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.backendDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("label", label),
		attribute.String("model", model)))

	if usage.TotalTokens > 0 {
		m.tokenTotal.Add(ctx, int64(usage.PromptTokens), metric.WithAttributes(
			attribute.String("model", model),
			attribute.String("type", "prompt")))
		m.tokenTotal.Add(ctx, int64(usage.CompletionTokens), metric.WithAttributes(
			attribute.String("model", model),
			attribute.String("type", "completion")))
	}
}

// RecordRetry 记录一次重试
func (m *Metrics) RecordRetry(ctx context.Context, label string) {
	m.retryTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("label", label)))
}

// RecordCompaction 记录一次历史压缩
func (m *Metrics) RecordCompaction(ctx context.Context, status string, saved int) {
	m.compactionTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	if saved > 0 {
		m.tokensSaved.Add(ctx, int64(saved))
	}
}

// RecordMalformedExtraction 记录终态回复缺失提取块的情况
func (m *Metrics) RecordMalformedExtraction(ctx context.Context) {
	m.malformedTotal.Add(ctx, 1)
}

// Tracer 返回对话域 tracer，供引擎创建子 span。
func (m *Metrics) Tracer() trace.Tracer {
	return m.tracer
}
