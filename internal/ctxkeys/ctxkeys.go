// Package ctxkeys 定义跨层传递的 context 键。
// HTTP 中间件与对话引擎写入，下游按需读取做日志对齐。
package ctxkeys

import "context"

// contextKey 专用键类型，避免与其他包的 context 值冲突
type contextKey string

const (
	traceIDKey    contextKey = "trace_id"
	turnIDKey     contextKey = "turn_id"
	sessionKeyKey contextKey = "session_key"
)

// stringValue 读取字符串值，空串视同缺失
func stringValue(ctx context.Context, key contextKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithTraceID 注入请求级追踪 ID（HTTP 层的 X-Request-ID）
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceID 返回请求级追踪 ID
func TraceID(ctx context.Context) (string, bool) {
	return stringValue(ctx, traceIDKey)
}

// WithTurnID 注入当前轮次 ID
func WithTurnID(ctx context.Context, turnID string) context.Context {
	return context.WithValue(ctx, turnIDKey, turnID)
}

// TurnID 返回当前轮次 ID
func TurnID(ctx context.Context) (string, bool) {
	return stringValue(ctx, turnIDKey)
}

// WithSessionKey 注入会话键
func WithSessionKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, sessionKeyKey, key)
}

// SessionKey 返回会话键
func SessionKey(ctx context.Context) (string, bool) {
	return stringValue(ctx, sessionKeyKey)
}
