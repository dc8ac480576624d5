package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/ticketflow/api/handlers"
	"github.com/BaSui01/ticketflow/internal/ctxkeys"
	"github.com/BaSui01/ticketflow/internal/metrics"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// =============================================================================
// 🔗 中间件骨架
// =============================================================================

// Middleware 包装 http.Handler，叠加横切行为。
type Middleware func(http.Handler) http.Handler

// Chain 按传入顺序叠加中间件：第一个元素在最外层，请求最先经过它。
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// countingWriter 记录状态码与响应字节数，访问日志和指标共用一份。
type countingWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
	wrote  bool
}

func (cw *countingWriter) WriteHeader(code int) {
	if cw.wrote {
		return
	}
	cw.status = code
	cw.wrote = true
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	if !cw.wrote {
		cw.WriteHeader(http.StatusOK)
	}
	n, err := cw.ResponseWriter.Write(p)
	cw.bytes += int64(n)
	return n, err
}

// Flush 透传底层 writer 的刷写能力，流式响应不受包装影响。
func (cw *countingWriter) Flush() {
	if f, ok := cw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap 暴露底层 writer，http.ResponseController 经由它取得扩展能力。
func (cw *countingWriter) Unwrap() http.ResponseWriter {
	return cw.ResponseWriter
}

// =============================================================================
// 🆔 请求标识
// =============================================================================

// RequestID 给每个请求定下 X-Request-ID：客户端带了就沿用，没带就生成。
// ID 写回响应头并注入上下文，下游经 RequestIDFromContext 取用；
// 引擎与网关日志里的 trace_id 对应的就是这个值。
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if id == "" {
				id = generateRequestID()
			}
			w.Header().Set("X-Request-ID", id)
			next.ServeHTTP(w, r.WithContext(ctxkeys.WithTraceID(r.Context(), id)))
		})
	}
}

// RequestIDFromContext 取出当前请求的 ID，没有则返回空串。
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctxkeys.TraceID(ctx)
	return id
}

// generateRequestID 生成带 req- 前缀的随机请求 ID。
func generateRequestID() string {
	return "req-" + uuid.NewString()
}

// =============================================================================
// 🛡️ 恢复与安全头
// =============================================================================

// Recovery 捕获 handler panic，落日志后回 500，进程继续服务。
func Recovery(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				logger.Error("panic recovered",
					zap.Any("panic", rec),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				fmt.Fprint(w, `{"success":false,"error":{"code":"INTERNAL_ERROR","message":"internal server error"}}`)
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// securityHeaderSet 每个响应统一附带的浏览器安全头。
var securityHeaderSet = map[string]string{
	"X-Frame-Options":         "DENY",
	"X-Content-Type-Options":  "nosniff",
	"Referrer-Policy":         "strict-origin-when-cross-origin",
	"X-XSS-Protection":        "1; mode=block",
	"Content-Security-Policy": "default-src 'self'",
}

// SecurityHeaders 给所有响应加上 securityHeaderSet 中的头。
func SecurityHeaders() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for k, v := range securityHeaderSet {
				h.Set(k, v)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// =============================================================================
// 📊 访问日志与指标
// =============================================================================

// RequestLogger 每个请求落一条访问日志，带上请求 ID 与响应大小。
func RequestLogger(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			cw := &countingWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(cw, r)

			logger.Info("http request served",
				zap.String("request_id", RequestIDFromContext(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", cw.status),
				zap.Int64("bytes", cw.bytes),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_addr", r.RemoteAddr),
			)
		})
	}
}

// MetricsMiddleware 把每个请求的方法、路径、状态与大小送进 Prometheus。
// 路径先经 normalizePath 折叠，动态段不会撑爆标签基数。
func MetricsMiddleware(collector *metrics.Collector) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			cw := &countingWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(cw, r)

			reqBytes := r.ContentLength
			if reqBytes < 0 {
				// chunked 等长度未知的请求体按 0 记
				reqBytes = 0
			}
			collector.RecordHTTPRequest(r.Method, normalizePath(r.URL.Path),
				cw.status, time.Since(start), reqBytes, cw.bytes)
		})
	}
}

// dynamicSegment 识别像标识符的路径段：UUID、8 位以上十六进制、纯数字。
var dynamicSegment = regexp.MustCompile(`^(?:[0-9a-fA-F]{8,}(?:-[0-9a-fA-F]{4,}){0,4}|[0-9]+)$`)

// normalizePath 把路径中的动态段折叠成占位符，作为指标与 span 的低基数标签。
//
//	/api/v1/sessions/customer-42/reset -> /api/v1/sessions/:key/reset
//	/api/v1/turns                      -> 原样返回
func normalizePath(path string) string {
	// 会话键由调用方任意取值，这条路由整体折叠
	if rest, ok := strings.CutPrefix(path, "/api/v1/sessions/"); ok && strings.HasSuffix(rest, "/reset") {
		return "/api/v1/sessions/:key/reset"
	}

	segments := strings.Split(path, "/")
	changed := false
	for i, seg := range segments {
		if seg != "" && dynamicSegment.MatchString(seg) {
			segments[i] = ":id"
			changed = true
		}
	}
	if !changed {
		return path
	}
	return strings.Join(segments, "/")
}

// =============================================================================
// 🌐 分布式追踪
// =============================================================================

// OTelTracing 为每个请求开 server span，接续请求头里携带的上游 trace 上下文。
// span 名与 http.route 用折叠后的路径。
func OTelTracing() Middleware {
	tracer := otel.Tracer("ticketflow/http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

			route := normalizePath(r.URL.Path)
			ctx, span := tracer.Start(ctx, r.Method+" "+route,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.HTTPRoute(route),
					semconv.URLFull(r.URL.String()),
				),
			)
			defer span.End()

			rw := handlers.NewResponseWriter(w)
			next.ServeHTTP(rw, r.WithContext(ctx))

			span.SetAttributes(semconv.HTTPResponseStatusCode(rw.StatusCode))
			if rw.StatusCode >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(rw.StatusCode))
			}
		})
	}
}

// =============================================================================
// 🚦 限流
// =============================================================================

// ipThrottle 按来源维护令牌桶，闲置的桶由后台定期回收。
type ipThrottle struct {
	rps   rate.Limit
	burst int

	mu      sync.Mutex
	buckets map[string]*throttleEntry
}

type throttleEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newIPThrottle(ctx context.Context, rps float64, burst int) *ipThrottle {
	t := &ipThrottle{
		rps:     rate.Limit(rps),
		burst:   burst,
		buckets: make(map[string]*throttleEntry),
	}
	go t.sweep(ctx)
	return t
}

// allow 判定该来源当前是否放行。
func (t *ipThrottle) allow(source string) bool {
	t.mu.Lock()
	e, ok := t.buckets[source]
	if !ok {
		e = &throttleEntry{limiter: rate.NewLimiter(t.rps, t.burst)}
		t.buckets[source] = e
	}
	e.lastSeen = time.Now()
	t.mu.Unlock()
	return e.limiter.Allow()
}

// sweep 每分钟回收一次超过三分钟未出现的来源。
func (t *ipThrottle) sweep(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-3 * time.Minute)
			t.mu.Lock()
			for source, e := range t.buckets {
				if e.lastSeen.Before(cutoff) {
					delete(t.buckets, source)
				}
			}
			t.mu.Unlock()
		}
	}
}

// RateLimiter 按来源 IP 限流，超出的请求回 429。
// ctx 取消时停掉后台回收 goroutine，关闭路径上由 Server.Shutdown 负责。
func RateLimiter(ctx context.Context, rps float64, burst int, logger *zap.Logger) Middleware {
	throttle := newIPThrottle(ctx, rps, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}
			if !throttle.allow(ip) {
				logger.Warn("rate limit exceeded",
					zap.String("ip", ip),
					zap.String("path", r.URL.Path),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				fmt.Fprint(w, `{"success":false,"error":{"code":"RATE_LIMITED","message":"too many requests"}}`)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// =============================================================================
// 🌍 CORS
// =============================================================================

// CORS 按白名单放行跨域请求。
// 白名单为空时对带 Origin 的请求不下发任何 CORS 头：
// 预检直接 403，普通请求交给浏览器同源策略拦截。
func CORS(allowedOrigins []string) Middleware {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			preflight := r.Method == http.MethodOptions

			if len(allowed) == 0 && origin != "" {
				if preflight {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			if _, ok := allowed[origin]; ok {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
				h.Set("Access-Control-Max-Age", "86400")
			}
			if preflight {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
