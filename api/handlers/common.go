package handlers

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"time"

	"github.com/BaSui01/ticketflow/types"
	"go.uber.org/zap"
)

// maxBodyBytes 请求体大小上限
const maxBodyBytes = 1 << 20 // 1 MB

// =============================================================================
// 📦 统一响应信封
// =============================================================================

// Response 是所有业务端点共享的响应信封。成功时 Data 携带负载，失败时
// Error 描述原因，两者互斥。RequestID 回显中间件分配的请求标识，便于把
// 一条响应和服务端日志对上。
type Response struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *ErrorInfo  `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"`
}

// ErrorInfo 错误信封中对客户端可见的部分
type ErrorInfo struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	Retryable  bool   `json:"retryable,omitempty"`
	HTTPStatus int    `json:"-"` // 仅内部传递状态码，不出现在响应体
}

// errorStatus 把领域错误码翻译成 HTTP 状态码，未列出的一律按 500 处理
var errorStatus = map[types.ErrorCode]int{
	// 4xx 客户端错误
	types.ErrInvalidRequest:  http.StatusBadRequest,
	types.ErrAuthentication:  http.StatusUnauthorized,
	types.ErrModelNotFound:   http.StatusNotFound,
	types.ErrQuotaExceeded:   http.StatusPaymentRequired,
	types.ErrContextTooLong:  http.StatusRequestEntityTooLarge,
	types.ErrContentFiltered: http.StatusUnprocessableEntity,
	types.ErrRateLimited:     http.StatusTooManyRequests,

	// 5xx 服务端错误
	types.ErrUpstreamError:      http.StatusBadGateway,
	types.ErrBackendUnavailable: http.StatusServiceUnavailable,
	types.ErrTimeout:            http.StatusGatewayTimeout,
	types.ErrInternalError:      http.StatusInternalServerError,
}

func httpStatusFor(code types.ErrorCode) int {
	if status, ok := errorStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// =============================================================================
// 🎯 响应写入
// =============================================================================

// WriteJSON 以 JSON 形式写出任意负载。
// 健康检查等不走统一信封的端点直接使用它。
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// 状态行已经发出，编码失败只能放弃这条响应
		return
	}
}

// WriteSuccess 用统一信封写出成功响应
func WriteSuccess(w http.ResponseWriter, data interface{}) {
	WriteJSON(w, http.StatusOK, Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: requestIDFromHeader(w),
	})
}

// WriteError 把 types.Error 翻译成错误信封并记录日志。
// 状态码优先取错误自带的 HTTPStatus，没有则按错误码映射。
func WriteError(w http.ResponseWriter, err *types.Error, logger *zap.Logger) {
	status := err.HTTPStatus
	if status == 0 {
		status = httpStatusFor(err.Code)
	}

	if logger != nil {
		logger.Error("API error",
			zap.String("code", string(err.Code)),
			zap.String("message", err.Message),
			zap.Int("status", status),
			zap.Bool("retryable", err.Retryable),
			zap.Error(err.Cause),
		)
	}

	WriteJSON(w, status, Response{
		Success: false,
		Error: &ErrorInfo{
			Code:       string(err.Code),
			Message:    err.Message,
			Retryable:  err.Retryable,
			HTTPStatus: status,
		},
		Timestamp: time.Now(),
		RequestID: requestIDFromHeader(w),
	})
}

// WriteErrorMessage 是 WriteError 的便捷形式，现场构造一个 types.Error
func WriteErrorMessage(w http.ResponseWriter, status int, code types.ErrorCode, message string, logger *zap.Logger) {
	WriteError(w, types.NewError(code, message).WithHTTPStatus(status), logger)
}

// requestIDFromHeader 取回中间件写在响应头上的请求 ID。
// 请求没有经过中间件时（比如单测直接调 handler）为空串，
// 信封序列化时会被 omitempty 省略。
func requestIDFromHeader(w http.ResponseWriter) string {
	return w.Header().Get("X-Request-ID")
}

// =============================================================================
// 🛡️ 请求解析与校验
// =============================================================================

// DecodeJSONBody 解码 JSON 请求体到 dst，失败时直接写出错误响应并返回该错误。
// 请求体超过 maxBodyBytes 按 413 报错，未知字段一律拒绝。
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}, logger *zap.Logger) error {
	if r.Body == nil {
		err := types.NewError(types.ErrInvalidRequest, "request body is empty")
		WriteError(w, err, logger)
		return err
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields() // 严格模式：拒绝未知字段

	if err := decoder.Decode(dst); err != nil {
		status := http.StatusBadRequest
		message := "invalid JSON body"

		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
			message = "request body too large"
		}

		apiErr := types.NewError(types.ErrInvalidRequest, message).
			WithCause(err).
			WithHTTPStatus(status)
		WriteError(w, apiErr, logger)
		return apiErr
	}

	return nil
}

// ValidateContentType 校验 Content-Type 是否为 application/json。
// 使用 mime.ParseMediaType 解析，charset 等参数不影响判定。
func ValidateContentType(w http.ResponseWriter, r *http.Request, logger *zap.Logger) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		apiErr := types.NewError(types.ErrInvalidRequest, "Content-Type must be application/json")
		WriteError(w, apiErr, logger)
		return false
	}
	return true
}

// =============================================================================
// 📊 状态码捕获
// =============================================================================

// ResponseWriter 包装 http.ResponseWriter 以记录实际写出的状态码，
// 追踪与指标中间件靠它给响应打标签。
type ResponseWriter struct {
	http.ResponseWriter
	StatusCode int
	Written    bool
}

// NewResponseWriter 创建状态码初始为 200 的包装器
func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{
		ResponseWriter: w,
		StatusCode:     http.StatusOK,
	}
}

// WriteHeader 记录第一次写出的状态码，后续调用不再透传
func (rw *ResponseWriter) WriteHeader(code int) {
	if !rw.Written {
		rw.StatusCode = code
		rw.Written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

// Write 在必要时先补写 200 状态行
func (rw *ResponseWriter) Write(b []byte) (int, error) {
	if !rw.Written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// Unwrap 暴露底层 writer，http.ResponseController 经由它透传 Flush 等能力
func (rw *ResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
