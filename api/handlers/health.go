package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/ticketflow/llm"
)

// =============================================================================
// 🏥 健康与就绪探针
// =============================================================================

// 健康状态与单项检查结果的线上取值
const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"

	checkPass = "pass"
	checkFail = "fail"
)

// readinessTimeout 就绪探针里全部检查共享的时间预算
const readinessTimeout = 5 * time.Second

// HealthHandler 承载存活、就绪、版本三类探针端点。
// 就绪检查通过 RegisterCheck 挂载，检查失败时探针返回 503。
type HealthHandler struct {
	logger *zap.Logger
	checks []HealthCheck
	mu     sync.RWMutex
}

// HealthCheck 单项就绪检查
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// HealthStatus 探针响应体
type HealthStatus struct {
	Status    string                 `json:"status"` // healthy / unhealthy
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult 单项检查的结果
type CheckResult struct {
	Status  string `json:"status"` // pass / fail
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// NewHealthHandler 创建探针处理器
func NewHealthHandler(logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		logger: logger,
		checks: make([]HealthCheck, 0),
	}
}

// RegisterCheck 挂载一项就绪检查
func (h *HealthHandler) RegisterCheck(check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, check)
}

// snapshotChecks 拷贝一份检查列表，跑检查时不持锁
func (h *HealthHandler) snapshotChecks() []HealthCheck {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]HealthCheck(nil), h.checks...)
}

// =============================================================================
// 🎯 HTTP 处理程序
// =============================================================================

// HandleHealth 处理 /health 请求，进程活着即返回 healthy
// @Summary 存活探针
// @Description 进程存活即返回 healthy，不依赖任何下游
// @Tags 健康
// @Produce json
// @Success 200 {object} HealthStatus "进程存活"
// @Router /health [get]
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, HealthStatus{
		Status:    statusHealthy,
		Timestamp: time.Now(),
	})
}

// HandleHealthz 处理 /healthz 请求，与 /health 同义
// @Summary 存活探针（K8s 风格路径）
// @Description 行为与 /health 完全一致
// @Tags 健康
// @Produce json
// @Success 200 {object} HealthStatus "进程存活"
// @Router /healthz [get]
func (h *HealthHandler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	h.HandleHealth(w, r)
}

// HandleReady 处理 /ready 与 /readyz 请求。
// 逐项执行注册的检查，任何一项失败都按 503 上报，实例随之被摘流。
// @Summary 就绪探针
// @Description 逐项执行注册的就绪检查，汇总逐项结果
// @Tags 健康
// @Produce json
// @Success 200 {object} HealthStatus "全部检查通过"
// @Failure 503 {object} HealthStatus "存在失败的检查"
// @Router /ready [get]
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	results, ready := h.runChecks(ctx)

	status := HealthStatus{
		Status:    statusHealthy,
		Timestamp: time.Now(),
		Checks:    results,
	}
	if !ready {
		status.Status = statusUnhealthy
		WriteJSON(w, http.StatusServiceUnavailable, status)
		return
	}

	WriteJSON(w, http.StatusOK, status)
}

// runChecks 执行全部就绪检查，返回逐项结果和整体是否就绪
func (h *HealthHandler) runChecks(ctx context.Context) (map[string]CheckResult, bool) {
	results := make(map[string]CheckResult)
	ready := true

	for _, check := range h.snapshotChecks() {
		start := time.Now()
		err := check.Check(ctx)
		latency := time.Since(start)

		result := CheckResult{
			Status:  checkPass,
			Latency: latency.String(),
		}
		if err != nil {
			result.Status = checkFail
			result.Message = err.Error()
			ready = false

			h.logger.Warn("health check failed",
				zap.String("check", check.Name()),
				zap.Error(err),
				zap.Duration("latency", latency),
			)
		}

		results[check.Name()] = result
	}

	return results, ready
}

// HandleVersion 处理 /version 请求
// @Summary 构建版本
// @Description 返回编译期注入的版本号、构建时间与提交哈希
// @Tags 健康
// @Produce json
// @Success 200 {object} map[string]string "构建信息"
// @Router /version [get]
func (h *HealthHandler) HandleVersion(version, buildTime, gitCommit string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteSuccess(w, map[string]string{
			"version":    version,
			"build_time": buildTime,
			"git_commit": gitCommit,
		})
	}
}

// =============================================================================
// 🔧 内置健康检查实现
// =============================================================================

// ProviderHealthCheck 后端连通性检查。
// 就绪探针通过它确认生成式后端可达，后端失联时实例停止接收流量。
type ProviderHealthCheck struct {
	provider llm.Provider
}

// NewProviderHealthCheck 创建后端连通性检查
func NewProviderHealthCheck(provider llm.Provider) *ProviderHealthCheck {
	return &ProviderHealthCheck{provider: provider}
}

func (c *ProviderHealthCheck) Name() string {
	return "backend:" + c.provider.Name()
}

func (c *ProviderHealthCheck) Check(ctx context.Context) error {
	_, err := c.provider.HealthCheck(ctx)
	return err
}
