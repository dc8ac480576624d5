package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/ticketflow"
	"github.com/BaSui01/ticketflow/api/handlers"
	"github.com/BaSui01/ticketflow/config"
	"github.com/BaSui01/ticketflow/dialogue"
	"github.com/BaSui01/ticketflow/internal/metrics"
	"github.com/BaSui01/ticketflow/internal/server"
	"github.com/BaSui01/ticketflow/internal/telemetry"
	"github.com/BaSui01/ticketflow/llm"
	"github.com/BaSui01/ticketflow/llm/providers/openaicompat"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 把对话引擎、HTTP 路由与生命周期管理拼装成可运行的服务。
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	// OTel SDK 生命周期，关闭时负责冲刷
	otelProviders *telemetry.Providers

	// HTTP 监听与优雅关闭
	httpManager *server.Manager

	// 对话引擎及其后端
	provider llm.Provider
	engine   *dialogue.Engine

	healthHandler *handlers.HealthHandler
	turnHandler   *handlers.TurnHandler

	metricsCollector *metrics.Collector

	// 停掉限流器的后台回收 goroutine
	rateLimiterCancel context.CancelFunc
}

// NewServer 构造服务实例，Start 之前不占用任何资源。
func NewServer(cfg *config.Config, logger *zap.Logger, otelProviders *telemetry.Providers) *Server {
	return &Server{
		cfg:           cfg,
		logger:        logger,
		otelProviders: otelProviders,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 依次装配指标、引擎、handler 与 HTTP 服务，任一步失败即返回。
func (s *Server) Start() error {
	s.metricsCollector = metrics.NewCollector("ticketflow", s.logger)

	if err := s.initEngine(); err != nil {
		return fmt.Errorf("failed to init engine: %w", err)
	}

	s.initHandlers()

	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	s.logger.Info("ticketflow ready",
		zap.String("addr", s.cfg.Server.Addr),
		zap.String("provider", s.provider.Name()),
	)

	return nil
}

// initEngine 构建后端 Provider 与对话引擎。
func (s *Server) initEngine() error {
	provider, err := buildProvider(s.cfg.LLM, s.logger)
	if err != nil {
		return err
	}
	s.provider = provider

	engine, err := ticketflow.NewFromConfig(s.cfg.Dialogue, provider, s.logger)
	if err != nil {
		return err
	}
	s.engine = engine

	s.logger.Info("dialogue engine initialized",
		zap.String("provider", provider.Name()),
		zap.String("model", s.cfg.Dialogue.Model),
	)
	return nil
}

// buildProvider 根据配置构建 OpenAI 兼容后端适配器。
// 已知服务商只需给 api_key，自定义后端必须显式给出 base_url。
func buildProvider(cfg config.LLMConfig, logger *zap.Logger) (llm.Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm api_key is required (set TICKETFLOW_LLM_API_KEY)")
	}

	name := cfg.Provider
	baseURL := cfg.BaseURL
	switch name {
	case "openai", "":
		name = "openai"
		if baseURL == "" {
			baseURL = "https://api.openai.com"
		}
	case "deepseek":
		if baseURL == "" {
			baseURL = "https://api.deepseek.com"
		}
	default:
		if baseURL == "" {
			return nil, fmt.Errorf("base_url is required for provider %q", name)
		}
	}

	return openaicompat.New(openaicompat.Config{
		ProviderName: name,
		APIKey:       cfg.APIKey,
		BaseURL:      baseURL,
		Timeout:      cfg.Timeout,
	}, logger), nil
}

// initHandlers 准备 HTTP handler，就绪探针挂上后端连通性检查。
func (s *Server) initHandlers() {
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.healthHandler.RegisterCheck(handlers.NewProviderHealthCheck(s.provider))

	s.turnHandler = handlers.NewTurnHandler(s.engine, s.metricsCollector, s.logger)
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// startHTTPServer 挂载路由、叠中间件并通过 server.Manager 开始监听。
func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	// 探针与版本
	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// 业务 API
	mux.HandleFunc("POST /api/v1/turns", s.turnHandler.HandleTurn)
	mux.HandleFunc("POST /api/v1/sessions/{key}/reset", s.turnHandler.HandleReset)

	// Prometheus 抓取端点
	mux.Handle("/metrics", promhttp.Handler())

	// 中间件自外向内：恢复最外层，限流最靠近业务
	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector),
	}
	if s.cfg.Telemetry.Enabled {
		middlewares = append(middlewares, OTelTracing())
	}
	middlewares = append(middlewares, CORS(s.cfg.Server.CORSAllowedOrigins))
	if s.cfg.Server.RateLimitRPS > 0 {
		rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
		s.rateLimiterCancel = rateLimiterCancel
		middlewares = append(middlewares,
			RateLimiter(rateLimiterCtx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger))
	}
	handler := Chain(mux, middlewares...)

	s.httpManager = server.NewManager(handler, server.Config{
		Addr:            s.cfg.Server.Addr,
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     s.cfg.Server.IdleTimeout,
		MaxHeaderBytes:  s.cfg.Server.MaxHeaderBytes,
		MaxConns:        s.cfg.Server.MaxConns,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)

	// Start 不阻塞，serve 循环在 Manager 内部 goroutine 里跑
	return s.httpManager.Start()
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 阻塞等待退出信号，随后执行完整清理。
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown 按依赖反序收尾：先停限流回收，再关 HTTP，最后冲刷遥测。
func (s *Server) Shutdown() {
	s.logger.Info("shutting down ticketflow")

	ctx := context.Background()

	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("http server shutdown error", zap.Error(err))
		}
	}

	if s.otelProviders != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := s.otelProviders.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("telemetry shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("shutdown complete")
}
